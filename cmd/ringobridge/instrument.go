package main

import (
	"context"
	"encoding/json"
	"time"

	"ringobridge/internal/bridge"
	"ringobridge/internal/ipc"
	"ringobridge/internal/metrics"
)

// meteredBackend records latency and result code for every call.
type meteredBackend struct {
	ipc.Backend
	metrics *metrics.BridgeMetrics
}

func (b *meteredBackend) Call(ctx context.Context, channel, method string, args json.RawMessage) (any, error) {
	start := time.Now()
	v, err := b.Backend.Call(ctx, channel, method, args)

	code := ""
	if be := bridge.AsError(err); be != nil {
		code = string(be.Code)
	}
	b.metrics.ObserveCall(channel, method, time.Since(start), code)
	return v, err
}
