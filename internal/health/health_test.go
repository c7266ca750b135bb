package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(ctx context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(ctx context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("queue", true, healthy)
	c.RegisterFunc("journal", false, unhealthy)

	// Nothing has run yet: the critical component is unknown.
	assert.Equal(t, StatusUnknown, c.OverallStatus())

	c.Check(context.Background())
	assert.Equal(t, StatusDegraded, c.OverallStatus())

	c.RegisterFunc("queue", true, unhealthy)
	c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
	assert.Equal(t, []string{"journal", "queue"}, c.Names())
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			time.Sleep(time.Second)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("broken", false, func(ctx context.Context) CheckResult { panic("boom") })

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["broken"].Status)
	assert.Equal(t, "boom", results["broken"].Error)
	assert.Equal(t, results, c.Results())
}

func TestBuiltinChecks(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, PingCheck("db", func(context.Context) error { return nil })(ctx).Status)
	r := PingCheck("db", func(context.Context) error { return errors.New("closed") })(ctx)
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "closed", r.Error)

	run := func(fn func()) error { fn(); return nil }
	assert.Equal(t, StatusHealthy, SyncCheck(run)(ctx).Status)

	stopped := func(func()) error { return errors.New("queue closed") }
	assert.Equal(t, StatusUnhealthy, SyncCheck(stopped)(ctx).Status)

	block := make(chan struct{})
	defer close(block)
	wedged := func(func()) error { <-block; return nil }
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, "executor blocked", SyncCheck(wedged)(tctx).Message)

	r = CapabilityCheck(func() (bool, string) { return false, "no session bus" })(ctx)
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "no session bus", r.Message)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("queue", true, healthy)
	c.RegisterFunc("window", false, CapabilityCheck(func() (bool, string) { return false, "no host window" }))

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, "no host window", resp.Components["window"].Message)

	rec = httptest.NewRecorder()
	c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alive"`)
}
