// Package ipc carries bridge channels between the ringobridge daemon and
// the application layer.
//
// Every message is a 16-byte header followed by a JSON payload. Over the
// unix socket the header is sent in binary; over WebSocket the same fields
// travel in a JSON envelope per text frame.
//
// Calls are request/response pairs correlated by request ID. Streams are
// opened with MsgSubscribe naming a channel and then deliver MsgEvent
// messages until MsgUnsubscribe or disconnect.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x52425247 // "RBRG"
)

// MaxPayload bounds a single message payload.
const MaxPayload = 4 * 1024 * 1024

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006

	// Status (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Method calls (0x02xx)
	MsgCall           MessageType = 0x0200
	MsgCallResult     MessageType = 0x0201
	MsgNotImplemented MessageType = 0x0202

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

var messageNames = map[MessageType]string{
	MsgPing:            "ping",
	MsgPong:            "pong",
	MsgHandshake:       "handshake",
	MsgHandshakeAck:    "handshake_ack",
	MsgError:           "error",
	MsgShutdown:        "shutdown",
	MsgStatusRequest:   "status",
	MsgStatusResponse:  "status_response",
	MsgCall:            "call",
	MsgCallResult:      "call_result",
	MsgNotImplemented:  "not_implemented",
	MsgSubscribe:       "subscribe",
	MsgSubscribeResp:   "subscribe_response",
	MsgUnsubscribe:     "unsubscribe",
	MsgUnsubscribeResp: "unsubscribe_response",
	MsgEvent:           "event",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON        uint8 = 0x04
	FlagStreamStart uint8 = 0x08
	FlagStreamEnd   uint8 = 0x10
)

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the header and payload as one buffer.
func (m *Message) Write(w io.Writer) error {
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Magic)
	buf = append(buf, m.Header.Version, m.Header.Flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// envelope is the WebSocket form of a Message.
type envelope struct {
	Type      MessageType     `json:"type"`
	RequestID uint32          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (m *Message) envelope() envelope {
	return envelope{Type: m.Header.Type, RequestID: m.Header.RequestID, Payload: m.Payload}
}

func (e envelope) message() *Message {
	return NewMessage(e.Type, e.RequestID, e.Payload)
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string   `json:"server_version"`
	ProtocolVersion uint8    `json:"protocol_version"`
	ClientID        string   `json:"client_id"`
	Channels        []string `json:"channels"`
}

// ErrorResponse is the payload of MsgError and MsgNotImplemented.
type ErrorResponse struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Transport-level error codes. Call failures carry the bridge codes.
const (
	ErrInvalidRequest   = "INVALID_REQUEST"
	ErrPermissionDenied = "PERMISSION_DENIED"
	ErrInternalError    = "INTERNAL"
)

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version   string        `json:"version"`
	Platform  string        `json:"platform"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
	Clients   int           `json:"clients"`
	Channels  []string      `json:"channels"`
	Streams   []StreamState `json:"streams"`
}

// StreamState reports whether a stream channel has a subscriber.
type StreamState struct {
	Channel string `json:"channel"`
	Active  bool   `json:"active"`
}

// CallRequest invokes method on channel.
type CallRequest struct {
	Channel string          `json:"channel"`
	Method  string          `json:"method"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// CallResult carries a successful call's value.
type CallResult struct {
	Value json.RawMessage `json:"value"`
}

// SubscribeRequest opens the stream on a channel.
type SubscribeRequest struct {
	Channel string `json:"channel"`
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Channel        string `json:"channel"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest cancels a subscription by ID or, when the ID is empty,
// by channel.
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
}

// Event is one stream item.
type Event struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code, message string) *Message {
	return newErrorOfType(MsgError, requestID, ErrorResponse{Code: code, Message: message})
}

func newErrorOfType(t MessageType, requestID uint32, e ErrorResponse) *Message {
	payload, _ := Encode(&e)
	return NewMessage(t, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
