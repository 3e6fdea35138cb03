// Package hub fans session events out to websocket clients using the
// channel-based broadcast pattern: one goroutine owns the client set, clients
// register and unregister through channels, and slow consumers are dropped
// rather than allowed to stall the call.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded event or snapshot.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (e.g. synthesized audio).
	BinaryMessage
)

// Message is one frame to broadcast to clients.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
