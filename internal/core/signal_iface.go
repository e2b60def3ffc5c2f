package core

// Frame is a marshaled outbound payload.
type Frame []byte

// SignalConnection abstracts the messaging transport for one socket.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
