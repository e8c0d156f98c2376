// Package core defines the contracts between the session-orchestration
// layer and its collaborators: the media engine control plane and the
// duplex signaling transport.
package core

// Frame is a raw outbound payload (an encoded event envelope).
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
