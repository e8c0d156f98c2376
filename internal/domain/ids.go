// Package domain contains entity types without logic, just meta-data.
package domain

type (
	// RoomID names a meeting room. Opaque, chosen by clients.
	RoomID string
	// SocketID identifies one signaling connection. Assigned by the
	// server, stable for the connection's lifetime.
	SocketID string
	// StreamID identifies a produced media stream (engine-assigned).
	StreamID string
	// ConsumerID identifies a receive-side binding to a remote stream.
	ConsumerID string
	// TransportID identifies an ICE/DTLS media transport.
	TransportID string
	// MeetingID identifies a scheduled meeting record.
	MeetingID string
)
