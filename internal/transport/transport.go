// Package transport moves opaque frames between a session and its remote
// endpoints. Implementations are asynchronous: Send queues a frame and
// returns; delivery outcomes come back through Handler callbacks.
package transport

import (
	"errors"

	"github.com/corvino/jamq/internal/endpoint"
)

var (
	ErrUnknownEndpoint = errors.New("transport: unknown endpoint")
	ErrSendBufferFull  = errors.New("transport: send buffer full")
	ErrClosed          = errors.New("transport: closed")

	// ErrDuplicateEndpoint is returned when a peer already has a live
	// connection under the same endpoint ID.
	ErrDuplicateEndpoint = errors.New("transport: duplicate endpoint")
)

// Port is what a session uses to talk to its peers.
type Port interface {
	// Send queues one frame for endpointID. It never blocks on the network.
	Send(endpointID string, frame []byte) error
	// Close tears down the connection after already-queued frames drain.
	Close(endpointID string) error
}

// Handler receives transport events. Calls may arrive concurrently from
// many goroutines.
type Handler interface {
	OnConnecting(endpointID string)
	OnConnected(endpointID string)
	OnDisconnected(endpointID string)
	OnPayloadReceived(endpointID string, payload []byte)
	OnTransferStatusChanged(endpointID string, status endpoint.TransferStatus)
}

// SendAll queues frame for every listed endpoint and returns the per
// endpoint failures.
func SendAll(p Port, ids []string, frame []byte) map[string]error {
	var failed map[string]error
	for _, id := range ids {
		if err := p.Send(id, frame); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[id] = err
		}
	}
	return failed
}
