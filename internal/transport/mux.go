package transport

import "errors"

// Mux is a Port over several transports. Each call goes to the first
// transport that knows the endpoint.
type Mux struct {
	ports []Port
}

func NewMux(ports ...Port) *Mux {
	return &Mux{ports: ports}
}

func (m *Mux) Send(endpointID string, frame []byte) error {
	for _, p := range m.ports {
		if err := p.Send(endpointID, frame); !errors.Is(err, ErrUnknownEndpoint) {
			return err
		}
	}
	return ErrUnknownEndpoint
}

func (m *Mux) Close(endpointID string) error {
	for _, p := range m.ports {
		if err := p.Close(endpointID); !errors.Is(err, ErrUnknownEndpoint) {
			return err
		}
	}
	return ErrUnknownEndpoint
}
