// Package endpoint tracks the remote peers a session knows about.
package endpoint

import (
	"sort"
	"strings"
	"sync"
)

// ConnectionState is the lifecycle of one remote endpoint.
type ConnectionState int

const (
	Connecting ConnectionState = iota
	Connected
	Disconnecting
	Disconnected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TransferStatus mirrors the transport's payload delivery status.
type TransferStatus int

const (
	Unknown TransferStatus = iota
	Success
	Failure
	InProgress
	Canceled
)

func (s TransferStatus) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case InProgress:
		return "in_progress"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Record is one remote peer as seen by the local session.
type Record struct {
	ID                 string
	DisplayName        string
	State              ConnectionState
	LastTransferStatus TransferStatus
}

// Registry is pure bookkeeping of endpoint records, safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Record)}
}

// Upsert creates or updates a record. An empty displayName keeps the name
// already learned. IDs are used verbatim; blank ones are ignored.
func (r *Registry) Upsert(id, displayName string, state ConnectionState) Record {
	if strings.TrimSpace(id) == "" {
		return Record{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[id]
	if !ok {
		rec = Record{ID: id}
	}
	if displayName != "" {
		rec.DisplayName = displayName
	}
	rec.State = state
	r.items[id] = rec
	return rec
}

// SetDisplayName records a name learned after the connection was made.
func (r *Registry) SetDisplayName(id, displayName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[id]
	if !ok {
		return false
	}
	rec.DisplayName = displayName
	r.items[id] = rec
	return true
}

func (r *Registry) SetTransferStatus(id string, status TransferStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[id]
	if !ok {
		return false
	}
	rec.LastTransferStatus = status
	r.items[id] = rec
	return true
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[id]
	return rec, ok
}

// All returns every record ordered by endpoint ID.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.items))
	for _, rec := range r.items {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Connected returns the IDs of endpoints currently in the Connected state.
func (r *Registry) Connected() []string {
	var ids []string
	for _, rec := range r.All() {
		if rec.State == Connected {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
