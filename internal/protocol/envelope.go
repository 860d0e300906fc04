package protocol

// The types below are the JSON shapes of the host's HTTP API. They never
// travel over the peer transport.

// SessionView describes the hosted session.
type SessionView struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Owner     string `json:"owner"`
	FairPlay  bool   `json:"fair_play"`
	State     string `json:"state"`
}

// QueueView is the response for GET /api/queue.
type QueueView struct {
	NowPlaying int          `json:"now_playing"`
	Entries    []QueueEntry `json:"entries"`
	Count      int          `json:"count"`
}

// EnqueueRequest is the JSON body for POST /api/queue.
type EnqueueRequest struct {
	TrackURI    string `json:"track_uri"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// EndpointInfo describes one connected peer.
type EndpointInfo struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name,omitempty"`
	State        string `json:"state"`
	LastTransfer string `json:"last_transfer"`
}

// EndpointList is the response for GET /api/endpoints.
type EndpointList struct {
	Endpoints []EndpointInfo `json:"endpoints"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    string  `json:"uptime"`
	UptimeSec float64 `json:"uptime_seconds"`
	State     string  `json:"state"`
	Endpoints int     `json:"endpoints"`
	Queued    int     `json:"queued"`
}

// NewQueueView builds the HTTP view of a queue broadcast.
func NewQueueView(u QueueUpdate) QueueView {
	entries := u.Entries
	if entries == nil {
		entries = []QueueEntry{}
	}
	return QueueView{NowPlaying: u.NowPlaying, Entries: entries, Count: len(entries)}
}
