package protocol

// Kind identifies a protocol message variant.
type Kind int

// Message kinds.
const (
	KindInvalid Kind = iota
	KindInitiateClient
	KindSongRequest
	KindQueueUpdate
	KindNewTrackAdded
	KindHostDisconnecting
)

func (k Kind) String() string {
	switch k {
	case KindInitiateClient:
		return "initiate_client"
	case KindSongRequest:
		return "song_request"
	case KindQueueUpdate:
		return "queue_update"
	case KindNewTrackAdded:
		return "new_track_added"
	case KindHostDisconnecting:
		return "host_disconnecting"
	default:
		return "invalid"
	}
}

// Message is the closed set of frames exchanged between host and clients.
// The concrete types below are the only implementations.
type Message interface {
	Kind() Kind
}

// QueueEntry is one slot of the playback queue. Seq is the host-assigned
// insertion sequence number; it is unique within a session.
type QueueEntry struct {
	TrackURI    string `json:"track_uri"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Seq         int64  `json:"seq"`
}

// InitiateClient is sent by the host once per new connection.
type InitiateClient struct {
	SessionID  string
	QueueTitle string
	OwnerName  string
	FairPlay   bool
}

// SongRequest is sent by a client asking the host to queue a track.
type SongRequest struct {
	TrackURI             string
	RequesterUserID      string
	RequesterDisplayName string
}

// QueueUpdate is the host's full-state broadcast. NowPlaying indexes
// Entries; NowPlaying == len(Entries) means nothing is playing.
type QueueUpdate struct {
	Entries    []QueueEntry
	NowPlaying int
}

// NewTrackAdded is a lightweight notification for transient UI events.
type NewTrackAdded struct {
	TrackURI             string
	RequesterDisplayName string
}

// HostDisconnecting is sent best-effort right before the host tears down.
type HostDisconnecting struct{}

// Invalid is produced by Decode for frames matching no template. It is
// never sent.
type Invalid struct {
	Raw string
}

func (InitiateClient) Kind() Kind    { return KindInitiateClient }
func (SongRequest) Kind() Kind       { return KindSongRequest }
func (QueueUpdate) Kind() Kind       { return KindQueueUpdate }
func (NewTrackAdded) Kind() Kind     { return KindNewTrackAdded }
func (HostDisconnecting) Kind() Kind { return KindHostDisconnecting }
func (Invalid) Kind() Kind           { return KindInvalid }

// Current returns the now-playing entry, if any.
func (u QueueUpdate) Current() (QueueEntry, bool) {
	if u.NowPlaying < 0 || u.NowPlaying >= len(u.Entries) {
		return QueueEntry{}, false
	}
	return u.Entries[u.NowPlaying], true
}

// Upcoming returns the entries queued after the now-playing one.
func (u QueueUpdate) Upcoming() []QueueEntry {
	if u.NowPlaying+1 >= len(u.Entries) {
		return nil
	}
	return u.Entries[u.NowPlaying+1:]
}
