package protocol

import "strconv"

// MaxSeq returns the highest admission sequence number in the snapshot.
func (u QueueUpdate) MaxSeq() int64 {
	var max int64
	for _, e := range u.Entries {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max
}

// FindRequest returns the index of the first entry newer than after that
// userID requested for uri. Indexes in taken are skipped so repeated URIs
// match distinct entries.
func (u QueueUpdate) FindRequest(userID, uri string, after int64, taken map[int]bool) (int, bool) {
	for i, e := range u.Entries {
		if taken[i] || e.Seq <= after || e.UserID != userID || e.TrackURI != uri {
			continue
		}
		return i, true
	}
	return 0, false
}

// Marker is the list marker for entry i relative to the now-playing one.
func (u QueueUpdate) Marker(i int) string {
	switch {
	case i < u.NowPlaying:
		return "✓"
	case i == u.NowPlaying:
		return "▶"
	default:
		return " "
	}
}

// FitQueueUpdate builds the snapshot sent to peers when the whole queue
// may not fit in one frame. The current entry and everything upcoming
// always go out; history is kept from the most recent backwards while the
// encoded frame stays within limit. NowPlaying is rebased onto the
// window. ok is false when the upcoming part alone exceeds limit.
func FitQueueUpdate(entries []QueueEntry, nowPlaying, limit int) (u QueueUpdate, ok bool) {
	if nowPlaying < 0 {
		nowPlaying = 0
	}
	if nowPlaying > len(entries) {
		nowPlaying = len(entries)
	}

	// The rebased index is at most len(entries).
	size := len(tagQupd) + 2 + len(strconv.Itoa(len(entries)))
	n := 0
	for _, e := range entries[nowPlaying:] {
		if n > 0 {
			size++
		}
		size += entrySize(e)
		n++
	}
	if size > limit {
		return QueueUpdate{}, false
	}

	first := nowPlaying
	for first > 0 {
		add := entrySize(entries[first-1])
		if n > 0 {
			add++
		}
		if size+add > limit {
			break
		}
		size += add
		first--
		n++
	}

	var window []QueueEntry
	if n > 0 {
		window = make([]QueueEntry, n)
		copy(window, entries[first:])
	}
	return QueueUpdate{Entries: window, NowPlaying: nowPlaying - first}, true
}

// entrySize is the encoded length of e inside a QUPD frame, without the
// separator.
func entrySize(e QueueEntry) int {
	return len(escape(e.TrackURI)) + len(escape(e.UserID)) + len(escape(e.DisplayName)) +
		len(strconv.FormatInt(e.Seq, 10)) + 3
}
