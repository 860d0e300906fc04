// Package fairplay decides where a newly requested track goes in the
// playback queue.
//
// The queue keeps its history: entries before NowPlaying have been played,
// the entry at NowPlaying is playing, and the rest are upcoming. Only the
// upcoming region is ever reordered by insertion.
package fairplay

import "github.com/corvino/jamq/internal/protocol"

// Queue is an immutable value; every operation returns a new Queue.
type Queue struct {
	Entries    []protocol.QueueEntry
	NowPlaying int
}

// Playing reports whether an entry is currently playing.
func (q Queue) Playing() bool {
	return q.NowPlaying >= 0 && q.NowPlaying < len(q.Entries)
}

// Current returns the now-playing entry.
func (q Queue) Current() (protocol.QueueEntry, bool) {
	if !q.Playing() {
		return protocol.QueueEntry{}, false
	}
	return q.Entries[q.NowPlaying], true
}

// Upcoming returns the entries waiting behind the now-playing one.
func (q Queue) Upcoming() []protocol.QueueEntry {
	start := q.upcomingStart()
	if start >= len(q.Entries) {
		return nil
	}
	return q.Entries[start:]
}

func (q Queue) upcomingStart() int {
	if !q.Playing() {
		return len(q.Entries)
	}
	return q.NowPlaying + 1
}

// Counts returns the number of upcoming entries per requesting user.
func (q Queue) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range q.Upcoming() {
		counts[e.UserID]++
	}
	return counts
}

// Schedule inserts e and returns the new queue plus the index e landed at.
//
// With fair off the entry is appended. With fair on, the entry is e's
// k-th upcoming request, and it is placed right after the last upcoming
// entry whose own per-user ordinal is <= k. Ties keep arrival order. When
// nothing is playing the entry is appended and becomes now playing.
func Schedule(q Queue, e protocol.QueueEntry, fair bool) (Queue, int) {
	entries := make([]protocol.QueueEntry, len(q.Entries), len(q.Entries)+1)
	copy(entries, q.Entries)

	pos := len(entries)
	if fair && q.Playing() {
		pos = fairPosition(entries, q.upcomingStart(), e.UserID)
	}

	entries = append(entries, protocol.QueueEntry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = e
	return Queue{Entries: entries, NowPlaying: q.NowPlaying}, pos
}

func fairPosition(entries []protocol.QueueEntry, start int, user string) int {
	round := 1
	for _, x := range entries[start:] {
		if x.UserID == user {
			round++
		}
	}
	pos := start
	seen := make(map[string]int)
	for j := start; j < len(entries); j++ {
		u := entries[j].UserID
		seen[u]++
		if seen[u] <= round {
			pos = j + 1
		}
	}
	return pos
}

// Advance moves playback to the next entry. It reports whether something
// is playing afterwards. Advancing past the end is a no-op.
func Advance(q Queue) (Queue, bool) {
	if !q.Playing() {
		return q, false
	}
	next := Queue{Entries: q.Entries, NowPlaying: q.NowPlaying + 1}
	return next, next.Playing()
}
