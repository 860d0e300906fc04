package synopsis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/corvino/jamq/internal/protocol"
)

// Build creates a markdown digest of a session's final playlist: who
// asked for what, in play order.
func Build(info protocol.InitiateClient, u protocol.QueueUpdate, now time.Time) string {
	var b strings.Builder

	title := info.QueueTitle
	if title == "" {
		title = "jamq session"
	}
	fmt.Fprintf(&b, "# %s — %s\n\n", title, now.Local().Format("2006-01-02 15:04"))
	if info.OwnerName != "" {
		fmt.Fprintf(&b, "**Host**: %s\n", info.OwnerName)
	}

	// Count tracks per requester.
	counts := map[string]int{}
	for _, e := range u.Entries {
		counts[e.DisplayName]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%d)", name, counts[name])
	}
	fmt.Fprintf(&b, "**Requesters**: %s\n", strings.Join(parts, ", "))
	fmt.Fprintf(&b, "**Tracks**: %d\n", len(u.Entries))
	fmt.Fprintf(&b, "\n---\n\n## Playlist\n\n")

	if len(u.Entries) == 0 {
		fmt.Fprintf(&b, "*Nothing was queued.*\n")
		return b.String()
	}
	for i, e := range u.Entries {
		note := ""
		switch {
		case i < u.NowPlaying:
			note = " *(played)*"
		case i == u.NowPlaying:
			note = " *(playing)*"
		}
		fmt.Fprintf(&b, "%d. `%s` requested by **%s**%s\n", i+1, e.TrackURI, e.DisplayName, note)
	}
	return b.String()
}

// URIs lists the playlist's track identifiers one per line.
func URIs(u protocol.QueueUpdate) string {
	uris := make([]string, len(u.Entries))
	for i, e := range u.Entries {
		uris[i] = e.TrackURI
	}
	return strings.Join(uris, "\n")
}
