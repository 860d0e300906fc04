package cli

import (
	"fmt"
	"strings"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/session"
)

// ANSI color codes for requester coloring.
var requesterColors = []string{
	"\033[36m", // Cyan
	"\033[32m", // Green
	"\033[33m", // Yellow
	"\033[35m", // Magenta
	"\033[34m", // Blue
	"\033[31m", // Red
	"\033[96m", // Bright Cyan
	"\033[92m", // Bright Green
}

const ansiReset = "\033[0m"

// requesterColor returns a deterministic ANSI color for a user id.
func requesterColor(userID string) string {
	var h uint32
	for _, c := range userID {
		h = h*31 + uint32(c)
	}
	return requesterColors[h%uint32(len(requesterColors))]
}

func formatEntry(u protocol.QueueUpdate, i int, color bool) string {
	e := u.Entries[i]
	marker := " " + u.Marker(i) + " "
	name := e.DisplayName
	if color {
		name = requesterColor(e.UserID) + name + ansiReset
	}
	return fmt.Sprintf("%s%2d. %s  (%s)", marker, i, e.TrackURI, name)
}

// formatQueue renders a queue snapshot. History is skipped unless all is
// set.
func formatQueue(u protocol.QueueUpdate, all, color bool) string {
	if len(u.Entries) == 0 {
		return "   (queue is empty)"
	}
	var lines []string
	for i := range u.Entries {
		if i < u.NowPlaying && !all {
			continue
		}
		lines = append(lines, formatEntry(u, i, color))
	}
	if u.NowPlaying >= len(u.Entries) {
		lines = append(lines, "   (nothing playing)")
	}
	return strings.Join(lines, "\n")
}

func formatNotice(n session.Notice) string {
	switch n.Type {
	case session.NoticeTrackAdded:
		return fmt.Sprintf("+ %s added %s", n.Track.RequesterDisplayName, n.Track.TrackURI)
	case session.NoticeHostLeaving:
		return "! the host is ending the session"
	case session.NoticeDisconnected:
		return "! lost connection to the host"
	default:
		return string(n.Type)
	}
}

func formatSession(info protocol.InitiateClient) string {
	fair := "off"
	if info.FairPlay {
		fair = "on"
	}
	return fmt.Sprintf("%q hosted by %s (fair play %s)", info.QueueTitle, info.OwnerName, fair)
}
