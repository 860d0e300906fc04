package synopsis

import (
	"strings"
	"testing"
	"time"

	"github.com/corvino/jamq/internal/protocol"
)

func TestBuild(t *testing.T) {
	info := protocol.InitiateClient{SessionID: "s1", QueueTitle: "Friday", OwnerName: "Dee", FairPlay: true}
	u := protocol.QueueUpdate{
		NowPlaying: 1,
		Entries: []protocol.QueueEntry{
			{TrackURI: "t:a", UserID: "u1", DisplayName: "Ann", Seq: 1},
			{TrackURI: "t:b", UserID: "u2", DisplayName: "Bo", Seq: 2},
			{TrackURI: "t:c", UserID: "u1", DisplayName: "Ann", Seq: 3},
		},
	}
	out := Build(info, u, time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local))

	for _, want := range []string{
		"# Friday — 2026-03-01 20:00",
		"**Host**: Dee",
		"**Requesters**: Ann (2), Bo (1)",
		"**Tracks**: 3",
		"1. `t:a` requested by **Ann** *(played)*",
		"2. `t:b` requested by **Bo** *(playing)*",
		"3. `t:c` requested by **Ann**\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	out := Build(protocol.InitiateClient{}, protocol.QueueUpdate{}, time.Now())
	if !strings.Contains(out, "# jamq session") || !strings.Contains(out, "Nothing was queued") {
		t.Fatalf("got:\n%s", out)
	}
}

func TestURIs(t *testing.T) {
	u := protocol.QueueUpdate{Entries: []protocol.QueueEntry{{TrackURI: "t:a"}, {TrackURI: "t:b"}}}
	if got := URIs(u); got != "t:a\nt:b" {
		t.Fatalf("got=%q", got)
	}
	if got := URIs(protocol.QueueUpdate{}); got != "" {
		t.Fatalf("empty got=%q", got)
	}
}
