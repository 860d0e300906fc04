package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corvino/jamq/internal/protocol"
)

func sampleQueue() protocol.QueueUpdate {
	return protocol.QueueUpdate{
		NowPlaying: 1,
		Entries: []protocol.QueueEntry{
			{TrackURI: "t:old", UserID: "u1", DisplayName: "Ann", Seq: 1},
			{TrackURI: "t:now", UserID: "u2", DisplayName: "Bo", Seq: 2},
			{TrackURI: "t:next", UserID: "u1", DisplayName: "Ann", Seq: 3},
		},
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Server: "http://10.0.0.2:8080", Name: "ann", UserID: "u-1"}
	if err := writeConfig(filepath.Join(root, configFileName), cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	deep := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got := findConfig(deep)
	if got == nil {
		t.Fatalf("config not found from %s", deep)
	}
	if *got != cfg {
		t.Fatalf("got=%+v want=%+v", *got, cfg)
	}
}

func TestFindConfigSkipsBadJSON(t *testing.T) {
	root := t.TempDir()
	if err := writeConfig(filepath.Join(root, configFileName), Config{Name: "outer"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	inner := filepath.Join(root, "inner")
	os.Mkdir(inner, 0755)
	os.WriteFile(filepath.Join(inner, configFileName), []byte("{not json"), 0644)

	got := findConfig(inner)
	if got == nil || got.Name != "outer" {
		t.Fatalf("got=%+v want outer config", got)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("JAMQ_TEST_VALUE", "")
	if got := envOrDefault("JAMQ_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("empty env got=%q", got)
	}
	t.Setenv("JAMQ_TEST_VALUE", "set")
	if got := envOrDefault("JAMQ_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("set env got=%q", got)
	}
}

func TestAPIURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":  "http://localhost:8080/api/queue",
		"http://localhost:8080/": "http://localhost:8080/api/queue",
		"10.0.0.2:8080":          "http://10.0.0.2:8080/api/queue",
	}
	for in, want := range cases {
		if got := apiURL(in, "/api/queue"); got != want {
			t.Errorf("apiURL(%q) got=%q want=%q", in, got, want)
		}
	}
}

func TestFormatQueueHidesHistory(t *testing.T) {
	out := formatQueue(sampleQueue(), false, false)
	if strings.Contains(out, "t:old") {
		t.Fatalf("history shown:\n%s", out)
	}
	if !strings.Contains(out, "▶") || !strings.Contains(out, "t:now") || !strings.Contains(out, "t:next") {
		t.Fatalf("missing entries:\n%s", out)
	}

	all := formatQueue(sampleQueue(), true, false)
	if !strings.Contains(all, "✓") || !strings.Contains(all, "t:old") {
		t.Fatalf("history missing with all:\n%s", all)
	}
}

func TestFormatQueueNothingPlaying(t *testing.T) {
	u := sampleQueue()
	u.NowPlaying = len(u.Entries)
	if out := formatQueue(u, false, false); !strings.Contains(out, "nothing playing") {
		t.Fatalf("got:\n%s", out)
	}
	if out := formatQueue(protocol.QueueUpdate{}, false, false); !strings.Contains(out, "empty") {
		t.Fatalf("empty got:\n%s", out)
	}
}

func TestFormatQueueColor(t *testing.T) {
	out := formatQueue(sampleQueue(), false, true)
	if !strings.Contains(out, requesterColor("u1")+"Ann"+ansiReset) {
		t.Fatalf("no color for Ann:\n%q", out)
	}
	if requesterColor("u1") != requesterColor("u1") {
		t.Fatalf("color not deterministic")
	}
}

func TestAdmitted(t *testing.T) {
	u := sampleQueue()
	u.Entries = append(u.Entries, protocol.QueueEntry{TrackURI: "t:next", UserID: "u1", DisplayName: "Ann", Seq: 4})

	pos, ok := admitted(u, "u1", []string{"t:next", "t:next"}, 2)
	if !ok {
		t.Fatalf("both requests should be admitted")
	}
	if pos[0] != 1 || pos[1] != 2 {
		t.Fatalf("positions got=%v want [1 2]", pos)
	}

	if _, ok := admitted(u, "u1", []string{"t:next", "t:next", "t:next"}, 2); ok {
		t.Fatalf("third copy is not in the queue")
	}
	if _, ok := admitted(u, "u2", []string{"t:next"}, 2); ok {
		t.Fatalf("entry belongs to another user")
	}
	if _, ok := admitted(u, "u1", []string{"t:old"}, 2); ok {
		t.Fatalf("entries at or below the baseline seq must not count")
	}
	if got := u.MaxSeq(); got != 4 {
		t.Fatalf("max seq got=%d", got)
	}
}
