package protocol

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		InitiateClient{SessionID: "s-1", QueueTitle: "Friday | Night", OwnerName: "dj;kay", FairPlay: true},
		InitiateClient{SessionID: "", QueueTitle: "", OwnerName: "", FairPlay: false},
		SongRequest{TrackURI: "spotify:track:abc", RequesterUserID: "u1", RequesterDisplayName: "Ann, B."},
		SongRequest{TrackURI: "", RequesterUserID: "", RequesterDisplayName: ""},
		QueueUpdate{NowPlaying: 0},
		QueueUpdate{
			NowPlaying: 1,
			Entries: []QueueEntry{
				{TrackURI: "a", UserID: "u1", DisplayName: "one", Seq: 1},
				{TrackURI: "b,c;d|e", UserID: "u2", DisplayName: "100% two\nlines", Seq: 7},
			},
		},
		QueueUpdate{NowPlaying: 1, Entries: []QueueEntry{{TrackURI: "x", Seq: 3}}},
		NewTrackAdded{TrackURI: "spotify:track:xyz", RequesterDisplayName: "Bo"},
		NewTrackAdded{},
		HostDisconnecting{},
	}
	for _, m := range cases {
		frame := Encode(m)
		got := Decode(frame)
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip mismatch frame=%q\n got=%#v\nwant=%#v", frame, got, m)
		}
	}
}

func TestEncodeTemplates(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{InitiateClient{SessionID: "s", QueueTitle: "t", OwnerName: "o", FairPlay: true}, "INIT|s|t|o|1"},
		{SongRequest{TrackURI: "trackA", RequesterUserID: "u1", RequesterDisplayName: "Ann"}, "REQ|trackA|u1|Ann"},
		{QueueUpdate{NowPlaying: 0, Entries: []QueueEntry{{TrackURI: "a", UserID: "u1", DisplayName: "A", Seq: 1}}}, "QUPD|0|a,u1,A,1"},
		{NewTrackAdded{TrackURI: "a", RequesterDisplayName: "Ann"}, "NEW|a|Ann"},
		{HostDisconnecting{}, "HOSTBYE"},
	}
	for _, tc := range cases {
		if got := string(Encode(tc.msg)); got != tc.want {
			t.Fatalf("encode %T got=%q want=%q", tc.msg, got, tc.want)
		}
	}
}

func TestDecodeInvalidFrames(t *testing.T) {
	frames := []string{
		"",
		"HELLO",
		"HOSTBYE|",
		"hostbye",
		"INIT|s|t|o|2",
		"INIT|s|t|o",
		"REQ|a|b",
		"REQ|a|b|c|d",
		"QUPD|x|",
		"QUPD|-1|",
		"QUPD|2|a,u,n,1",
		"QUPD|0|a,u,n",
		"QUPD|0|a,u,n,notanumber",
		"QUPD|0|a,u,n,1;",
		"NEW|a",
		"NEW|bad%zzescape|b",
		"REQ|a|b|c\nREQ|d|e|f",
	}
	for _, f := range frames {
		got := Decode([]byte(f))
		inv, ok := got.(Invalid)
		if !ok {
			t.Fatalf("frame %q decoded to %#v, want Invalid", f, got)
		}
		if inv.Raw != f {
			t.Fatalf("invalid raw got=%q want=%q", inv.Raw, f)
		}
	}
}

func TestDecodeNowPlayingPastEnd(t *testing.T) {
	got := Decode([]byte("QUPD|1|a,u1,Ann,4"))
	u, ok := got.(QueueUpdate)
	if !ok {
		t.Fatalf("decoded %#v, want QueueUpdate", got)
	}
	if _, playing := u.Current(); playing {
		t.Fatalf("expected nothing playing")
	}
	if len(u.Upcoming()) != 0 {
		t.Fatalf("expected no upcoming entries, got %v", u.Upcoming())
	}
}

func TestDecodeRandomBytesNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []byte("INITREQUPDNEWHOSTBYE|,;%0123456789abc\n")
	for i := 0; i < 1000; i++ {
		n := rng.Intn(48)
		buf := make([]byte, n)
		for j := range buf {
			if rng.Intn(4) == 0 {
				buf[j] = byte(rng.Intn(256))
			} else {
				buf[j] = alphabet[rng.Intn(len(alphabet))]
			}
		}
		switch Decode(buf).(type) {
		case Invalid, InitiateClient, SongRequest, QueueUpdate, NewTrackAdded, HostDisconnecting:
		default:
			t.Fatalf("unexpected decode result for %q", buf)
		}
	}
}

func TestKindString(t *testing.T) {
	if got := (SongRequest{}).Kind().String(); got != "song_request" {
		t.Fatalf("kind string got=%q", got)
	}
	if got := Decode([]byte("nope")).Kind(); got != KindInvalid {
		t.Fatalf("kind got=%v want invalid", got)
	}
}
