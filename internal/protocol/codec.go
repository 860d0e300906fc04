package protocol

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Frame tags.
const (
	tagInit = "INIT"
	tagReq  = "REQ"
	tagQupd = "QUPD"
	tagNew  = "NEW"
	tagBye  = "HOSTBYE"
)

var fieldEscaper = strings.NewReplacer(
	"%", "%25",
	"|", "%7C",
	",", "%2C",
	";", "%3B",
	"\r", "%0D",
	"\n", "%0A",
)

func escape(s string) string { return fieldEscaper.Replace(s) }

// template is one entry of the decode table: a frame pattern and the
// function that builds the message from its submatches.
type template struct {
	kind  Kind
	re    *regexp.Regexp
	build func(m []string) (Message, bool)
}

// templates are tried in order; first match wins. More specific patterns
// come first.
var templates = []template{
	{KindHostDisconnecting, regexp.MustCompile(`^HOSTBYE$`), buildBye},
	{KindInitiateClient, regexp.MustCompile(`^INIT\|([^|\r\n]*)\|([^|\r\n]*)\|([^|\r\n]*)\|([01])$`), buildInit},
	{KindQueueUpdate, regexp.MustCompile(`^QUPD\|([^|\r\n]*)\|([^|\r\n]*)$`), buildQueueUpdate},
	{KindSongRequest, regexp.MustCompile(`^REQ\|([^|\r\n]*)\|([^|\r\n]*)\|([^|\r\n]*)$`), buildRequest},
	{KindNewTrackAdded, regexp.MustCompile(`^NEW\|([^|\r\n]*)\|([^|\r\n]*)$`), buildNewTrack},
}

// Encode renders a message as a single text frame. Encoding Invalid
// returns its raw text unchanged.
func Encode(m Message) []byte {
	var b strings.Builder
	switch v := m.(type) {
	case InitiateClient:
		fair := "0"
		if v.FairPlay {
			fair = "1"
		}
		b.WriteString(tagInit)
		writeFields(&b, v.SessionID, v.QueueTitle, v.OwnerName)
		b.WriteString("|" + fair)
	case SongRequest:
		b.WriteString(tagReq)
		writeFields(&b, v.TrackURI, v.RequesterUserID, v.RequesterDisplayName)
	case QueueUpdate:
		b.WriteString(tagQupd)
		b.WriteString("|" + strconv.Itoa(v.NowPlaying) + "|")
		for i, e := range v.Entries {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(escape(e.TrackURI))
			b.WriteByte(',')
			b.WriteString(escape(e.UserID))
			b.WriteByte(',')
			b.WriteString(escape(e.DisplayName))
			b.WriteByte(',')
			b.WriteString(strconv.FormatInt(e.Seq, 10))
		}
	case NewTrackAdded:
		b.WriteString(tagNew)
		writeFields(&b, v.TrackURI, v.RequesterDisplayName)
	case HostDisconnecting:
		b.WriteString(tagBye)
	case Invalid:
		b.WriteString(v.Raw)
	}
	return []byte(b.String())
}

func writeFields(b *strings.Builder, fields ...string) {
	for _, f := range fields {
		b.WriteByte('|')
		b.WriteString(escape(f))
	}
}

// Decode parses a frame. It never fails: anything that matches no
// template, or matches one but carries a bad escape or number, comes back
// as Invalid.
func Decode(frame []byte) Message {
	raw := string(frame)
	for _, t := range templates {
		m := t.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		msg, ok := t.build(m)
		if !ok {
			return Invalid{Raw: raw}
		}
		return msg
	}
	return Invalid{Raw: raw}
}

// unescapeAll decodes every field in place, reporting false on the first
// malformed escape.
func unescapeAll(fields []string) ([]string, bool) {
	out := make([]string, len(fields))
	for i, f := range fields {
		s, err := url.PathUnescape(f)
		if err != nil {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func buildBye(_ []string) (Message, bool) {
	return HostDisconnecting{}, true
}

func buildInit(m []string) (Message, bool) {
	f, ok := unescapeAll(m[1:4])
	if !ok {
		return nil, false
	}
	return InitiateClient{
		SessionID:  f[0],
		QueueTitle: f[1],
		OwnerName:  f[2],
		FairPlay:   m[4] == "1",
	}, true
}

func buildRequest(m []string) (Message, bool) {
	f, ok := unescapeAll(m[1:4])
	if !ok {
		return nil, false
	}
	return SongRequest{
		TrackURI:             f[0],
		RequesterUserID:      f[1],
		RequesterDisplayName: f[2],
	}, true
}

func buildNewTrack(m []string) (Message, bool) {
	f, ok := unescapeAll(m[1:3])
	if !ok {
		return nil, false
	}
	return NewTrackAdded{TrackURI: f[0], RequesterDisplayName: f[1]}, true
}

func buildQueueUpdate(m []string) (Message, bool) {
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx < 0 {
		return nil, false
	}
	var entries []QueueEntry
	if m[2] != "" {
		for _, item := range strings.Split(m[2], ";") {
			parts := strings.Split(item, ",")
			if len(parts) != 4 {
				return nil, false
			}
			f, ok := unescapeAll(parts[:3])
			if !ok {
				return nil, false
			}
			seq, err := strconv.ParseInt(parts[3], 10, 64)
			if err != nil {
				return nil, false
			}
			entries = append(entries, QueueEntry{
				TrackURI:    f[0],
				UserID:      f[1],
				DisplayName: f[2],
				Seq:         seq,
			})
		}
	}
	if idx > len(entries) {
		return nil, false
	}
	return QueueUpdate{Entries: entries, NowPlaying: idx}, true
}
