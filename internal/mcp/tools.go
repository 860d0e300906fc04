package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/session"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Session is the joined client the tools act on. *session.Client
// satisfies it.
type Session interface {
	RequestTrack(ctx context.Context, uri string) error
	Projection() protocol.QueueUpdate
	SessionInfo() protocol.InitiateClient
	State() session.ClientState
	UserID() string
	ObserveQueueProjection(buf int) (<-chan protocol.QueueUpdate, func())
}

var _ Session = (*session.Client)(nil)

// waitTimeout bounds request_track with wait=true.
var waitTimeout = 5 * time.Second

// prop is a shorthand for building a JSON Schema property.
func prop(typ, desc string) any {
	return map[string]any{
		"type":        typ,
		"description": desc,
	}
}

// RegisterTools adds the jamq tools to the MCP server.
func RegisterTools(srv *mcpserver.MCPServer, s Session) {
	srv.AddTool(mcplib.Tool{
		Name:        "request_track",
		Description: "Ask the host to add a track to the shared queue. The host decides the position; with fair play on, people with fewer upcoming tracks go first.",
		InputSchema: mcplib.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"track_uri": prop("string", "Track identifier, e.g. spotify:track:..."),
				"wait":      prop("boolean", "Wait until the track shows up in the queue and report its position"),
			},
			Required: []string{"track_uri"},
		},
	}, makeRequestTrackHandler(s))

	srv.AddTool(mcplib.Tool{
		Name:        "get_queue",
		Description: "Show the shared queue as last broadcast by the host.",
		InputSchema: mcplib.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"upcoming_only": prop("boolean", "Hide tracks that already played"),
			},
		},
	}, makeGetQueueHandler(s))

	srv.AddTool(mcplib.Tool{
		Name:        "get_session",
		Description: "Show the session this client joined: title, owner, fair play and connection state.",
		InputSchema: mcplib.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, makeGetSessionHandler(s))
}

func makeRequestTrackHandler(s Session) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		uri := strings.TrimSpace(request.GetString("track_uri", ""))
		wait := request.GetBool("wait", false)
		if uri == "" {
			return mcplib.NewToolResultError("track_uri is required"), nil
		}

		var (
			updates <-chan protocol.QueueUpdate
			cancel  = func() {}
			lastSeq = s.Projection().MaxSeq()
		)
		if wait {
			updates, cancel = s.ObserveQueueProjection(16)
		}
		defer cancel()

		if err := s.RequestTrack(ctx, uri); err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("failed to request: %v", err)), nil
		}
		if !wait {
			return mcplib.NewToolResultText(fmt.Sprintf("Requested %s. The host will place it in the queue.", uri)), nil
		}

		timeout := time.NewTimer(waitTimeout)
		defer timeout.Stop()
		for {
			select {
			case u, ok := <-updates:
				if !ok {
					return mcplib.NewToolResultError("session ended before the track was queued"), nil
				}
				if pos, found := u.FindRequest(s.UserID(), uri, lastSeq, nil); found {
					return mcplib.NewToolResultText(fmt.Sprintf("%s queued at position %d (%d ahead of it).", uri, pos, pos-u.NowPlaying)), nil
				}
			case <-timeout.C:
				return mcplib.NewToolResultText(fmt.Sprintf("Requested %s but it has not appeared in the queue yet. The host may have dropped it.", uri)), nil
			case <-ctx.Done():
				return mcplib.NewToolResultError(ctx.Err().Error()), nil
			}
		}
	}
}

func makeGetQueueHandler(s Session) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		if s.State() == session.ClientConnecting {
			return mcplib.NewToolResultError("not joined yet"), nil
		}
		upcoming := request.GetBool("upcoming_only", false)
		return mcplib.NewToolResultText(FormatQueue(s.Projection(), upcoming)), nil
	}
}

func makeGetSessionHandler(s Session) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		info := s.SessionInfo()
		if info.SessionID == "" {
			return mcplib.NewToolResultText(fmt.Sprintf("Not joined (state: %s).", s.State())), nil
		}
		fair := "off"
		if info.FairPlay {
			fair = "on"
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Queue:     %s\n", info.QueueTitle)
		fmt.Fprintf(&sb, "Owner:     %s\n", info.OwnerName)
		fmt.Fprintf(&sb, "Fair play: %s\n", fair)
		fmt.Fprintf(&sb, "State:     %s\n", s.State())
		fmt.Fprintf(&sb, "Session:   %s\n", info.SessionID)
		return mcplib.NewToolResultText(sb.String()), nil
	}
}

// FormatQueue renders a queue snapshot, one entry per line.
func FormatQueue(u protocol.QueueUpdate, upcomingOnly bool) string {
	if len(u.Entries) == 0 {
		return "The queue is empty."
	}
	var sb strings.Builder
	for i, e := range u.Entries {
		if upcomingOnly && i < u.NowPlaying {
			continue
		}
		marker := u.Marker(i) + " "
		fmt.Fprintf(&sb, "%s%d. %s (requested by %s)\n", marker, i, e.TrackURI, e.DisplayName)
	}
	if u.NowPlaying >= len(u.Entries) {
		sb.WriteString("Nothing is playing.\n")
	}
	return sb.String()
}
