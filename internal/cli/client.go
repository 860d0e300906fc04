package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corvino/jamq/internal/protocol"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func apiURL(base, path string) string {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/") + path
}

// getJSON fetches path from the host API into out.
func getJSON(server, path string, out any) error {
	url := apiURL(server, path)
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("host returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getHealth(server string) (*protocol.HealthResponse, error) {
	var health protocol.HealthResponse
	if err := getJSON(server, "/api/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func getSession(server string) (*protocol.SessionView, error) {
	var sv protocol.SessionView
	if err := getJSON(server, "/api/session", &sv); err != nil {
		return nil, err
	}
	return &sv, nil
}

func getQueue(server string) (*protocol.QueueView, error) {
	var qv protocol.QueueView
	if err := getJSON(server, "/api/queue", &qv); err != nil {
		return nil, err
	}
	return &qv, nil
}

func getEndpoints(server string) (*protocol.EndpointList, error) {
	var list protocol.EndpointList
	if err := getJSON(server, "/api/endpoints", &list); err != nil {
		return nil, err
	}
	return &list, nil
}
