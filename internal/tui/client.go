package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/sigslot/internal/api"
	"github.com/mattjoyce/sigslot/internal/events"
)

// --- Message types ---

type eventMsg events.Event

// snapshotMsg is one poll of the diagnostics API.
type snapshotMsg struct {
	Health api.HealthzResponse
	Stats  api.StatsResponse
	Probes []probeRow
}

type probeRow struct {
	Name      string  `json:"name"`
	Mode      string  `json:"mode"`
	Thread    string  `json:"thread"`
	Sent      uint64  `json:"sent"`
	Delivered uint64  `json:"delivered"`
	Failures  uint64  `json:"failures"`
	LatencyMS float64 `json:"last_latency_ms"`
	LastError string  `json:"last_error"`
}

type pollMsg struct{}

type errMsg struct{ err error }

type sseDisconnectedMsg struct{}

type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents connects to /events and feeds events into ch. It
// returns sseDisconnectedMsg when the stream ends.
func subscribeToEvents(client *http.Client, apiURL string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Get(apiURL + "/events")
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()

		_ = readSSE(resp.Body, ch)
		return sseDisconnectedMsg{}
	}
}

// readSSE parses an event stream until r ends. Comment lines are ignored.
func readSSE(r io.Reader, ch chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data != nil {
				cur.At = time.Now()
				ch <- cur
			}
			cur = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(line[6:])
		}
	}
	return scanner.Err()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func schedulePoll(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return pollMsg{} })
}

// fetchSnapshot queries /healthz, /stats and /probes.
func fetchSnapshot(client *http.Client, apiURL string) tea.Msg {
	var snap snapshotMsg
	// /healthz answers 503 with a body when degraded.
	if err := getJSON(client, apiURL+"/healthz", &snap.Health, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return errMsg{err}
	}
	if err := getJSON(client, apiURL+"/stats", &snap.Stats, http.StatusOK); err != nil {
		return errMsg{err}
	}
	var probes struct {
		Probes []probeRow `json:"probes"`
	}
	if err := getJSON(client, apiURL+"/probes", &probes, http.StatusOK); err != nil {
		return errMsg{err}
	}
	snap.Probes = probes.Probes
	return snap
}

func getJSON(client *http.Client, url string, out any, okCodes ...int) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	accepted := false
	for _, c := range okCodes {
		if resp.StatusCode == c {
			accepted = true
			break
		}
	}
	if !accepted {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}
