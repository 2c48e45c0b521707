package statsfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/bossmind/internal/allocator"
	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
)

func testConfig() config.StatsFeedConfig {
	return config.StatsFeedConfig{
		Enabled:             true,
		AllowedOrigins:      []string{"*"},
		BroadcastsPerSecond: 1000,
		MaxPerIP:            2,
		MaxTotal:            4,
	}
}

func testFrame(tick uint64) Frame {
	return Frame{
		Time:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tick:   tick,
		Active: "Berserker",
		State:  "Chase",
		Roster: []allocator.Snapshot{
			{Name: "Berserker", Probability: 0.6, Active: true},
			{Name: "Tactician", Probability: 0.4},
		},
		Stats: map[string]perflog.Stats{
			"Berserker": {DamageDealt: 30, DamageTaken: 10, UsageCount: 2},
		},
	}
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, feed *Feed, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for feed.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", feed.Clients(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForRelease(t *testing.T, feed *Feed) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		total, _ := feed.limiter.Stats()
		if total == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("limiter total = %d, want 0", total)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal frame: %v", err)
	}
	return f
}

func TestFeed_BroadcastsToOverlay(t *testing.T) {
	feed := New(testConfig())
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	waitForClients(t, feed, 1)

	if !feed.Publish(testFrame(7)) {
		t.Fatal("Publish() = false, want true")
	}

	got := readFrame(t, conn)
	if got.Tick != 7 || got.Active != "Berserker" || got.State != "Chase" {
		t.Errorf("frame = %+v", got)
	}
	if len(got.Roster) != 2 || !got.Roster[0].Active {
		t.Errorf("roster = %+v", got.Roster)
	}
	if got.Stats["Berserker"].DamageDealt != 30 {
		t.Errorf("stats = %+v", got.Stats)
	}
}

func TestFeed_LateJoinerGetsLatestFrame(t *testing.T) {
	feed := New(testConfig())
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	feed.Publish(testFrame(3))

	conn := dial(t, server)
	defer conn.Close()

	if got := readFrame(t, conn); got.Tick != 3 {
		t.Errorf("Tick = %d, want 3", got.Tick)
	}
}

func TestFeed_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.BroadcastsPerSecond = 0.001
	feed := New(cfg)

	if !feed.Publish(testFrame(1)) {
		t.Fatal("first publish should pass the burst")
	}
	if feed.Publish(testFrame(2)) {
		t.Error("second immediate publish should be throttled")
	}
}

func TestFeed_StatsEndpoint(t *testing.T) {
	feed := New(testConfig())
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before publish = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	feed.Publish(testFrame(9))

	resp, err = http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Tick != 9 {
		t.Errorf("Tick = %d, want 9", f.Tick)
	}
}

func TestFeed_RejectsDisallowedOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"http://overlay.local"}
	feed := New(cfg)
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail for disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	// The slot taken before the upgrade must be returned.
	waitForRelease(t, feed)
}

func TestFeed_PerIPLimit(t *testing.T) {
	feed := New(testConfig())
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	b := dial(t, server)
	defer b.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("third connection from the same IP should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 response, got %v", resp)
	}
}

func TestFeed_DisconnectReleasesSlot(t *testing.T) {
	feed := New(testConfig())
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, feed, 1)
	conn.Close()
	waitForClients(t, feed, 0)
	waitForRelease(t, feed)
}

func TestFeed_Shutdown(t *testing.T) {
	feed := New(testConfig())
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	waitForClients(t, feed, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := feed.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if feed.Clients() != 0 {
		t.Errorf("Clients() = %d after shutdown, want 0", feed.Clients())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed after shutdown")
	}
}
