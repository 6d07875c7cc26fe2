package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/evwatch/evwatch/hub"
	"github.com/evwatch/evwatch/render"
	"github.com/evwatch/evwatch/storage"
	"github.com/evwatch/evwatch/types"
)

type fakeEngine struct {
	cards     []render.Card
	status    types.ConnStatus
	dismissed []string
}

func (e *fakeEngine) Cards() []render.Card     { return e.cards }
func (e *fakeEngine) Status() types.ConnStatus { return e.status }
func (e *fakeEngine) Stats() (int64, int64, int) { return 7, 2, len(e.cards) }
func (e *fakeEngine) Dismiss(id string)        { e.dismissed = append(e.dismissed, id) }

func newTestServer(t *testing.T, engine *fakeEngine) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open("", filepath.Join(t.TempDir(), "evwatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(":0", engine, hub.NewHub(), store), store
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{status: types.StatusLive})

	rec, body := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestEventsEndpoint(t *testing.T) {
	engine := &fakeEngine{
		status: types.StatusLive,
		cards: []render.Card{
			{EventID: "E1", Title: "Braves vs Cubs", Qualifying: true},
			{EventID: "E2", Title: "Mets vs Phillies"},
		},
	}
	s, _ := newTestServer(t, engine)

	rec, body := get(t, s, "/api/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v", body["count"])
	}
	if body["status"] != "live" {
		t.Errorf("status = %v", body["status"])
	}
	cards := body["cards"].([]any)
	if cards[0].(map[string]any)["event_id"] != "E1" {
		t.Errorf("cards = %v", cards)
	}
}

func TestDismissEndpoint(t *testing.T) {
	engine := &fakeEngine{status: types.StatusLive}
	s, _ := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/api/events/E1/dismiss", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(engine.dismissed) != 1 || engine.dismissed[0] != "E1" {
		t.Errorf("dismissed = %v", engine.dismissed)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{status: types.StatusIdle})

	rec, body := get(t, s, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "idle" {
		t.Errorf("status = %v", body["status"])
	}
	if body["passes"].(float64) != 7 || body["skipped"].(float64) != 2 {
		t.Errorf("counters = %v", body)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	s, store := newTestServer(t, &fakeEngine{status: types.StatusLive})

	store.LogAlert(types.AlertPayload{
		EventID: "E1",
		Title:   "Braves vs Cubs",
		Key:     types.MarketKey{Market: "Total", Selection: "Over", Line: "7.5"},
		FiredAt: time.Now().UTC(),
	})

	rec, body := get(t, s, "/api/alerts?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v", body["count"])
	}
}
