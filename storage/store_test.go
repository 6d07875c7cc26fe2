package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/evwatch/evwatch/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDismissIsIdempotentAndSticky(t *testing.T) {
	s := openTestStore(t)

	if s.IsDismissed("E1") {
		t.Fatal("fresh store must not report E1 dismissed")
	}
	s.Dismiss("E1", "manual")
	s.Dismiss("E1", "manual")
	if !s.IsDismissed("E1") {
		t.Fatal("E1 must be dismissed")
	}

	var count int64
	s.db.Model(&DismissalRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("dismissal records = %d, want 1", count)
	}
}

func TestReconcileExpiresAbsentIDs(t *testing.T) {
	s := openTestStore(t)
	s.Dismiss("E1", "manual")
	s.Dismiss("E2", "auto")

	// E1 still active, E2 gone from the feed.
	s.Reconcile(map[string]struct{}{"E1": {}})

	if !s.IsDismissed("E1") {
		t.Error("E1 still reported by the server must stay dismissed")
	}
	if s.IsDismissed("E2") {
		t.Error("E2 absent from the feed must be forgotten")
	}

	var count int64
	s.db.Model(&DismissalRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("dismissal records after reconcile = %d, want 1", count)
	}
}

func TestDismissalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open("", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Dismiss("E1", "manual")
	s.Close()

	s2, err := Open("", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if !s2.IsDismissed("E1") {
		t.Error("dismissal must survive a restart")
	}
}

func TestAlertLog(t *testing.T) {
	s := openTestStore(t)

	s.LogAlert(types.AlertPayload{
		EventID:   "E1",
		Key:       types.MarketKey{Market: "Total", Selection: "Over", Line: "7.5"},
		Reference: "-110",
		Offered:   "+105",
		EVPercent: "+2.39%",
		FiredAt:   time.Now(),
	})

	alerts, err := s.RecentAlerts(10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Selection != "Over" || alerts[0].EVPercent != "+2.39%" {
		t.Errorf("alert record = %+v", alerts[0])
	}
}
