package alerts

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/evwatch/evwatch/types"
)

func intp(v int) *int { return &v }

type fakeNotifier struct {
	fired []types.AlertPayload
	err   error
}

func (f *fakeNotifier) NotifyAlert(p types.AlertPayload) error {
	f.fired = append(f.fired, p)
	return f.err
}

type fakeBroadcaster struct {
	alerts map[string][]types.AlertPayload
	closed []string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{alerts: make(map[string][]types.AlertPayload)}
}

func (f *fakeBroadcaster) BroadcastAlert(topic string, p types.AlertPayload) {
	f.alerts[topic] = append(f.alerts[topic], p)
}

func (f *fakeBroadcaster) CloseTopic(topic string) { f.closed = append(f.closed, topic) }

func qualifyingRow() types.RowState {
	return types.RowState{
		Key:       types.MarketKey{Market: "Total", Selection: "Over", Line: "7.5"},
		Reference: intp(-110),
		Offered:   intp(105),
		EV:        decimal.NewFromFloat(0.0738),
		EVOK:      true,
	}
}

func TestFiresOncePerKey(t *testing.T) {
	n := &fakeNotifier{}
	b := newFakeBroadcaster()
	m := NewManager(n, b, nil)
	ev := types.Event{ID: "E1", HomeTeam: "A", AwayTeam: "B"}

	m.Process(ev, []types.RowState{qualifyingRow()})
	m.Process(ev, []types.RowState{qualifyingRow()}) // identical second poll

	if len(n.fired) != 1 {
		t.Fatalf("notifier fired %d times, want exactly 1", len(n.fired))
	}
	if n.fired[0].Refresh {
		t.Error("first fire must not be a refresh")
	}

	topic := "E1/Total/Over/7.5"
	msgs := b.alerts[topic]
	if len(msgs) != 2 {
		t.Fatalf("broadcasts = %d, want fire + refresh", len(msgs))
	}
	if !msgs[1].Refresh {
		t.Error("second poll must refresh the open surface, not duplicate it")
	}
}

func TestDistinctLinesGetDistinctSurfaces(t *testing.T) {
	n := &fakeNotifier{}
	m := NewManager(n, nil, nil)
	ev := types.Event{ID: "E1"}

	other := qualifyingRow()
	other.Key = types.MarketKey{Market: "Spread", Selection: "A", Line: "-1.5"}
	m.Process(ev, []types.RowState{qualifyingRow(), other})

	if len(n.fired) != 2 {
		t.Fatalf("fired = %d, want one surface per line", len(n.fired))
	}
	if m.OpenSurfaces() != 2 {
		t.Errorf("open surfaces = %d", m.OpenSurfaces())
	}
}

func TestSubThresholdLineNeverFires(t *testing.T) {
	n := &fakeNotifier{}
	m := NewManager(n, nil, nil)
	ev := types.Event{ID: "E1"}

	zero := qualifyingRow()
	zero.EV = decimal.Zero // qualifies for display, not for interruption
	negative := qualifyingRow()
	negative.Key.Selection = "Under"
	negative.EV = decimal.NewFromFloat(-0.02)
	unavailable := qualifyingRow()
	unavailable.Key.Selection = "Draw"
	unavailable.EVOK = false

	m.Process(ev, []types.RowState{zero, negative, unavailable})
	if len(n.fired) != 0 {
		t.Fatalf("fired = %d, want 0", len(n.fired))
	}
}

func TestOpenSurfaceRefreshesAfterEVDip(t *testing.T) {
	n := &fakeNotifier{}
	b := newFakeBroadcaster()
	m := NewManager(n, b, nil)
	ev := types.Event{ID: "E1"}

	m.Process(ev, []types.RowState{qualifyingRow()})

	dipped := qualifyingRow()
	dipped.EV = decimal.Zero
	m.Process(ev, []types.RowState{dipped})
	gone := qualifyingRow()
	gone.Offered = nil
	gone.EVOK = false
	m.Process(ev, []types.RowState{gone})

	if len(n.fired) != 1 {
		t.Fatalf("notifier fired %d times, want only the first crossing", len(n.fired))
	}
	msgs := b.alerts["E1/Total/Over/7.5"]
	if len(msgs) != 3 {
		t.Fatalf("broadcasts = %d, want fire + refresh per poll while open", len(msgs))
	}
	if !msgs[1].Refresh || msgs[1].EVPercent != "+0.00%" {
		t.Errorf("dipped poll = %+v, want refresh carrying the current EV", msgs[1])
	}
	if !msgs[2].Refresh || msgs[2].EVPercent != "N/A" || msgs[2].Offered != "N/A" {
		t.Errorf("pulled-line poll = %+v, want refresh with N/A prices", msgs[2])
	}
}

func TestBlockedNotifierDoesNotAbort(t *testing.T) {
	n := &fakeNotifier{err: errors.New("blocked")}
	m := NewManager(n, nil, nil)
	ev := types.Event{ID: "E1"}

	other := qualifyingRow()
	other.Key.Selection = "Under"
	m.Process(ev, []types.RowState{qualifyingRow(), other})

	if len(n.fired) != 2 {
		t.Fatalf("a blocked surface must not stop later lines, fired = %d", len(n.fired))
	}
}

func TestCloseEventResetsOccurrence(t *testing.T) {
	n := &fakeNotifier{}
	b := newFakeBroadcaster()
	m := NewManager(n, b, nil)
	ev := types.Event{ID: "E1"}

	m.Process(ev, []types.RowState{qualifyingRow()})
	m.CloseEvent("E1")

	if m.OpenSurfaces() != 0 {
		t.Fatalf("open surfaces after close = %d", m.OpenSurfaces())
	}
	if len(b.closed) != 1 || b.closed[0] != "E1/Total/Over/7.5" {
		t.Errorf("closed topics = %v", b.closed)
	}

	// Same fixture id re-alerts after expiry: a fresh occurrence fires again.
	m.Process(ev, []types.RowState{qualifyingRow()})
	if len(n.fired) != 2 {
		t.Errorf("re-alert after teardown must fire, fired = %d", len(n.fired))
	}
}
