package core

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/evwatch/evwatch/oddsmath"
	"github.com/evwatch/evwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT STORE - Memo of last-rendered state per event
// ═══════════════════════════════════════════════════════════════════════════════

// cellMemo remembers the prices a market line was last rendered with.
type cellMemo struct {
	reference *int
	offered   *int
}

// cardState is the per-event render memo: previous prices per market key,
// previous max EV, and whether an offered price has ever been seen (which
// flips the renderer from pending placeholders to row suppression).
type cardState struct {
	markets     map[types.MarketKey]cellMemo
	maxEV       decimal.Decimal
	maxEVOK     bool
	offeredSeen bool

	alertArrival time.Time
	oddsUpdated  time.Time
}

// SnapshotStore keeps the render memo for every displayed event. It performs
// no I/O and is mutated only from within the reconciliation pass.
type SnapshotStore struct {
	events map[string]*cardState
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{events: make(map[string]*cardState)}
}

// Contains reports whether an event has memoized render state.
func (s *SnapshotStore) Contains(eventID string) bool {
	_, ok := s.events[eventID]
	return ok
}

// Update diffs an event's current lines against the previous render, stores
// the new memo, and returns what changed plus the event's max EV.
func (s *SnapshotStore) Update(ev types.Event) types.ChangeSet {
	prev, existed := s.events[ev.ID]

	cs := types.ChangeSet{
		FirstSeen: !existed,
		Rows:      make([]types.RowState, 0, len(ev.Lines)),
	}

	next := &cardState{
		markets:      make(map[types.MarketKey]cellMemo, len(ev.Lines)),
		alertArrival: ev.AlertArrival,
		oddsUpdated:  ev.OddsUpdated,
	}
	if existed {
		next.offeredSeen = prev.offeredSeen
	}

	for _, line := range ev.Lines {
		row := types.RowState{
			Key:       line.Key,
			Reference: line.Reference,
			Offered:   line.Offered,
		}
		row.EV, row.EVOK = oddsmath.EV(line.Reference, line.Offered)

		if existed {
			if memo, seen := prev.markets[line.Key]; seen {
				row.RefChanged = !samePrice(memo.reference, line.Reference)
				row.OfferedChanged = !samePrice(memo.offered, line.Offered)
			}
		}
		if row.RefChanged || row.OfferedChanged {
			cs.HasChanges = true
		}

		if line.Offered != nil {
			next.offeredSeen = true
		}
		if row.EVOK && (!cs.MaxEVOK || row.EV.GreaterThan(cs.MaxEV)) {
			cs.MaxEV = row.EV
			cs.MaxEVOK = true
		}

		next.markets[line.Key] = cellMemo{reference: line.Reference, offered: line.Offered}
		cs.Rows = append(cs.Rows, row)
	}

	cs.HasQualifying = cs.MaxEVOK && oddsmath.QualifiesForDisplay(cs.MaxEV)
	cs.OfferedSeen = next.offeredSeen
	next.maxEV, next.maxEVOK = cs.MaxEV, cs.MaxEVOK

	s.events[ev.ID] = next
	return cs
}

// Remove drops the memoized state for a torn-down card. Must be called
// exactly once on teardown so a later re-creation with the same id does not
// flash stale diffs.
func (s *SnapshotStore) Remove(eventID string) {
	delete(s.events, eventID)
}

func samePrice(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
