package core

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/feeds"
	"github.com/evwatch/evwatch/render"
	"github.com/evwatch/evwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Reconciliation loop
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Feed → Decode → Ledger filter → Diff → Render → Alerts → Broadcast
//
// One pass runs at a time. A tick that arrives while a pass is still in
// flight is skipped, never queued.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Ledger records which events the operator no longer wants to see.
type Ledger interface {
	IsDismissed(eventID string) bool
	Dismiss(eventID, source string)
	Reconcile(active map[string]struct{})
}

// AlertSink receives the qualifying lines of each pass and owns the popup
// surfaces derived from them.
type AlertSink interface {
	Process(ev types.Event, rows []types.RowState)
	CloseEvent(eventID string)
}

// Publisher pushes rendered state to connected clients.
type Publisher interface {
	BroadcastCards(status types.ConnStatus, cards []render.Card)
	BroadcastStatus(status types.ConnStatus)
}

// Dismisser propagates a manual dismissal to the upstream backend.
type Dismisser interface {
	NotifyDismiss(ctx context.Context, eventID string)
}

type Engine struct {
	mu sync.RWMutex

	// Components
	source   feeds.Source
	store    *SnapshotStore
	renderer *render.Renderer
	ledger   Ledger
	alerts   AlertSink
	pub      Publisher
	upstream Dismisser

	// Tuning
	interval    time.Duration
	gracePeriod time.Duration
	maxAge      time.Duration

	// State
	inFlight    atomic.Bool
	prevSig     string
	cards       map[string]*render.Card
	order       []string
	createdAt   map[string]time.Time
	noQualSince map[string]time.Time
	status      types.ConnStatus

	// Stats
	passes  int64
	skipped int64

	now func() time.Time
}

func NewEngine(
	source feeds.Source,
	renderer *render.Renderer,
	ledger Ledger,
	alerts AlertSink,
	pub Publisher,
	upstream Dismisser,
	interval, gracePeriod, maxAge time.Duration,
) *Engine {
	return &Engine{
		source:      source,
		store:       NewSnapshotStore(),
		renderer:    renderer,
		ledger:      ledger,
		alerts:      alerts,
		pub:         pub,
		upstream:    upstream,
		interval:    interval,
		gracePeriod: gracePeriod,
		maxAge:      maxAge,
		cards:       make(map[string]*render.Card),
		createdAt:   make(map[string]time.Time),
		noQualSince: make(map[string]time.Time),
		status:      types.StatusStarting,
		now:         time.Now,
	}
}

// Start runs the poll loop until the context is cancelled. The first pass
// fires immediately, then one per interval.
func (e *Engine) Start(ctx context.Context) {
	log.Info().Dur("interval", e.interval).Msg("⚡ Reconciliation loop started")

	e.poll(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciliation loop stopped")
			return
		case <-ticker.C:
			go e.poll(ctx)
		}
	}
}

// poll executes one reconciliation pass.
func (e *Engine) poll(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		atomic.AddInt64(&e.skipped, 1)
		log.Debug().Msg("Pass still in flight, tick skipped")
		return
	}
	defer e.inFlight.Store(false)
	atomic.AddInt64(&e.passes, 1)

	raw, cached, err := e.source.Fetch(ctx)
	if err != nil {
		e.mu.Lock()
		e.setStatus(types.StatusOffline)
		e.mu.Unlock()
		if e.pub != nil {
			e.pub.BroadcastStatus(types.StatusOffline)
		}
		log.Warn().Err(err).Msg("📡 Feed unreachable, keeping last render")
		return
	}

	liveStatus := types.StatusLive
	if cached {
		liveStatus = types.StatusDegraded
	}

	sig := feeds.Signature(raw)

	e.mu.Lock()
	defer e.mu.Unlock()

	if sig == e.prevSig {
		// Unchanged payload. The diff is skipped but time still moves:
		// relative labels refresh, stale flashes clear, and the
		// auto-dismiss clocks keep running.
		for _, card := range e.cards {
			e.renderer.Refresh(card)
		}
		e.sweep()
		if cached {
			e.setStatus(types.StatusDegraded)
		} else {
			e.setStatus(types.StatusIdle)
		}
		e.publish()
		return
	}

	snap, err := feeds.Decode(raw)
	if err != nil {
		e.setStatus(types.StatusOffline)
		if e.pub != nil {
			e.pub.BroadcastStatus(types.StatusOffline)
		}
		log.Warn().Err(err).Msg("Feed payload undecodable, keeping last render")
		return
	}
	e.prevSig = sig

	// The dismissal ledger is occurrence scoped: ids absent from this
	// payload expire so the event can come back later.
	e.ledger.Reconcile(snap.IDs())

	// Tear down events the feed no longer carries.
	for id := range e.cards {
		if _, ok := snap.Events[id]; !ok {
			e.teardown(id)
		}
	}

	now := e.now()
	for id, ev := range snap.Events {
		if e.ledger.IsDismissed(id) {
			e.teardown(id)
			continue
		}

		cs := e.store.Update(ev)
		card := e.renderer.Card(ev, cs)

		if cs.FirstSeen {
			e.createdAt[id] = now
		}
		if _, ok := e.cards[id]; !ok {
			e.order = append(e.order, id)
		}
		e.cards[id] = &card

		if cs.HasQualifying {
			delete(e.noQualSince, id)
		} else if _, ok := e.noQualSince[id]; !ok {
			e.noQualSince[id] = now
		}

		e.alerts.Process(ev, cs.Rows)
	}

	e.sweep()
	e.setStatus(liveStatus)
	e.publish()
}

// sweep applies the two auto-dismiss clocks. Both yield a ledger entry so
// the event stays hidden for the rest of its occurrence.
func (e *Engine) sweep() {
	now := e.now()
	for id, since := range e.noQualSince {
		if now.Sub(since) >= e.gracePeriod {
			log.Info().Str("event", id).Msg("🧹 No qualifying line, auto-dismissed")
			e.ledger.Dismiss(id, "auto")
			e.teardown(id)
		}
	}
	for id, created := range e.createdAt {
		if now.Sub(created) >= e.maxAge {
			log.Info().Str("event", id).Msg("🧹 Card aged out, auto-dismissed")
			e.ledger.Dismiss(id, "auto")
			e.teardown(id)
		}
	}
}

// teardown removes every trace of an event: its card, its diff memo, its
// alert surfaces and its clocks.
func (e *Engine) teardown(id string) {
	if _, ok := e.cards[id]; ok {
		delete(e.cards, id)
		for i, oid := range e.order {
			if oid == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.store.Remove(id)
	e.alerts.CloseEvent(id)
	delete(e.createdAt, id)
	delete(e.noQualSince, id)
}

// Dismiss handles an operator dismissal. The upstream backend is told on a
// best-effort basis; the local ledger is the authority.
func (e *Engine) Dismiss(eventID string) {
	e.mu.Lock()
	e.ledger.Dismiss(eventID, "manual")
	e.teardown(eventID)
	e.publish()
	e.mu.Unlock()

	log.Info().Str("event", eventID).Msg("🙈 Event dismissed")
	if e.upstream != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		go func() {
			defer cancel()
			e.upstream.NotifyDismiss(ctx, eventID)
		}()
	}
}

// Cards returns the current render in display order.
func (e *Engine) Cards() []render.Card {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedCards()
}

// Status reports the connection state of the last pass.
func (e *Engine) Status() types.ConnStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Stats reports pass counters for the status surfaces.
func (e *Engine) Stats() (passes, skipped int64, active int) {
	e.mu.RLock()
	active = len(e.cards)
	e.mu.RUnlock()
	return atomic.LoadInt64(&e.passes), atomic.LoadInt64(&e.skipped), active
}

// setStatus must be called with the lock held.
func (e *Engine) setStatus(s types.ConnStatus) {
	if e.status != s {
		log.Debug().Str("from", string(e.status)).Str("to", string(s)).Msg("Connection status changed")
	}
	e.status = s
}

// publish must be called with the lock held.
func (e *Engine) publish() {
	if e.pub == nil {
		return
	}
	e.pub.BroadcastCards(e.status, e.sortedCards())
}

// sortedCards must be called with the lock held. Qualifying cards come
// first, newest alert on top within each band.
func (e *Engine) sortedCards() []render.Card {
	out := make([]render.Card, 0, len(e.cards))
	for _, id := range e.order {
		out = append(out, e.cards[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Qualifying != out[j].Qualifying {
			return out[i].Qualifying
		}
		return out[i].AlertArrival.After(out[j].AlertArrival)
	})
	return out
}
