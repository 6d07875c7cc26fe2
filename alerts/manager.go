// Package alerts opens and refreshes alert surfaces for market lines whose
// EV crosses the strict positive threshold. A surface is keyed by
// (event id, market key): at most one per distinct qualifying line, fired on
// its first render only.
package alerts

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/oddsmath"
	"github.com/evwatch/evwatch/types"
)

// Notifier pushes the first-fire interruption (Telegram). An error means the
// surface could not be created; it is logged and never aborts the pass.
type Notifier interface {
	NotifyAlert(p types.AlertPayload) error
}

// Broadcaster feeds open websocket surfaces: a payload per open key on every
// poll, and a close signal when the event disappears.
type Broadcaster interface {
	BroadcastAlert(topic string, p types.AlertPayload)
	CloseTopic(topic string)
}

// Recorder keeps the fired-alert history.
type Recorder interface {
	LogAlert(p types.AlertPayload)
}

// Manager tracks open surfaces per event occurrence. Driven only from the
// reconciliation pass; surfaces themselves never call back into it.
type Manager struct {
	notifier    Notifier    // may be nil
	broadcaster Broadcaster // may be nil
	recorder    Recorder    // may be nil

	open map[string]map[types.MarketKey]time.Time
	now  func() time.Time
}

func NewManager(notifier Notifier, broadcaster Broadcaster, recorder Recorder) *Manager {
	return &Manager{
		notifier:    notifier,
		broadcaster: broadcaster,
		recorder:    recorder,
		open:        make(map[string]map[types.MarketKey]time.Time),
		now:         time.Now,
	}
}

// SetNotifier wires the push channel. Must be called before the
// reconciliation loop starts.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// Process inspects one event's diffed rows: lines above the alert threshold
// get a surface opened on first sight. Every already-open surface is
// refreshed with the row's current prices, whatever its EV is now; a line
// that dropped below the threshold keeps its surface open (the user may
// still be acting on it) and only goes away with the event.
func (m *Manager) Process(ev types.Event, rows []types.RowState) {
	for _, row := range rows {
		evPercent := "N/A"
		if row.EVOK {
			evPercent = oddsmath.FormatPercent(row.EV)
		}
		payload := types.AlertPayload{
			EventID:   ev.ID,
			Title:     ev.Title(),
			League:    ev.League,
			Key:       row.Key,
			Reference: oddsmath.FormatAmerican(row.Reference),
			Offered:   oddsmath.FormatAmerican(row.Offered),
			EVPercent: evPercent,
			FiredAt:   m.now(),
		}

		keys, ok := m.open[ev.ID]
		if ok {
			if _, alreadyOpen := keys[row.Key]; alreadyOpen {
				payload.Refresh = true
				if m.broadcaster != nil {
					m.broadcaster.BroadcastAlert(row.Key.Topic(ev.ID), payload)
				}
				continue
			}
		}

		// The threshold gates the first fire only.
		if !row.EVOK || !oddsmath.QualifiesForAlert(row.EV) {
			continue
		}

		if keys == nil {
			keys = make(map[types.MarketKey]time.Time)
			m.open[ev.ID] = keys
		}
		keys[row.Key] = payload.FiredAt
		m.fire(payload)
	}
}

func (m *Manager) fire(p types.AlertPayload) {
	log.Info().
		Str("event_id", p.EventID).
		Str("key", p.Key.String()).
		Str("ev", p.EVPercent).
		Msg("🔔 +EV alert")

	if m.notifier != nil {
		if err := m.notifier.NotifyAlert(p); err != nil {
			log.Warn().Err(err).Str("key", p.Key.String()).Msg("Alert surface blocked")
		}
	}
	if m.broadcaster != nil {
		m.broadcaster.BroadcastAlert(p.Key.Topic(p.EventID), p)
	}
	if m.recorder != nil {
		m.recorder.LogAlert(p)
	}
}

// CloseEvent tears down every surface for an event occurrence. The tracker is
// cleared so a future re-alert for the same fixture id fires again.
func (m *Manager) CloseEvent(eventID string) {
	keys, ok := m.open[eventID]
	if !ok {
		return
	}
	delete(m.open, eventID)

	if m.broadcaster == nil {
		return
	}
	for key := range keys {
		m.broadcaster.CloseTopic(key.Topic(eventID))
	}
}

// OpenSurfaces returns the number of currently tracked surfaces.
func (m *Manager) OpenSurfaces() int {
	n := 0
	for _, keys := range m.open {
		n += len(keys)
	}
	return n
}
