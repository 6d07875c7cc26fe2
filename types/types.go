package types

import (
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// MarketKey identifies one betting proposition within an event.
// Compared by value; the string form is only for logging and hub topics.
type MarketKey struct {
	Market    string // "Moneyline", "Spread", "Total"
	Selection string // team name, "Draw", "Over", "Under"
	Line      string // "" for moneyline, "+7.5", "7.5", ...
}

// String returns a stable display form, e.g. "Total/Over/7.5".
func (k MarketKey) String() string {
	if k.Line == "" {
		return k.Market + "/" + k.Selection
	}
	return k.Market + "/" + k.Selection + "/" + k.Line
}

// Topic returns the hub topic name for an alert surface on this line.
func (k MarketKey) Topic(eventID string) string {
	return strings.Join([]string{eventID, k.Market, k.Selection, k.Line}, "/")
}

// MarketLine is one comparable line: reference (sharp no-vig) price vs offered
// (book) price, both as signed American odds. Nil means the price is missing.
type MarketLine struct {
	Key       MarketKey
	Reference *int
	Offered   *int
}

// BookStatus reflects whether the offered-odds source has reported for an event.
type BookStatus string

const (
	BookSuccess BookStatus = "success"
	BookError   BookStatus = "error"
	BookPending BookStatus = "pending"
)

// Event is one sporting fixture under observation.
type Event struct {
	ID       string
	HomeTeam string
	AwayTeam string
	League   string
	Starts   time.Time

	AlertArrival time.Time // when the triggering alert reached the backend
	OddsUpdated  time.Time // last reference-odds refresh upstream

	AlertDescription string
	AlertOldOdds     string
	AlertNewOdds     string
	AlertNVP         string // no-vig price quoted by the alert itself

	BookStatus  BookStatus
	BookMessage string

	Lines []MarketLine
}

// Title returns "Home vs Away" with placeholders for missing names.
func (e Event) Title() string {
	home, away := e.HomeTeam, e.AwayTeam
	if home == "" {
		home = "N/A"
	}
	if away == "" {
		away = "N/A"
	}
	return fmt.Sprintf("%s vs %s", home, away)
}

// Snapshot is one poll result: every active event keyed by id, plus the
// signature of the raw payload it was decoded from.
type Snapshot struct {
	Events    map[string]Event
	Signature string
}

// IDs returns the set of event ids present in the snapshot.
func (s Snapshot) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Events))
	for id := range s.Events {
		ids[id] = struct{}{}
	}
	return ids
}

// ConnStatus is the connection-status indicator, recomputed every poll.
type ConnStatus string

const (
	StatusLive     ConnStatus = "live"     // connected, payload changed
	StatusIdle     ConnStatus = "idle"     // connected, no changes
	StatusDegraded ConnStatus = "degraded" // serving last-known-good cache
	StatusOffline  ConnStatus = "offline"  // transport failed, no cache
	StatusStarting ConnStatus = "starting" // before the first poll completes
)

// AlertPayload is what an alert surface (Telegram message, websocket popup)
// receives when a line first crosses the alert threshold, and on every refresh
// while the surface stays open.
type AlertPayload struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	League    string    `json:"league"`
	Key       MarketKey `json:"key"`
	Reference string    `json:"reference"`
	Offered   string    `json:"offered"`
	EVPercent string    `json:"ev_percent"`
	FiredAt   time.Time `json:"fired_at"`
	Refresh   bool      `json:"refresh"` // false on first fire, true afterwards
}
