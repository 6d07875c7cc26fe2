// Package render materializes card view models from event data. It owns no
// I/O: consumers (the HTTP API and the websocket hub) serialize cards however
// they like, and clear flash highlights themselves once FlashUntil passes.
package render

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evwatch/evwatch/oddsmath"
	"github.com/evwatch/evwatch/types"
)

// PendingPlaceholder is shown for an offered price before the book source has
// reported anything for the event.
const PendingPlaceholder = "pending"

// Cell is one price cell on a card row.
type Cell struct {
	Value      string    `json:"value"`
	Changed    bool      `json:"changed"`
	FlashUntil time.Time `json:"flash_until,omitempty"` // zero when not flashing
}

// Row is one market line on a card, sorted by descending EV.
type Row struct {
	Key        types.MarketKey `json:"key"`
	Reference  Cell            `json:"reference"`
	Offered    Cell            `json:"offered"`
	EV         string          `json:"ev"`
	EVValue    decimal.Decimal `json:"-"`
	EVOK       bool            `json:"ev_ok"`
	Qualifying bool            `json:"qualifying"` // EV >= 0
	Positive   bool            `json:"positive"`   // EV above the alert epsilon
	Pending    bool            `json:"pending"`
}

// Card is the rendered visual unit for one event.
type Card struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	League  string `json:"league"`

	Starts        time.Time `json:"starts"`
	StartsDisplay string    `json:"starts_display"`

	AlertArrival time.Time `json:"alert_arrival"`
	OddsUpdated  time.Time `json:"odds_updated"`
	AlertAgo     string    `json:"alert_ago"`
	UpdatedAgo   string    `json:"updated_ago"`

	AlertBanner string `json:"alert_banner"`
	AlertMeta   string `json:"alert_meta"`

	BookStatus types.BookStatus `json:"book_status"`
	BookNote   string           `json:"book_note"`

	MaxEV      string `json:"max_ev"`
	Qualifying bool   `json:"qualifying"`

	Rows []Row `json:"rows"`
}

// Renderer builds and refreshes cards. The clock is injectable for tests.
type Renderer struct {
	flashFor time.Duration
	now      func() time.Time
}

func NewRenderer(flashFor time.Duration) *Renderer {
	return &Renderer{flashFor: flashFor, now: time.Now}
}

// Card builds or rebuilds the card for one event from its diffed change set.
func (r *Renderer) Card(ev types.Event, cs types.ChangeSet) Card {
	now := r.now()

	card := Card{
		EventID:      ev.ID,
		Title:        ev.Title(),
		League:       ev.League,
		Starts:       ev.Starts,
		AlertArrival: ev.AlertArrival,
		OddsUpdated:  ev.OddsUpdated,
		AlertAgo:     "Alert " + TimeSince(now, ev.AlertArrival),
		UpdatedAgo:   "Updated " + TimeSince(now, ev.OddsUpdated),
		AlertBanner:  ev.AlertDescription,
		BookStatus:   ev.BookStatus,
		BookNote:     bookNote(ev),
		Qualifying:   cs.HasQualifying,
		MaxEV:        "N/A",
	}
	if !ev.Starts.IsZero() {
		card.StartsDisplay = ev.Starts.Format("Jan 2 15:04")
	} else {
		card.StartsDisplay = "N/A"
	}
	if card.AlertBanner == "" {
		card.AlertBanner = "N/A"
	}
	card.AlertMeta = fmt.Sprintf("(Alert: %s → %s, NVP: %s)",
		orNA(ev.AlertOldOdds), orNA(ev.AlertNewOdds), orNA(ev.AlertNVP))
	if cs.MaxEVOK {
		card.MaxEV = oddsmath.FormatPercent(cs.MaxEV)
	}

	card.Rows = r.rows(cs, now)
	return card
}

func (r *Renderer) rows(cs types.ChangeSet, now time.Time) []Row {
	rows := make([]Row, 0, len(cs.Rows))
	for _, rs := range cs.Rows {
		if rs.Offered == nil {
			// Once the book source is authoritative, rows it does not quote
			// are noise; before that they render as pending.
			if cs.OfferedSeen {
				continue
			}
		}

		row := Row{
			Key:       rs.Key,
			Reference: r.cell(oddsmath.FormatAmerican(rs.Reference), rs.RefChanged, now),
			Offered:   r.cell(oddsmath.FormatAmerican(rs.Offered), rs.OfferedChanged, now),
			EV:        "N/A",
			EVOK:      rs.EVOK,
			Pending:   rs.Offered == nil,
		}
		if row.Pending {
			row.Offered.Value = PendingPlaceholder
		}
		if rs.EVOK {
			row.EV = oddsmath.FormatPercent(rs.EV)
			row.EVValue = rs.EV
			row.Qualifying = oddsmath.QualifiesForDisplay(rs.EV)
			row.Positive = oddsmath.QualifiesForAlert(rs.EV)
		}
		rows = append(rows, row)
	}

	// Descending EV, rows without EV last; EV >= 0 beats negative. Stable so
	// equal rows keep feed order.
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.EVOK != b.EVOK {
			return a.EVOK
		}
		if !a.EVOK {
			return false
		}
		if a.Qualifying != b.Qualifying {
			return a.Qualifying
		}
		return a.EVValue.GreaterThan(b.EVValue)
	})
	return rows
}

func (r *Renderer) cell(value string, changed bool, now time.Time) Cell {
	c := Cell{Value: value, Changed: changed}
	if changed {
		c.FlashUntil = now.Add(r.flashFor)
	}
	return c
}

// Refresh updates the wall-clock derived parts of a card in place: relative
// time strings, and flash flags whose deadline has passed. Runs every poll
// even when the payload signature is unchanged.
func (r *Renderer) Refresh(card *Card) {
	now := r.now()
	card.AlertAgo = "Alert " + TimeSince(now, card.AlertArrival)
	card.UpdatedAgo = "Updated " + TimeSince(now, card.OddsUpdated)
	for i := range card.Rows {
		clearExpiredFlash(&card.Rows[i].Reference, now)
		clearExpiredFlash(&card.Rows[i].Offered, now)
	}
}

// Clone returns a copy with its own row slice. Broadcast frames sit in hub
// buffers and are encoded per client, so they must not share rows with the
// live card Refresh keeps mutating.
func (c Card) Clone() Card {
	rows := make([]Row, len(c.Rows))
	copy(rows, c.Rows)
	c.Rows = rows
	return c
}

func clearExpiredFlash(c *Cell, now time.Time) {
	if c.Changed && !c.FlashUntil.IsZero() && now.After(c.FlashUntil) {
		c.Changed = false
		c.FlashUntil = time.Time{}
	}
}

func bookNote(ev types.Event) string {
	switch ev.BookStatus {
	case types.BookSuccess:
		if ev.BookMessage != "" {
			return ev.BookMessage
		}
		return "Offered odds live"
	case types.BookError:
		if ev.BookMessage != "" {
			return ev.BookMessage
		}
		return "Offered odds unavailable"
	default:
		return "Odds check pending..."
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// TimeSince buckets elapsed time the way the card header shows it, with a
// dedicated "just now" band under 5 seconds.
func TimeSince(now, t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	secs := int(now.Sub(t).Seconds())
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 5:
		return "just now"
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	case secs < 2592000:
		return fmt.Sprintf("%d days ago", secs/86400)
	case secs < 31536000:
		return fmt.Sprintf("%d months ago", secs/2592000)
	default:
		return fmt.Sprintf("%d years ago", secs/31536000)
	}
}
