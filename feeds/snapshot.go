// Package feeds talks to the upstream alert backend: it fetches the
// active-events snapshot, decodes it into domain types, and sends best-effort
// dismiss notifications.
package feeds

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/oddsmath"
	"github.com/evwatch/evwatch/types"
)

// Transport fetches one raw snapshot of the active events.
type Transport interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Source is what the reconciliation loop polls: a transport that may fall
// back to a cached payload and says so.
type Source interface {
	Fetch(ctx context.Context) (raw []byte, cached bool, err error)
}

// Client is the HTTP client for the alert backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client. baseURL is e.g. "http://localhost:5001".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves the full active-events snapshot.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	url := c.baseURL + "/get_active_events_data"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}
	return raw, nil
}

// NotifyDismiss tells the backend an event was dismissed. Fire-and-forget:
// failures are logged at debug and swallowed.
func (c *Client) NotifyDismiss(ctx context.Context, eventID string) {
	body, _ := json.Marshal(map[string]string{"eventId": eventID})
	url := c.baseURL + "/dismiss_event"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("event_id", eventID).Msg("Dismiss notify failed")
		return
	}
	resp.Body.Close()
}

// Signature returns the SHA-256 hex digest of a raw payload, used for the
// no-change short circuit between polls.
func Signature(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ═══════════════════════════════════════════════════════════════════════════════
// WIRE DECODING
// ═══════════════════════════════════════════════════════════════════════════════

// flexString tolerates upstream fields that arrive as either JSON strings or
// numbers ("7.5" vs 7.5, "-110" vs -110). Garbage decodes to "".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

// flexTime accepts unix seconds (possibly fractional) or an RFC 3339 string.
// Garbage decodes to the zero time.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil && secs > 0 {
		sec := int64(secs)
		nsec := int64((secs - float64(sec)) * 1e9)
		*f = flexTime(time.Unix(sec, nsec).UTC())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			*f = flexTime(t.UTC())
			return nil
		}
	}
	*f = flexTime(time.Time{})
	return nil
}

type wireMarket struct {
	Market      string     `json:"market"`
	Selection   string     `json:"selection"`
	Line        flexString `json:"line"`
	PinnacleNVP flexString `json:"pinnacle_nvp"`
	BetbckOdds  flexString `json:"betbck_odds"`
}

type wireEvent struct {
	Title            string       `json:"title"`
	HomeTeam         string       `json:"home_team"`
	AwayTeam         string       `json:"away_team"`
	League           string       `json:"league_name"`
	Starts           flexTime     `json:"starts"`
	AlertArrival     flexTime     `json:"alert_arrival_timestamp"`
	LastUpdate       flexTime     `json:"pinnacle_last_update"`
	AlertDescription string       `json:"alert_description"`
	OldOdds          flexString   `json:"old_odds"`
	NewOdds          flexString   `json:"new_odds"`
	AlertNVP         flexString   `json:"no_vig_price_from_alert"`
	BetbckStatus     string       `json:"betbck_status"`
	BetbckMessage    string       `json:"betbck_message"`
	Markets          []wireMarket `json:"markets"`
}

// Decode parses a raw snapshot payload. Only a top-level JSON failure is an
// error; malformed or missing fields inside an event degrade to zero values
// so one bad record never aborts the pass.
func Decode(raw []byte) (types.Snapshot, error) {
	var wire map[string]wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snap := types.Snapshot{
		Events:    make(map[string]types.Event, len(wire)),
		Signature: Signature(raw),
	}
	for id, we := range wire {
		snap.Events[id] = decodeEvent(id, we)
	}
	return snap, nil
}

func decodeEvent(id string, we wireEvent) types.Event {
	home, away := we.HomeTeam, we.AwayTeam
	if home == "" && away == "" && we.Title != "" {
		if i := strings.Index(we.Title, " vs "); i > 0 {
			home, away = we.Title[:i], we.Title[i+4:]
		} else {
			home = we.Title
		}
	}

	ev := types.Event{
		ID:               id,
		HomeTeam:         home,
		AwayTeam:         away,
		League:           we.League,
		Starts:           time.Time(we.Starts),
		AlertArrival:     time.Time(we.AlertArrival),
		OddsUpdated:      time.Time(we.LastUpdate),
		AlertDescription: we.AlertDescription,
		AlertOldOdds:     string(we.OldOdds),
		AlertNewOdds:     string(we.NewOdds),
		AlertNVP:         string(we.AlertNVP),
		BookMessage:      we.BetbckMessage,
	}

	switch we.BetbckStatus {
	case "success":
		ev.BookStatus = types.BookSuccess
	case "":
		ev.BookStatus = types.BookPending
	default:
		ev.BookStatus = types.BookError
	}

	ev.Lines = make([]types.MarketLine, 0, len(we.Markets))
	for _, m := range we.Markets {
		if m.Market == "" || m.Selection == "" {
			continue
		}
		ev.Lines = append(ev.Lines, types.MarketLine{
			Key: types.MarketKey{
				Market:    m.Market,
				Selection: m.Selection,
				Line:      normalizeLine(string(m.Line)),
			},
			Reference: oddsmath.ParseAmerican(string(m.PinnacleNVP)),
			Offered:   oddsmath.ParseAmerican(string(m.BetbckOdds)),
		})
	}
	return ev
}

// normalizeLine trims trailing ".0" noise some feeds attach to whole-number
// lines, so "7.0" and "7" key the same proposition.
func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(strings.TrimPrefix(line, "+"), 64); err == nil {
		if f == float64(int64(f)) {
			sign := ""
			if strings.HasPrefix(line, "+") {
				sign = "+"
			}
			return sign + strconv.FormatInt(int64(f), 10)
		}
	}
	return line
}
