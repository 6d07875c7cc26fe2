package types

import "github.com/shopspring/decimal"

// RowState is one market line after diffing: current prices, derived EV, and
// which cells changed since the previous render.
type RowState struct {
	Key            MarketKey
	Reference      *int
	Offered        *int
	EV             decimal.Decimal
	EVOK           bool
	RefChanged     bool
	OfferedChanged bool
}

// ChangeSet is the result of diffing one event against its render memo.
type ChangeSet struct {
	FirstSeen     bool
	Rows          []RowState
	MaxEV         decimal.Decimal
	MaxEVOK       bool
	HasQualifying bool // max EV available and >= 0
	HasChanges    bool // any cell changed since the previous render
	OfferedSeen   bool // an offered price has ever been received for this event
}
