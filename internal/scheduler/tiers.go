package scheduler

import (
	"time"

	"github.com/skyfleet/flightsync/internal/reconcile"
)

// Tier is one refresh cadence with its selection windows. A flight is
// selected when its effective departure offset from now lies in
// [DepFrom, DepTo], or its effective arrival offset lies in
// [ArrFrom, ArrTo]. Offsets are signed: negative is past, positive is
// future. Effective means actual when known, scheduled otherwise.
//
// The ladder is graduated: each tier's near departure bound is roughly the
// next finer tier's far bound, so a flight steps down the ladder as
// departure approaches and climbs back up after landing. The near-event
// tiers overlap deliberately; reconciliation is idempotent, so double
// selection costs a fetch and nothing else.
type Tier struct {
	Name     string
	Interval time.Duration
	Depth    reconcile.Depth

	DepFrom time.Duration
	DepTo   time.Duration
	ArrFrom time.Duration
	ArrTo   time.Duration
}

// DefaultTiers returns the standard six-tier ladder, coarsest first. The
// finest tier refreshes live position only; scheduling metadata barely
// moves on a 15 second horizon.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Name:     "daily",
			Interval: 24 * time.Hour,
			Depth:    reconcile.DepthFull,
			DepFrom:  24 * time.Hour,
			DepTo:    72 * time.Hour,
			ArrFrom:  -72 * time.Hour,
			ArrTo:    -24 * time.Hour,
		},
		{
			Name:     "hourly",
			Interval: time.Hour,
			Depth:    reconcile.DepthFull,
			DepFrom:  3 * time.Hour,
			DepTo:    24 * time.Hour,
			ArrFrom:  -24 * time.Hour,
			ArrTo:    -time.Hour,
		},
		{
			Name:     "15min",
			Interval: 15 * time.Minute,
			Depth:    reconcile.DepthFull,
			DepFrom:  time.Hour,
			DepTo:    3 * time.Hour,
			ArrFrom:  -3 * time.Hour,
			ArrTo:    0,
		},
		{
			Name:     "5min",
			Interval: 5 * time.Minute,
			Depth:    reconcile.DepthFull,
			DepFrom:  -time.Hour,
			DepTo:    2 * time.Hour,
			ArrFrom:  -time.Hour,
			ArrTo:    2 * time.Hour,
		},
		{
			Name:     "1min",
			Interval: time.Minute,
			Depth:    reconcile.DepthFull,
			DepFrom:  -time.Hour,
			DepTo:    30 * time.Minute,
			ArrFrom:  -5 * time.Minute,
			ArrTo:    time.Hour,
		},
		{
			Name:     "15s",
			Interval: 15 * time.Second,
			Depth:    reconcile.DepthLive,
			DepFrom:  -time.Minute,
			DepTo:    15 * time.Minute,
			ArrFrom:  -30 * time.Minute,
			ArrTo:    time.Minute,
		},
	}
}
