package warehouse

import (
	"fmt"
	"strings"
)

// CleanStats counts the outcome of CleanTrips. Each dropped row is counted
// once, under the first rule it failed.
type CleanStats struct {
	Raw                 int
	MissingRequired     int // pickup, dropoff or total_amount absent
	NonPositiveDistance int // trip_distance absent or <= 0
	NonPositiveTotal    int // total_amount <= 0
	NonPositiveDuration int // dropoff not after pickup
	Kept                int
}

// Dropped is the number of rows removed by cleaning.
func (s CleanStats) Dropped() int { return s.Raw - s.Kept }

// CleanTrips applies the data quality rules in order and derives the trip
// duration in minutes.
func CleanTrips(raw []RawTrip) ([]CleanTrip, CleanStats) {
	stats := CleanStats{Raw: len(raw)}
	out := make([]CleanTrip, 0, len(raw))
	for _, r := range raw {
		switch {
		case r.PickupDatetime == nil || r.DropoffDatetime == nil || r.TotalAmount == nil:
			stats.MissingRequired++
			continue
		case r.TripDistance == nil || !(*r.TripDistance > 0):
			stats.NonPositiveDistance++
			continue
		case !(*r.TotalAmount > 0):
			stats.NonPositiveTotal++
			continue
		}
		dur := r.DropoffDatetime.Sub(*r.PickupDatetime).Minutes()
		if !(dur > 0) {
			stats.NonPositiveDuration++
			continue
		}
		out = append(out, CleanTrip{
			PickupDatetime:  *r.PickupDatetime,
			DropoffDatetime: *r.DropoffDatetime,
			PassengerCount:  r.PassengerCount,
			TripDistanceMi:  *r.TripDistance,
			DurationMin:     dur,
			PUZoneID:        r.PULocationID,
			DOZoneID:        r.DOLocationID,
			FareAmount:      r.FareAmount,
			Extra:           r.Extra,
			MTATax:          r.MTATax,
			TipAmount:       r.TipAmount,
			TollsAmount:     r.TollsAmount,
			TotalAmount:     *r.TotalAmount,
			PaymentType:     r.PaymentType,
		})
	}
	stats.Kept = len(out)
	return out, stats
}

// UnresolvedPolicy decides what happens to a trip whose pickup date has no
// time_dim row.
type UnresolvedPolicy string

const (
	// UnresolvedDrop excludes the trip and counts it.
	UnresolvedDrop UnresolvedPolicy = "drop"
	// UnresolvedNull inserts the trip with a NULL date_id.
	UnresolvedNull UnresolvedPolicy = "null"
	// UnresolvedFail aborts the batch with ErrUnresolvedDate.
	UnresolvedFail UnresolvedPolicy = "fail"
)

// ParseUnresolvedPolicy parses a policy name; empty selects UnresolvedDrop.
func ParseUnresolvedPolicy(s string) (UnresolvedPolicy, error) {
	switch p := UnresolvedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return UnresolvedDrop, nil
	case UnresolvedDrop, UnresolvedNull, UnresolvedFail:
		return p, nil
	default:
		return "", fmt.Errorf("unknown unresolved date policy %q (want drop, null or fail)", s)
	}
}

// BuildFacts attaches date keys to cleaned trips. Zone ids pass through
// unchecked. It returns the facts and the number of trips whose date did not
// resolve; under UnresolvedFail any such trip is an error.
func BuildFacts(clean []CleanTrip, keys DateKeys, policy UnresolvedPolicy) ([]Trip, int, error) {
	out := make([]Trip, 0, len(clean))
	unresolved := 0
	for _, c := range clean {
		id, ok := keys.Resolve(c.PickupDate())
		if ok {
			out = append(out, Trip{CleanTrip: c, DateID: &id})
			continue
		}
		unresolved++
		switch policy {
		case UnresolvedNull:
			out = append(out, Trip{CleanTrip: c})
		case UnresolvedFail:
			return nil, unresolved, fmt.Errorf("%w: pickup date %s", ErrUnresolvedDate, c.PickupDate())
		}
	}
	return out, unresolved, nil
}
