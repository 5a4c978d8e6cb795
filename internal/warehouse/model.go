// Package warehouse turns raw TLC rows into the star schema: the zone
// dimension, the date dimension (time_dim) and the trip fact table.
//
// Everything here is backend-agnostic; rows reach the store through
// storage.Repository.
package warehouse

import (
	"time"

	"github.com/golang-sql/civil"
)

// Table names of the star schema.
const (
	ZoneTable    = "zone"
	DateDimTable = "time_dim"
	TripTable    = "trip"
)

// RawZone is one row of the taxi zone lookup as published by the TLC
// (LocationID, Borough, Zone, service_zone). Nil means the source cell was
// empty or an NA marker.
type RawZone struct {
	LocationID  *int64
	Borough     *string
	Zone        *string
	ServiceZone *string
}

// Zone is a row of the zone dimension.
type Zone struct {
	ZoneID      *int64
	Borough     *string
	ZoneName    *string
	ServiceZone *string
	IsAirport   bool
	IsManhattan bool
}

// ZoneColumns is the column order of Zone.Row.
var ZoneColumns = []string{"zone_id", "borough", "zone_name", "service_zone", "is_airport", "is_manhattan"}

// Row returns the zone as values aligned to ZoneColumns.
func (z Zone) Row() []any {
	return []any{val(z.ZoneID), val(z.Borough), val(z.ZoneName), val(z.ServiceZone), z.IsAirport, z.IsManhattan}
}

// RawTrip is one yellow taxi trip record as read from a monthly file.
// Timestamps are naive wall-clock times carried in UTC.
type RawTrip struct {
	PickupDatetime  *time.Time
	DropoffDatetime *time.Time
	PassengerCount  *int64
	TripDistance    *float64
	PULocationID    *int64
	DOLocationID    *int64
	FareAmount      *float64
	Extra           *float64
	MTATax          *float64
	TipAmount       *float64
	TollsAmount     *float64
	TotalAmount     *float64
	PaymentType     *int64
}

// CleanTrip is a RawTrip that passed every cleaning rule; the fields the
// rules check are no longer optional.
type CleanTrip struct {
	PickupDatetime  time.Time
	DropoffDatetime time.Time
	PassengerCount  *int64
	TripDistanceMi  float64
	DurationMin     float64
	PUZoneID        *int64
	DOZoneID        *int64
	FareAmount      *float64
	Extra           *float64
	MTATax          *float64
	TipAmount       *float64
	TollsAmount     *float64
	TotalAmount     float64
	PaymentType     *int64
}

// PickupDate is the calendar date of the pickup.
func (t CleanTrip) PickupDate() civil.Date { return civil.DateOf(t.PickupDatetime) }

// Trip is a row of the trip fact table. DateID is nil only when the date
// could not be resolved and the null policy is in effect.
type Trip struct {
	CleanTrip
	DateID *int64
}

// TripColumns is the column order of Trip.Row. The store assigns trip_id.
var TripColumns = []string{
	"pickup_datetime", "dropoff_datetime", "date_id", "pu_zone_id", "do_zone_id",
	"passenger_count", "trip_distance_mi", "trip_duration_min",
	"fare_amount", "extra", "mta_tax", "tip_amount", "tolls_amount",
	"total_amount", "payment_type",
}

// Row returns the trip as values aligned to TripColumns.
func (t Trip) Row() []any {
	return []any{
		t.PickupDatetime, t.DropoffDatetime, val(t.DateID), val(t.PUZoneID), val(t.DOZoneID),
		val(t.PassengerCount), t.TripDistanceMi, t.DurationMin,
		val(t.FareAmount), val(t.Extra), val(t.MTATax), val(t.TipAmount), val(t.TollsAmount),
		t.TotalAmount, val(t.PaymentType),
	}
}

// val dereferences p, mapping nil to an untyped nil for the driver.
func val[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
