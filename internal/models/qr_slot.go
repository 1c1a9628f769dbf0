package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// TripType is the direction a QR slot counts: boarding or alighting.
type TripType string

const (
	TripEntry TripType = "ENTRY"
	TripExit  TripType = "EXIT"
)

func (t TripType) Valid() bool {
	return t == TripEntry || t == TripExit
}

// ParseTripType accepts the enum names case-insensitively.
func ParseTripType(s string) (TripType, error) {
	t := TripType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid trip type %q", s)
	}
	return t, nil
}

// QRSlot binds a bus, a route, a trip direction and a scheduled time to one
// scannable token. Tokens are unique and never reissued.
type QRSlot struct {
	bun.BaseModel `bun:"table:qr_slots"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	BusID         int64     `bun:"bus_id,notnull" json:"bus_id"`
	RouteID       int64     `bun:"route_id,notnull" json:"route_id"`
	TripType      TripType  `bun:"trip_type,type:varchar(8),notnull" json:"trip_type"`
	ScheduledTime ClockTime `bun:"scheduled_time,type:time,notnull" json:"scheduled_time"`
	Token         string    `bun:"token,unique,notnull" json:"token"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`

	Bus   *Bus   `bun:"rel:belongs-to,join:bus_id=id" json:"bus,omitempty"`
	Route *Route `bun:"rel:belongs-to,join:route_id=id" json:"route,omitempty"`
}

// ClockLayout is the wire format for scheduled departure times.
const ClockLayout = "15:04:05"

// ClockTime is a time of day stored as a SQL TIME and rendered as HH:MM:SS.
// PostgreSQL drivers hand TIME columns back as time.Time on year zero.
type ClockTime string

func (c ClockTime) String() string { return string(c) }

func (c ClockTime) Value() (driver.Value, error) {
	return string(c), nil
}

func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = ""
	case time.Time:
		*c = ClockTime(v.Format(ClockLayout))
	case string:
		*c = ClockTime(trimClock(v))
	case []byte:
		*c = ClockTime(trimClock(string(v)))
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
	return nil
}

// trimClock drops fractional seconds PostgreSQL may append.
func trimClock(s string) string {
	if len(s) > len(ClockLayout) {
		return s[:len(ClockLayout)]
	}
	return s
}
