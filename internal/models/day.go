package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Day is a calendar day stored as a SQL DATE and rendered as YYYY-MM-DD.
type Day string

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(DayLayout))
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day(t.Format(DayLayout)), nil
}

func (d Day) String() string { return string(d) }

// AddDays shifts the day by n calendar days.
func (d Day) AddDays(n int) Day {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return d
	}
	return Day(t.AddDate(0, 0, n).Format(DayLayout))
}

// Bounds returns the half-open interval [start, end) the day covers in loc.
func (d Day) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DayLayout, string(d), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day %q: %w", string(d), err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

func (d Day) Value() (driver.Value, error) {
	return string(d), nil
}

func (d *Day) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case time.Time:
		*d = Day(v.Format(DayLayout))
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Day", src)
	}
	return nil
}

func (d *Day) scanString(s string) error {
	if len(s) < len(DayLayout) {
		return fmt.Errorf("cannot scan %q into Day", s)
	}
	parsed, err := ParseDay(s[:len(DayLayout)])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
