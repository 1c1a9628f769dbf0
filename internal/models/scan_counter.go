package models

import "github.com/uptrace/bun"

// DayLayout is the wire format for calendar days.
const DayLayout = "2006-01-02"

// ScanCounter is the daily scan count for one QR slot. At most one row exists
// per (qr_slot_id, day).
type ScanCounter struct {
	bun.BaseModel `bun:"table:scan_counters"`

	ID       int64 `bun:"id,pk,autoincrement" json:"id"`
	QRSlotID int64 `bun:"qr_slot_id,notnull,unique:scan_counters_slot_day" json:"qr_slot_id"`
	Day      Day   `bun:"day,type:date,notnull,unique:scan_counters_slot_day" json:"day"`
	Count    int64 `bun:"count,notnull" json:"count"`
}
