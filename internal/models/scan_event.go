package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanEvent is one recorded scan. Rows are immutable once inserted.
type ScanEvent struct {
	bun.BaseModel `bun:"table:scan_events"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	QRSlotID      int64     `bun:"qr_slot_id,notnull" json:"qr_slot_id"`
	ClientEventID string    `bun:"client_event_id,unique,notnull" json:"client_event_id"`
	ScannedAt     time.Time `bun:"scanned_at,notnull" json:"scanned_at"`

	QRSlot *QRSlot `bun:"rel:belongs-to,join:qr_slot_id=id" json:"-"`
}

// ScanRecordedMessage is published to Kafka after a scan commits.
type ScanRecordedMessage struct {
	QRSlotID      int64     `json:"qr_slot_id"`
	BusID         int64     `json:"bus_id"`
	RouteID       int64     `json:"route_id"`
	TripType      TripType  `json:"trip_type"`
	ClientEventID string    `json:"client_event_id"`
	Day           Day       `json:"day"`
	Total         int64     `json:"total"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// OfflineScanMessage is a scan captured by a device while offline and
// replayed through Kafka or the bulk sync endpoint. ScannedAt is the device
// clock at capture time; without it the scan counts at sync time.
type OfflineScanMessage struct {
	Token         string     `json:"token"`
	ClientEventID string     `json:"client_event_id"`
	ScannedAt     *time.Time `json:"scanned_at,omitempty"`
}

// BusScan is a scan event joined with the slot it was counted against.
type BusScan struct {
	ID            int64     `bun:"id" json:"id"`
	QRSlotID      int64     `bun:"qr_slot_id" json:"qr_slot_id"`
	ClientEventID string    `bun:"client_event_id" json:"client_event_id"`
	ScannedAt     time.Time `bun:"scanned_at" json:"scanned_at"`
	RouteID       int64     `bun:"route_id" json:"route_id"`
	TripType      TripType  `bun:"trip_type" json:"trip_type"`
	ScheduledTime ClockTime `bun:"scheduled_time" json:"scheduled_time"`
}
