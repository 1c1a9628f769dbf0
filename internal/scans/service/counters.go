package scans

import (
	"context"
	"time"

	"ms-scanning/internal/models"
)

type CounterDBLayer interface {
	ListCountersForDay(ctx context.Context, day models.Day) ([]models.ScanCounter, error)
	ListCountersForSlot(ctx context.Context, slotID int64) ([]models.ScanCounter, error)
	ListBusScans(ctx context.Context, busID int64, from, to time.Time) ([]models.BusScan, error)
	GetActiveSlot(ctx context.Context, token string) (*models.QRSlot, error)
}

// CounterService serves read-only views of the daily counters and the
// events behind them. Days are read in loc, the zone scans are counted in.
type CounterService struct {
	DB  CounterDBLayer
	loc *time.Location
}

func NewCounterService(db CounterDBLayer, loc *time.Location) *CounterService {
	if loc == nil {
		loc = time.UTC
	}
	return &CounterService{DB: db, loc: loc}
}

func (s *CounterService) CountersForDay(ctx context.Context, day models.Day) ([]models.ScanCounter, error) {
	counters, err := s.DB.ListCountersForDay(ctx, day)
	if counters == nil && err == nil {
		counters = []models.ScanCounter{}
	}
	return counters, err
}

func (s *CounterService) CountersForSlot(ctx context.Context, slotID int64) ([]models.ScanCounter, error) {
	counters, err := s.DB.ListCountersForSlot(ctx, slotID)
	if counters == nil && err == nil {
		counters = []models.ScanCounter{}
	}
	return counters, err
}

// BusScans lists the scans of every slot of busID on day, newest first.
func (s *CounterService) BusScans(ctx context.Context, busID int64, day models.Day) ([]models.BusScan, error) {
	from, to, err := day.Bounds(s.loc)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.ListBusScans(ctx, busID, from, to)
	if rows == nil && err == nil {
		rows = []models.BusScan{}
	}
	return rows, err
}

// ActiveSlot looks up the slot behind a token without locking it.
func (s *CounterService) ActiveSlot(ctx context.Context, token string) (*models.QRSlot, error) {
	return s.DB.GetActiveSlot(ctx, token)
}
