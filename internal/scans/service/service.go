package scans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-scanning/internal/logger"
	"ms-scanning/internal/models"
	"ms-scanning/internal/scans/db"
)

// MaxClientEventIDLength bounds client supplied idempotency keys.
const MaxClientEventIDLength = 128

const (
	DefaultClockSkew     = 5 * time.Minute
	DefaultMaxOfflineAge = 7 * 24 * time.Hour
)

var (
	ErrSlotNotFound         = db.ErrSlotNotFound
	ErrInvalidClientEventID = errors.New("client event id too long")
	ErrInvalidScanTime      = errors.New("scan time out of range")
	ErrScanRejected         = errors.New("scan rejected by a store constraint")
	ErrRetriesExhausted     = errors.New("scan not recorded: store kept failing")
)

type ScanDBLayer interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
	ResolveActiveSlot(ctx context.Context, idb bun.IDB, token string) (*models.QRSlot, error)
	RecordScanEvent(ctx context.Context, idb bun.IDB, slotID int64, clientEventID string, scannedAt time.Time) (bool, error)
	GetScanEvent(ctx context.Context, idb bun.IDB, clientEventID string) (*models.ScanEvent, error)
	IncrementDailyCount(ctx context.Context, idb bun.IDB, slotID int64, day models.Day) (int64, error)
	GetDailyCount(ctx context.Context, idb bun.IDB, slotID int64, day models.Day) (int64, error)
}

// Publisher receives committed, non-duplicate scans.
type Publisher interface {
	PublishScanRecorded(ctx context.Context, msg models.ScanRecordedMessage) error
}

type Options struct {
	Location      *time.Location
	MaxRetries    uint64
	RetryInterval time.Duration
	BulkMaxItems  int
	Now           func() time.Time

	// ClockSkew is how far ahead of the server clock a device timestamp
	// may be. MaxOfflineAge bounds how old it may be; zero disables the
	// bound.
	ClockSkew     time.Duration
	MaxOfflineAge time.Duration
}

type ScanService struct {
	DB        ScanDBLayer
	Publisher Publisher
	Logger    *logger.Logger

	loc           *time.Location
	maxRetries    uint64
	retryInterval time.Duration
	bulkMaxItems  int
	now           func() time.Time
	clockSkew     time.Duration
	maxOfflineAge time.Duration
}

// ScanRequest is one scan of Token. A zero ScannedAt means the scan
// happens now; offline replays pass the device capture time.
type ScanRequest struct {
	Token         string
	ClientEventID string
	ScannedAt     time.Time
}

type ScanResult struct {
	SlotID        int64
	ClientEventID string
	Day           models.Day
	Total         int64
	Duplicate     bool
}

func NewScanService(store ScanDBLayer, pub Publisher, log *logger.Logger, opts Options) *ScanService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if opts.BulkMaxItems <= 0 {
		opts.BulkMaxItems = DefaultBulkMaxItems
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = DefaultClockSkew
	}
	return &ScanService{
		DB:            store,
		Publisher:     pub,
		Logger:        log,
		loc:           opts.Location,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
		bulkMaxItems:  opts.BulkMaxItems,
		now:           opts.Now,
		clockSkew:     opts.ClockSkew,
		maxOfflineAge: opts.MaxOfflineAge,
	}
}

// Today is the current calendar day in the service timezone.
func (s *ScanService) Today() models.Day {
	return models.DayOf(s.now(), s.loc)
}

// Location is the timezone days are counted in.
func (s *ScanService) Location() *time.Location {
	return s.loc
}

// scanTime picks the instant a scan is counted at: the device time when
// given and within bounds, the server clock otherwise.
func (s *ScanService) scanTime(at time.Time) (time.Time, error) {
	now := s.now()
	if at.IsZero() {
		return now, nil
	}
	if at.After(now.Add(s.clockSkew)) {
		return time.Time{}, fmt.Errorf("%w: %s is in the future", ErrInvalidScanTime, at.Format(time.RFC3339))
	}
	if s.maxOfflineAge > 0 && at.Before(now.Add(-s.maxOfflineAge)) {
		return time.Time{}, fmt.Errorf("%w: %s is older than %s", ErrInvalidScanTime, at.Format(time.RFC3339), s.maxOfflineAge)
	}
	return at, nil
}

// Scan records one scan of req.Token and returns the slot's count for the
// day. A repeated ClientEventID is reported as Duplicate against the slot
// and day of the event that first used it, and leaves every count untouched.
// Resolve, record and increment commit together or not at all; transient
// store failures retry the whole transaction.
func (s *ScanService) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	key := strings.TrimSpace(req.ClientEventID)
	if len(key) > MaxClientEventIDLength {
		return nil, ErrInvalidClientEventID
	}
	if key == "" {
		key = uuid.NewString()
	}

	// Fixed once so retries and midnight crossings agree on the day.
	scannedAt, err := s.scanTime(req.ScannedAt)
	if err != nil {
		return nil, err
	}
	day := models.DayOf(scannedAt, s.loc)

	var (
		result   *ScanResult
		slot     *models.QRSlot
		attempt  int
		reusedBy int64
	)
	op := func() error {
		attempt++
		reusedBy = 0
		res := &ScanResult{ClientEventID: key, Day: day}
		err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			sl, err := s.DB.ResolveActiveSlot(ctx, tx, req.Token)
			if err != nil {
				return err
			}
			res.SlotID = sl.ID

			recorded, err := s.DB.RecordScanEvent(ctx, tx, sl.ID, key, scannedAt)
			if err != nil {
				return err
			}
			if recorded {
				res.Total, err = s.DB.IncrementDailyCount(ctx, tx, sl.ID, day)
				if err != nil {
					return err
				}
				slot = sl
				return nil
			}

			ev, err := s.DB.GetScanEvent(ctx, tx, key)
			if err != nil {
				return fmt.Errorf("load event %s: %w", key, err)
			}
			if ev.QRSlotID != sl.ID {
				reusedBy = sl.ID
			}
			res.Duplicate = true
			res.SlotID = ev.QRSlotID
			res.Day = models.DayOf(ev.ScannedAt, s.loc)
			res.Total, err = s.DB.GetDailyCount(ctx, tx, ev.QRSlotID, res.Day)
			return err
		})
		if err == nil {
			result = res
			return nil
		}
		if errors.Is(err, ErrSlotNotFound) || ctx.Err() != nil || !db.IsTransient(err) {
			return backoff.Permanent(err)
		}
		s.Logger.Warn("SCAN", fmt.Sprintf("transient store error on attempt %d: %v", attempt, err))
		return err
	}

	if err := backoff.Retry(op, s.retryPolicy(ctx)); err != nil {
		switch {
		case errors.Is(err, ErrSlotNotFound):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case db.IsTransient(err):
			s.Logger.Error("SCAN", fmt.Sprintf("giving up after %d attempts: %v", attempt, err))
			return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		case db.IsConstraintViolation(err):
			s.Logger.Error("SCAN", fmt.Sprintf("unexpected constraint violation for key %s on token %q, needs investigation: %v", key, req.Token, err))
			return nil, fmt.Errorf("%w: %v", ErrScanRejected, err)
		}
		s.Logger.Error("SCAN", fmt.Sprintf("scan failed for key %s: %v", key, err))
		return nil, err
	}

	if result.Duplicate {
		if reusedBy != 0 {
			s.Logger.Warn("SCAN", fmt.Sprintf("key %s belongs to slot %d, reused by slot %d", key, result.SlotID, reusedBy))
		}
		s.Logger.LogScan("duplicate", result.SlotID, fmt.Sprintf("key=%s total=%d", key, result.Total))
		return result, nil
	}
	s.Logger.LogScan("recorded", result.SlotID, fmt.Sprintf("total=%d", result.Total))
	s.publish(ctx, slot, result, scannedAt)
	return result, nil
}

func (s *ScanService) retryPolicy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryInterval
	exp.MaxInterval = 20 * s.retryInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, s.maxRetries), ctx)
}

// publish runs after commit. A failure is logged and the scan stays recorded.
func (s *ScanService) publish(ctx context.Context, slot *models.QRSlot, res *ScanResult, scannedAt time.Time) {
	if s.Publisher == nil {
		return
	}
	msg := models.ScanRecordedMessage{
		QRSlotID:      slot.ID,
		BusID:         slot.BusID,
		RouteID:       slot.RouteID,
		TripType:      slot.TripType,
		ClientEventID: res.ClientEventID,
		Day:           res.Day,
		Total:         res.Total,
		ScannedAt:     scannedAt.UTC(),
	}
	if err := s.Publisher.PublishScanRecorded(ctx, msg); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("scan %s committed but not published: %v", res.ClientEventID, err))
	}
}
