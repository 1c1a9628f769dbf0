package scans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-scanning/internal/models"
)

const DefaultBulkMaxItems = 100

// Per-item outcomes of a bulk sync.
const (
	BulkStatusSynced    = "synced"
	BulkStatusDuplicate = "already_synced"
	BulkStatusNotFound  = "not_found"
	BulkStatusError     = "error"
)

var (
	ErrEmptyBatch         = errors.New("scans must be a non-empty array")
	ErrBatchTooLarge      = errors.New("too many scans in one request")
	ErrMissingClientEvent = errors.New("token and client_event_id are required")
)

type BulkItemResult struct {
	Token         string `json:"token"`
	ClientEventID string `json:"client_event_id"`
	Status        string `json:"status"`
	SlotID        int64  `json:"slot_id,omitempty"`
	Total         int64  `json:"total,omitempty"`
	Error         string `json:"error,omitempty"`
}

type BulkSummary struct {
	Total      int `json:"total"`
	Synced     int `json:"synced"`
	Duplicates int `json:"duplicates"`
	NotFound   int `json:"not_found"`
	Errors     int `json:"errors"`
}

type BulkResult struct {
	Summary BulkSummary      `json:"summary"`
	Results []BulkItemResult `json:"results"`
}

// MaxBulkItems is the largest batch SyncBatch accepts.
func (s *ScanService) MaxBulkItems() int {
	return s.bulkMaxItems
}

// SyncBatch replays scans captured offline. Every item runs the full scan
// pipeline in its own transaction, so one failing item never rolls back the
// others. Only batch-shape problems are returned as errors.
func (s *ScanService) SyncBatch(ctx context.Context, items []models.OfflineScanMessage) (*BulkResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > s.bulkMaxItems {
		return nil, fmt.Errorf("%w: maximum %d", ErrBatchTooLarge, s.bulkMaxItems)
	}

	out := &BulkResult{
		Summary: BulkSummary{Total: len(items)},
		Results: make([]BulkItemResult, 0, len(items)),
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := s.syncItem(ctx, item)
		switch r.Status {
		case BulkStatusSynced:
			out.Summary.Synced++
		case BulkStatusDuplicate:
			out.Summary.Duplicates++
		case BulkStatusNotFound:
			out.Summary.NotFound++
		default:
			out.Summary.Errors++
		}
		out.Results = append(out.Results, r)
	}

	s.Logger.Info("SYNC", fmt.Sprintf("bulk sync: total=%d synced=%d duplicates=%d not_found=%d errors=%d",
		out.Summary.Total, out.Summary.Synced, out.Summary.Duplicates, out.Summary.NotFound, out.Summary.Errors))
	return out, nil
}

func (s *ScanService) syncItem(ctx context.Context, item models.OfflineScanMessage) BulkItemResult {
	r := BulkItemResult{Token: item.Token, ClientEventID: item.ClientEventID}

	res, err := s.SyncOne(ctx, item)
	switch {
	case err == nil && res.Duplicate:
		r.Status = BulkStatusDuplicate
	case err == nil:
		r.Status = BulkStatusSynced
	case errors.Is(err, ErrSlotNotFound):
		r.Status = BulkStatusNotFound
		r.Error = "QR no válido"
		return r
	default:
		r.Status = BulkStatusError
		r.Error = err.Error()
		return r
	}
	r.SlotID = res.SlotID
	r.Total = res.Total
	return r
}

// SyncOne records a single offline scan. Unlike live scans an offline scan
// must carry its own key, otherwise a replay would count it twice. The
// device capture time, when present, picks the day the scan counts on.
func (s *ScanService) SyncOne(ctx context.Context, item models.OfflineScanMessage) (*ScanResult, error) {
	if strings.TrimSpace(item.Token) == "" || strings.TrimSpace(item.ClientEventID) == "" {
		return nil, ErrMissingClientEvent
	}
	req := ScanRequest{Token: item.Token, ClientEventID: item.ClientEventID}
	if item.ScannedAt != nil {
		req.ScannedAt = *item.ScannedAt
	}
	return s.Scan(ctx, req)
}

// IsRejected reports scans that will fail the same way however often they
// are replayed.
func IsRejected(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrMissingClientEvent) ||
		errors.Is(err, ErrInvalidClientEventID) ||
		errors.Is(err, ErrInvalidScanTime) ||
		errors.Is(err, ErrScanRejected)
}

// HandleOfflineScan feeds one queued offline scan through the pipeline.
// Rejected scans are logged and acknowledged; any other error is returned
// so the caller retries the same scan.
func (s *ScanService) HandleOfflineScan(ctx context.Context, msg models.OfflineScanMessage) error {
	res, err := s.SyncOne(ctx, msg)
	switch {
	case err == nil:
		if res.Duplicate {
			s.Logger.LogScan("offline-duplicate", res.SlotID, "key="+msg.ClientEventID)
		}
		return nil
	case IsRejected(err):
		s.Logger.Warn("KAFKA", fmt.Sprintf("dropping offline scan %s: %v", msg.ClientEventID, err))
		return nil
	}
	return err
}
