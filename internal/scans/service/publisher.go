package scans

import (
	"context"
	"errors"

	"ms-scanning/internal/models"
)

// Publishers sends each message to every publisher, joining their errors.
type Publishers []Publisher

func (ps Publishers) PublishScanRecorded(ctx context.Context, msg models.ScanRecordedMessage) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishScanRecorded(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
