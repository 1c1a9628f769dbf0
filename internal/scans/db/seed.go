package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-scanning/internal/models"
)

// SeedPlan describes demo fleet data: every bus gets one slot per route,
// trip type and scheduled time.
type SeedPlan struct {
	Buses  []string
	Routes []models.Route
	Times  []string
}

func DefaultSeedPlan() SeedPlan {
	return SeedPlan{
		Buses: []string{"BUS-01", "BUS-02"},
		Routes: []models.Route{
			{Code: "R1", Name: "Centro - Universidad", IsActive: true},
		},
		Times: []string{"07:00:00", "13:00:00"},
	}
}

// Seed inserts the plan in one transaction, calling token for every slot.
func (d *DB) Seed(ctx context.Context, plan SeedPlan, token func() (string, error)) ([]models.QRSlot, error) {
	var slots []models.QRSlot
	err := d.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		routes := make([]models.Route, len(plan.Routes))
		copy(routes, plan.Routes)
		for i := range routes {
			if _, err := tx.NewInsert().Model(&routes[i]).Exec(ctx); err != nil {
				return fmt.Errorf("insert route %s: %w", routes[i].Code, err)
			}
		}

		for _, number := range plan.Buses {
			bus := models.Bus{BusNumber: number, IsActive: true}
			if _, err := tx.NewInsert().Model(&bus).Exec(ctx); err != nil {
				return fmt.Errorf("insert bus %s: %w", number, err)
			}
			for _, route := range routes {
				for _, trip := range []models.TripType{models.TripEntry, models.TripExit} {
					for _, at := range plan.Times {
						tok, err := token()
						if err != nil {
							return err
						}
						slot := models.QRSlot{
							BusID:         bus.ID,
							RouteID:       route.ID,
							TripType:      trip,
							ScheduledTime: models.ClockTime(at),
							Token:         tok,
							IsActive:      true,
						}
						if _, err := tx.NewInsert().Model(&slot).Exec(ctx); err != nil {
							return fmt.Errorf("insert slot for %s: %w", number, err)
						}
						slot.Bus = &bus
						slot.Route = &route
						slots = append(slots, slot)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}
