// Command seed loads demo buses, routes and QR slots and can write the
// slot QR codes as PNG files.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"ms-scanning/internal/config"
	"ms-scanning/internal/database/migrations"
	"ms-scanning/internal/logger"
	"ms-scanning/internal/scans/db"
	"ms-scanning/internal/scans/qr"
	"ms-scanning/internal/utils"
)

func main() {
	qrDir := flag.String("qr-dir", "", "write one PNG per slot into this directory")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	verbose := flag.Bool("verbose", false, "print every SQL query")
	flag.Parse()

	ctx := context.Background()
	log := logger.NewStdoutLogger(os.Stdout, logger.INFO)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	if *migrate {
		runner := migrations.NewRunner(cfg.Database.DSN, migrations.MigrateOptions{Dir: cfg.Migrations.Dir}, log)
		err := runner.Up()
		runner.Close()
		if err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	if *verbose || cfg.Database.Debug {
		bunDB.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	store := &db.DB{Bun: bunDB}

	slots, err := store.Seed(ctx, db.DefaultSeedPlan(), func() (string, error) {
		return utils.GenerateSlotToken(10)
	})
	if err != nil {
		log.Fatal("SEED", err.Error())
	}

	gen := qr.NewGenerator(cfg.Server.PublicBaseURL)
	for _, s := range slots {
		line := fmt.Sprintf("slot=%d bus=%s route=%s %s %s -> %s",
			s.ID, s.Bus.BusNumber, s.Route.Code, s.TripType, s.ScheduledTime, gen.ScanURL(s.Token))
		if *qrDir != "" {
			name := strings.ToLower(fmt.Sprintf("%s-%s-%s-%s", s.Bus.BusNumber, s.Route.Code, s.TripType, strings.ReplaceAll(s.ScheduledTime.String(), ":", "")))
			path, err := gen.WriteFile(*qrDir, name, s.Token)
			if err != nil {
				log.Fatal("QR", err.Error())
			}
			line += " (" + path + ")"
		}
		log.Info("SEED", line)
	}
	log.Info("SEED", fmt.Sprintf("✅ Seeded %d slots", len(slots)))
}
