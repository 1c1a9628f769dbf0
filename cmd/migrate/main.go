// Command migrate applies or rolls back the scan service schema.
//
//	migrate -action up
//	migrate -action down -steps 1
//	migrate -action force -version 1
package main

import (
	"flag"
	"fmt"
	"os"

	"ms-scanning/internal/config"
	"ms-scanning/internal/database/migrations"
	"ms-scanning/internal/logger"
)

func main() {
	action := flag.String("action", "up", "up, down, version or force")
	steps := flag.Int("steps", 0, "number of migrations to roll back (down only, 0 = all)")
	version := flag.Int("version", -1, "version to force")
	flag.Parse()

	log := logger.NewStdoutLogger(os.Stdout, logger.INFO)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	runner := migrations.NewRunner(cfg.Database.DSN, migrations.MigrateOptions{Dir: cfg.Migrations.Dir}, log)
	defer runner.Close()

	switch *action {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down(*steps)
	case "version":
		var v uint
		var dirty bool
		v, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
	case "force":
		if *version < 0 {
			log.Fatal("MIGRATE", "-version is required with -action force")
		}
		err = runner.Force(*version)
	default:
		log.Fatal("MIGRATE", fmt.Sprintf("unknown action %q", *action))
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		runner.Close()
		os.Exit(1)
	}
	log.Info("MIGRATE", fmt.Sprintf("%s complete", *action))
}
