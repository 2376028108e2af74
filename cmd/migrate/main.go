// Package main applies the PostgreSQL snapshot schema with golang-migrate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"

	"github.com/sharronesofer/visual-dm-sub028/internal/config"
	"github.com/sharronesofer/visual-dm-sub028/migrations"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "up, down, version, or force")
	steps := flag.Int("steps", 0, "number of steps for up/down (0 = all)")
	forceVersion := flag.Int("force-version", -1, "version recorded by -direction force")
	flag.Parse()

	if err := run(*configPath, *direction, *steps, *forceVersion); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func run(configPath, direction string, steps, forceVersion int) error {
	start := time.Now()

	v := config.Defaults()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return err
	}

	m, err := migrations.NewMigrator(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		if forceVersion < 0 {
			return errors.New("-force-version is required with -direction force")
		}
		err = m.Force(forceVersion)
	case "version":
	default:
		return fmt.Errorf("invalid direction %q", direction)
	}
	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		return fmt.Errorf("%s failed: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("reading version: %w", verr)
	}
	state := "migrated " + direction
	if noChange || direction == "version" {
		state = "no changes"
	}
	fmt.Fprintf(os.Stdout, "%s: version=%d dirty=%v [%s]\n", state, version, dirty, time.Since(start))
	return nil
}
