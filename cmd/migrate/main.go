// Command migrate applies the SQL migrations under db/schema.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/dbmigrate"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-config path] [-dir path] up | down [steps] | version\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	dir := flag.String("dir", "db/schema", "Migrations directory")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	if !cfg.Database.Enabled() {
		logger.Fatal("Database is not configured.")
	}
	dsn := cfg.Database.DSN()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := dbmigrate.Up(*dir, dsn); err != nil {
			logger.Fatalf("Migration up failed: %v", err)
		}
		logger.Info("Migrations applied.")
	case "down":
		steps := 1
		if flag.NArg() > 1 {
			steps, err = strconv.Atoi(flag.Arg(1))
			if err != nil || steps <= 0 {
				logger.Fatalf("Invalid step count %q", flag.Arg(1))
			}
		}
		if err := dbmigrate.Down(*dir, dsn, steps); err != nil {
			logger.Fatalf("Migration down failed: %v", err)
		}
		logger.Infof("Rolled back %d migration(s).", steps)
	case "version":
		v, dirty, err := dbmigrate.Version(*dir, dsn)
		if err != nil {
			logger.Fatalf("Failed to read version: %v", err)
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
	default:
		usage()
		os.Exit(2)
	}
}
