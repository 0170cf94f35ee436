package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	"ms-boost/internal/config"
	"ms-boost/internal/database/migrations"
	"ms-boost/internal/logger"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/pgdriver"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] up|down|version|to <version>")
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	dir := flag.String("dir", cfg.Migrations.Dir, "migrations directory (embedded migrations when empty)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Service: "boost-migrate"})
	defer log.Close()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
	defer sqldb.Close()
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}

	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{MigrationsDir: *dir}, log)
	defer runner.Close()

	var err error
	switch flag.Arg(0) {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		var v uint64
		v, err = strconv.ParseUint(flag.Arg(1), 10, 32)
		if err == nil {
			err = runner.MigrateTo(uint(v))
		}
	case "version":
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	version, dirty, err := runner.Version()
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("schema version %d (dirty=%t)", version, dirty))
}
