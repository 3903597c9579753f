package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/config"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		configPath     = flag.String("config", os.Getenv("CRMCAL_CONFIG"), "Path to YAML config")
		dsn            = flag.String("dsn", "", "PostgreSQL DSN (overrides config and CRMCAL_PG_DSN)")
		migrationsPath = flag.String("migrations", "", "Directory with SQL migrations (default: embedded schema)")
		seedsPath      = flag.String("seeds", "", "Directory with SQL seeds (default: embedded demo seeds)")
		timeout        = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		*dsn = cfg.Postgres.DSN
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn, postgres.dsn or CRMCAL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	migrations, seeds := migrate.Embedded()
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	if *seedsPath != "" {
		seeds = os.DirFS(*seedsPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := run(ctx, migrate.NewManager(db, migrations, seeds), flag.Arg(0)); err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, mgr *migrate.Manager, cmd string) error {
	switch cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "seed":
		return mgr.Seed(ctx)
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, item := range history {
			fmt.Println(item)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
