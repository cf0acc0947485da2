package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <command> [flags]

commands:
  up        apply all pending migrations
  down      roll back the latest migration
  status    list migrations and whether they are applied
  version   print the current schema version
  to        migrate up or down to -version
  create    write a new migration named -name into -dir
  validate  check migration files without a database
`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", "", "migrations directory (default: embedded; create uses "+migrate.SourceDir+")")
	name := flag.String("name", "", "migration name for create")
	target := flag.String("version", "", "target version YYYYMMDDHHMMSS for to")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	switch *cmd {
	case "create":
		out := *dir
		if out == "" {
			out = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(out, *name)
		exitOn(ctx, logg, "create migration", err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.ValidateDir(*dir))
		fmt.Println("migrations ok")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	if cfg.FeatureFlags.UseSQLite {
		exitOn(ctx, logg, "check driver", fmt.Errorf("goose migrations target postgres; sqlite uses the dev schema"))
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, false, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "open sql handle", err)

	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	exitOn(ctx, logg, "load migrations", err)

	switch *cmd {
	case "up":
		steps, err := runner.Up(ctx)
		printSteps(steps)
		exitOn(ctx, logg, "migrate up", err)
	case "down":
		steps, err := runner.Down(ctx)
		printSteps(steps)
		exitOn(ctx, logg, "migrate down", err)
	case "to":
		version, err := strconv.ParseInt(*target, 10, 64)
		exitOn(ctx, logg, "parse -version", err)
		steps, err := runner.To(ctx, version)
		printSteps(steps)
		exitOn(ctx, logg, "migrate to version", err)
	case "version":
		version, err := runner.Version(ctx)
		exitOn(ctx, logg, "read version", err)
		fmt.Println(version)
	case "status":
		states, err := runner.Status(ctx)
		exitOn(ctx, logg, "read status", err)
		printStatus(states)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printSteps(steps []migrate.Step) {
	for _, s := range steps {
		fmt.Printf("%-4s %d %s (%s)\n", s.Direction, s.Version, s.Path, s.Duration.Round(1e6))
	}
}

func printStatus(states []migrate.State) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, applied, s.Path)
	}
	_ = w.Flush()
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
