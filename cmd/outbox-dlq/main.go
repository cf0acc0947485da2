package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
)

func main() {
	cmd := flag.String("cmd", "list", "list | requeue")
	reason := flag.String("reason", "", "filter list by reason: max_attempts | non_retryable")
	limit := flag.Int("limit", 50, "rows to list")
	event := flag.String("event", "", "event id to requeue")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-dlq"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()
	dlq := outbox.NewDLQRepository(dbClient.DB())

	switch *cmd {
	case "list":
		filter, err := enums.ParseOutboxDLQErrorReason(*reason)
		exitOn(ctx, logg, "parse -reason", err)
		rows, err := dlq.List(ctx, filter, *limit)
		exitOn(ctx, logg, "list dead letters", err)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tTYPE\tAGGREGATE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
		for _, row := range rows {
			msg := ""
			if row.ErrorMessage != nil {
				msg = *row.ErrorMessage
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				row.EventID, row.EventType, row.AggregateID, row.ErrorReason, row.AttemptCount,
				row.FailedAt.UTC().Format("2006-01-02 15:04:05"), msg)
		}
		_ = w.Flush()
	case "requeue":
		eventID, err := uuid.Parse(*event)
		exitOn(ctx, logg, "parse -event", err)
		err = dlq.Requeue(ctx, eventID)
		if errors.Is(err, outbox.ErrNotDeadLettered) {
			fmt.Fprintf(os.Stderr, "event %s has no dead letter\n", eventID)
			os.Exit(1)
		}
		exitOn(ctx, logg, "requeue event", err)
		logg.Info(logg.WithField(ctx, "event_id", eventID.String()), "event requeued for delivery")
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
