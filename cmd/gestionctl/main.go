package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/gestion/cmd/gestion/cli"
	"github.com/odyssey-erp/gestion/internal/app"
	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/platform/db"
	"github.com/odyssey-erp/gestion/internal/rbac"
)

const usage = `usage: gestionctl <command> [flags]

commands:
  explain --user ID [--module KEY] [--json]   show where a user's permissions come from
  trigger JOB                                 enqueue a background job (catalog-sync)
  queue                                       print default queue stats`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	switch os.Args[1] {
	case "explain":
		os.Exit(runExplain(ctx, cfg, os.Args[2:]))
	case "trigger", "queue":
		os.Exit(runJobs(ctx, cfg, os.Args[1], os.Args[2:]))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

func runExplain(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("explain", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id")
	module := fs.String("module", "", "restrict output to one module")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "explain: load catalog: %v\n", err)
		return 1
	}
	pool, err := db.New(ctx, cfg.Postgres())
	if err != nil {
		fmt.Fprintf(os.Stderr, "explain: %v\n", err)
		return 1
	}
	defer pool.Close()

	permissions, err := cli.NewPermissionsCLI(rbac.NewResolver(rbac.NewRepository(pool), cat, nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "explain: %v\n", err)
		return 1
	}
	return permissions.ExplainCommand(ctx, cli.ExplainOptions{UserID: *userID, Module: *module, JSONOutput: *jsonOut})
}

func runJobs(ctx context.Context, cfg *app.Config, command string, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	if command == "queue" {
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "queue: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	}
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "trigger: exactly one job name required")
		return 1
	}
	info, err := jobsCLI.Trigger(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "trigger: %v\n", err)
		return 1
	}
	fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return 0
}
