package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/output"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/scanner"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/watcher"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

type watchFlags struct {
	ingestFlags
	existing bool
	settle   time.Duration
}

func newWatchCommand(flags *globalFlags) *cobra.Command {
	var f watchFlags

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Import statement files as they are dropped into a directory",
		Long: "Watch a directory and import each statement file that lands in it. " +
			"Imported files move to processed/, files that fail move to failed/.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, flags, f, args[0], output.New(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&f.userID, "user", "", "owner user ID (required)")
	cmd.Flags().StringVar(&f.accountID, "account", "", "bank account ID (required)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database path (defaults to SQLITE_PATH)")
	cmd.Flags().BoolVar(&f.existing, "existing", false, "import files already in the directory first")
	cmd.Flags().DurationVar(&f.settle, "settle", watcher.DefaultSettle, "quiet period before a file is imported")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

// runWatch imports files until ctx is cancelled.
func runWatch(ctx context.Context, flags *globalFlags, f watchFlags, dir string, out *output.Printer) error {
	ctx, cfg, log, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	if f.dbPath == "" {
		f.dbPath = cfg.SQLitePath
	}

	st, err := openSQLite(f.dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	w, err := watcher.New(dir, f.settle)
	if err != nil {
		return err
	}
	defer w.Close()

	locks := ingest.NewAccountLocks()
	handle := func(path string) {
		out.Info(path)
		dest := processedDir
		if err := ingestFile(ctx, cfg, st, locks, out, f.ingestFlags, path); err != nil {
			out.Error(err.Error())
			dest = failedDir
		}
		if _, err := watcher.Archive(path, dest); err != nil {
			out.Warning(err.Error())
		}
	}

	events := w.Start()

	if f.existing {
		existing, err := scanner.Expand([]string{dir})
		if err != nil {
			return err
		}
		for _, path := range existing {
			if !isDirectChild(dir, path) {
				continue
			}
			handle(path)
		}
	}

	out.Header(fmt.Sprintf("Watching %s", w.Dir()))
	log.Info().Str("dir", w.Dir()).Str("account", f.accountID).Msg("Watching inbox")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Error != nil {
				log.Warn().Err(ev.Error).Msg("Inbox watcher error")
				continue
			}
			handle(ev.Path)
		}
	}
}

func isDirectChild(dir, path string) bool {
	return filepath.Clean(filepath.Dir(path)) == filepath.Clean(dir)
}
