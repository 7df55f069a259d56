package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/config"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/output"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/scanner"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/storage"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

type ingestFlags struct {
	userID    string
	accountID string
	dbPath    string
}

func newIngestCommand(flags *globalFlags) *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Import statement files into a local SQLite database",
		Long:  "Import statement files into a local SQLite database. Directories are scanned for .csv and .xlsx files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), flags, f, args, output.New(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&f.userID, "user", "", "owner user ID (required)")
	cmd.Flags().StringVar(&f.accountID, "account", "", "bank account ID (required)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database path (defaults to SQLITE_PATH)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runIngest(ctx context.Context, flags *globalFlags, f ingestFlags, args []string, out *output.Printer) error {
	ctx, cfg, _, err := setup(ctx, flags)
	if err != nil {
		return err
	}

	files, err := scanner.Expand(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no statement files found")
	}
	if f.dbPath == "" {
		f.dbPath = cfg.SQLitePath
	}

	st, err := openSQLite(f.dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	locks := ingest.NewAccountLocks()
	out.Header("Statement import")

	failed := 0
	for i, file := range files {
		out.Step(i+1, len(files), file)
		if err := ingestFile(ctx, cfg, st, locks, out, f, file); err != nil {
			failed++
			out.Error(err.Error())
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// ingestFile imports one local file. Each file is served from its own directory.
func ingestFile(ctx context.Context, cfg config.Config, st store.Store, locks *ingest.AccountLocks, out *output.Printer, f ingestFlags, file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	dir, name := filepath.Split(abs)
	svc, err := newService(cfg, st, storage.NewLocalStore(dir, int64(cfg.MaxUploadBytes)), ingest.Options{
		Locks: locks,
		Sink:  ingest.EventSinkFunc(out.Event),
	})
	if err != nil {
		return err
	}

	summary, err := svc.Ingest(ctx, ingest.Request{
		UserID:      f.userID,
		AccountID:   f.accountID,
		StoragePath: name,
	})
	if err != nil {
		return err
	}
	out.Summary(summary)
	return nil
}
