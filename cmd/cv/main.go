package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"chunkvault/internal/app"
	"chunkvault/internal/config"
	"chunkvault/internal/cv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("getting default paths: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a CVApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Backup", "Check").
func newApp(ctx context.Context, operation, parameters string) (*app.CVApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewCVApp(ctx, cfg, operation, parameters, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func parseSnapshotTime(s string) (int64, error) {
	t, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snapshot timestamp must be unix milliseconds: %w", err)
	}
	return t, nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:          "cv",
	Short:        "Encrypted, deduplicating backup tool",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get default paths: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, paths.BaseDir)
		if err := config.Init(paths.ConfigFile, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigFile)
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Println("Next: add [[filesystem.roots]], then run `cv key init` and `cv db migrate`.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get default paths: %w", err)
		}
		cfg, err := config.ReadFromFile(paths.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigFile)
		fmt.Printf("Host ID:   %s\n", cfg.HostID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		for _, b := range cfg.Backends {
			fmt.Printf("Backend:   %s (%s)\n", b.Name, b.Type)
		}
		for _, r := range cfg.Filesystem.Roots {
			kind := r.Kind
			if kind == "" {
				kind = "document"
			}
			fmt.Printf("Root:      %s (%s)\n", r.Path, kind)
		}
		fmt.Printf("Chunks:    up to %s, small files up to %s\n",
			humanize.IBytes(uint64(cfg.Backup.ChunkSizeMax)), humanize.IBytes(uint64(cfg.Backup.SmallFileMax)))
		return nil
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the encryption key",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the passphrase-protected main key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		passphrase, err := app.PromptPassphrase("New passphrase: ")()
		if err != nil {
			return err
		}
		if os.Getenv("CV_PASSPHRASE") == "" {
			again, err := app.PromptPassphrase("Repeat passphrase: ")()
			if err != nil {
				return err
			}
			if again != passphrase {
				return errors.New("passphrases do not match")
			}
		}
		if err := app.InitKey(cfg, passphrase); err != nil {
			return fmt.Errorf("creating key: %w", err)
		}
		fmt.Printf("Main key written to %s\n", cfg.Encryption.KeyPath)
		fmt.Println("Keep the passphrase safe: without it no backup can be read.")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local cache database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		schema, err := app.DatabaseSchema(cfg)
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Execute backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Backup", "")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Backup(cmd.Context())
		if errors.Is(err, cv.ErrCannotBackupNow) {
			fmt.Println("Backend not available, backup skipped.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		if res.Snapshot == nil {
			fmt.Println("Nothing was backed up.")
		} else {
			fmt.Printf("Snapshot %d: %d file(s) backed up, %d unchanged, %s\n",
				res.Snapshot.TimeStart, res.FilesBackedUp, res.FilesReused, humanize.IBytes(uint64(res.Snapshot.Size)))
			fmt.Printf("Uploaded %d chunk(s), %s\n", res.ChunksWritten, humanize.IBytes(uint64(res.BytesWritten)))
		}
		if res.FilesFailed > 0 {
			return fmt.Errorf("%d file(s) could not be backed up, see the log", res.FilesFailed)
		}
		return nil
	},
}

// progressPrinter reports check progress on one terminal line.
type progressPrinter struct{}

func (progressPrinter) OnCheckUpdate(bandwidth int64, thousandth int) {
	fmt.Fprintf(os.Stderr, "\rchecked %5.1f%% at %s/s   ", float64(thousandth)/10, humanize.IBytes(uint64(bandwidth)))
}

func (progressPrinter) OnCheckSuccess(size, bandwidth int64) {
	fmt.Fprintf(os.Stderr, "\rchecked %s at %s/s, no errors\n", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(bandwidth)))
}

func (progressPrinter) OnCheckFoundErrors(size, bandwidth int64) {
	fmt.Fprintf(os.Stderr, "\rchecked %s at %s/s, found errors\n", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(bandwidth)))
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a sample of the stored chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		percent, _ := cmd.Flags().GetInt("percent")

		a, err := newApp(cmd.Context(), "Check", strconv.Itoa(percent))
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Check(cmd.Context(), percent, progressPrinter{})
		if err != nil {
			return err
		}
		switch res.Status {
		case cv.CheckGeneralError:
			return fmt.Errorf("check could not run: %w", res.Err)
		case cv.CheckError:
			fmt.Printf("Snapshots: %d existing, %d readable, %d good, %d bad\n",
				res.ExistingSnapshots, res.ReadableSnapshots, len(res.GoodSnapshots), len(res.BadSnapshots))
			for _, id := range res.MissingChunkIDs {
				fmt.Printf("missing  %s\n", id)
			}
			for _, id := range res.BadChunkIDs {
				fmt.Printf("corrupt  %s\n", id)
			}
			for _, s := range res.BadSnapshots {
				fmt.Printf("damaged snapshot %d (%s)\n", s.Time, formatMillis(s.Time))
			}
			return errors.New("check found errors")
		}
		fmt.Printf("Checked %d chunk(s) in %d snapshot(s), all good.\n", res.CheckedChunks, res.ExistingSnapshots)
		return nil
	},
}

// snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListSnapshots", "")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, info := range infos {
			if info.Err != nil {
				fmt.Printf("%d  %s  unreadable: %v\n", info.Stored.Time, formatMillis(info.Stored.Time), info.Err)
				continue
			}
			s := info.Snapshot
			fmt.Printf("%d  %s  %6d files  %10s  %s\n",
				info.Stored.Time, formatMillis(info.Stored.Time),
				len(s.MediaFiles)+len(s.DocumentFiles), humanize.IBytes(uint64(s.Size)), s.Name)
		}
		return nil
	},
}

var snapshotsRmCmd = &cobra.Command{
	Use:   "rm TIMESTAMP",
	Short: "Remove a snapshot and the chunks only it references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseSnapshotTime(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), "RemoveSnapshot", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.RemoveSnapshot(cmd.Context(), start)
		if err != nil {
			return fmt.Errorf("removing snapshot: %w", err)
		}
		fmt.Printf("Removed snapshot %d and %d chunk(s), freed %s\n", start, res.ChunksRemoved, humanize.IBytes(uint64(res.BytesRemoved)))
		if res.ChunksFailed > 0 {
			fmt.Printf("%d chunk(s) could not be removed; a later prune retries them.\n", res.ChunksFailed)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore TIMESTAMP DEST",
	Short: "Restore a snapshot into a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseSnapshotTime(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), "Restore", args[0]+" "+args[1])
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Restore(cmd.Context(), start, args[1])
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored %d file(s), %s\n", len(res.Restored), humanize.IBytes(uint64(res.Size)))
		if res.FilesFailed > 0 {
			return fmt.Errorf("%d file(s) could not be restored, see the log", res.FilesFailed)
		}
		return nil
	},
}

// size command
var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the size of the backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Size", "")
		if err != nil {
			return err
		}
		defer a.Close()

		size, err := a.BackupSize()
		if err != nil {
			return err
		}
		fmt.Println(humanize.IBytes(uint64(size)))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "GetHistory", "")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keyCmd.AddCommand(keyInitCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbSchemaCmd)

	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsRmCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().IntP("percent", "p", 0, "Percentage of the backup to verify (default from config)")
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(sizeCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
