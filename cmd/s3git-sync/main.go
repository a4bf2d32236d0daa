package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyankiyoshi/s3git/internal/config"
	"github.com/nyankiyoshi/s3git/internal/git"
	"github.com/nyankiyoshi/s3git/internal/ignore"
	"github.com/nyankiyoshi/s3git/internal/remote"
	"github.com/nyankiyoshi/s3git/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	settingsFile string
	remoteFile   string
	logLevel     string
	logFormat    string

	// Sync flags
	force    bool
	wildcard bool
	dryRun   bool

	// logOutput is where log records are written
	logOutput io.Writer = os.Stdout

	// openStore builds the object store for a profile. Tests replace it.
	openStore = newStore
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "s3git-sync [ref]",
	Short: "Synchronize a git tree to an S3 bucket",
	Long: `s3git-sync uploads the files tracked at a branch, tag or commit to an S3
bucket, deleting the ones that were removed since the last sync.

The last synced tree is stored in the bucket itself, so every run only
transfers what changed. Without a ref the checked-out branch is synced.
The remote profile is the section of the remote configuration named after
the ref, or the "default" section.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "s3git-sync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", config.DefaultSettingsPath, "sync settings file")
	rootCmd.PersistentFlags().StringVar(&remoteFile, "config", "", "remote configuration file (default from settings, "+config.DefaultRemoteConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync flags
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "ignore the remote pointer and reupload every file")
	rootCmd.Flags().BoolVarP(&wildcard, "wildcard", "w", false, "read ignore rules as shell wildcards instead of regular expressions")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	var ref string
	if len(args) > 0 {
		ref = args[0]
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	repo, err := git.Open(cwd)
	if err != nil {
		return err
	}

	// default and configured paths live in the repository, explicit flags are relative to cwd
	path := settingsFile
	if path == config.DefaultSettingsPath {
		path = config.ResolvePath(repo.Root(), path)
	}
	settings, err := config.Load(path)
	if err != nil {
		return err
	}
	settings.ResolvePaths(repo.Root())

	profile, err := profileName(repo, ref)
	if err != nil {
		return err
	}

	remoteCfg, err := loadRemote(settings, profile, logger)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, remoteCfg)
	if err != nil {
		return err
	}
	bucket := remote.NewBucket(store, remote.BucketOptions{
		Prefix:            remoteCfg.UploadLocation,
		DeleteBatchSize:   settings.Delete.BatchSize,
		DeleteParallelism: settings.Delete.Parallelism,
		SniffSize:         settings.Upload.SniffSize,
	})
	pointer := remote.NewPointerStore(bucket)

	rules, err := ignore.Load(settings.IgnoreFile, ignoreMode(), logger)
	if err != nil {
		return err
	}

	resolver := sync.NewResolver(repo, pointer, logger)
	target, err := resolver.ResolveTarget(ctx, ref)
	if err != nil {
		return err
	}
	old, err := resolver.ResolveOld(ctx, force)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(repo, bucket, pointer, rules.Predicate(), logger, dryRun)
	if _, err := engine.Synchronize(ctx, old, target); err != nil {
		if errors.Is(err, sync.ErrRemoteUpToDate) {
			logger.Info("remote repository is up to date", "tree", target.String())
			return nil
		}
		return err
	}

	return nil
}

// profileName returns the remote profile for ref, defaulting to the checked-out branch
func profileName(repo *git.Repository, ref string) (string, error) {
	if ref != "" {
		return ref, nil
	}
	return repo.CurrentBranch()
}

func loadRemote(settings *config.Settings, profile string, logger *slog.Logger) (*config.Remote, error) {
	path := remoteFile
	if path == "" {
		path = settings.RemoteConfig
	}

	logger.Debug("loading remote configuration", "path", path, "profile", profile)

	r, err := config.LoadRemote(path, profile)
	if err != nil {
		return nil, err
	}

	logger.Info("using remote profile",
		"section", r.Section,
		"bucket", r.BucketName,
		"prefix", r.UploadLocation,
		"driver", string(r.Driver))

	return r, nil
}

// newStore builds the store client selected by the profile's driver
func newStore(ctx context.Context, r *config.Remote) (remote.Store, error) {
	switch r.Driver {
	case config.DriverMinio:
		client, err := remote.NewMinioClient(r.EndpointURL, r.AccessKeyID, r.SecretAccessKey, r.Region)
		if err != nil {
			return nil, err
		}
		return remote.NewMinioStore(client, r.BucketName), nil
	default:
		client, err := remote.NewS3Client(ctx, remote.S3Credentials{
			AccessKeyID:     r.AccessKeyID,
			SecretAccessKey: r.SecretAccessKey,
			Region:          r.Region,
			Endpoint:        r.EndpointURL,
			MaxRetries:      r.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return remote.NewS3Store(client, r.BucketName), nil
	}
}

func ignoreMode() ignore.CompileMode {
	if wildcard {
		return ignore.Wildcard
	}
	return ignore.Literal
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(logOutput, opts)
	} else {
		handler = slog.NewTextHandler(logOutput, opts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
