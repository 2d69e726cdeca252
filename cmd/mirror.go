package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"vsmirror/internal/app"
	"vsmirror/internal/config"
	"vsmirror/internal/database"
	"vsmirror/internal/extensions"
	"vsmirror/internal/fetcher"
	"vsmirror/internal/inventory"
	"vsmirror/internal/marketplace"
	"vsmirror/internal/metrics"
	"vsmirror/internal/models"
	"vsmirror/internal/platform"
	"vsmirror/internal/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type mirrorFlags struct {
	version        string
	configPath     string
	extensionsOnly bool
	appOnly        bool
	forPlatforms   bool
	prune          bool
	useLocal       bool
	compareLocal   bool
}

var mirrorOpts mirrorFlags

// metricsFilename receives the counters of the last run.
const metricsFilename = "mirror.prom"

var mirrorCmd = &cobra.Command{
	Use:   "mirror [ID...]",
	Short: "Mirrors Visual Studio Code and the wanted extensions",
	Long: `Downloads the Visual Studio Code archives, server and CLI of one version,
then the newest compatible release of every wanted extension, and records
everything in the "files" inventory of the destination directory.`,
	PreRun: bindMirrorFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMirror(cmd.Context(), args, mirrorOpts)
	},
}

func init() {
	addDestFlag(mirrorCmd.Flags())
	mirrorCmd.Flags().StringVarP(&mirrorOpts.version, "version", "e", "", "Visual Studio Code version: latest or X.Y.Z")
	mirrorCmd.Flags().BoolVarP(&mirrorOpts.extensionsOnly, "extensions-only", "E", false, "download only extensions")
	addExtensionFlags(mirrorCmd.Flags(), &mirrorOpts)
	mirrorCmd.Flags().BoolVar(&mirrorOpts.compareLocal, "compare-local", false, "compare the wanted extensions with the local Code and exit")
	addArtifactFlags(mirrorCmd.Flags(), &mirrorOpts)
	rootCmd.AddCommand(mirrorCmd)
}

func addDestFlag(flags *pflag.FlagSet) {
	flags.StringP("dest-dir", "d", "", "output directory (default code-<version>)")
}

func addExtensionFlags(flags *pflag.FlagSet, opts *mirrorFlags) {
	flags.StringVarP(&opts.configPath, "config", "c", "", "extension list (default <dest-dir>/files)")
	flags.BoolVarP(&opts.prune, "prune", "p", false, "prune old and unwanted extensions")
	flags.BoolVar(&opts.useLocal, "local", false, "add the extensions installed in the local Code")
	flags.StringSlice("platform", nil, "target platform of the extensions (repeatable)")
	flags.Bool("write-cache", false, "store marketplace answers in the cache directory")
}

func addArtifactFlags(flags *pflag.FlagSet, opts *mirrorFlags) {
	flags.StringSlice("artifact", nil, "application artifact to mirror (repeatable, default: "+strings.Join(app.DefaultArtifacts, ",")+")")
	flags.BoolVar(&opts.forPlatforms, "for-platforms", false, "mirror every application artifact of the target platforms")
}

// bindMirrorFlags binds the flags of the running command only, so that
// commands sharing a setting do not shadow each other.
func bindMirrorFlags(cmd *cobra.Command, args []string) {
	bindings := map[string]string{
		"dest-dir":    "mirror.dest_dir",
		"platform":    "mirror.platforms",
		"artifact":    "mirror.artifacts",
		"write-cache": "marketplace.write_cache",
	}
	for flag, key := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

func runMirror(ctx context.Context, ids []string, opts mirrorFlags) error {
	cfg := config.GetConfig()
	logger := newLogger(cfg)

	platforms, err := platform.Parse(cfg.Platforms)
	if err != nil {
		return err
	}

	var want wanted
	if !opts.appOnly {
		list := resolveExtensionList(opts.configPath, cfg.DestDir)
		want, err = loadWanted(ctx, list, ids, opts.useLocal)
		if err != nil {
			return err
		}
		logger.LogDebug("%d wanted extension(s)", len(want.all()))
	}

	if opts.compareLocal {
		return runCompare(ctx, want.all(), "")
	}

	version, destDir, err := resolveVersion(ctx, cfg, opts.version, cfg.DestDir, logger)
	if err != nil {
		return err
	}

	db, err := openCatalog(cfg, destDir)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()
	run := &mirrorRun{
		cfg:       cfg,
		opts:      opts,
		destDir:   destDir,
		platforms: platforms,
		fetcher:   newFetcher(cfg, logger, m),
		db:        db,
		logger:    logger,
		metrics:   m,
	}
	var failures int

	if !opts.extensionsOnly {
		n, err := run.mirrorApp(ctx, version)
		if err != nil {
			return err
		}
		failures += n
	}

	if !opts.appOnly {
		n, err := run.mirrorExtensions(ctx, version.Version, want)
		if err != nil {
			return err
		}
		failures += n
	}

	logger.LogInfo("inventory written to %s", run.manifest())
	run.report()
	if failures > 0 {
		return fmt.Errorf("%d item(s) could not be mirrored", failures)
	}
	return nil
}

// mirrorRun holds what the application and extension halves of a run share.
type mirrorRun struct {
	cfg       config.Config
	opts      mirrorFlags
	destDir   string
	platforms []platform.Platform
	fetcher   *fetcher.Fetcher
	db        *database.Database
	logger    *utils.Logger
	metrics   *metrics.Metrics
}

func (r *mirrorRun) manifest() string {
	return filepath.Join(r.destDir, manifestName)
}

func selectArtifacts(cfg config.Config, opts mirrorFlags, platforms []platform.Platform) ([]app.Artifact, []error) {
	switch {
	case len(cfg.Artifacts) > 0:
		return app.SelectArtifacts(cfg.Artifacts)
	case opts.forPlatforms:
		return app.ForPlatforms(platforms)
	default:
		return app.SelectArtifacts(app.DefaultArtifacts)
	}
}

func (r *mirrorRun) mirrorApp(ctx context.Context, version models.CodeVersion) (int, error) {
	artifacts, errs := selectArtifacts(r.cfg, r.opts, r.platforms)
	for _, err := range errs {
		r.logger.LogError("%v", err)
	}

	m := app.NewMirror(app.Options{
		Dir:      r.destDir,
		BaseURL:  r.cfg.UpdateURL,
		Channel:  version.Channel,
		Fetcher:  r.fetcher,
		Recorder: r.db,
		Logger:   r.logger,
	})
	report := m.Run(ctx, version, artifacts)

	if err := inventory.WriteCodeAssets(r.manifest(), report.Entries()); err != nil {
		return 0, fmt.Errorf("failed to write inventory: %w", err)
	}
	return len(report.Failed) + len(errs), nil
}

func newProvider(cfg config.Config, logger *utils.Logger, m *metrics.Metrics) (marketplace.Provider, error) {
	opts := marketplace.Options{
		URL:       cfg.MarketplaceURL,
		PageSize:  cfg.MarketplacePageSize,
		MaxPages:  cfg.MarketplaceMaxPages,
		BatchSize: cfg.MarketplaceBatch,
		Timeout:   cfg.HTTPTimeout,
		Logger:    logger,
		Metrics:   m,
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" && cfg.WriteCache {
		cacheDir = "."
	}
	if cacheDir != "" {
		opts.Cache = &marketplace.Cache{Dir: cacheDir, Write: cfg.WriteCache}
	}

	return marketplace.NewFactory(opts).CreateByType(marketplace.Type(cfg.MarketplaceType))
}

func (r *mirrorRun) mirrorExtensions(ctx context.Context, engine string, want wanted) (int, error) {
	provider, err := newProvider(r.cfg, r.logger, r.metrics)
	if err != nil {
		return 0, err
	}
	r.logger.LogDebug("marketplace: %s", provider.Name())

	m := extensions.New(extensions.Options{
		Dir:       r.destDir,
		Engine:    engine,
		Provider:  provider,
		Fetcher:   r.fetcher,
		Recorder:  r.db,
		Logger:    r.logger,
		Platforms: r.platforms,
	})

	report, err := m.Run(ctx, want.all())
	if err != nil {
		return 0, err
	}

	if r.opts.prune {
		removed, err := m.Prune()
		if err != nil {
			return 0, err
		}
		for _, name := range removed {
			r.logger.LogInfo("pruned %s", name)
		}
	}

	if err := inventory.WriteExtensionAssets(r.manifest(), want.sections, report.Assets); err != nil {
		return 0, fmt.Errorf("failed to write inventory: %w", err)
	}
	return len(report.Failed), nil
}

// report logs the download counters and leaves them next to the inventory
// in the Prometheus text format, for node_exporter's textfile collector.
func (r *mirrorRun) report() {
	counts := r.metrics.Downloads()
	r.logger.LogInfo("%d downloaded, %d up to date, %d failed",
		counts[metrics.StatusDownloaded], counts[metrics.StatusSkipped], counts[metrics.StatusFailed])

	path := filepath.Join(r.destDir, metricsFilename)
	if err := r.metrics.WriteTextfile(path); err != nil {
		r.logger.LogWarning("cannot write %s: %v", path, err)
	}
}
