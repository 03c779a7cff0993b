package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/cost"
	"github.com/markhazleton/MuseumSpark-sub000/internal/dataset"
	"github.com/markhazleton/MuseumSpark-sub000/internal/fetcher"
	"github.com/markhazleton/MuseumSpark-sub000/internal/geo"
	"github.com/markhazleton/MuseumSpark-sub000/internal/merge"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/pipeline"
	"github.com/markhazleton/MuseumSpark-sub000/internal/source"
	"github.com/markhazleton/MuseumSpark-sub000/internal/store"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/anthropic"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/geocode"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/notion"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/wikidata"
)

var enrichFlags struct {
	partition       string
	all             bool
	force           bool
	dryRun          bool
	continueOnError bool
	skipPhases      []string
	skipToggles     map[string]*bool
}

// skippablePhases are the phases with a dedicated --skip-<phase> toggle.
// Registry and score stay mandatory.
var skippablePhases = []string{"geocode", "region", "wikidata", "llm_judgment", "overrides"}

// mergeSkips folds the per-phase toggles into the --skip list, deduplicated.
func mergeSkips(list []string, toggles map[string]*bool) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, name := range list {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range skippablePhases {
		if on := toggles[name]; on != nil && *on && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the enrichment pipeline over the museum dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}
		if !enrichFlags.all && enrichFlags.partition == "" {
			return eris.New("either --partition or --all is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := buildPipeline(ctx, st)
		if err != nil {
			return err
		}

		summary, err := p.Run(ctx, model.RunFlags{
			Force:           enrichFlags.force,
			DryRun:          enrichFlags.dryRun,
			ContinueOnError: enrichFlags.continueOnError,
			SkipPhases:      mergeSkips(enrichFlags.skipPhases, enrichFlags.skipToggles),
			Partition:       enrichFlags.partition,
		})
		if summary != nil {
			zap.L().Info("enrichment summary",
				zap.String("run_id", summary.RunID),
				zap.Int("processed", summary.Processed),
				zap.Int("updated", summary.Updated),
				zap.Int("skipped_cached", summary.SkippedCached),
				zap.Int("skipped_unchanged", summary.SkippedUnchanged),
				zap.Int("errors", summary.Errors),
				zap.Int("rejections", summary.Rejections),
				zap.Bool("failed", summary.Failed))
		}
		// Per-museum failures are reported in the summary but do not fail
		// the command; only a halted pipeline does.
		return err
	},
}

// buildPipeline wires the configured evidence sources into the standard
// phase order. Integrations without credentials are left out of the run.
func buildPipeline(ctx context.Context, st store.Store) (*pipeline.Pipeline, error) {
	repo := dataset.NewRepository(cfg.Dataset.Dir)

	policy := trust.DefaultPolicy()
	if cfg.Trust.PlaceholderFile != "" {
		loaded, err := trust.LoadPolicy(cfg.Trust.PlaceholderFile)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}
	engine := merge.NewEngine(model.DefaultSchema(), policy)

	rates := cost.DefaultRates()
	if cfg.Geocode.GoogleKey != "" {
		rates.Geocode.PerQuery = googlePerQueryUSD
	}
	tracker := cost.NewTracker(rates, cfg.Anthropic.BudgetUSD)

	srcs := pipeline.Sources{
		Registry: buildRegistrySource(),
		Region:   buildRegionSource(ctx),
	}

	geoOpts := []geocode.Option{geocode.WithRateLimit(float64(cfg.Geocode.RateLimit))}
	if cfg.Geocode.GoogleKey != "" {
		geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	srcs.Geocode = source.NewGeocodeSource(geocode.NewClient(geoOpts...), tracker)

	srcs.Wikidata = source.NewWikidataSource(wikidata.NewClient(
		wikidata.WithUserAgent(cfg.Wikidata.UserAgent),
		wikidata.WithRateLimit(float64(cfg.Wikidata.RateLimit)),
	))

	if cfg.Anthropic.Key != "" {
		srcs.Judgment = source.NewJudgmentSource(
			anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, tracker)
	} else {
		zap.L().Warn("anthropic key not set, judgment phase disabled")
	}

	if cfg.Notion.Token != "" {
		srcs.Overrides = source.NewOverridesSource(
			notion.NewClient(cfg.Notion.Token), cfg.Notion.OverridesDB)
	} else {
		zap.L().Warn("notion token not set, overrides phase disabled")
	}

	return pipeline.New(repo, st, engine, pipeline.DefaultPhases(srcs),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithRunsDir(cfg.Dataset.RunsDir),
	), nil
}

// googlePerQueryUSD is the Google Geocoding list price per request.
const googlePerQueryUSD = 0.005

// buildRegistrySource reads the workbook from disk, or downloads it first
// when a drop URL is configured.
func buildRegistrySource() *source.RegistrySource {
	if cfg.Registry.WorkbookURL == "" {
		return source.NewRegistrySource(cfg.Registry.WorkbookPath)
	}

	var remote fetcher.Fetcher
	if strings.HasPrefix(cfg.Registry.WorkbookURL, "ftp://") {
		remote = fetcher.NewFTPFetcher(fetcher.FTPOptions{})
	} else {
		remote = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
	}
	return source.NewRemoteRegistrySource(cfg.Registry.WorkbookURL, cfg.Registry.WorkbookPath, remote)
}

func buildRegionSource(ctx context.Context) *source.RegionSource {
	shpPath := cfg.Region.ShapefilePath
	if shpPath == "" && cfg.Region.ShapefileURL != "" {
		fetched, err := geo.FetchShapefile(ctx, http.DefaultClient, cfg.Region.ShapefileURL, os.TempDir())
		if err != nil {
			zap.L().Warn("region shapefile download failed, using state table only",
				zap.String("url", cfg.Region.ShapefileURL), zap.Error(err))
			return source.NewRegionSource(nil)
		}
		shpPath = fetched
	}
	if shpPath == "" {
		return source.NewRegionSource(nil)
	}

	index, err := geo.LoadIndex(shpPath, cfg.Region.NameField)
	if err != nil {
		zap.L().Warn("region shapefile unavailable, using state table only",
			zap.String("path", shpPath), zap.Error(err))
		return source.NewRegionSource(nil)
	}
	return source.NewRegionSource(index)
}

func init() {
	enrichCmd.Flags().StringVar(&enrichFlags.partition, "partition", "", "single partition to enrich (e.g. mo)")
	enrichCmd.Flags().BoolVar(&enrichFlags.all, "all", false, "enrich every partition")
	enrichCmd.Flags().BoolVar(&enrichFlags.force, "force", false, "reprocess even when cached results are current")
	enrichCmd.Flags().BoolVar(&enrichFlags.dryRun, "dry-run", false, "compute merges and counters without persisting")
	enrichCmd.Flags().BoolVar(&enrichFlags.continueOnError, "continue-on-error", false, "keep going past required-phase failures")
	enrichCmd.Flags().StringSliceVar(&enrichFlags.skipPhases, "skip", nil, "phases to skip (repeatable)")
	enrichFlags.skipToggles = make(map[string]*bool, len(skippablePhases))
	for _, name := range skippablePhases {
		flag := "skip-" + strings.ReplaceAll(name, "_", "-")
		enrichFlags.skipToggles[name] = enrichCmd.Flags().Bool(flag, false, "skip the "+name+" phase")
	}
	rootCmd.AddCommand(enrichCmd)
}
