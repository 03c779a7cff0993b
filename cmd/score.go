package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/dataset"
	"github.com/markhazleton/MuseumSpark-sub000/internal/merge"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/pipeline"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

var scoreFlags struct {
	partition string
	all       bool
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute the derived ranking fields",
	Long:  "Recomputes rank_score and scoring_version from the current scoring inputs without contacting any evidence source.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("score"); err != nil {
			return err
		}
		if !scoreFlags.all && scoreFlags.partition == "" {
			return eris.New("either --partition or --all is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		repo := dataset.NewRepository(cfg.Dataset.Dir)
		engine := merge.NewEngine(model.DefaultSchema(), trust.DefaultPolicy())
		p := pipeline.New(repo, st, engine,
			[]pipeline.Phase{{Name: pipeline.PhaseScore, Required: true}},
			pipeline.WithRunsDir(cfg.Dataset.RunsDir))

		summary, err := p.Run(ctx, model.RunFlags{Partition: scoreFlags.partition})
		if err != nil {
			return err
		}
		zap.L().Info("scoring complete",
			zap.String("run_id", summary.RunID),
			zap.Int("processed", summary.Processed),
			zap.Int("updated", summary.Updated))
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFlags.partition, "partition", "", "single partition to score (e.g. mo)")
	scoreCmd.Flags().BoolVar(&scoreFlags.all, "all", false, "score every partition")
	rootCmd.AddCommand(scoreCmd)
}
