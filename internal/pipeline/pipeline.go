// Package pipeline orchestrates the enrichment phases over the museum
// dataset. Phases are data, not control flow: a fixed ordered list, each
// backed by an evidence source, executed per museum with cache-driven skip
// decisions and per-run bookkeeping.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markhazleton/MuseumSpark-sub000/internal/cache"
	"github.com/markhazleton/MuseumSpark-sub000/internal/cost"
	"github.com/markhazleton/MuseumSpark-sub000/internal/dataset"
	"github.com/markhazleton/MuseumSpark-sub000/internal/merge"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/source"
	"github.com/markhazleton/MuseumSpark-sub000/internal/store"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

// PhaseScore is the built-in final phase; it has no evidence source.
const PhaseScore = "score"

// Phase is one step of the enrichment pipeline.
type Phase struct {
	Name string

	// Required phases halt the pipeline on failure unless the run was
	// invoked with continue-on-error. Budget exhaustion halts regardless.
	Required bool

	// Source provides the evidence; nil for the built-in score phase.
	Source source.Source

	// Delay, when set, serializes the phase and inserts a pause between
	// museum fetches on top of the client's own rate limiter.
	Delay time.Duration
}

// acknowledger is implemented by sources that need a post-merge callback,
// e.g. to mark curator override rows applied.
type acknowledger interface {
	Acknowledge(ctx context.Context, museumKey string) error
}

// Pipeline wires the phases to the dataset, the store and the merge engine.
type Pipeline struct {
	repo    *dataset.Repository
	store   store.Store
	cache   *cache.Manager
	engine  *merge.Engine
	scorer  Scorer
	phases  []Phase
	workers int
	runsDir string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds per-phase museum concurrency.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithScorer overrides the score phase implementation.
func WithScorer(s Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// WithRunsDir mirrors each run's summary and rejection log as JSON under
// dir/<run_id>/ for offline auditing.
func WithRunsDir(dir string) Option {
	return func(p *Pipeline) { p.runsDir = dir }
}

// New creates a pipeline over the given phases. Phase order is execution
// order.
func New(repo *dataset.Repository, st store.Store, engine *merge.Engine, phases []Phase, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:    repo,
		store:   st,
		cache:   cache.NewManager(st),
		engine:  engine,
		scorer:  DefaultScorer(),
		phases:  phases,
		workers: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runState is the mutable aggregate shared across workers within one run.
type runState struct {
	mu         sync.Mutex
	summary    model.RunSummary
	rejections []model.Rejection
	museums    map[string]*model.Museum // key -> record, mutated across phases
	partitions map[string][]string      // partition -> museum keys, load order
	dirty      map[string]bool
}

// Run executes the configured phases over the selected partitions and
// returns the run summary. The summary is also persisted unless the run is
// a dry run. A non-nil error means the pipeline halted early; per-museum
// failures surface only in the summary counters.
func (p *Pipeline) Run(ctx context.Context, flags model.RunFlags) (*model.RunSummary, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("run starting",
		zap.Bool("force", flags.Force),
		zap.Bool("dry_run", flags.DryRun),
		zap.String("partition", flags.Partition))

	rs := &runState{
		summary: model.RunSummary{
			RunID:     runID,
			Flags:     flags,
			StartedAt: time.Now().UTC(),
		},
		museums:    make(map[string]*model.Museum),
		partitions: make(map[string][]string),
		dirty:      make(map[string]bool),
	}
	if err := p.loadDataset(rs, flags.Partition); err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(flags.SkipPhases))
	for _, name := range flags.SkipPhases {
		skip[name] = true
	}

	var runErr error
	for _, phase := range p.phases {
		if skip[phase.Name] {
			log.Info("phase skipped by flag", zap.String("phase", phase.Name))
			continue
		}

		err := p.runPhase(ctx, rs, phase, flags)
		if err == nil {
			continue
		}

		rs.summary.Failed = true
		rs.summary.HaltedAtPhase = phase.Name
		if eris.Is(err, cost.ErrBudgetExceeded) {
			log.Error("run aborted, budget exhausted", zap.String("phase", phase.Name))
		} else {
			log.Error("pipeline halted at phase", zap.String("phase", phase.Name), zap.Error(err))
		}
		runErr = eris.Wrapf(err, "pipeline halted at phase %s", phase.Name)
		break
	}

	rs.summary.FinishedAt = time.Now().UTC()

	if !flags.DryRun {
		if err := p.persist(ctx, rs); err != nil {
			if runErr == nil {
				runErr = err
			}
			rs.summary.Failed = true
		}
	}

	log.Info("run finished",
		zap.Int("processed", rs.summary.Processed),
		zap.Int("updated", rs.summary.Updated),
		zap.Int("skipped_cached", rs.summary.SkippedCached),
		zap.Int("skipped_unchanged", rs.summary.SkippedUnchanged),
		zap.Int("errors", rs.summary.Errors),
		zap.Int("rejections", rs.summary.Rejections),
		zap.Duration("duration", rs.summary.Duration()))
	return &rs.summary, runErr
}

func (p *Pipeline) loadDataset(rs *runState, partition string) error {
	partitions := []string{partition}
	if partition == "" {
		var err error
		partitions, err = p.repo.Partitions()
		if err != nil {
			return err
		}
	}
	if len(partitions) == 0 {
		return eris.New("pipeline: no dataset partitions found")
	}

	for _, part := range partitions {
		museums, err := p.repo.Load(part)
		if err != nil {
			return err
		}
		for i := range museums {
			m := museums[i]
			m.Partition = part
			rs.museums[m.Key] = &m
			rs.partitions[part] = append(rs.partitions[part], m.Key)
		}
	}
	return nil
}

// runPhase executes one phase over every museum. The returned error is
// non-nil only when the whole pipeline must halt.
func (p *Pipeline) runPhase(ctx context.Context, rs *runState, phase Phase, flags model.RunFlags) error {
	if phase.Source == nil {
		return p.runScore(rs, phase)
	}

	log := zap.L().With(zap.String("run_id", rs.summary.RunID), zap.String("phase", phase.Name))
	log.Info("phase starting")

	workers := p.workers
	if phase.Delay > 0 {
		workers = 1
	}

	var halt struct {
		mu  sync.Mutex
		err error
	}
	setHalt := func(err error) {
		halt.mu.Lock()
		if halt.err == nil {
			halt.err = err
		}
		halt.mu.Unlock()
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, keys := range rs.partitions {
		for _, key := range keys {
			rs.mu.Lock()
			m := rs.museums[key].Clone()
			rs.mu.Unlock()

			g.Go(func() error {
				err := p.runMuseumPhase(gCtx, rs, phase, flags, m)
				if err != nil {
					// Budget exhaustion and context cancellation stop the
					// whole phase; adapter failures were already counted.
					setHalt(err)
					return err
				}
				if phase.Delay > 0 {
					select {
					case <-gCtx.Done():
					case <-time.After(phase.Delay):
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if halt.err != nil {
		return halt.err
	}
	return nil
}

// runMuseumPhase handles one (museum, phase) pair end to end: skip decision,
// fetch, merge, bookkeeping. A non-nil return halts the phase.
func (p *Pipeline) runMuseumPhase(ctx context.Context, rs *runState, phase Phase, flags model.RunFlags, m model.Museum) error {
	log := zap.L().With(
		zap.String("run_id", rs.summary.RunID),
		zap.String("phase", phase.Name),
		zap.String("museum", m.Key))

	sig, err := phase.Source.UpstreamSignature(ctx, m)
	if err != nil {
		log.Warn("upstream signature unavailable", zap.Error(err))
		sig = ""
	}

	decision, _, err := p.cache.ShouldProcess(ctx, m.Key, phase.Name, sig, flags.Force)
	if err != nil {
		return err
	}

	if decision != cache.DecisionProcess {
		p.recordSkip(ctx, rs, phase.Name, m.Key, decision, flags.DryRun)
		return nil
	}

	pr := model.PhaseRun{
		ID:        uuid.NewString(),
		RunID:     rs.summary.RunID,
		Phase:     phase.Name,
		MuseumKey: m.Key,
		Status:    model.PhaseStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if !flags.DryRun {
		if err := p.store.InsertPhaseRun(ctx, pr); err != nil {
			return err
		}
	}
	finish := func(status model.PhaseStatus, errMsg string) {
		if !flags.DryRun {
			if ferr := p.store.FinishPhaseRun(ctx, pr.ID, status, errMsg); ferr != nil {
				log.Warn("finish phase run", zap.Error(ferr))
			}
		}
	}

	rs.mu.Lock()
	rs.summary.Processed++
	rs.mu.Unlock()

	res, fetchErr := phase.Source.Fetch(ctx, m)
	budgetHit := fetchErr != nil && eris.Is(fetchErr, cost.ErrBudgetExceeded)

	if fetchErr != nil && !budgetHit {
		finish(model.PhaseStatusFailed, fetchErr.Error())
		rs.mu.Lock()
		rs.summary.Errors++
		rs.mu.Unlock()
		log.Warn("phase failed for museum", zap.Error(fetchErr))

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if phase.Required && !flags.ContinueOnError {
			return eris.Wrapf(fetchErr, "required phase failed for %s", m.Key)
		}
		return nil
	}

	// A budget-crossing call still returns its paid-for result; commit it
	// before halting the run.
	if res != nil && res.Outcome == source.OutcomeFound {
		p.commit(ctx, rs, phase, flags, m, res, log)
	}

	if budgetHit {
		finish(model.PhaseStatusFailed, cost.ErrBudgetExceeded.Error())
		rs.mu.Lock()
		rs.summary.Errors++
		rs.mu.Unlock()
		return fetchErr
	}

	if !flags.DryRun {
		payload := []byte(nil)
		resSig := sig
		if res != nil {
			payload = res.Payload
			if res.Signature != "" {
				resSig = res.Signature
			}
		}
		if err := p.cache.RecordSuccess(ctx, m.Key, phase.Name, payload, resSig); err != nil {
			log.Warn("record cache entry", zap.Error(err))
		}
	}
	finish(model.PhaseStatusSuccess, "")
	return nil
}

// commit merges the fetched candidates into the canonical record and files
// the rejections.
func (p *Pipeline) commit(ctx context.Context, rs *runState, phase Phase, flags model.RunFlags, m model.Museum, res *source.Result, log *zap.Logger) {
	candidates := res.Candidates
	if res.NameCorrection != "" {
		candidates = append(candidates, model.CandidateUpdate{
			Field:       "name",
			Value:       res.NameCorrection,
			Origin:      phase.Name,
			Trust:       trust.StructuredSite,
			Confidence:  5,
			RetrievedAt: time.Now().UTC(),
		})
	}
	if len(candidates) == 0 {
		return
	}

	next, rejections := p.engine.Merge(m, candidates)
	applied := len(candidates) - len(rejections)

	rs.mu.Lock()
	if applied > 0 {
		next.UpdatedAt = time.Now().UTC()
		*rs.museums[m.Key] = next
		rs.dirty[m.Partition] = true
		rs.summary.Updated++
	}
	rs.summary.Rejections += len(rejections)
	rs.rejections = append(rs.rejections, rejections...)
	rs.mu.Unlock()

	if len(rejections) > 0 && !flags.DryRun {
		if err := p.store.AppendRejections(ctx, rs.summary.RunID, rejections); err != nil {
			log.Warn("append rejections", zap.Error(err))
		}
	}

	if ack, ok := phase.Source.(acknowledger); ok && applied > 0 && !flags.DryRun {
		if err := ack.Acknowledge(ctx, m.Key); err != nil {
			log.Warn("acknowledge applied rows", zap.Error(err))
		}
	}
}

func (p *Pipeline) recordSkip(ctx context.Context, rs *runState, phaseName, museumKey string, decision cache.Decision, dryRun bool) {
	now := time.Now().UTC()
	status := decision.Status()

	rs.mu.Lock()
	switch status {
	case model.PhaseStatusSkippedCached:
		rs.summary.SkippedCached++
	case model.PhaseStatusSkippedUnchanged:
		rs.summary.SkippedUnchanged++
	}
	rs.mu.Unlock()

	if dryRun {
		return
	}
	pr := model.PhaseRun{
		ID:         uuid.NewString(),
		RunID:      rs.summary.RunID,
		Phase:      phaseName,
		MuseumKey:  museumKey,
		Status:     status,
		StartedAt:  now,
		FinishedAt: &now,
	}
	if err := p.store.InsertPhaseRun(ctx, pr); err != nil {
		zap.L().Warn("insert skip phase run", zap.Error(err))
	}
}

func (p *Pipeline) persist(ctx context.Context, rs *runState) error {
	for part, changed := range rs.dirty {
		if !changed {
			continue
		}
		museums := make([]model.Museum, 0, len(rs.partitions[part]))
		for _, key := range rs.partitions[part] {
			museums = append(museums, *rs.museums[key])
		}
		if err := p.repo.Save(part, museums); err != nil {
			return eris.Wrapf(err, "pipeline: save partition %s", part)
		}
	}
	if err := p.store.SaveSummary(ctx, rs.summary); err != nil {
		return eris.Wrap(err, "pipeline: save summary")
	}
	if p.runsDir != "" {
		if err := p.mirrorRun(rs); err != nil {
			zap.L().Warn("mirror run artifacts", zap.Error(err))
		}
	}
	return nil
}

// mirrorRun writes the summary and rejection log as JSON files alongside
// the store rows.
func (p *Pipeline) mirrorRun(rs *runState) error {
	dir := filepath.Join(p.runsDir, rs.summary.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create run dir")
	}

	write := func(name string, v any) error {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, name), b, 0o644)
	}
	if err := write("summary.json", rs.summary); err != nil {
		return eris.Wrap(err, "pipeline: write summary.json")
	}
	if len(rs.rejections) > 0 {
		if err := write("rejections.json", rs.rejections); err != nil {
			return eris.Wrap(err, "pipeline: write rejections.json")
		}
	}
	return nil
}
