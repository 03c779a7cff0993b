package model

import "time"

// PhaseStatus is the lifecycle state of one (museum, phase) execution.
type PhaseStatus string

const (
	PhaseStatusPending          PhaseStatus = "pending"
	PhaseStatusRunning          PhaseStatus = "running"
	PhaseStatusSkippedCached    PhaseStatus = "skipped_cached"
	PhaseStatusSkippedUnchanged PhaseStatus = "skipped_unchanged"
	PhaseStatusSuccess          PhaseStatus = "success"
	PhaseStatusFailed           PhaseStatus = "failed"
)

// Terminal reports whether the status is final. Terminal phase runs are
// never mutated; re-running a phase inserts a fresh row.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case PhaseStatusSkippedCached, PhaseStatusSkippedUnchanged, PhaseStatusSuccess, PhaseStatusFailed:
		return true
	}
	return false
}

// PhaseRun records one (museum, phase) execution within a run.
type PhaseRun struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Phase      string      `json:"phase"`
	MuseumKey  string      `json:"museum_key"`
	Status     PhaseStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// RunFlags captures the orchestrator flags a run was invoked with.
type RunFlags struct {
	Force           bool     `json:"force"`
	DryRun          bool     `json:"dry_run"`
	ContinueOnError bool     `json:"continue_on_error"`
	SkipPhases      []string `json:"skip_phases,omitempty"`
	Partition       string   `json:"partition,omitempty"`
}

// RunSummary is the immutable aggregate written once per orchestrator
// invocation.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Flags            RunFlags  `json:"flags"`
	Processed        int       `json:"processed"`
	Updated          int       `json:"updated"`
	SkippedCached    int       `json:"skipped_cached"`
	SkippedUnchanged int       `json:"skipped_unchanged"`
	Errors           int       `json:"errors"`
	Rejections       int       `json:"rejections"`
	Failed           bool      `json:"failed"`
	HaltedAtPhase    string    `json:"halted_at_phase,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// CacheEntry is the stored result of the last successful adapter call for a
// (museum, phase) pair, together with the upstream signature watermark used
// by the skip decision.
type CacheEntry struct {
	MuseumKey         string    `json:"museum_key"`
	Phase             string    `json:"phase"`
	Payload           []byte    `json:"payload,omitempty"`
	UpstreamSignature string    `json:"upstream_signature"`
	RetrievedAt       time.Time `json:"retrieved_at"`
}
