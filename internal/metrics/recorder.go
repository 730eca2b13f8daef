// Package metrics defines the observability hooks for update tasks, patch
// operations, and file watching. Components receive a Recorder through
// dependency injection; NoopRecorder is the default so nothing needs nil
// checks when metrics are not configured.
package metrics

import "time"

// OutcomeLabel enumerates task outcome categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for update tasks and settings
// operations. Implementations may forward to Prometheus etc. All methods must
// be safe on the zero value.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveUpdateDuration(d time.Duration)
	IncTaskOutcome(outcome OutcomeLabel)
	IncDownloadResult(success bool)
	IncPatchResult(success bool)
	IncBackup(purpose string)
	IncExternalChange()
	SetActiveTasks(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) ObserveUpdateDuration(time.Duration)       {}
func (NoopRecorder) IncTaskOutcome(OutcomeLabel)               {}
func (NoopRecorder) IncDownloadResult(bool)                    {}
func (NoopRecorder) IncPatchResult(bool)                       {}
func (NoopRecorder) IncBackup(string)                          {}
func (NoopRecorder) IncExternalChange()                        {}
func (NoopRecorder) SetActiveTasks(int)                        {}
