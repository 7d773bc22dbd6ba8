package pipeline

import "fmt"

// State is a stage of the per-section state machine.
type State string

const (
	Segmented        State = "segmented"
	StylesReconciled State = "styles-reconciled"
	LayersExtracted  State = "layers-extracted"
	LeavesExtracted  State = "leaves-extracted"
	Optimized        State = "optimized"
	Resolved         State = "resolved"
	Done             State = "done"
	Failed           State = "failed"
)

// Kind classifies a diagnostic.
type Kind string

const (
	KindMatchNotFound         Kind = "match-not-found"
	KindSelectorSyntax        Kind = "selector-syntax"
	KindDuplicateApplication  Kind = "duplicate-application"
	KindOptimizerFailure      Kind = "optimizer-failure"
	KindSectionFailure        Kind = "section-failure"
	KindUnresolvedPlaceholder Kind = "unresolved-placeholder"
	KindIterationCap          Kind = "iteration-cap"
)

// Diagnostic is a stage-local problem converted to data. Only a
// KindSectionFailure diagnostic marks the section as failed.
type Diagnostic struct {
	Stage   State  `json:"stage"`
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("[%s] %s: %s", d.Stage, d.Kind, d.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", d.Stage, d.Kind, d.Subject, d.Message)
}

// Snapshot is the working state of one section after a stage. Data carries
// the stage's structured record (reconciliation report, extracted subtrees,
// optimizer outcomes or resolution result) and may be nil.
type Snapshot struct {
	Section   int    `json:"section"`
	SectionID string `json:"sectionId"`
	Stage     State  `json:"stage"`
	HTML      string `json:"-"`
	Data      any    `json:"data,omitempty"`
}

// Hooks observe a run. Callbacks are invoked from concurrent section
// pipelines and must be safe for concurrent use.
type Hooks struct {
	OnSnapshot func(Snapshot)
	OnResult   func(Result)
}

func (h *Hooks) snapshot(s Snapshot) {
	if h != nil && h.OnSnapshot != nil {
		h.OnSnapshot(s)
	}
}

func (h *Hooks) result(r Result) {
	if h != nil && h.OnResult != nil {
		h.OnResult(r)
	}
}
