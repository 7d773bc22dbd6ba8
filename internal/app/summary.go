package app

import (
	"encoding/json"
	"time"

	"github.com/hyperifyio/pagemigrate/internal/pipeline"
)

// sectionSummary is the per-section line of the migration summary.
type sectionSummary struct {
	Index       int                   `json:"index"`
	ID          string                `json:"id"`
	Succeeded   bool                  `json:"succeeded"`
	Degraded    bool                  `json:"degraded"`
	BytesBefore int                   `json:"bytes_before"`
	BytesAfter  int                   `json:"bytes_after"`
	Diagnostics map[pipeline.Kind]int `json:"diagnostics,omitempty"`
	ElapsedMS   int64                 `json:"elapsed_ms"`
}

type summaryTotals struct {
	Sections    int `json:"sections"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Degraded    int `json:"degraded"`
	BytesBefore int `json:"bytes_before"`
	BytesAfter  int `json:"bytes_after"`
}

// summaryMeta captures run details that aid reproducibility.
type summaryMeta struct {
	RunID        string    `json:"run_id"`
	Version      string    `json:"version"`
	Model        string    `json:"model"`
	LLMBaseURL   string    `json:"llm_base_url"`
	DryRun       bool      `json:"dry_run"`
	RewriteCache bool      `json:"rewrite_cache"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// migrationSummary is written as summary.json next to the artifacts and as
// a sidecar of the output document.
type migrationSummary struct {
	Meta     summaryMeta      `json:"meta"`
	Totals   summaryTotals    `json:"totals"`
	Sections []sectionSummary `json:"sections"`
}

func buildSummary(meta summaryMeta, asm pipeline.Assembly) migrationSummary {
	s := migrationSummary{Meta: meta, Sections: make([]sectionSummary, 0, len(asm.Results))}
	for _, r := range asm.Results {
		line := sectionSummary{
			Index:       r.Index,
			ID:          r.ID,
			Succeeded:   r.Succeeded,
			Degraded:    r.Degraded,
			BytesBefore: r.BytesBefore,
			BytesAfter:  r.BytesAfter,
			ElapsedMS:   r.Elapsed.Milliseconds(),
		}
		if len(r.Diagnostics) > 0 {
			line.Diagnostics = map[pipeline.Kind]int{}
			for _, d := range r.Diagnostics {
				line.Diagnostics[d.Kind]++
			}
		}
		s.Sections = append(s.Sections, line)
		s.Totals.BytesBefore += r.BytesBefore
		s.Totals.BytesAfter += r.BytesAfter
	}
	s.Totals.Sections = len(asm.Results)
	s.Totals.Succeeded = asm.Succeeded
	s.Totals.Failed = asm.Failed
	s.Totals.Degraded = asm.Degraded
	return s
}

func marshalSummaryJSON(s migrationSummary) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// deriveSummarySidecarPath returns the summary path next to the output document.
func deriveSummarySidecarPath(outputPath string) string {
	return outputPath + ".summary.json"
}
