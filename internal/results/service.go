// Package results serves read-only views of runs in any lifecycle state.
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/runstate"
)

// RunListing is one row of the run listing.
type RunListing struct {
	EvaluationID           string           `json:"evaluation_id"`
	Status                 domain.RunStatus `json:"status"`
	TotalCases             int              `json:"total_cases"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	CompletedAt            *time.Time       `json:"completed_at,omitempty"`
	AverageSimilarityScore *float64         `json:"average_similarity_score,omitempty"`
	HighSimilarityRate     *float64         `json:"high_similarity_rate,omitempty"`
}

// RunView pairs a run's metadata with its comparison summary, which is nil
// until judging has completed.
type RunView struct {
	Run     *domain.RunMetadata       `json:"run"`
	Summary *domain.ComparisonSummary `json:"summary,omitempty"`
}

// CaseFilter narrows GetCases. The zero value selects every case.
type CaseFilter struct {
	Category domain.SimilarityCategory
}

// Service answers result queries from the run state store. It never writes.
type Service struct {
	store *runstate.Store
}

// NewService creates a query service over st.
func NewService(st *runstate.Store) *Service {
	return &Service{store: st}
}

// ListEvaluations returns every run, most recently created first.
func (s *Service) ListEvaluations(ctx context.Context) ([]RunListing, error) {
	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunListing, 0, len(runs))
	for _, m := range runs {
		l := RunListing{
			EvaluationID: m.EvaluationID,
			Status:       m.Status,
			TotalCases:   m.TotalCases,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
			CompletedAt:  m.CompletedAt,
		}
		if c := m.Comparison; c != nil {
			avg, rate := c.AverageSimilarityScore, c.HighSimilarityRate
			l.AverageSimilarityScore = &avg
			l.HighSimilarityRate = &rate
		}
		out = append(out, l)
	}
	return out, nil
}

// Describe returns a run's metadata and, once judged, its summary.
func (s *Service) Describe(ctx context.Context, id string) (*RunView, error) {
	m, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &RunView{Run: m}
	if m.RequireAtLeast(domain.StatusComparisonCompleted) == nil {
		view.Summary = m.Comparison
	}
	return view, nil
}

// GetSummary returns the comparison summary of a judged run. A run that is
// unknown or not judged yet is domain.ErrNotFound.
func (s *Service) GetSummary(ctx context.Context, id string) (*domain.ComparisonSummary, error) {
	batch, err := s.comparison(ctx, id)
	if err != nil {
		return nil, err
	}
	return batch.Summary(), nil
}

// GetCases returns the case verdicts of a judged run in case order.
func (s *Service) GetCases(ctx context.Context, id string, f CaseFilter) ([]domain.JudgementResult, error) {
	switch f.Category {
	case "", domain.CategoryHigh, domain.CategoryMedium, domain.CategoryLow, domain.CategoryError:
	default:
		return nil, fmt.Errorf("%w: unknown similarity category %q", domain.ErrInvalidRequest, f.Category)
	}
	batch, err := s.comparison(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Category == "" {
		return batch.Results, nil
	}
	out := make([]domain.JudgementResult, 0, len(batch.Results))
	for _, r := range batch.Results {
		if r.SimilarityCategory == f.Category {
			out = append(out, r)
		}
	}
	return out, nil
}

// comparison reads the comparison entry only when the metadata says it
// belongs to the current data; an entry left over from before a re-ingest
// is treated as absent.
func (s *Service) comparison(ctx context.Context, id string) (*domain.ComparisonBatch, error) {
	m, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.RequireAtLeast(domain.StatusComparisonCompleted) != nil {
		return nil, fmt.Errorf("%w: run %s has no verdicts yet (status %s)", domain.ErrNotFound, id, m.Status)
	}
	return s.store.GetComparison(ctx, id)
}
