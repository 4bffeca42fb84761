// Package runstate gives typed access to the run state namespaces.
//
// Each pipeline stage owns one namespace and is its only writer. Records are
// keyed by the bare evaluation id. Reads decode strictly and validate
// required fields, so a corrupt or legacy-shaped record fails with
// *domain.SchemaMismatchError instead of surfacing zero values downstream.
package runstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/store"
)

// Namespaces, one per stage output plus run metadata.
const (
	NamespaceDatasets   = "eval_datasets"
	NamespaceTemplates  = "eval_templates"
	NamespaceProcessed  = "eval_processed"
	NamespaceResults    = "eval_results"
	NamespaceComparison = "eval_comparison"
	NamespaceMetadata   = "eval_metadata"
)

// Store reads and writes typed run records over a store.KV.
type Store struct {
	kv     store.KV
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over kv.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("component", "runstate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) write(ctx context.Context, namespace, id string, v domain.Validatable) error {
	// Never persist a record that a later read would reject.
	if err := v.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid %s record for %s: %w", namespace, id, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s record for %s: %w", namespace, id, err)
	}
	if err := s.kv.Put(ctx, namespace, id, raw); err != nil {
		return fmt.Errorf("writing %s record for %s: %w", namespace, id, err)
	}
	return nil
}

// read decodes the record under (namespace, id) into a fresh T.
func read[T any, P interface {
	*T
	domain.Validatable
}](ctx context.Context, s *Store, namespace, id string) (*T, error) {
	raw, err := s.kv.Get(ctx, namespace, id)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: evaluation %s has no %s entry", domain.ErrNotFound, id, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s record for %s: %w", namespace, id, err)
	}

	v := new(T)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, &domain.SchemaMismatchError{Namespace: namespace, Key: id, Cause: err}
	}
	if err := P(v).Validate(); err != nil {
		return nil, &domain.SchemaMismatchError{Namespace: namespace, Key: id, Cause: err}
	}
	return v, nil
}

// PutDataset writes the dataset namespace entry.
func (s *Store) PutDataset(ctx context.Context, d *domain.Dataset) error {
	return s.write(ctx, NamespaceDatasets, d.EvaluationID, d)
}

// GetDataset reads the dataset namespace entry.
func (s *Store) GetDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	return read[domain.Dataset](ctx, s, NamespaceDatasets, id)
}

// PutTemplate writes the template namespace entry.
func (s *Store) PutTemplate(ctx context.Context, t *domain.TemplateEntry) error {
	return s.write(ctx, NamespaceTemplates, t.EvaluationID, t)
}

// GetTemplate reads the template namespace entry.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.TemplateEntry, error) {
	return read[domain.TemplateEntry](ctx, s, NamespaceTemplates, id)
}

// PutProcessed writes the processed-cases namespace entry.
func (s *Store) PutProcessed(ctx context.Context, b *domain.ProcessedBatch) error {
	return s.write(ctx, NamespaceProcessed, b.EvaluationID, b)
}

// GetProcessed reads the processed-cases namespace entry.
func (s *Store) GetProcessed(ctx context.Context, id string) (*domain.ProcessedBatch, error) {
	return read[domain.ProcessedBatch](ctx, s, NamespaceProcessed, id)
}

// PutExecution writes the execution-results namespace entry.
func (s *Store) PutExecution(ctx context.Context, b *domain.ExecutionBatch) error {
	return s.write(ctx, NamespaceResults, b.EvaluationID, b)
}

// GetExecution reads the execution-results namespace entry.
func (s *Store) GetExecution(ctx context.Context, id string) (*domain.ExecutionBatch, error) {
	return read[domain.ExecutionBatch](ctx, s, NamespaceResults, id)
}

// PutComparison writes the judgement-results namespace entry.
func (s *Store) PutComparison(ctx context.Context, b *domain.ComparisonBatch) error {
	return s.write(ctx, NamespaceComparison, b.EvaluationID, b)
}

// GetComparison reads the judgement-results namespace entry.
func (s *Store) GetComparison(ctx context.Context, id string) (*domain.ComparisonBatch, error) {
	return read[domain.ComparisonBatch](ctx, s, NamespaceComparison, id)
}

// GetRun reads the run metadata record.
func (s *Store) GetRun(ctx context.Context, id string) (*domain.RunMetadata, error) {
	return read[domain.RunMetadata](ctx, s, NamespaceMetadata, id)
}

// PutRun writes the run metadata record. Callers must have read the record
// they are replacing; use Advance for stage completions.
func (s *Store) PutRun(ctx context.Context, m *domain.RunMetadata) error {
	return s.write(ctx, NamespaceMetadata, m.EvaluationID, m)
}

// Advance performs the read-modify-write that completes a stage: it reads the
// run, applies mutate to stamp summary fields, moves the status to `to`
// through the transition rule, and writes the record back.
func (s *Store) Advance(
	ctx context.Context,
	id string,
	to domain.RunStatus,
	mutate func(m *domain.RunMetadata),
) (*domain.RunMetadata, error) {
	m, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Advance(to, s.now()); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(m)
	}
	if err := s.PutRun(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarkFailed records an unrecoverable stage error on the run. A run that
// does not exist yet is left alone.
func (s *Store) MarkFailed(ctx context.Context, id string, stage domain.Stage, reason string) error {
	m, err := s.GetRun(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.MarkFailed(stage, reason, s.now())
	return s.PutRun(ctx, m)
}

// ListRuns returns every run's metadata, most recently created first.
// Records that fail to decode are skipped and logged.
func (s *Store) ListRuns(ctx context.Context) ([]*domain.RunMetadata, error) {
	ids, err := s.kv.Keys(ctx, NamespaceMetadata)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]*domain.RunMetadata, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetRun(ctx, id)
		if err != nil {
			var schema *domain.SchemaMismatchError
			if errors.As(err, &schema) || errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "skipping unreadable run record", "evaluation_id", id, "error", err)
				continue
			}
			return nil, err
		}
		runs = append(runs, m)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].EvaluationID < runs[j].EvaluationID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}
