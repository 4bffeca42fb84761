// Package processing renders the stored prompt template against every
// dataset record, producing the cases the execution stage sends to a model.
package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/stage"
	"github.com/ahrav/go-simjudge/internal/template"
	"github.com/ahrav/go-simjudge/pkg/activity"
)

// Stage is the case processor.
type Stage struct {
	stage.Base
	modelDefaults domain.ModelConfig
}

// Option configures the processing stage.
type Option func(*Stage)

// WithModelDefaults sets the model configuration a request override is
// checked against. It should match the execution stage's defaults.
func WithModelDefaults(mc domain.ModelConfig) Option {
	return func(s *Stage) {
		if mc.ModelName != "" {
			s.modelDefaults = mc
		}
	}
}

// New creates the processing stage.
func New(deps stage.Deps, opts ...Option) *Stage {
	s := &Stage{
		Base:          stage.NewBase(domain.StageProcessing, deps),
		modelDefaults: domain.DefaultModelConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessTemplates renders one case per dataset record. A record that lacks
// a declared variable aborts the whole batch and nothing is written.
func (s *Stage) ProcessTemplates(ctx context.Context, req domain.ProcessRequest) (*domain.Handoff, error) {
	started := time.Now()

	h, run, n, err := s.processTemplates(ctx, &req)
	if err != nil {
		return nil, s.Fail(ctx, started, req.EvaluationID, err)
	}
	return s.Complete(ctx, started, run, h, n), nil
}

func (s *Stage) processTemplates(
	ctx context.Context,
	req *domain.ProcessRequest,
) (*domain.Handoff, *domain.RunMetadata, int, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, 0, err
	}
	// Reject an override execution would refuse before the batch is written.
	if _, err := req.ModelConfig.Resolve(s.modelDefaults); err != nil {
		return nil, nil, 0, err
	}

	run, err := s.Store.GetRun(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := run.RequireAtLeast(domain.StatusDatasetLoaded); err != nil {
		return nil, nil, 0, err
	}

	ds, err := s.Store.GetDataset(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}
	tmpl, err := s.Store.GetTemplate(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}

	cases, err := RenderCases(req.EvaluationID, tmpl.Template, ds.Records)
	if err != nil {
		return nil, nil, 0, err
	}

	batch := &domain.ProcessedBatch{EvaluationID: req.EvaluationID, Cases: cases}
	if err := s.Store.PutProcessed(ctx, batch); err != nil {
		return nil, nil, 0, err
	}
	run, err = s.Store.Advance(ctx, req.EvaluationID, domain.StatusTemplatesProcessed, func(m *domain.RunMetadata) {
		m.ProcessedCases = len(cases)
	})
	if err != nil {
		return nil, nil, 0, err
	}

	activity.SafeLog(ctx, "Templates processed",
		"evaluation_id", req.EvaluationID,
		"cases", len(cases))

	return &domain.Handoff{
		EvaluationID: req.EvaluationID,
		NextStage:    domain.StageProcessing.Next(),
		ModelConfig:  req.ModelConfig,
	}, run, len(cases), nil
}

// RenderCases binds each record's fields to the template's declared
// variables. Cases keep the dataset order and are named "{id}_case_{index}".
func RenderCases(evaluationID string, tmpl domain.PromptTemplate, records []domain.Record) ([]domain.ProcessedCase, error) {
	cases := make([]domain.ProcessedCase, 0, len(records))
	for i, rec := range records {
		bindings := make(map[string]string, len(tmpl.Variables))
		for _, name := range tmpl.Variables {
			v, ok := rec.Field(name)
			if !ok {
				return nil, &domain.MissingVariableError{Variable: name, Index: i}
			}
			bindings[name] = v
		}

		prompt, err := template.Render(tmpl.Template, tmpl.Variables, bindings)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		cases = append(cases, domain.NewProcessedCase(CaseID(evaluationID, i), i, rec, prompt, bindings))
	}
	return cases, nil
}

// CaseID names the index-th case of a run.
func CaseID(evaluationID string, index int) string {
	return fmt.Sprintf("%s_case_%d", evaluationID, index)
}
