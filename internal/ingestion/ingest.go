// Package ingestion implements the first pipeline stage: it loads a dataset
// from a file, URL or inline payload, validates it against the declared
// format, checks the prompt template declaration, and starts the run.
package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ahrav/go-simjudge/internal/dataset"
	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/stage"
	"github.com/ahrav/go-simjudge/internal/template"
	"github.com/ahrav/go-simjudge/pkg/activity"
)

// Stage is the dataset ingestor.
type Stage struct {
	stage.Base
	loader    *dataset.Loader
	validator *dataset.Validator
}

// New creates the ingestion stage.
func New(deps stage.Deps, loader *dataset.Loader, validator *dataset.Validator) *Stage {
	return &Stage{
		Base:      stage.NewBase(domain.StageIngestion, deps),
		loader:    loader,
		validator: validator,
	}
}

// LoadDataset validates the request, loads and validates the dataset, and
// persists the dataset, the template and the run metadata in that order.
// Nothing is written unless every check passes.
func (s *Stage) LoadDataset(ctx context.Context, req domain.IngestRequest) (*domain.Handoff, error) {
	started := time.Now()

	h, n, run, err := s.loadDataset(ctx, &req)
	if err != nil {
		return nil, s.Fail(ctx, started, req.EvaluationID, err)
	}
	return s.Complete(ctx, started, run, h, n), nil
}

func (s *Stage) loadDataset(
	ctx context.Context,
	req *domain.IngestRequest,
) (*domain.Handoff, int, *domain.RunMetadata, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, nil, err
	}
	if err := template.ValidateDeclaration(req.PromptTemplate.Template, req.PromptTemplate.Variables); err != nil {
		return nil, 0, nil, err
	}

	format := req.Format
	if format == "" {
		format = domain.DefaultFormat
	}

	raw, source, err := s.loader.Load(ctx, req)
	if err != nil {
		return nil, 0, nil, err
	}
	records, err := s.validator.Parse(format, raw)
	if err != nil {
		return nil, 0, nil, err
	}
	activity.SafeLog(ctx, "Dataset loaded",
		"evaluation_id", req.EvaluationID,
		"source", source.Kind,
		"records", len(records),
		"size_bytes", source.SizeBytes)

	fp, err := fingerprint(format, req.PromptTemplate, records)
	if err != nil {
		return nil, 0, nil, err
	}

	run, replacing, err := s.admit(ctx, req, fp)
	if err != nil {
		return nil, 0, nil, err
	}
	// Demote a superseded run before its dataset and template change, so a
	// failure between the writes below cannot leave later stages or the
	// results API pairing new data with the old run's outputs.
	if replacing {
		if err := s.Store.PutRun(ctx, run); err != nil {
			return nil, 0, nil, err
		}
	}

	ds := &domain.Dataset{
		EvaluationID: req.EvaluationID,
		Format:       format,
		Source:       source,
		Records:      records,
	}
	if err := s.Store.PutDataset(ctx, ds); err != nil {
		return nil, 0, nil, err
	}
	tmpl := &domain.TemplateEntry{EvaluationID: req.EvaluationID, Template: *req.PromptTemplate}
	if err := s.Store.PutTemplate(ctx, tmpl); err != nil {
		return nil, 0, nil, err
	}

	now := s.Store.Now()
	if err := run.Advance(domain.StatusDatasetLoaded, now); err != nil {
		return nil, 0, nil, err
	}
	run.Fingerprint = fp
	run.Format = format
	run.Source = &source
	run.TemplateVariables = slices.Clone(req.PromptTemplate.Variables)
	run.TotalCases = len(records)
	if err := s.Store.PutRun(ctx, run); err != nil {
		return nil, 0, nil, err
	}

	return &domain.Handoff{
		EvaluationID: req.EvaluationID,
		NextStage:    domain.StageIngestion.Next(),
	}, len(records), run, nil
}

// admit decides whether the request may (re)start the run. A new id gets a
// fresh record; the same input is an idempotent re-ingest; different input
// is refused unless the request asks to replace the run, in which case the
// fresh record supersedes the stored one and replacing is true.
func (s *Stage) admit(ctx context.Context, req *domain.IngestRequest, fp string) (_ *domain.RunMetadata, replacing bool, _ error) {
	existing, err := s.Store.GetRun(ctx, req.EvaluationID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewRunMetadata(req.EvaluationID, s.Store.Now()), false, nil
	case err != nil:
		return nil, false, err
	case existing.Fingerprint == fp:
		return existing, false, nil
	case existing.Fingerprint == "":
		// A replace that failed part way left only the demoted record.
		return domain.NewRunMetadata(req.EvaluationID, s.Store.Now()), false, nil
	case req.Replace:
		activity.SafeLogWarn(ctx, "Replacing existing evaluation",
			"evaluation_id", req.EvaluationID,
			"previous_status", existing.Status)
		return domain.NewRunMetadata(req.EvaluationID, s.Store.Now()), true, nil
	default:
		return nil, false, fmt.Errorf("%w: %s (set replace to supersede it)", domain.ErrRunExists, req.EvaluationID)
	}
}

// fingerprint hashes everything that determines the run's content. Record
// values are decoded and re-encoded, which sorts object keys at every depth,
// so whitespace and key order in the source do not change the result.
func fingerprint(format domain.DatasetFormat, tmpl *domain.PromptTemplate, records []domain.Record) (string, error) {
	h := sha256.New()
	h.Write([]byte(format))
	h.Write([]byte{0})

	enc := json.NewEncoder(h)
	if err := enc.Encode(tmpl); err != nil {
		return "", fmt.Errorf("fingerprinting template: %w", err)
	}
	for i, rec := range records {
		canon, err := canonicalRecord(rec)
		if err != nil {
			return "", fmt.Errorf("fingerprinting dataset record %d: %w", i, err)
		}
		if err := enc.Encode(canon); err != nil {
			return "", fmt.Errorf("fingerprinting dataset: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalRecord decodes every field into plain values. Numbers keep their
// literal text so large integers are not rounded through float64.
func canonicalRecord(rec domain.Record) (map[string]any, error) {
	out := make(map[string]any, len(rec))
	for k, raw := range rec {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
