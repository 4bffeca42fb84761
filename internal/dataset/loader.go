// Package dataset acquires raw dataset bytes from one of three mutually
// exclusive sources and validates them against a dataset format.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// Loader defaults.
const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxBytes     = 64 << 20
)

// LoaderConfig bounds remote fetches.
type LoaderConfig struct {
	FetchTimeout time.Duration
	MaxBytes     int64
}

// Loader reads raw dataset bytes and records their provenance.
type Loader struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewLoader creates a Loader. A nil client gets one with cfg.FetchTimeout.
func NewLoader(client *http.Client, cfg LoaderConfig) *Loader {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Loader{
		client:   client,
		maxBytes: cfg.MaxBytes,
		logger:   slog.Default().With("component", "dataset_loader"),
	}
}

// Load selects the single source named by req and returns its bytes.
// Supplying zero or several sources is domain.ErrSourceSelection.
func (l *Loader) Load(ctx context.Context, req *domain.IngestRequest) ([]byte, domain.SourceDescriptor, error) {
	selected := 0
	for _, set := range []bool{req.DatasetPath != "", req.DatasetURL != "", req.HasInlineDataset()} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		return nil, domain.SourceDescriptor{}, domain.ErrSourceSelection
	}

	switch {
	case req.DatasetPath != "":
		return l.loadFile(req.DatasetPath)
	case req.DatasetURL != "":
		return l.fetch(ctx, req.DatasetURL)
	default:
		return l.inline(req.DatasetJSON)
	}
}

func (l *Loader) loadFile(path string) ([]byte, domain.SourceDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
		}
		return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: reading %s: %w", domain.ErrSourceNotFound, path, err)
	}

	l.logger.Debug("loaded dataset file", "path", abs, "size_bytes", len(data))
	return data, domain.SourceDescriptor{
		Kind:         domain.SourceLocalFile,
		Location:     path,
		AbsolutePath: abs,
		SizeBytes:    int64(len(data)),
	}, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, domain.SourceDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: %s: %w", domain.ErrSourceFetch, url, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: %s: %w", domain.ErrSourceFetch, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: %s returned HTTP %d",
			domain.ErrSourceFetch, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: reading %s: %w", domain.ErrSourceFetch, url, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("%w: %s exceeds %d bytes",
			domain.ErrSourceFetch, url, l.maxBytes)
	}

	l.logger.Debug("fetched dataset",
		"url", url,
		"status_code", resp.StatusCode,
		"size_bytes", len(data),
		"latency_ms", time.Since(start).Milliseconds())
	return data, domain.SourceDescriptor{
		Kind:       domain.SourceExternalURL,
		Location:   url,
		StatusCode: resp.StatusCode,
		SizeBytes:  int64(len(data)),
	}, nil
}

func (l *Loader) inline(raw json.RawMessage) ([]byte, domain.SourceDescriptor, error) {
	trimmed := bytes.TrimSpace(raw)
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, domain.SourceDescriptor{}, domain.ErrSourceShape
	}
	return trimmed, domain.SourceDescriptor{
		Kind:      domain.SourceInlineJSON,
		Location:  "inline",
		SizeBytes: int64(len(trimmed)),
	}, nil
}
