package dataset

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/domain"
)

const batmanDataset = `[{"query":"Can Batman fly?","response":"No, Batman cannot fly naturally."}]`

func TestLoader_SourceSelection(t *testing.T) {
	l := NewLoader(nil, LoaderConfig{})

	tests := []struct {
		name string
		req  domain.IngestRequest
	}{
		{"none", domain.IngestRequest{}},
		{"null inline only", domain.IngestRequest{DatasetJSON: json.RawMessage("null")}},
		{"path and url", domain.IngestRequest{DatasetPath: "a.json", DatasetURL: "http://x"}},
		{"path and inline", domain.IngestRequest{DatasetPath: "a.json", DatasetJSON: json.RawMessage("[]")}},
		{"all three", domain.IngestRequest{
			DatasetPath: "a.json", DatasetURL: "http://x", DatasetJSON: json.RawMessage("[]"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.Load(context.Background(), &tt.req)
			require.ErrorIs(t, err, domain.ErrSourceSelection)
		})
	}
}

func TestLoader_LocalFile(t *testing.T) {
	l := NewLoader(nil, LoaderConfig{})
	dir := t.TempDir()
	path := filepath.Join(dir, "batman.json")
	require.NoError(t, os.WriteFile(path, []byte(batmanDataset), 0o600))

	data, desc, err := l.Load(context.Background(), &domain.IngestRequest{DatasetPath: path})
	require.NoError(t, err)
	assert.JSONEq(t, batmanDataset, string(data))
	assert.Equal(t, domain.SourceLocalFile, desc.Kind)
	assert.Equal(t, path, desc.Location)
	assert.True(t, filepath.IsAbs(desc.AbsolutePath))
	assert.Equal(t, int64(len(batmanDataset)), desc.SizeBytes)

	_, _, err = l.Load(context.Background(), &domain.IngestRequest{DatasetPath: filepath.Join(dir, "missing.json")})
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
	assert.Equal(t, domain.ClassSource, domain.Classify(err))
}

func TestLoader_RemoteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(batmanDataset))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(batmanDataset))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("success records status code", func(t *testing.T) {
		l := NewLoader(srv.Client(), LoaderConfig{})
		data, desc, err := l.Load(context.Background(), &domain.IngestRequest{DatasetURL: srv.URL + "/ok"})
		require.NoError(t, err)
		assert.JSONEq(t, batmanDataset, string(data))
		assert.Equal(t, domain.SourceExternalURL, desc.Kind)
		assert.Equal(t, http.StatusOK, desc.StatusCode)
	})

	t.Run("non-2xx is a fetch error", func(t *testing.T) {
		l := NewLoader(srv.Client(), LoaderConfig{})
		_, _, err := l.Load(context.Background(), &domain.IngestRequest{DatasetURL: srv.URL + "/missing"})
		require.ErrorIs(t, err, domain.ErrSourceFetch)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("timeout is a fetch error", func(t *testing.T) {
		l := NewLoader(&http.Client{Timeout: 20 * time.Millisecond}, LoaderConfig{})
		_, _, err := l.Load(context.Background(), &domain.IngestRequest{DatasetURL: srv.URL + "/slow"})
		require.ErrorIs(t, err, domain.ErrSourceFetch)
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		l := NewLoader(srv.Client(), LoaderConfig{MaxBytes: 8})
		_, _, err := l.Load(context.Background(), &domain.IngestRequest{DatasetURL: srv.URL + "/ok"})
		require.ErrorIs(t, err, domain.ErrSourceFetch)
	})
}

func TestLoader_Inline(t *testing.T) {
	l := NewLoader(nil, LoaderConfig{})

	data, desc, err := l.Load(context.Background(), &domain.IngestRequest{DatasetJSON: json.RawMessage(batmanDataset)})
	require.NoError(t, err)
	assert.JSONEq(t, batmanDataset, string(data))
	assert.Equal(t, domain.SourceInlineJSON, desc.Kind)
	assert.Equal(t, "inline", desc.Location)

	_, _, err = l.Load(context.Background(), &domain.IngestRequest{DatasetJSON: json.RawMessage(`{"query":"q"}`)})
	require.ErrorIs(t, err, domain.ErrSourceShape)
}
