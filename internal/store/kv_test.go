package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runKVConformance exercises the KV contract against any backend.
func runKVConformance(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := kv.Get(ctx, "eval_metadata", "absent")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "eval_datasets", "run-1", []byte(`{"v":1}`)))
		got, err := kv.Get(ctx, "eval_datasets", "run-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got))
	})

	t.Run("put overwrites wholesale", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "eval_results", "run-1", []byte(`{"results":[1,2,3]}`)))
		require.NoError(t, kv.Put(ctx, "eval_results", "run-1", []byte(`{"results":[4]}`)))
		got, err := kv.Get(ctx, "eval_results", "run-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"results":[4]}`, string(got))
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "eval_templates", "shared", []byte(`"a"`)))
		_, err := kv.Get(ctx, "eval_processed", "shared")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("keys are sorted and scoped", func(t *testing.T) {
		for _, k := range []string{"run-b", "run-a", "run-c"} {
			require.NoError(t, kv.Put(ctx, "eval_comparison", k, []byte(`{}`)))
		}
		keys, err := kv.Keys(ctx, "eval_comparison")
		require.NoError(t, err)
		assert.Equal(t, []string{"run-a", "run-b", "run-c"}, keys)

		empty, err := kv.Keys(ctx, "never_written")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "eval_legacy", "gone", []byte(`1`)))
		require.NoError(t, kv.Delete(ctx, "eval_legacy", "gone"))
		require.NoError(t, kv.Delete(ctx, "eval_legacy", "gone"))

		_, err := kv.Get(ctx, "eval_legacy", "gone")
		require.ErrorIs(t, err, ErrKeyNotFound)
		keys, err := kv.Keys(ctx, "eval_legacy")
		require.NoError(t, err)
		assert.NotContains(t, keys, "gone")
	})

	t.Run("concurrent writers to distinct keys", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, kv.Put(ctx, "eval_parallel", fmt.Sprintf("run-%02d", i), []byte(`{}`)))
			}(i)
		}
		wg.Wait()

		keys, err := kv.Keys(ctx, "eval_parallel")
		require.NoError(t, err)
		assert.Len(t, keys, 20)
	})
}

func TestMemoryKV(t *testing.T) {
	runKVConformance(t, NewMemoryKV())
}

func TestMemoryKV_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	value := []byte(`{"a":1}`)
	require.NoError(t, kv.Put(ctx, "ns", "k", value))
	value[2] = 'X'

	got, err := kv.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestSQLiteKV(t *testing.T) {
	kv, err := OpenSQLiteKV(context.Background(), filepath.Join(t.TempDir(), "state", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	runKVConformance(t, kv)
}

func TestSQLiteKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	kv, err := OpenSQLiteKV(ctx, path)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "eval_metadata", "run-1", []byte(`{"status":"created"}`)))
	require.NoError(t, kv.Close())

	reopened, err := OpenSQLiteKV(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "eval_metadata", "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"created"}`, string(got))
}
