package runstate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/go-simjudge/internal/store"
)

// legacySuffixes maps each namespace to the suffix of its legacy key scheme,
// "eval_run_{id}_{suffix}".
var legacySuffixes = map[string]string{
	NamespaceDatasets:   "dataset",
	NamespaceTemplates:  "template",
	NamespaceProcessed:  "processed",
	NamespaceResults:    "results",
	NamespaceComparison: "comparison",
	NamespaceMetadata:   "metadata",
}

const legacyPrefix = "eval_run_"

// LegacyKey returns the legacy key of id in namespace.
func LegacyKey(namespace, id string) string {
	return legacyPrefix + id + "_" + legacySuffixes[namespace]
}

// parseLegacyKey extracts the evaluation id from a legacy key of namespace.
func parseLegacyKey(namespace, key string) (string, bool) {
	suffix := "_" + legacySuffixes[namespace]
	if !strings.HasPrefix(key, legacyPrefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, legacyPrefix), suffix)
	return id, id != ""
}

// MigrationReport summarizes a legacy key migration.
type MigrationReport struct {
	Moved   []string `json:"moved"`
	Skipped []string `json:"skipped"`
	DryRun  bool     `json:"dry_run"`
}

// MigrateLegacyKeys moves records stored under the legacy key scheme to the
// canonical bare-id key. A legacy record whose canonical key already exists
// is skipped and left in place for inspection. Values are copied verbatim;
// records whose shape predates the current types will be reported as schema
// mismatches when read.
func MigrateLegacyKeys(ctx context.Context, kv store.KV, dryRun bool) (*MigrationReport, error) {
	report := &MigrationReport{DryRun: dryRun}

	for _, namespace := range []string{
		NamespaceDatasets, NamespaceTemplates, NamespaceProcessed,
		NamespaceResults, NamespaceComparison, NamespaceMetadata,
	} {
		keys, err := kv.Keys(ctx, namespace)
		if err != nil {
			return report, fmt.Errorf("listing %s: %w", namespace, err)
		}

		for _, key := range keys {
			id, ok := parseLegacyKey(namespace, key)
			if !ok {
				continue
			}
			label := namespace + "/" + key

			if _, err := kv.Get(ctx, namespace, id); err == nil {
				report.Skipped = append(report.Skipped, label)
				continue
			} else if !errors.Is(err, store.ErrKeyNotFound) {
				return report, fmt.Errorf("checking %s/%s: %w", namespace, id, err)
			}

			if dryRun {
				report.Moved = append(report.Moved, label)
				continue
			}

			value, err := kv.Get(ctx, namespace, key)
			if err != nil {
				return report, fmt.Errorf("reading %s: %w", label, err)
			}
			if err := kv.Put(ctx, namespace, id, value); err != nil {
				return report, fmt.Errorf("writing %s/%s: %w", namespace, id, err)
			}
			if err := kv.Delete(ctx, namespace, key); err != nil {
				return report, fmt.Errorf("removing %s: %w", label, err)
			}
			report.Moved = append(report.Moved, label)
		}
	}
	return report, nil
}
