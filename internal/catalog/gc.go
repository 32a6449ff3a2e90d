package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/pkg/model"
)

// ErrRefusedOnServer is returned when gc is invoked from a process that
// identifies itself as a running server rather than an operator CLI.
var ErrRefusedOnServer = fmt.Errorf("%w: refusing to run gc from a server process", ErrCatalog)

// WalkStore is the subset of store.LocalStore gc needs beyond PutStore:
// enumeration and deletion of on-disk objects.
type WalkStore interface {
	PutStore
	Walk(fn func(objectKey string) error) error
	Delete(objectKey string) error
}

// Pin keeps objects reachable regardless of catalog membership: either a
// whole dataset (every known artifact file under its derived/ directory) or
// the single object whose key equals Hash (for example a diff document's
// chunk file). Hash is compared literally against object keys; it is not
// matched against the artifact_hash recorded in any manifest.
type Pin struct {
	Dataset *model.DatasetID
	Hash    string
}

// Plan is the dry-run output of gc: every object key under the store root,
// partitioned into kept (reachable) and removable (unreachable).
type Plan struct {
	Reachable map[string]bool
	Keep      []string
	Remove    []string
}

// RefuseIfServerEnvironment guards gc from ever running inside the serving
// process: both ATLAS_SERVER_CONTAINER=1 and ATLAS_RUNTIME_ROLE=server mark
// an environment as a server, and gc must only ever run from atlasctl on an
// operator's machine.
func RefuseIfServerEnvironment() error {
	if os.Getenv("ATLAS_SERVER_CONTAINER") == "1" {
		return ErrRefusedOnServer
	}
	if strings.EqualFold(os.Getenv("ATLAS_RUNTIME_ROLE"), "server") {
		return ErrRefusedOnServer
	}
	return nil
}

// reachableSet computes catalog ∪ pins: every object key that must survive
// collection. Reachability is derived from the canonical artifact layout
// (every artifact.Kind file plus sequence.fasta and sequence.fasta.fai under
// each dataset's derived/ directory) rather than walking the store, so it is
// correct even for objects the current process hasn't fetched locally.
func reachableSet(cat model.Catalog, pins []Pin) map[string]bool {
	reachable := make(map[string]bool)
	reachable["catalog.json"] = true

	addDataset := func(d model.DatasetID) {
		reachable[artifact.ObjectKey(d, artifact.KindManifest)] = true
		reachable[artifact.ObjectKey(d, artifact.KindGeneSummary)] = true
		reachable[artifact.ObjectKey(d, artifact.KindReleaseGeneIndex)] = true
		reachable[artifact.ObjectKey(d, artifact.KindAnomalyReport)] = true
		reachable[artifact.ObjectKey(d, artifact.KindQCReport)] = true
		reachable[artifact.ObjectKey(d, artifact.KindShardCatalog)] = true
		reachable[artifact.ObjectKey(d, artifact.KindNormalizedDebug)] = true
		reachable[d.DerivedDir()+"/sequence.fasta"] = true
		reachable[d.DerivedDir()+"/sequence.fasta.fai"] = true
	}

	for _, e := range cat.Entries {
		addDataset(e.Dataset)
	}
	for _, p := range pins {
		if p.Dataset != nil {
			addDataset(*p.Dataset)
		}
		if p.Hash != "" {
			reachable[p.Hash] = true
		}
	}
	return reachable
}

// MakePlan computes, without deleting anything, which objects under store
// are reachable from cat and pins and which are not. Every object key the
// store's Walk reports lands in exactly one of Keep or Remove.
func MakePlan(store WalkStore, cat model.Catalog, pins []Pin) (Plan, error) {
	reachable := reachableSet(cat, pins)
	plan := Plan{Reachable: reachable}
	err := store.Walk(func(objectKey string) error {
		if reachable[objectKey] {
			plan.Keep = append(plan.Keep, objectKey)
		} else {
			plan.Remove = append(plan.Remove, objectKey)
		}
		return nil
	})
	if err != nil {
		return Plan{}, fmt.Errorf("%w: walk store: %v", ErrCatalog, err)
	}
	return plan, nil
}

// Apply deletes every object named in plan.Remove. It performs no
// interactive prompting: it refuses unless confirmed is true, and it refuses
// inside a server environment (see RefuseIfServerEnvironment).
func Apply(store WalkStore, plan Plan, confirmed bool) (int, error) {
	if !confirmed {
		return 0, fmt.Errorf("%w: gc apply requires explicit confirmation", ErrCatalog)
	}
	if err := RefuseIfServerEnvironment(); err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range plan.Remove {
		if err := store.Delete(key); err != nil {
			return removed, fmt.Errorf("%w: delete %s: %v", ErrCatalog, key, err)
		}
		removed++
	}
	return removed, nil
}
