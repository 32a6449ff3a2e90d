// Command atlasctl is the operator CLI for the ingest and artifact engine
// and the catalog publish/diff/gc tooling: everything that mutates or
// compares the published on-disk layout, run by hand or from a batch job,
// never from the serving process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/bijux/atlas/internal/catalog"
	"github.com/bijux/atlas/internal/ingest"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}
	var err error
	switch args[0] {
	case "ingest":
		err = runIngest(args[1:])
	case "catalog":
		err = runCatalog(args[1:])
	case "diff":
		err = runDiff(args[1:])
	case "gc":
		err = runGC(args[1:])
	default:
		usage()
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "atlasctl:", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: atlasctl <command> [flags]

commands:
  ingest    decode+normalize+persist one dataset's derived artifacts
  catalog   publish a dataset's entry into catalog.json
  diff      compute a release diff between two datasets
  gc        plan/apply unreachable-artifact collection`)
}

// runIngest runs the deterministic ingest pipeline over one dataset's raw
// inputs and writes its derived artifacts under --out.
func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	gff3 := fs.String("gff3", "", "path to the GFF3 annotation file")
	fasta := fs.String("fasta", "", "path to the FASTA sequence file")
	fai := fs.String("fai", "", "path to the FASTA index (.fai) file")
	out := fs.String("out", "", "output root directory")
	release := fs.String("release", "", "dataset release, e.g. 110")
	species := fs.String("species", "", "dataset species, e.g. homo_sapiens")
	assembly := fs.String("assembly", "", "dataset assembly, e.g. GRCh38")
	maxThreads := fs.Int("max-threads", 1, "max normalization worker threads")
	failOnWarn := fs.Bool("fail-on-warn", false, "promote any QC warning to a hard failure")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *gff3 == "" || *fasta == "" || *fai == "" || *out == "" {
		return fmt.Errorf("--gff3, --fasta, --fai, and --out are required")
	}

	dataset, err := model.NewDatasetIDNormalized(*release, *species, *assembly)
	if err != nil {
		return fmt.Errorf("dataset identity: %w", err)
	}

	opts := ingest.DefaultOptions()
	opts.GFF3Path = *gff3
	opts.FASTAPath = *fasta
	opts.FAIPath = *fai
	opts.OutputRoot = *out
	opts.Dataset = dataset
	opts.MaxThreads = ingest.ParallelismPolicy(*maxThreads)
	opts.FailOnWarn = *failOnWarn

	result, err := ingest.Run(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("ingest run: %w", err)
	}
	fmt.Printf("ingested %s: manifest=%s genes=%d transcripts=%d contigs=%d\n",
		dataset.CanonicalString(), result.ManifestPath,
		result.Manifest.Stats.GeneCount, result.Manifest.Stats.TranscriptCount, result.Manifest.Stats.ContigCount)
	for _, ev := range result.Events {
		fmt.Printf("  [%s] %s: %v\n", ev.Stage, ev.Code, ev.Fields)
	}
	return nil
}

// runCatalog upserts a freshly ingested dataset into the published
// catalog.json at --root.
func runCatalog(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	root := fs.String("root", "", "catalog store root directory")
	release := fs.String("release", "", "dataset release")
	species := fs.String("species", "", "dataset species")
	assembly := fs.String("assembly", "", "dataset assembly")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return fmt.Errorf("--root is required")
	}
	dataset, err := model.NewDatasetIDNormalized(*release, *species, *assembly)
	if err != nil {
		return fmt.Errorf("dataset identity: %w", err)
	}

	backend, err := store.NewLocalStore(store.LocalOptions{Root: *root})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	cat, err := loadCatalog(backend)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	writer := catalog.NewWriter(backend)
	updated, err := writer.Publish(cat, catalog.EntryFor(dataset))
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Printf("published %s: catalog now has %d entries\n", dataset.CanonicalString(), len(updated.Entries))
	return nil
}

// runDiff computes a release diff between two datasets published under the
// same store root and writes the (possibly chunked) result under --out.
func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	root := fs.String("root", "", "store root both datasets are published under")
	from := fs.String("from", "", "dataset key, e.g. release=110&species=homo_sapiens&assembly=GRCh38")
	to := fs.String("to", "", "dataset key in the same format")
	out := fs.String("out", "", "output directory for diff.json and its chunk files")
	maxInline := fs.Int("max-inline-items", catalog.DefaultMaxInlineItems, "inline item threshold before chunking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" || *from == "" || *to == "" || *out == "" {
		return fmt.Errorf("--root, --from, --to, and --out are required")
	}

	datasetA, err := model.ParseDatasetKey(*from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	datasetB, err := model.ParseDatasetKey(*to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	backend, err := store.NewLocalStore(store.LocalOptions{Root: *root})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	ctx := context.Background()
	storeA, errA := openGeneStoreFromCache(ctx, backend, datasetA)
	storeB, errB := openGeneStoreFromCache(ctx, backend, datasetB)
	if storeA != nil {
		defer storeA.Close()
	}
	if storeB != nil {
		defer storeB.Close()
	}
	if errA != nil || errB != nil {
		fmt.Fprintf(os.Stderr, "warning: biotype join skipped (storeA err=%v storeB err=%v)\n", errA, errB)
	}

	result, err := catalog.Diff(ctx, backend, datasetA, datasetB, storeA, storeB)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}

	outStore, err := store.NewLocalStore(store.LocalOptions{Root: *out})
	if err != nil {
		return fmt.Errorf("open output store: %w", err)
	}
	doc, err := catalog.Materialize(outStore, "", result, *maxInline)
	if err != nil {
		return fmt.Errorf("materialize diff: %w", err)
	}
	docBytes, err := canonicaljson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode diff: %w", err)
	}
	if err := outStore.Put("diff.json", docBytes); err != nil {
		return fmt.Errorf("write diff.json: %w", err)
	}
	fmt.Printf("diff %s -> %s: added=%d removed=%d changed_coords=%d changed_biotype=%d changed_signature=%d sha256=%s\n",
		datasetA.CanonicalString(), datasetB.CanonicalString(),
		len(result.Added), len(result.Removed), len(result.ChangedByCoords), len(result.ChangedByBiotype), len(result.ChangedBySignature),
		doc.SHA256)
	return nil
}

// runGC dispatches to "gc plan" (dry-run, prints candidates) or
// "gc apply --confirm" (deletes them), refusing to run at all inside a
// server environment.
func runGC(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: atlasctl gc <plan|apply> [flags]")
	}
	if err := catalog.RefuseIfServerEnvironment(); err != nil {
		return err
	}

	switch args[0] {
	case "plan":
		return runGCPlan(args[1:])
	case "apply":
		return runGCApply(args[1:])
	default:
		return fmt.Errorf("usage: atlasctl gc <plan|apply> [flags]")
	}
}

func gcFlags(name string, args []string) (*flag.FlagSet, *string, *string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	root := fs.String("root", "", "store root to collect")
	pinFile := fs.String("pin-file", "", "path to a JSON pin file: {\"dataset_ids\":[...],\"artifact_hashes\":[...]}")
	err := fs.Parse(args)
	return fs, root, pinFile, err
}

func runGCPlan(args []string) error {
	_, root, pinFile, err := gcFlags("plan", args)
	if err != nil {
		return err
	}
	if *root == "" {
		return fmt.Errorf("--root is required")
	}

	backend, err := store.NewLocalStore(store.LocalOptions{Root: *root})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	cat, err := loadCatalog(backend)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	pins, err := loadPins(*pinFile)
	if err != nil {
		return fmt.Errorf("load pins: %w", err)
	}

	plan, err := catalog.MakePlan(backend, cat, pins)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	fmt.Printf("gc plan: keep=%d remove=%d\n", len(plan.Keep), len(plan.Remove))
	for _, k := range plan.Remove {
		fmt.Println("  remove:", k)
	}
	return nil
}

func runGCApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	root := fs.String("root", "", "store root to collect")
	pinFile := fs.String("pin-file", "", "path to a JSON pin file")
	confirm := fs.Bool("confirm", false, "required to actually delete anything")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return fmt.Errorf("--root is required")
	}

	backend, err := store.NewLocalStore(store.LocalOptions{Root: *root})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	cat, err := loadCatalog(backend)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	pins, err := loadPins(*pinFile)
	if err != nil {
		return fmt.Errorf("load pins: %w", err)
	}
	plan, err := catalog.MakePlan(backend, cat, pins)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	removed, err := catalog.Apply(backend, plan, *confirm)
	if err != nil {
		return err
	}
	fmt.Printf("gc apply: removed %d objects\n", removed)
	return nil
}

// loadCatalog reads the store's current catalog.json, or an empty Catalog
// if none has been published yet (FetchCatalog treats a missing object as
// an empty first-publish catalog rather than an error).
func loadCatalog(backend *store.LocalStore) (model.Catalog, error) {
	fetch, err := backend.FetchCatalog(context.Background(), "")
	if err != nil {
		return model.Catalog{}, err
	}
	return fetch.Catalog, nil
}

type pinFileDocument struct {
	DatasetIDs     []string `json:"dataset_ids"`
	ArtifactHashes []string `json:"artifact_hashes"`
}

func loadPins(path string) ([]catalog.Pin, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc pinFileDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse pin file: %w", err)
	}
	pins := make([]catalog.Pin, 0, len(doc.DatasetIDs)+len(doc.ArtifactHashes))
	for _, k := range doc.DatasetIDs {
		ds, err := model.ParseDatasetKey(k)
		if err != nil {
			return nil, fmt.Errorf("pinned dataset_id %q: %w", k, err)
		}
		d := ds
		pins = append(pins, catalog.Pin{Dataset: &d})
	}
	for _, h := range doc.ArtifactHashes {
		pins = append(pins, catalog.Pin{Hash: h})
	}
	return pins, nil
}

// openGeneStoreFromCache opens a GeneStore directly against dataset's
// published sqlite bytes by fetching them to a local temp file; atlasctl
// has no running cache manager of its own, so it performs the
// fetch-and-open a request handler would normally delegate to
// internal/cache.Manager.SQLitePath.
func openGeneStoreFromCache(ctx context.Context, backend store.Backend, dataset model.DatasetID) (*store.GeneStore, error) {
	b, err := backend.FetchSQLiteBytes(ctx, dataset)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", "atlasctl-diff-*.sqlite")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return store.OpenGeneStore(path)
}
