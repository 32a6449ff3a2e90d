package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

// DefaultMaxInlineItems is the threshold above which a diff field is
// chunked out to chunks/<field>.NNN.json rather than inlined.
const DefaultMaxInlineItems = 5000

// Result is the raw (unchunked) release diff between two dataset gene
// indexes, each field a sorted, duplicate-free set of gene ids.
type Result struct {
	DatasetA           model.DatasetID
	DatasetB           model.DatasetID
	Added              []string
	Removed            []string
	ChangedByCoords    []string
	ChangedByBiotype   []string
	ChangedBySignature []string
}

// IndexFetcher is the subset of store.Backend diff needs: read-only access
// to a dataset's release gene index bytes.
type IndexFetcher interface {
	FetchReleaseGeneIndexBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error)
}

// Diff computes added/removed/changed-by-coords/changed-by-biotype/
// changed-by-signature between datasetA and datasetB's release gene
// indexes, joining biotype from each dataset's gene store for genes present
// in both. geneStoreA/geneStoreB may be nil, in which case
// ChangedByBiotype is left empty rather than erroring — callers comparing
// index-only snapshots (no cached sqlite available) can still get the
// other four fields.
func Diff(ctx context.Context, fetcher IndexFetcher, datasetA, datasetB model.DatasetID, geneStoreA, geneStoreB *store.GeneStore) (Result, error) {
	idxA, err := fetchIndex(ctx, fetcher, datasetA)
	if err != nil {
		return Result{}, err
	}
	idxB, err := fetchIndex(ctx, fetcher, datasetB)
	if err != nil {
		return Result{}, err
	}

	mapA := make(map[string]model.GeneIndexEntry, len(idxA.Entries))
	for _, e := range idxA.Entries {
		mapA[e.GeneID] = e
	}
	mapB := make(map[string]model.GeneIndexEntry, len(idxB.Entries))
	for _, e := range idxB.Entries {
		mapB[e.GeneID] = e
	}

	var added, removed, changedCoords, changedBiotype, changedSig []string

	for id, eb := range mapB {
		ea, ok := mapA[id]
		if !ok {
			added = append(added, id)
			continue
		}
		if ea.SeqID != eb.SeqID || ea.Start != eb.Start || ea.End != eb.End {
			changedCoords = append(changedCoords, id)
		}
		if ea.SignatureSHA256 != eb.SignatureSHA256 {
			changedSig = append(changedSig, id)
		}
		if geneStoreA != nil && geneStoreB != nil {
			ga, errA := geneStoreA.GeneByID(ctx, id)
			gb, errB := geneStoreB.GeneByID(ctx, id)
			if errA == nil && errB == nil && ga.Biotype != gb.Biotype {
				changedBiotype = append(changedBiotype, id)
			}
		}
	}
	for id := range mapA {
		if _, ok := mapB[id]; !ok {
			removed = append(removed, id)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changedCoords)
	sort.Strings(changedBiotype)
	sort.Strings(changedSig)

	return Result{
		DatasetA:           datasetA,
		DatasetB:           datasetB,
		Added:              added,
		Removed:            removed,
		ChangedByCoords:    changedCoords,
		ChangedByBiotype:   changedBiotype,
		ChangedBySignature: changedSig,
	}, nil
}

func fetchIndex(ctx context.Context, fetcher IndexFetcher, dataset model.DatasetID) (model.GeneIndex, error) {
	b, err := fetcher.FetchReleaseGeneIndexBytes(ctx, dataset)
	if err != nil {
		return model.GeneIndex{}, fmt.Errorf("%w: fetch release gene index for %s: %v", ErrCatalog, dataset.CanonicalString(), err)
	}
	var idx model.GeneIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return model.GeneIndex{}, fmt.Errorf("%w: decode release gene index for %s: %v", ErrCatalog, dataset.CanonicalString(), err)
	}
	return idx, nil
}

// ChunkRef is one manifest entry pointing at a field's overflow chunk.
type ChunkRef struct {
	Field string `json:"field"`
	Chunk int    `json:"chunk"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// FieldOutput is one diff field as rendered in the document: either the
// full inline item list, or a truncation marker pointing at chunk files.
type FieldOutput struct {
	Items       []string `json:"items,omitempty"`
	Truncated   bool     `json:"truncated,omitempty"`
	TotalCount  int      `json:"total_count"`
	InlineCount int      `json:"inline_count"`
}

// Document is the full, chunked diff artifact written to disk, with SHA256
// computed over its own canonical bytes (field cleared during hashing).
type Document struct {
	DatasetA           string     `json:"dataset_a"`
	DatasetB           string     `json:"dataset_b"`
	Added              FieldOutput `json:"added"`
	Removed            FieldOutput `json:"removed"`
	ChangedByCoords    FieldOutput `json:"changed_by_coords"`
	ChangedByBiotype   FieldOutput `json:"changed_by_biotype"`
	ChangedBySignature FieldOutput `json:"changed_by_signature"`
	Chunks             []ChunkRef `json:"chunks,omitempty"`
	SHA256             string     `json:"sha256"`
}

// Materialize renders result into a Document, writing any field whose
// length exceeds maxInlineItems out to deterministic
// "<basePath>/chunks/<field>.NNN.json" objects via w, and computes SHA256
// over the document's own canonical bytes (with SHA256 itself cleared).
func Materialize(w PutStore, basePath string, result Result, maxInlineItems int) (Document, error) {
	if maxInlineItems <= 0 {
		maxInlineItems = DefaultMaxInlineItems
	}
	doc := Document{
		DatasetA: result.DatasetA.CanonicalString(),
		DatasetB: result.DatasetB.CanonicalString(),
	}
	var chunks []ChunkRef

	fields := []struct {
		name string
		out  *FieldOutput
		data []string
	}{
		{"added", &doc.Added, result.Added},
		{"removed", &doc.Removed, result.Removed},
		{"changed_by_coords", &doc.ChangedByCoords, result.ChangedByCoords},
		{"changed_by_biotype", &doc.ChangedByBiotype, result.ChangedByBiotype},
		{"changed_by_signature", &doc.ChangedBySignature, result.ChangedBySignature},
	}
	for _, f := range fields {
		if len(f.data) <= maxInlineItems {
			*f.out = FieldOutput{Items: f.data, TotalCount: len(f.data), InlineCount: len(f.data)}
			continue
		}
		*f.out = FieldOutput{Truncated: true, TotalCount: len(f.data), InlineCount: 0}
		for i := 0; i*maxInlineItems < len(f.data); i++ {
			start := i * maxInlineItems
			end := start + maxInlineItems
			if end > len(f.data) {
				end = len(f.data)
			}
			chunk := f.data[start:end]
			b, err := canonicaljson.Marshal(chunk)
			if err != nil {
				return Document{}, fmt.Errorf("%w: marshal chunk %s.%03d: %v", ErrCatalog, f.name, i, err)
			}
			path := fmt.Sprintf("%s/chunks/%s.%03d.json", basePath, f.name, i)
			if err := w.Put(path, b); err != nil {
				return Document{}, fmt.Errorf("%w: write chunk %s: %v", ErrCatalog, path, err)
			}
			chunks = append(chunks, ChunkRef{Field: f.name, Chunk: i, Path: path, Count: len(chunk)})
		}
	}
	doc.Chunks = chunks

	unhashed := doc
	unhashed.SHA256 = ""
	b, err := canonicaljson.Marshal(unhashed)
	if err != nil {
		return Document{}, fmt.Errorf("%w: canonical diff bytes: %v", ErrCatalog, err)
	}
	doc.SHA256 = canonicaljson.SHA256Hex(b)
	return doc, nil
}
