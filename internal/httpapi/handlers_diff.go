package httpapi

import (
	"context"
	"net/http"

	"github.com/bijux/atlas/internal/catalog"
	"github.com/bijux/atlas/internal/query"
	"github.com/bijux/atlas/internal/store"
	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/model"
)

// diffTargetFromQuery resolves the "against" query parameter (a
// "release=R&species=S&assembly=A" dataset key) into the second dataset a
// diff compares datasetA against.
func (a *App) diffTargetFromQuery(w http.ResponseWriter, r *http.Request) (model.DatasetID, bool) {
	against := r.URL.Query().Get("against")
	if against == "" {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.InvalidQueryParameter, "against is required", requestID(r), map[string]any{"parameter": "against"}))
		return model.DatasetID{}, false
	}
	datasetB, err := model.ParseDatasetKey(against)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.InvalidQueryParameter, err.Error(), requestID(r), map[string]any{"parameter": "against"}))
		return model.DatasetID{}, false
	}
	return datasetB, true
}

// fieldChunkLimit caps how many gene ids a diff response field inlines
// before the response degrades to a truncation marker; unlike
// internal/catalog's on-disk chunking (used by atlasctl publish/diff),
// there is no object store to write overflow chunks to from an HTTP
// handler, so overflow here is simply reported as truncated.
const fieldChunkLimit = 2000

func diffFieldToJSON(items []string) map[string]any {
	if len(items) <= fieldChunkLimit {
		return map[string]any{"items": items, "total_count": len(items), "inline_count": len(items)}
	}
	return map[string]any{"truncated": true, "total_count": len(items), "inline_count": 0}
}

// handleDiffGenes serves GET /v1/datasets/{release}/{species}/{assembly}/diff/genes?against=...,
// a release-to-release diff over the two datasets' gene indexes.
func (a *App) handleDiffGenes(w http.ResponseWriter, r *http.Request) {
	datasetA, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	datasetB, ok := a.diffTargetFromQuery(w, r)
	if !ok {
		return
	}

	guard, env, ok := a.Policy.Admit(r.Context(), query.ClassHeavy, 1, 5)
	if !ok {
		apierrors.WriteHTTP(w, env)
		return
	}
	defer guard.Release()

	gsA, err := a.openGeneStore(r.Context(), datasetA)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	defer gsA.Close()
	gsB, err := a.openGeneStore(r.Context(), datasetB)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	defer gsB.Close()

	result, err := catalog.Diff(r.Context(), a.Backend, datasetA, datasetB, gsA, gsB)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}

	writeEnvelope(w, r, Envelope{
		Dataset: &datasetA,
		Data: map[string]any{
			"dataset_a":            datasetA.CanonicalString(),
			"dataset_b":            datasetB.CanonicalString(),
			"added":                diffFieldToJSON(result.Added),
			"removed":              diffFieldToJSON(result.Removed),
			"changed_by_coords":    diffFieldToJSON(result.ChangedByCoords),
			"changed_by_biotype":   diffFieldToJSON(result.ChangedByBiotype),
			"changed_by_signature": diffFieldToJSON(result.ChangedBySignature),
		},
	}, QueryResult)
}

// handleDiffRegion serves GET .../diff/region, the same comparison narrowed
// to genes overlapping a single contig range in both datasets.
func (a *App) handleDiffRegion(w http.ResponseWriter, r *http.Request) {
	datasetA, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	datasetB, ok := a.diffTargetFromQuery(w, r)
	if !ok {
		return
	}
	req, ferrs := query.Build(datasetA, query.OpDiffRegion, r.URL.Query())
	if len(ferrs) > 0 {
		writeFieldErrors(w, r, ferrs)
		return
	}
	if req.Params.Range == nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.InvalidQueryParameter, "range or region is required", requestID(r), nil))
		return
	}

	guard, env, ok := a.Policy.Admit(r.Context(), req.Class, 1, 5)
	if !ok {
		apierrors.WriteHTTP(w, env)
		return
	}
	defer guard.Release()

	gsA, err := a.openGeneStore(r.Context(), datasetA)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	defer gsA.Close()
	gsB, err := a.openGeneStore(r.Context(), datasetB)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	defer gsB.Close()

	result, err := catalog.Diff(r.Context(), a.Backend, datasetA, datasetB, gsA, gsB)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	result = restrictDiffToRegion(r.Context(), result, gsA, gsB, *req.Params.Range)

	writeEnvelope(w, r, Envelope{
		Dataset: &datasetA,
		Data: map[string]any{
			"dataset_a":            datasetA.CanonicalString(),
			"dataset_b":            datasetB.CanonicalString(),
			"region":               req.Params.Range,
			"added":                diffFieldToJSON(result.Added),
			"removed":              diffFieldToJSON(result.Removed),
			"changed_by_coords":    diffFieldToJSON(result.ChangedByCoords),
			"changed_by_biotype":   diffFieldToJSON(result.ChangedByBiotype),
			"changed_by_signature": diffFieldToJSON(result.ChangedBySignature),
		},
	}, QueryResult)
}

// restrictDiffToRegion filters an already-computed diff down to gene ids
// overlapping region in whichever side of the comparison they're present on.
func restrictDiffToRegion(ctx context.Context, result catalog.Result, gsA, gsB *store.GeneStore, region model.Region) catalog.Result {
	overlaps := func(gs *store.GeneStore, geneID string) bool {
		g, err := gs.GeneByID(ctx, geneID)
		if err != nil {
			return false
		}
		return g.SeqID == region.SeqID && g.Start <= region.End && g.End >= region.Start
	}
	filter := func(ids []string, gs *store.GeneStore) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if overlaps(gs, id) {
				out = append(out, id)
			}
		}
		return out
	}
	result.Added = filter(result.Added, gsB)
	result.Removed = filter(result.Removed, gsA)
	result.ChangedByCoords = filter(result.ChangedByCoords, gsB)
	result.ChangedByBiotype = filter(result.ChangedByBiotype, gsB)
	result.ChangedBySignature = filter(result.ChangedBySignature, gsB)
	return result
}
