package httpapi

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bijux/atlas/internal/query"
	"github.com/bijux/atlas/internal/store"
	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/model"
)

// handleGeneSequence serves GET /v1/genes/{gene_id}/sequence: look up the
// gene's coordinates, then extract that base range from the dataset's FASTA.
func (a *App) handleGeneSequence(w http.ResponseWriter, r *http.Request) {
	dataset, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	geneID := mux.Vars(r)["gene_id"]

	guard, env, ok := a.Policy.Admit(r.Context(), query.ClassCheap, 1, 1)
	if !ok {
		apierrors.WriteHTTP(w, env)
		return
	}
	defer guard.Release()

	gs, err := a.openGeneStore(r.Context(), dataset)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	defer gs.Close()

	gene, err := gs.GeneByID(r.Context(), geneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNoRows) {
			apierrors.WriteHTTP(w, apierrors.New(apierrors.GeneNotFound, "gene not found", requestID(r), map[string]any{"gene_id": geneID}))
			return
		}
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}

	seq, err := a.Cache.FetchSequence(r.Context(), dataset, model.Region{SeqID: gene.SeqID, Start: gene.Start, End: gene.End})
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	writeEnvelope(w, r, Envelope{Dataset: &dataset, Data: map[string]any{
		"gene_id":  gene.GeneID,
		"seqid":    gene.SeqID,
		"start":    gene.Start,
		"end":      gene.End,
		"sequence": seq,
	}}, ImmutableDataset)
}

// handleSequenceRegion serves GET /v1/sequence/region: a direct range/region
// extraction independent of any gene.
func (a *App) handleSequenceRegion(w http.ResponseWriter, r *http.Request) {
	dataset, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	req, ferrs := query.Build(dataset, query.OpSequenceRegion, r.URL.Query())
	if len(ferrs) > 0 {
		writeFieldErrors(w, r, ferrs)
		return
	}
	if req.Params.Range == nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.InvalidQueryParameter, "range or region is required", requestID(r), nil))
		return
	}

	guard, env, ok := a.Policy.Admit(r.Context(), req.Class, 1, 1)
	if !ok {
		apierrors.WriteHTTP(w, env)
		return
	}
	defer guard.Release()

	seq, err := a.Cache.FetchSequence(r.Context(), dataset, *req.Params.Range)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	writeEnvelope(w, r, Envelope{Dataset: &dataset, Data: map[string]any{
		"seqid":    req.Params.Range.SeqID,
		"start":    req.Params.Range.Start,
		"end":      req.Params.Range.End,
		"sequence": seq,
	}}, QueryResult)
}
