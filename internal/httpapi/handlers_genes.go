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

// selectedFieldCount estimates the serialization-budget input from the
// include list: an empty include means "default projection", counted the
// same as a single field for estimation purposes.
func selectedFieldCount(p query.Params) int {
	if len(p.Include) == 0 {
		return 1
	}
	return len(p.Include)
}

func geneToJSON(g model.Gene) map[string]any {
	return map[string]any{
		"gene_id":          g.GeneID,
		"name":             g.Name,
		"seqid":            g.SeqID,
		"start":            g.Start,
		"end":              g.End,
		"strand":           g.Strand,
		"biotype":          g.Biotype,
		"transcript_count": g.TranscriptCount,
		"sequence_length":  g.SequenceLength,
		"signature_sha256": g.SignatureSHA256,
	}
}

func transcriptToJSON(t model.Transcript) map[string]any {
	return map[string]any{
		"transcript_id":   t.TranscriptID,
		"parent_gene_id":  t.ParentGeneID,
		"type":            t.Type,
		"biotype":         t.Biotype,
		"seqid":           t.SeqID,
		"start":           t.Start,
		"end":             t.End,
		"exon_count":      t.ExonCount,
		"total_exon_span": t.TotalExonSpan,
		"cds_present":     t.CDSPresent,
	}
}

// handleListGenes serves GET /v1/genes: parse+classify, admit, query, and
// render a has_more-aware page of genes.
func (a *App) handleListGenes(w http.ResponseWriter, r *http.Request) {
	dataset, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	req, ferrs := query.Build(dataset, query.OpListGenes, r.URL.Query())
	if len(ferrs) > 0 {
		writeFieldErrors(w, r, ferrs)
		return
	}

	guard, env, ok := a.Policy.Admit(r.Context(), req.Class, req.Params.Limit, selectedFieldCount(req.Params))
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

	var after *store.GeneCursor
	if req.Params.Cursor != "" {
		c, err := store.DecodeGeneCursor(req.Params.Cursor)
		if err != nil {
			apierrors.WriteHTTP(w, apierrors.New(apierrors.InvalidCursor, "malformed cursor", requestID(r), nil))
			return
		}
		after = &c
	}

	genes, err := gs.ListGenes(r.Context(), req.Params, after)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}

	hasMore := len(genes) > req.Params.Limit
	if hasMore {
		genes = genes[:req.Params.Limit]
	}
	items := make([]map[string]any, 0, len(genes))
	for _, g := range genes {
		items = append(items, geneToJSON(g))
	}

	page := &Page{Limit: req.Params.Limit, HasMore: hasMore}
	if hasMore {
		last := genes[len(genes)-1]
		page.NextCursor = store.EncodeGeneCursor(store.GeneCursor{SeqID: last.SeqID, Start: last.Start, GeneID: string(last.GeneID)})
	}

	writeEnvelope(w, r, Envelope{
		Dataset: &dataset,
		Page:    page,
		Data:    ListData{Items: items},
	}, QueryResult)
}

// handleGeneCount serves GET /v1/genes/count.
func (a *App) handleGeneCount(w http.ResponseWriter, r *http.Request) {
	dataset, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	req, ferrs := query.Build(dataset, query.OpGeneCount, r.URL.Query())
	if len(ferrs) > 0 {
		writeFieldErrors(w, r, ferrs)
		return
	}
	guard, env, ok := a.Policy.Admit(r.Context(), req.Class, 1, 1)
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

	n, err := gs.CountGenes(r.Context(), req.Params)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	writeEnvelope(w, r, Envelope{Dataset: &dataset, Data: map[string]any{"count": n}}, QueryResult)
}

// handleGeneByID serves GET /v1/genes/{gene_id}... base lookup shared by the
// sequence and transcripts sub-resources.
func (a *App) handleGeneByID(w http.ResponseWriter, r *http.Request) {
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
	writeEnvelope(w, r, Envelope{Dataset: &dataset, Data: geneToJSON(gene)}, ImmutableDataset)
}

// handleGeneTranscripts serves GET /v1/genes/{gene_id}/transcripts.
func (a *App) handleGeneTranscripts(w http.ResponseWriter, r *http.Request) {
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

	if _, err := gs.GeneByID(r.Context(), geneID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNoRows) {
			apierrors.WriteHTTP(w, apierrors.New(apierrors.GeneNotFound, "gene not found", requestID(r), map[string]any{"gene_id": geneID}))
			return
		}
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}

	txs, err := gs.ListTranscriptsForGene(r.Context(), geneID)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	items := make([]map[string]any, 0, len(txs))
	for _, t := range txs {
		items = append(items, transcriptToJSON(t))
	}
	writeEnvelope(w, r, Envelope{Dataset: &dataset, Data: ListData{Items: items}}, ImmutableDataset)
}

// handleTranscriptByID serves GET /v1/transcripts/{tx_id}.
func (a *App) handleTranscriptByID(w http.ResponseWriter, r *http.Request) {
	dataset, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	txID := mux.Vars(r)["tx_id"]

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

	tx, err := gs.TranscriptByID(r.Context(), txID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNoRows) {
			apierrors.WriteHTTP(w, apierrors.New(apierrors.GeneNotFound, "transcript not found", requestID(r), map[string]any{"transcript_id": txID}))
			return
		}
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	writeEnvelope(w, r, Envelope{Dataset: &dataset, Data: transcriptToJSON(tx)}, ImmutableDataset)
}

func writeFieldErrors(w http.ResponseWriter, r *http.Request, ferrs []query.FieldErr) {
	fes := make([]apierrors.FieldError, 0, len(ferrs))
	for _, fe := range ferrs {
		fes = append(fes, apierrors.FieldError{Parameter: fe.Parameter, Reason: fe.Reason, Value: fe.Value})
	}
	apierrors.WriteHTTP(w, apierrors.NewFieldErrors(apierrors.InvalidQueryParameter, "invalid query parameter(s)", requestID(r), fes))
}
