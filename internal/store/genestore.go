package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bijux/atlas/internal/query"
	"github.com/bijux/atlas/pkg/model"
)

// GeneStore is the read-only SQL query layer over one cached
// gene_summary.sqlite file, implementing the gene/transcript list, lookup,
// and count operations the query serving core executes after admission.
// It never mutates the file: the ingest engine is the sqlite file's only
// writer, per the artifact manifest's immutable-after-publication
// ownership rule.
type GeneStore struct {
	db *sql.DB
}

// OpenGeneStore opens path (a cache-manager-resident copy of
// gene_summary.sqlite) read-only.
func OpenGeneStore(path string) (*GeneStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open gene store: %v", ErrTransport, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping gene store: %v", ErrTransport, err)
	}
	return &GeneStore{db: db}, nil
}

func (g *GeneStore) Close() error { return g.db.Close() }

// GeneCursor is the decoded form of an opaque gene-list pagination cursor:
// the last emitted gene's order key.
type GeneCursor struct {
	SeqID  string `json:"s"`
	Start  uint64 `json:"b"`
	GeneID string `json:"g"`
}

// EncodeGeneCursor renders c as the opaque token callers see in the
// response envelope's page.next_cursor.
func EncodeGeneCursor(c GeneCursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeGeneCursor parses a cursor string previously produced by
// EncodeGeneCursor. A malformed cursor is the caller's responsibility to
// reject as InvalidCursor before reaching the store.
func DecodeGeneCursor(s string) (GeneCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return GeneCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalid)
	}
	var c GeneCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return GeneCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalid)
	}
	return c, nil
}

// TranscriptCursor mirrors GeneCursor for the transcript-list ordering.
type TranscriptCursor struct {
	SeqID        string `json:"s"`
	Start        uint64 `json:"b"`
	TranscriptID string `json:"t"`
}

func EncodeTranscriptCursor(c TranscriptCursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeTranscriptCursor(s string) (TranscriptCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return TranscriptCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalid)
	}
	var c TranscriptCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return TranscriptCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalid)
	}
	return c, nil
}

// geneFilter translates a validated query.Params into the WHERE clause and
// bound arguments shared by ListGenes and CountGenes, so the two never
// drift out of sync on filter semantics.
func geneFilter(p query.Params) (string, []any) {
	var clauses []string
	var args []any

	if p.GeneID != "" {
		clauses = append(clauses, "gene_id = ?")
		args = append(args, p.GeneID)
	}
	if p.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, p.Name)
	}
	if p.NameLike != "" {
		prefix := strings.TrimSuffix(p.NameLike, "*")
		clauses = append(clauses, "name LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(prefix)+"%")
	}
	if p.Biotype != "" {
		clauses = append(clauses, "biotype = ?")
		args = append(args, p.Biotype)
	}
	if p.Contig != "" {
		clauses = append(clauses, "seqid = ?")
		args = append(args, p.Contig)
	}
	if p.Range != nil {
		clauses = append(clauses, "seqid = ? AND start <= ? AND end >= ?")
		args = append(args, p.Range.SeqID, p.Range.End, p.Range.Start)
	}
	if p.MinTranscripts != nil {
		clauses = append(clauses, "transcript_count >= ?")
		args = append(args, *p.MinTranscripts)
	}
	if p.MaxTranscripts != nil {
		clauses = append(clauses, "transcript_count <= ?")
		args = append(args, *p.MaxTranscripts)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// ListGenes returns up to p.Limit+1 genes matching p's filters (the extra
// row lets the caller detect has_more without a second COUNT query),
// ordered by (seqid, start, gene_id) unless p.SortRegionAsc requests
// region-first ordering — which, since a Region is always single-contig,
// reduces to the same tuple order within that one contig.
func (g *GeneStore) ListGenes(ctx context.Context, p query.Params, after *GeneCursor) ([]model.Gene, error) {
	where, args := geneFilter(p)
	if after != nil {
		cond := "(seqid > ? OR (seqid = ? AND (start > ? OR (start = ? AND gene_id > ?))))"
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, after.SeqID, after.SeqID, after.Start, after.Start, after.GeneID)
	}

	q := `SELECT gene_id, name, seqid, start, end, strand, biotype, transcript_count, sequence_length, signature_sha256
FROM genes` + where + ` ORDER BY seqid ASC, start ASC, gene_id ASC LIMIT ?`
	args = append(args, p.Limit+1)

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list genes: %v", ErrTransport, err)
	}
	defer rows.Close()

	var out []model.Gene
	for rows.Next() {
		var gene model.Gene
		var geneID, strand string
		if err := rows.Scan(&geneID, &gene.Name, &gene.SeqID, &gene.Start, &gene.End, &strand,
			&gene.Biotype, &gene.TranscriptCount, &gene.SequenceLength, &gene.SignatureSHA256); err != nil {
			return nil, fmt.Errorf("%w: scan gene row: %v", ErrTransport, err)
		}
		gene.GeneID = model.GeneID(geneID)
		gene.Strand = model.Strand(strand)
		out = append(out, gene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list genes: %v", ErrTransport, err)
	}
	return out, nil
}

// CountGenes returns the total number of genes matching p's filters,
// ignoring limit/cursor.
func (g *GeneStore) CountGenes(ctx context.Context, p query.Params) (int64, error) {
	where, args := geneFilter(p)
	var n int64
	row := g.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM genes"+where, args...)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count genes: %v", ErrTransport, err)
	}
	return n, nil
}

// ErrNoRows is returned by single-row lookups when nothing matches.
var ErrNoRows = sql.ErrNoRows

// GeneByID returns the single gene with the given id.
func (g *GeneStore) GeneByID(ctx context.Context, geneID string) (model.Gene, error) {
	row := g.db.QueryRowContext(ctx, `SELECT gene_id, name, seqid, start, end, strand, biotype, transcript_count, sequence_length, signature_sha256
FROM genes WHERE gene_id = ?`, geneID)
	var gene model.Gene
	var id, strand string
	if err := row.Scan(&id, &gene.Name, &gene.SeqID, &gene.Start, &gene.End, &strand,
		&gene.Biotype, &gene.TranscriptCount, &gene.SequenceLength, &gene.SignatureSHA256); err != nil {
		if err == sql.ErrNoRows {
			return model.Gene{}, ErrNoRows
		}
		return model.Gene{}, fmt.Errorf("%w: gene by id: %v", ErrTransport, err)
	}
	gene.GeneID = model.GeneID(id)
	gene.Strand = model.Strand(strand)
	return gene, nil
}

// ListTranscriptsForGene returns every transcript whose parent_gene_id is
// geneID, ordered by (seqid, start, transcript_id).
func (g *GeneStore) ListTranscriptsForGene(ctx context.Context, geneID string) ([]model.Transcript, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT transcript_id, parent_gene_id, type, biotype, seqid, start, end, exon_count, total_exon_span, cds_present
FROM transcripts WHERE parent_gene_id = ? ORDER BY seqid ASC, start ASC, transcript_id ASC`, geneID)
	if err != nil {
		return nil, fmt.Errorf("%w: list transcripts: %v", ErrTransport, err)
	}
	defer rows.Close()

	var out []model.Transcript
	for rows.Next() {
		var t model.Transcript
		var txID, parentID string
		var cdsPresent int
		if err := rows.Scan(&txID, &parentID, &t.Type, &t.Biotype, &t.SeqID, &t.Start, &t.End,
			&t.ExonCount, &t.TotalExonSpan, &cdsPresent); err != nil {
			return nil, fmt.Errorf("%w: scan transcript row: %v", ErrTransport, err)
		}
		t.TranscriptID = model.TranscriptID(txID)
		t.ParentGeneID = model.GeneID(parentID)
		t.CDSPresent = cdsPresent != 0
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list transcripts: %v", ErrTransport, err)
	}
	return out, nil
}

// TranscriptByID returns the single transcript with the given id.
func (g *GeneStore) TranscriptByID(ctx context.Context, transcriptID string) (model.Transcript, error) {
	row := g.db.QueryRowContext(ctx, `SELECT transcript_id, parent_gene_id, type, biotype, seqid, start, end, exon_count, total_exon_span, cds_present
FROM transcripts WHERE transcript_id = ?`, transcriptID)
	var t model.Transcript
	var txID, parentID string
	var cdsPresent int
	if err := row.Scan(&txID, &parentID, &t.Type, &t.Biotype, &t.SeqID, &t.Start, &t.End,
		&t.ExonCount, &t.TotalExonSpan, &cdsPresent); err != nil {
		if err == sql.ErrNoRows {
			return model.Transcript{}, ErrNoRows
		}
		return model.Transcript{}, fmt.Errorf("%w: transcript by id: %v", ErrTransport, err)
	}
	t.TranscriptID = model.TranscriptID(txID)
	t.ParentGeneID = model.GeneID(parentID)
	t.CDSPresent = cdsPresent != 0
	return t, nil
}
