package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// writeGeneSummarySQLite emits the schema-versioned gene_summary.sqlite
// artifact: one row per gene, one row per transcript, indexed on
// transcript_id, parent_gene_id, biotype, type, and the (seqid, start,
// end) region tuple so range queries and gene/transcript lookups can be
// served directly from SQL rather than scanned in Go.
func writeGeneSummarySQLite(ctx context.Context, path string, n *normalized) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove existing sqlite file: %v", ErrIngest, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("%w: open sqlite: %v", ErrIngest, err)
	}
	defer db.Close()

	if err := createSchema(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrIngest, err)
	}
	defer tx.Rollback()

	geneStmt, err := tx.PrepareContext(ctx, `
INSERT INTO genes (gene_id, name, seqid, start, end, strand, biotype, transcript_count, sequence_length, signature_sha256)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare gene insert: %v", ErrIngest, err)
	}
	defer geneStmt.Close()

	for _, g := range n.Genes {
		if _, err := geneStmt.ExecContext(ctx, string(g.GeneID), g.Name, g.SeqID, g.Start, g.End,
			string(g.Strand), g.Biotype, g.TranscriptCount, g.SequenceLength, g.SignatureSHA256); err != nil {
			return fmt.Errorf("%w: insert gene %s: %v", ErrIngest, g.GeneID, err)
		}
	}

	txStmt, err := tx.PrepareContext(ctx, `
INSERT INTO transcripts (transcript_id, parent_gene_id, type, biotype, seqid, start, end, exon_count, total_exon_span, cds_present)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare transcript insert: %v", ErrIngest, err)
	}
	defer txStmt.Close()

	for _, t := range n.Transcripts {
		if _, err := txStmt.ExecContext(ctx, string(t.TranscriptID), string(t.ParentGeneID), t.Type, t.Biotype,
			t.SeqID, t.Start, t.End, t.ExonCount, t.TotalExonSpan, t.CDSPresent); err != nil {
			return fmt.Errorf("%w: insert transcript %s: %v", ErrIngest, t.TranscriptID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit sqlite tx: %v", ErrIngest, err)
	}
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE genes (
			gene_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			seqid TEXT NOT NULL,
			start INTEGER NOT NULL,
			end INTEGER NOT NULL,
			strand TEXT NOT NULL,
			biotype TEXT NOT NULL,
			transcript_count INTEGER NOT NULL,
			sequence_length INTEGER NOT NULL,
			signature_sha256 TEXT NOT NULL
		)`,
		`CREATE INDEX idx_genes_biotype ON genes(biotype)`,
		`CREATE INDEX idx_genes_region ON genes(seqid, start, end)`,
		`CREATE TABLE transcripts (
			transcript_id TEXT PRIMARY KEY,
			parent_gene_id TEXT NOT NULL,
			type TEXT NOT NULL,
			biotype TEXT NOT NULL,
			seqid TEXT NOT NULL,
			start INTEGER NOT NULL,
			end INTEGER NOT NULL,
			exon_count INTEGER NOT NULL,
			total_exon_span INTEGER NOT NULL,
			cds_present INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_transcripts_parent_gene_id ON transcripts(parent_gene_id)`,
		`CREATE INDEX idx_transcripts_biotype ON transcripts(biotype)`,
		`CREATE INDEX idx_transcripts_type ON transcripts(type)`,
		`CREATE INDEX idx_transcripts_region ON transcripts(seqid, start, end)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%w: create schema: %v", ErrIngest, err)
		}
	}
	return nil
}
