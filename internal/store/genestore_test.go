package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bijux/atlas/internal/query"
	"github.com/bijux/atlas/pkg/model"
)

func newFixtureGeneStore(t *testing.T) *GeneStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gene_summary.sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
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
		`INSERT INTO genes VALUES ('g1','abc1','1',100,200,'+','protein_coding',1,100,'sig1')`,
		`INSERT INTO genes VALUES ('g2','abc2','1',300,400,'+','protein_coding',2,100,'sig2')`,
		`INSERT INTO genes VALUES ('g3','xyz1','2',50,150,'-','lncRNA',0,100,'sig3')`,
		`INSERT INTO transcripts VALUES ('t1','g2','transcript','protein_coding','1',300,350,3,200,1)`,
		`INSERT INTO transcripts VALUES ('t2','g2','transcript','protein_coding','1',360,400,2,150,0)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec fixture stmt: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close fixture db: %v", err)
	}

	g, err := OpenGeneStore(path)
	if err != nil {
		t.Fatalf("OpenGeneStore: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func mustParams(t *testing.T, mutate func(*query.Params)) query.Params {
	t.Helper()
	p := query.Params{Limit: 50}
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func TestListGenesOrderingAndPagination(t *testing.T) {
	g := newFixtureGeneStore(t)
	p := mustParams(t, func(p *query.Params) { p.Limit = 2 })

	genes, err := g.ListGenes(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("ListGenes: %v", err)
	}
	if len(genes) != 3 {
		t.Fatalf("expected limit+1 = 3 rows back, got %d", len(genes))
	}
	if genes[0].GeneID != "g1" || genes[1].GeneID != "g2" || genes[2].GeneID != "g3" {
		t.Fatalf("unexpected order: %+v", genes)
	}

	after := &GeneCursor{SeqID: genes[0].SeqID, Start: genes[0].Start, GeneID: string(genes[0].GeneID)}
	rest, err := g.ListGenes(context.Background(), p, after)
	if err != nil {
		t.Fatalf("ListGenes page 2: %v", err)
	}
	if len(rest) != 2 || rest[0].GeneID != "g2" {
		t.Fatalf("unexpected page2: %+v", rest)
	}
}

func TestListGenesFilters(t *testing.T) {
	g := newFixtureGeneStore(t)

	byBiotype := mustParams(t, func(p *query.Params) { p.Biotype = "lncRNA" })
	genes, err := g.ListGenes(context.Background(), byBiotype, nil)
	if err != nil {
		t.Fatalf("ListGenes biotype: %v", err)
	}
	if len(genes) != 1 || genes[0].GeneID != "g3" {
		t.Fatalf("expected only g3, got %+v", genes)
	}

	byNameLike := mustParams(t, func(p *query.Params) { p.NameLike = "abc*" })
	genes, err = g.ListGenes(context.Background(), byNameLike, nil)
	if err != nil {
		t.Fatalf("ListGenes name_like: %v", err)
	}
	if len(genes) != 2 {
		t.Fatalf("expected 2 abc* genes, got %+v", genes)
	}

	byRange := mustParams(t, func(p *query.Params) {
		p.Range = &model.Region{SeqID: "1", Start: 250, End: 350}
	})
	genes, err = g.ListGenes(context.Background(), byRange, nil)
	if err != nil {
		t.Fatalf("ListGenes range: %v", err)
	}
	if len(genes) != 1 || genes[0].GeneID != "g2" {
		t.Fatalf("expected only overlapping gene g2, got %+v", genes)
	}
}

func TestCountGenes(t *testing.T) {
	g := newFixtureGeneStore(t)
	n, err := g.CountGenes(context.Background(), mustParams(t, nil))
	if err != nil {
		t.Fatalf("CountGenes: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestGeneByIDNotFound(t *testing.T) {
	g := newFixtureGeneStore(t)
	if _, err := g.GeneByID(context.Background(), "missing"); err != ErrNoRows {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	gene, err := g.GeneByID(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GeneByID: %v", err)
	}
	if gene.Name != "abc1" {
		t.Fatalf("unexpected gene: %+v", gene)
	}
}

func TestListTranscriptsForGene(t *testing.T) {
	g := newFixtureGeneStore(t)
	txs, err := g.ListTranscriptsForGene(context.Background(), "g2")
	if err != nil {
		t.Fatalf("ListTranscriptsForGene: %v", err)
	}
	if len(txs) != 2 || txs[0].TranscriptID != "t1" || txs[1].TranscriptID != "t2" {
		t.Fatalf("unexpected transcripts: %+v", txs)
	}
	if !txs[0].CDSPresent || txs[1].CDSPresent {
		t.Fatalf("unexpected cds_present decoding: %+v", txs)
	}
}

func TestTranscriptByIDNotFound(t *testing.T) {
	g := newFixtureGeneStore(t)
	if _, err := g.TranscriptByID(context.Background(), "missing"); err != ErrNoRows {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestGeneCursorRoundTrip(t *testing.T) {
	c := GeneCursor{SeqID: "1", Start: 300, GeneID: "g2"}
	token := EncodeGeneCursor(c)
	got, err := DecodeGeneCursor(token)
	if err != nil {
		t.Fatalf("DecodeGeneCursor: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, c)
	}
	if _, err := DecodeGeneCursor("not-valid-base64!!"); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}
