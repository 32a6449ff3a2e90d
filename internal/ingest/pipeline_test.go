package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bijux/atlas/pkg/model"
)

const fixtureGFF3 = `##gff-version 3
1	test	gene	100	500	.	+	.	ID=gene1;gene_name=ABC1;gene_biotype=protein_coding
1	test	mRNA	100	500	.	+	.	ID=tx1;Parent=gene1
1	test	exon	100	200	.	+	.	ID=exon1;Parent=tx1
1	test	exon	300	500	.	+	.	ID=exon2;Parent=tx1
1	test	CDS	100	200	.	+	0	ID=cds1;Parent=tx1
1	test	gene	1000	1200	.	-	.	ID=gene2;gene_name=XYZ2;gene_biotype=lncRNA
`

const fixtureFASTA = ">1\n" +
	"ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT\n"

const fixtureFAI = "1\t2000\t3\t60\t61\n"

func writeFixtures(t *testing.T) (gff3, fasta, fai string) {
	t.Helper()
	dir := t.TempDir()
	gff3 = filepath.Join(dir, "annotation.gff3")
	fasta = filepath.Join(dir, "sequence.fasta")
	fai = filepath.Join(dir, "sequence.fasta.fai")
	if err := os.WriteFile(gff3, []byte(fixtureGFF3), 0o644); err != nil {
		t.Fatalf("write gff3: %v", err)
	}
	if err := os.WriteFile(fasta, []byte(fixtureFASTA), 0o644); err != nil {
		t.Fatalf("write fasta: %v", err)
	}
	if err := os.WriteFile(fai, []byte(fixtureFAI), 0o644); err != nil {
		t.Fatalf("write fai: %v", err)
	}
	return gff3, fasta, fai
}

func runFixture(t *testing.T, outRoot string) Result {
	t.Helper()
	gff3, fasta, fai := writeFixtures(t)
	dataset, err := model.NewDatasetIDNormalized("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	opts := DefaultOptions()
	opts.GFF3Path = gff3
	opts.FASTAPath = fasta
	opts.FAIPath = fai
	opts.OutputRoot = outRoot
	opts.Dataset = dataset

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return result
}

func TestRunProducesExpectedCounts(t *testing.T) {
	result := runFixture(t, t.TempDir())
	if result.Manifest.Stats.GeneCount != 2 {
		t.Errorf("gene count = %d, want 2", result.Manifest.Stats.GeneCount)
	}
	if result.Manifest.Stats.TranscriptCount != 1 {
		t.Errorf("transcript count = %d, want 1", result.Manifest.Stats.TranscriptCount)
	}
	if result.Manifest.Stats.ContigCount != 1 {
		t.Errorf("contig count = %d, want 1", result.Manifest.Stats.ContigCount)
	}
	if !result.Manifest.VerifyHash() {
		t.Errorf("manifest artifact hash failed self-verification")
	}
	if len(result.Events) == 0 {
		t.Errorf("expected a non-empty stage event log")
	}
}

func TestRunIsByteDeterministicAcrossRuns(t *testing.T) {
	r1 := runFixture(t, t.TempDir())
	r2 := runFixture(t, t.TempDir())

	if r1.Manifest.ArtifactHash != r2.Manifest.ArtifactHash {
		t.Fatalf("manifest hash not deterministic: %s != %s", r1.Manifest.ArtifactHash, r2.Manifest.ArtifactHash)
	}
	if r1.Manifest.Checksums.SQLiteSHA256 != r2.Manifest.Checksums.SQLiteSHA256 {
		t.Fatalf("sqlite artifact hash not deterministic: %s != %s", r1.Manifest.Checksums.SQLiteSHA256, r2.Manifest.Checksums.SQLiteSHA256)
	}

	b1, err := os.ReadFile(r1.ReleaseGeneIndexPath)
	if err != nil {
		t.Fatalf("read release gene index 1: %v", err)
	}
	b2, err := os.ReadFile(r2.ReleaseGeneIndexPath)
	if err != nil {
		t.Fatalf("read release gene index 2: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("release gene index bytes not deterministic")
	}
}

func TestRunRejectsUnknownDefaultDataset(t *testing.T) {
	gff3, fasta, fai := writeFixtures(t)
	dataset, err := model.NewDatasetIDNormalized("0", "unknown", "unknown")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	opts := DefaultOptions()
	opts.GFF3Path = gff3
	opts.FASTAPath = fasta
	opts.FAIPath = fai
	opts.OutputRoot = t.TempDir()
	opts.Dataset = dataset

	if _, err := Run(context.Background(), opts); err == nil {
		t.Fatalf("expected Run to reject the implicit default dataset identity")
	}
}

func TestRunReportOnlySkipsPersist(t *testing.T) {
	gff3, fasta, fai := writeFixtures(t)
	dataset, err := model.NewDatasetIDNormalized("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	opts := DefaultOptions()
	opts.GFF3Path = gff3
	opts.FASTAPath = fasta
	opts.FAIPath = fai
	opts.OutputRoot = t.TempDir()
	opts.Dataset = dataset
	opts.ReportOnly = true

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ManifestPath != "" {
		t.Errorf("report-only run should not persist a manifest, got %q", result.ManifestPath)
	}
}
