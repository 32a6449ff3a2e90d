package query

import (
	"testing"

	"github.com/bijux/atlas/pkg/model"
)

func rangeOfSpan(span uint64) *model.Region {
	return &model.Region{SeqID: "1", Start: 1, End: span}
}

func TestClassifyPointLookupsAreCheap(t *testing.T) {
	for _, op := range []Operation{OpGeneByID, OpTranscriptByID, OpGeneSequence} {
		if got := Classify(Params{}, op); got != ClassCheap {
			t.Errorf("Classify(%s) = %s, want cheap", op, got)
		}
	}
}

func TestClassifySequenceRegionScalesWithSpan(t *testing.T) {
	cases := []struct {
		span uint64
		want Class
	}{
		{span: 100, want: ClassCheap},
		{span: 60_000, want: ClassMedium},
		{span: 2_000_000, want: ClassHeavy},
	}
	for _, c := range cases {
		p := Params{Range: rangeOfSpan(c.span)}
		if got := Classify(p, OpSequenceRegion); got != c.want {
			t.Errorf("Classify(span=%d) = %s, want %s", c.span, got, c.want)
		}
	}
}

func TestClassifySequenceRegionWithoutRangeIsHeavy(t *testing.T) {
	if got := Classify(Params{}, OpSequenceRegion); got != ClassHeavy {
		t.Errorf("Classify(no range) = %s, want heavy (open-ended scan)", got)
	}
}

func TestClassifyGeneCountEscalatesOnNameLike(t *testing.T) {
	if got := Classify(Params{}, OpGeneCount); got != ClassCheap {
		t.Errorf("Classify(gene_count, no name_like) = %s, want cheap", got)
	}
	if got := Classify(Params{NameLike: "abc"}, OpGeneCount); got != ClassMedium {
		t.Errorf("Classify(gene_count, name_like) = %s, want medium", got)
	}
}

func TestClassifyListGenesByExactGeneIDIsCheap(t *testing.T) {
	p := Params{GeneID: "gene1"}
	if got := Classify(p, OpListGenes); got != ClassCheap {
		t.Errorf("Classify(list_genes, gene_id) = %s, want cheap", got)
	}
}

func TestClassifyListGenesWithHugeRangeIsHeavy(t *testing.T) {
	p := Params{Range: rangeOfSpan(2_000_000)}
	if got := Classify(p, OpListGenes); got != ClassHeavy {
		t.Errorf("Classify(list_genes, huge range) = %s, want heavy", got)
	}
}

func TestClassifyListGenesOverPageLimitIsMedium(t *testing.T) {
	p := Params{Limit: 500}
	if got := Classify(p, OpListGenes); got != ClassMedium {
		t.Errorf("Classify(list_genes, limit=500) = %s, want medium", got)
	}
}

func TestClassifyUnknownOperationDefaultsToMedium(t *testing.T) {
	if got := Classify(Params{}, Operation("made_up")); got != ClassMedium {
		t.Errorf("Classify(unknown op) = %s, want medium", got)
	}
}
