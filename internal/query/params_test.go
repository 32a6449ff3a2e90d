package query

import (
	"net/url"
	"testing"

	"github.com/bijux/atlas/pkg/model"
)

func testDataset(t *testing.T) model.DatasetID {
	t.Helper()
	ds, err := ParseDatasetForTest()
	if err != nil {
		t.Fatalf("test dataset: %v", err)
	}
	return ds
}

// ParseDatasetForTest builds a fixed dataset identity for table-driven
// query tests without depending on an on-disk catalog.
func ParseDatasetForTest() (model.DatasetID, error) {
	return model.ParseDatasetCanonicalString("110/homo_sapiens/GRCh38")
}

func TestParseRejectsUnknownParameter(t *testing.T) {
	ds := testDataset(t)
	raw := url.Values{"bogus": {"1"}}
	_, errs := Parse(ds, raw)
	if len(errs) != 1 || errs[0].Parameter != "bogus" {
		t.Fatalf("expected single unknown-parameter error, got %+v", errs)
	}
}

func TestParseLimitBounds(t *testing.T) {
	ds := testDataset(t)
	cases := []struct {
		name    string
		limit   string
		wantErr bool
		want    int
	}{
		{"default", "", false, DefaultLimit},
		{"valid", "10", false, 10},
		{"zero", "0", true, 0},
		{"over_max", "501", true, 0},
		{"not_a_number", "abc", true, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := url.Values{}
			if c.limit != "" {
				raw.Set("limit", c.limit)
			}
			p, errs := Parse(ds, raw)
			if c.wantErr {
				if len(errs) == 0 {
					t.Fatalf("expected error for limit=%q", c.limit)
				}
				return
			}
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %+v", errs)
			}
			if p.Limit != c.want {
				t.Fatalf("limit = %d, want %d", p.Limit, c.want)
			}
		})
	}
}

func TestParseRangeOverMaxSpanRejected(t *testing.T) {
	ds := testDataset(t)
	raw := url.Values{"range": {"1:1-6000000"}}
	_, errs := Parse(ds, raw)
	if len(errs) != 1 || errs[0].Parameter != "range" {
		t.Fatalf("expected range span error, got %+v", errs)
	}
	code, _ := ToEnvelopeFieldErrors(errs)
	if string(code) != "RangeTooLarge" {
		t.Fatalf("expected RangeTooLarge code, got %s", code)
	}
}

func TestParseTooManyFiltersRejected(t *testing.T) {
	ds := testDataset(t)
	raw := url.Values{
		"name":            {"BRCA2"},
		"name_like":       {"BRC"},
		"biotype":         {"protein_coding"},
		"contig":          {"13"},
		"min_transcripts": {"1"},
		"max_transcripts": {"10"},
		"range":           {"13:1-100"},
	}
	_, errs := Parse(ds, raw)
	found := false
	for _, e := range errs {
		if e.Parameter == "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a filter-count error, got %+v", errs)
	}
}

func TestParseIncludeValidatesMembers(t *testing.T) {
	ds := testDataset(t)
	raw := url.Values{"include": {"coords,bogus"}}
	p, errs := Parse(ds, raw)
	if len(errs) != 1 || errs[0].Parameter != "include" {
		t.Fatalf("expected include error, got %+v errs=%+v", p.Include, errs)
	}
}

func TestParseFieldsLegacyParamRejected(t *testing.T) {
	ds := testDataset(t)
	raw := url.Values{"fields": {"gene_id,name"}}
	_, errs := Parse(ds, raw)
	if len(errs) != 1 || errs[0].Parameter != "fields" {
		t.Fatalf("expected fields rejection, got %+v", errs)
	}
}

func TestParseNameLikeWildcardGrammar(t *testing.T) {
	ds := testDataset(t)
	cases := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"plain_prefix", "BRCA", false},
		{"trailing_star", "BRCA*", false},
		{"leading_star", "*BRCA", true},
		{"interior_star", "BR*CA", true},
		{"percent", "BRCA%", true},
		{"question", "BRCA?", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := url.Values{"name_like": {c.value}}
			p, errs := Parse(ds, raw)
			if c.wantErr {
				if len(errs) == 0 {
					t.Fatalf("expected error for name_like=%q", c.value)
				}
				return
			}
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %+v", errs)
			}
			if p.NameLike != c.value {
				t.Fatalf("NameLike = %q, want %q", p.NameLike, c.value)
			}
		})
	}
}

func TestParseSortRegionAscRequiresRange(t *testing.T) {
	ds := testDataset(t)
	if _, errs := Parse(ds, url.Values{"sort": {"region:asc"}}); len(errs) == 0 {
		t.Fatalf("expected error when sort=region:asc has no range")
	}
	p, errs := Parse(ds, url.Values{"sort": {"region:asc"}, "range": {"13:1-100"}})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if !p.SortRegionAsc {
		t.Fatalf("expected SortRegionAsc=true")
	}
}

func TestParseSortUnknownValueRejected(t *testing.T) {
	ds := testDataset(t)
	if _, errs := Parse(ds, url.Values{"sort": {"name:desc"}}); len(errs) == 0 {
		t.Fatalf("expected error for unknown sort value")
	}
}

func TestClassifySingleGeneIsCheap(t *testing.T) {
	ds := testDataset(t)
	p, errs := Parse(ds, url.Values{"gene_id": {"ENSG00000139618"}})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if got := Classify(p, OpGeneByID); got != ClassCheap {
		t.Fatalf("classify = %s, want cheap", got)
	}
}

func TestClassifyLargeRangeIsHeavy(t *testing.T) {
	ds := testDataset(t)
	p, errs := Parse(ds, url.Values{"range": {"1:1-2000000"}})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if got := Classify(p, OpSequenceRegion); got != ClassHeavy {
		t.Fatalf("classify = %s, want heavy", got)
	}
}
