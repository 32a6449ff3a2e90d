package sequence

import "testing"

func TestParseAndExtract(t *testing.T) {
	data := []byte(">chr1 some description\nACGTACGT\nACGT\n>chr2\nTTTTGGGG\n")
	records, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if l, ok := records.Length("chr1"); !ok || l != 12 {
		t.Fatalf("chr1 length = %d, %v", l, ok)
	}
	got, err := records.Extract("chr1", 1, 4)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "ACGT" {
		t.Fatalf("Extract(1,4) = %q", got)
	}
	got, err = records.Extract("chr1", 9, 12)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "ACGT" {
		t.Fatalf("Extract(9,12) = %q", got)
	}
}

func TestExtractOutOfRange(t *testing.T) {
	records, err := Parse([]byte(">chr1\nACGT\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := records.Extract("chr1", 1, 10); err == nil {
		t.Fatal("expected error for out-of-range extract")
	}
	if _, err := records.Extract("chr2", 1, 1); err == nil {
		t.Fatal("expected error for unknown contig")
	}
}
