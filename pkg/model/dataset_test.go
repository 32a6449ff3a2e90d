package model

import "testing"

func TestDatasetIDCanonicalRoundTrip(t *testing.T) {
	d, err := NewDatasetID("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("NewDatasetID: %v", err)
	}
	if got, want := d.CanonicalString(), "110/homo_sapiens/GRCh38"; got != want {
		t.Fatalf("CanonicalString = %q, want %q", got, want)
	}
	back, err := ParseDatasetCanonicalString(d.CanonicalString())
	if err != nil {
		t.Fatalf("ParseDatasetCanonicalString: %v", err)
	}
	if back != d {
		t.Fatalf("round-trip mismatch: %+v != %+v", back, d)
	}
}

func TestDatasetIDKeyStringRoundTrip(t *testing.T) {
	d, err := NewDatasetID("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("NewDatasetID: %v", err)
	}
	key := d.KeyString()
	if key != "release=110&species=homo_sapiens&assembly=GRCh38" {
		t.Fatalf("unexpected key string: %s", key)
	}
	back, err := ParseDatasetKey(key)
	if err != nil {
		t.Fatalf("ParseDatasetKey: %v", err)
	}
	if back != d {
		t.Fatalf("round-trip mismatch: %+v != %+v", back, d)
	}
}

func TestParseDatasetKeyRejectsUnknownSegment(t *testing.T) {
	_, err := ParseDatasetKey("release=110&species=homo_sapiens&assembly=GRCh38&bogus=1")
	if err == nil {
		t.Fatalf("expected error for unknown segment")
	}
}

func TestSpeciesNormalization(t *testing.T) {
	s, err := ParseSpeciesNormalized("Homo-Sapiens")
	if err != nil {
		t.Fatalf("ParseSpeciesNormalized: %v", err)
	}
	if s != "homo_sapiens" {
		t.Fatalf("got %q, want homo_sapiens", s)
	}
}

func TestRegionParse(t *testing.T) {
	r, err := ParseRegion("chr1:10-20")
	if err != nil {
		t.Fatalf("ParseRegion: %v", err)
	}
	if r.SeqID != "chr1" || r.Start != 10 || r.End != 20 {
		t.Fatalf("unexpected region: %+v", r)
	}
	if _, err := ParseRegion("chr1:20-10"); err == nil {
		t.Fatalf("expected error for start > end")
	}
}

func TestReleaseMustBeNumeric(t *testing.T) {
	if _, err := ParseRelease("abc"); err == nil {
		t.Fatalf("expected error for non-numeric release")
	}
	if _, err := ParseRelease("110"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
