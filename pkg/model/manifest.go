package model

import "github.com/bijux/atlas/pkg/canonicaljson"

const ManifestSchemaVersion = 1
const DBSchemaVersion = 1

// Checksums holds the sha256 (lowercase hex) of every raw/derived input that
// feeds the manifest.
type Checksums struct {
	GFFSHA256    string `json:"gff_sha256"`
	FASTASHA256  string `json:"fasta_sha256"`
	FAISHA256    string `json:"fai_sha256"`
	SQLiteSHA256 string `json:"sqlite_sha256"`
}

// Stats holds aggregate counts recorded in the manifest.
type Stats struct {
	GeneCount       uint64 `json:"gene_count"`
	TranscriptCount uint64 `json:"transcript_count"`
	ContigCount     uint64 `json:"contig_count"`
}

// Manifest is the byte-stable artifact manifest produced exclusively by the
// ingest engine. It is immutable once published: the cache manager only ever
// reads it. ArtifactHash is computed over the canonical bytes of the manifest
// with ArtifactHash itself cleared, mirroring the hash-over-canonical-bytes-
// minus-hash-field idiom used for tamper-evident records elsewhere in this
// codebase.
type Manifest struct {
	SchemaVersion   int       `json:"schema_version"`
	DBSchemaVersion int       `json:"db_schema_version"`
	Dataset         DatasetID `json:"dataset"`
	Checksums       Checksums `json:"checksums"`
	Stats           Stats     `json:"stats"`
	ArtifactHash    string    `json:"artifact_hash"`
}

type manifestCanonical struct {
	SchemaVersion   int    `json:"schema_version"`
	DBSchemaVersion int    `json:"db_schema_version"`
	Release         string `json:"release"`
	Species         string `json:"species"`
	Assembly        string `json:"assembly"`
	GFFSHA256       string `json:"gff_sha256"`
	FASTASHA256     string `json:"fasta_sha256"`
	FAISHA256       string `json:"fai_sha256"`
	SQLiteSHA256    string `json:"sqlite_sha256"`
	GeneCount       uint64 `json:"gene_count"`
	TranscriptCount uint64 `json:"transcript_count"`
	ContigCount     uint64 `json:"contig_count"`
}

func (m Manifest) toCanonical() manifestCanonical {
	return manifestCanonical{
		SchemaVersion:   m.SchemaVersion,
		DBSchemaVersion: m.DBSchemaVersion,
		Release:         string(m.Dataset.Release),
		Species:         string(m.Dataset.Species),
		Assembly:        string(m.Dataset.Assembly),
		GFFSHA256:       m.Checksums.GFFSHA256,
		FASTASHA256:     m.Checksums.FASTASHA256,
		FAISHA256:       m.Checksums.FAISHA256,
		SQLiteSHA256:    m.Checksums.SQLiteSHA256,
		GeneCount:       m.Stats.GeneCount,
		TranscriptCount: m.Stats.TranscriptCount,
		ContigCount:     m.Stats.ContigCount,
	}
}

// CanonicalBytes returns the canonical JSON of the manifest, excluding
// ArtifactHash, used both to compute and to verify the hash.
func (m Manifest) CanonicalBytes() ([]byte, error) {
	return canonicaljson.Marshal(m.toCanonical())
}

// ComputeHash sets ArtifactHash to sha256(CanonicalBytes()).
func (m *Manifest) ComputeHash() error {
	b, err := m.CanonicalBytes()
	if err != nil {
		return err
	}
	m.ArtifactHash = canonicaljson.SHA256Hex(b)
	return nil
}

// VerifyHash reports whether the stored ArtifactHash matches the hash of the
// current canonical bytes.
func (m Manifest) VerifyHash() bool {
	b, err := m.CanonicalBytes()
	if err != nil {
		return false
	}
	return m.ArtifactHash == canonicaljson.SHA256Hex(b)
}

// CatalogEntry points at the derived artifacts for one published dataset.
type CatalogEntry struct {
	Dataset      DatasetID `json:"dataset"`
	ManifestPath string    `json:"manifest_path"`
	SQLitePath   string    `json:"sqlite_path"`
}

// Catalog is the ordered set of published datasets, sorted by
// Dataset.CanonicalString(). Uniqueness is one entry per dataset.
type Catalog struct {
	Entries []CatalogEntry `json:"entries"`
}

// SortEntries sorts entries by canonical string, the deterministic catalog
// ordering required by invariant I3.
func (c *Catalog) SortEntries() {
	entries := c.Entries
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].Dataset.CanonicalString() > entries[j].Dataset.CanonicalString() {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

// ValidateSorted reports whether entries are sorted and free of duplicate
// dataset keys.
func (c Catalog) ValidateSorted() bool {
	seen := make(map[string]struct{}, len(c.Entries))
	prev := ""
	for i, e := range c.Entries {
		cs := e.Dataset.CanonicalString()
		if i > 0 && cs < prev {
			return false
		}
		if _, dup := seen[cs]; dup {
			return false
		}
		seen[cs] = struct{}{}
		prev = cs
	}
	return true
}

// CanonicalBytes returns the canonical JSON of the catalog.
func (c Catalog) CanonicalBytes() ([]byte, error) {
	return canonicaljson.Marshal(c)
}

// GeneIndexEntry is one row of the release gene index.
type GeneIndexEntry struct {
	GeneID          string `json:"gene_id"`
	SeqID           string `json:"seqid"`
	Start           uint64 `json:"start"`
	End             uint64 `json:"end"`
	SignatureSHA256 string `json:"signature_sha256"`
}

// GeneIndex is the lexicographically sorted, duplicate-free release gene
// index (invariant I5).
type GeneIndex struct {
	Entries []GeneIndexEntry `json:"entries"`
}

func (idx *GeneIndex) Sort() {
	entries := idx.Entries
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && geneIndexLess(entries[j], entries[j-1]) {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func geneIndexLess(a, b GeneIndexEntry) bool {
	if a.SeqID != b.SeqID {
		return a.SeqID < b.SeqID
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.GeneID < b.GeneID
}

// AnomalyReport has fixed keys and sorted lists, emitted by the ingest
// engine's normalization stage.
type AnomalyReport struct {
	MissingParents                  []string `json:"missing_parents"`
	MissingTranscriptParents         []string `json:"missing_transcript_parents"`
	MultipleParentTranscripts        []string `json:"multiple_parent_transcripts"`
	UnknownContigs                   []string `json:"unknown_contigs"`
	OverlappingIDs                   []string `json:"overlapping_ids"`
	DuplicateGeneIDs                 []string `json:"duplicate_gene_ids"`
	OverlappingGeneIDsAcrossContigs  []string `json:"overlapping_gene_ids_across_contigs"`
	OrphanTranscripts                []string `json:"orphan_transcripts"`
	ParentCycles                     []string `json:"parent_cycles"`
	AttributeFallbacks               []string `json:"attribute_fallbacks"`
	UnknownFeatureTypes              []string `json:"unknown_feature_types"`
	MissingRequiredFields            []string `json:"missing_required_fields"`
}

func NewAnomalyReport() *AnomalyReport {
	return &AnomalyReport{
		MissingParents:                  []string{},
		MissingTranscriptParents:        []string{},
		MultipleParentTranscripts:       []string{},
		UnknownContigs:                  []string{},
		OverlappingIDs:                  []string{},
		DuplicateGeneIDs:                []string{},
		OverlappingGeneIDsAcrossContigs: []string{},
		OrphanTranscripts:               []string{},
		ParentCycles:                    []string{},
		AttributeFallbacks:              []string{},
		UnknownFeatureTypes:             []string{},
		MissingRequiredFields:           []string{},
	}
}

// SortAll sorts every list field, keeping the report's lists deterministic
// irrespective of observation order during ingest.
func (a *AnomalyReport) SortAll() {
	sortStrings(a.MissingParents)
	sortStrings(a.MissingTranscriptParents)
	sortStrings(a.MultipleParentTranscripts)
	sortStrings(a.UnknownContigs)
	sortStrings(a.OverlappingIDs)
	sortStrings(a.DuplicateGeneIDs)
	sortStrings(a.OverlappingGeneIDsAcrossContigs)
	sortStrings(a.OrphanTranscripts)
	sortStrings(a.ParentCycles)
	sortStrings(a.AttributeFallbacks)
	sortStrings(a.UnknownFeatureTypes)
	sortStrings(a.MissingRequiredFields)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1] > s[j] {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}
