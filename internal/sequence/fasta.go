// Package sequence provides read-side random access over a dataset's raw
// FASTA bytes, backing the gene-sequence and region-sequence endpoints.
// Unlike internal/ingest's FASTA scanning (which only needs contig
// lengths), this package keeps each contig's bases in memory so arbitrary
// sub-ranges can be sliced without re-scanning the file per request.
package sequence

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var ErrSequence = errors.New("sequence: failed")

// Records maps a contig (seqid) to its full base sequence.
type Records map[string][]byte

// Parse reads FASTA-formatted bytes into Records. Line endings and
// whitespace within sequence lines are stripped; header lines are split on
// the first whitespace run, matching the seqid convention used by .fai
// indexes and GFF3 column 1.
func Parse(data []byte) (Records, error) {
	out := make(Records)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 256*1024*1024)

	var current string
	var buf []byte
	flush := func() {
		if current != "" {
			out[current] = buf
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			flush()
			current = strings.Fields(strings.TrimPrefix(line, ">"))[0]
			buf = nil
			continue
		}
		if current == "" {
			continue
		}
		buf = append(buf, []byte(strings.TrimSpace(line))...)
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan fasta: %v", ErrSequence, err)
	}
	return out, nil
}

// Extract returns the 1-based, inclusive base range [start, end] of seqid as
// an uppercase string.
func (r Records) Extract(seqid string, start, end uint64) (string, error) {
	bases, ok := r[seqid]
	if !ok {
		return "", fmt.Errorf("%w: unknown contig %q", ErrSequence, seqid)
	}
	if start == 0 || start > end {
		return "", fmt.Errorf("%w: invalid range [%d,%d]", ErrSequence, start, end)
	}
	if end > uint64(len(bases)) {
		return "", fmt.Errorf("%w: range [%d,%d] exceeds contig length %d", ErrSequence, start, end, len(bases))
	}
	return strings.ToUpper(string(bases[start-1 : end])), nil
}

// Length reports seqid's base count, or 0/false if unknown.
func (r Records) Length(seqid string) (uint64, bool) {
	bases, ok := r[seqid]
	if !ok {
		return 0, false
	}
	return uint64(len(bases)), true
}
