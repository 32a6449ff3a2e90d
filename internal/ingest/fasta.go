package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ContigLengths maps a contig (seqid) to its length in bases, from a .fai
// index.
type ContigLengths map[string]uint64

// readFAIContigLengths parses a samtools-style .fai index: each line is
// "name\tlength\toffset\tlinebases\tlinewidth", only the first two columns
// matter here.
func readFAIContigLengths(r io.Reader) (ContigLengths, error) {
	scanner := bufio.NewScanner(r)
	out := make(ContigLengths)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("%w: fai line %d: expected at least 2 columns", ErrIngest, lineNo)
		}
		length, err := strconv.ParseUint(cols[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fai line %d: invalid length %q", ErrIngest, lineNo, cols[1])
		}
		out[cols[0]] = length
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read fai: %v", ErrIngest, err)
	}
	return out, nil
}

// synthesizeFAIFromFASTA deterministically derives contig lengths by
// scanning sequence records, used when no .fai is supplied and
// DevAllowAutoGenerateFAI is set. Scanning stops once maxBases bases have
// been read, in which case ok is false to signal a skipped-stage event
// rather than a hard failure.
func synthesizeFAIFromFASTA(r io.Reader, maxBases uint64) (ContigLengths, bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	out := make(ContigLengths)
	var current string
	var total uint64
	complete := true

	flush := func() {
		if current != "" {
			if _, ok := out[current]; !ok {
				out[current] = 0
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			flush()
			current = strings.Fields(strings.TrimPrefix(line, ">"))[0]
			out[current] = 0
			continue
		}
		if current == "" {
			continue
		}
		n := uint64(len(strings.TrimSpace(line)))
		if maxBases > 0 && total+n > maxBases {
			complete = false
			break
		}
		out[current] += n
		total += n
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: read fasta: %v", ErrIngest, err)
	}
	return out, complete, nil
}
