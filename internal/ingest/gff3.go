package ingest

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/bijux/atlas/pkg/model"
)

// rawFeature is one decoded GFF3 data line before any policy is applied.
type rawFeature struct {
	SeqID      string
	Type       string
	Start      uint64
	End        uint64
	Strand     model.Strand
	Attributes map[string]string
	ID         string
	Parent     string
	LineNo     int
}

// decodeGFF3 parses a GFF3 stream into raw feature rows. Comment lines
// (#) and the "##FASTA" sentinel (end of annotation, start of inline
// sequence) are recognized; blank lines are skipped. There is no
// third-party GFF3 parser among the example repos' dependency surface,
// so this is hand-rolled over bufio.Scanner, the same line-oriented
// decoding idiom the teacher uses for its own delimited-text formats.
func decodeGFF3(r io.Reader) ([]rawFeature, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var out []rawFeature
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "##FASTA" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		f, err := parseGFF3Line(line, lineNo)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read gff3: %v", ErrIngest, err)
	}
	return out, nil
}

func parseGFF3Line(line string, lineNo int) (rawFeature, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 9 {
		return rawFeature{}, fmt.Errorf("%w: line %d: expected 9 tab-separated columns, got %d", ErrIngest, lineNo, len(cols))
	}
	start, err := strconv.ParseUint(cols[3], 10, 64)
	if err != nil {
		return rawFeature{}, fmt.Errorf("%w: line %d: invalid start %q", ErrIngest, lineNo, cols[3])
	}
	end, err := strconv.ParseUint(cols[4], 10, 64)
	if err != nil {
		return rawFeature{}, fmt.Errorf("%w: line %d: invalid end %q", ErrIngest, lineNo, cols[4])
	}
	if start < 1 || start > end {
		return rawFeature{}, fmt.Errorf("%w: line %d: region must satisfy 1 <= start <= end", ErrIngest, lineNo)
	}
	strand, err := model.ParseStrand(cols[6])
	if err != nil {
		return rawFeature{}, fmt.Errorf("%w: line %d: %v", ErrIngest, lineNo, err)
	}
	attrs, err := parseGFF3Attributes(cols[8])
	if err != nil {
		return rawFeature{}, fmt.Errorf("%w: line %d: %v", ErrIngest, lineNo, err)
	}
	return rawFeature{
		SeqID:      cols[0],
		Type:       cols[2],
		Start:      start,
		End:        end,
		Strand:     strand,
		Attributes: attrs,
		ID:         attrs["ID"],
		Parent:     attrs["Parent"],
		LineNo:     lineNo,
	}, nil
}

func parseGFF3Attributes(field string) (map[string]string, error) {
	out := make(map[string]string)
	field = strings.TrimSpace(field)
	if field == "" || field == "." {
		return out, nil
	}
	for _, pair := range strings.Split(field, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed attribute %q", pair)
		}
		key := strings.TrimSpace(kv[0])
		val, err := url.QueryUnescape(strings.TrimSpace(kv[1]))
		if err != nil {
			val = kv[1]
		}
		out[key] = val
	}
	return out, nil
}
