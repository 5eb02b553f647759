package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
)

// ReadOptions control how a CSV export is decoded.
type ReadOptions struct {
	Separator  rune
	Encoding   string // any WHATWG label, e.g. "utf-8", "windows-1252"
	Columns    ColumnMap
	ImportDate time.Time
}

// ReadFile parses one delimited export and tags every row with the file's
// base name and opts.ImportDate.
func ReadFile(path string, opts ReadOptions) ([]datasource.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Read(f, filepath.Base(path), opts)
}

// Read parses delimited text from r. A leading byte-order mark is honoured
// and stripped whatever the configured encoding.
func Read(r io.Reader, source string, opts ReadOptions) ([]datasource.Row, error) {
	label := opts.Encoding
	if label == "" {
		label = "utf-8"
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}

	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())))
	cr.Comma = opts.Separator
	if cr.Comma == 0 {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := indexHeader(header, opts.Columns)
	if idx.phone < 0 {
		return nil, fmt.Errorf("missing column %q", opts.Columns.PhoneNumber)
	}

	var rows []datasource.Row
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv.ParseError already carries the physical line.
			return nil, fmt.Errorf("read record: %w", err)
		}
		if blank(fields) {
			continue
		}

		calls, err := parseCalls(field(fields, idx.calls))
		if err != nil {
			line, _ := cr.FieldPos(max(idx.calls, 0))
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		extra, err := idx.extra(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, datasource.Row{
			Record: contact.Record{
				Status:      field(fields, idx.status),
				TotalCalls:  calls,
				FirstName:   field(fields, idx.first),
				LastName:    field(fields, idx.last),
				PhoneNumber: field(fields, idx.phone),
				Email:       field(fields, idx.email),
				SourceFile:  source,
			},
			Extra:      extra,
			ImportDate: opts.ImportDate,
		})
	}
	return rows, nil
}

type headerIndex struct {
	status, calls, first, last, phone, email int

	// unmapped lists the header positions feeding no contact field,
	// keyed by their header name.
	unmapped []extraColumn
}

type extraColumn struct {
	pos int
	key string
}

// extra encodes the non-empty unmapped fields of a record as a JSON object.
// Keys come out sorted, so equal records encode identically.
func (h headerIndex) extra(fields []string) (string, error) {
	vals := make(map[string]string, len(h.unmapped))
	for _, c := range h.unmapped {
		if v := field(fields, c.pos); v != "" {
			vals[c.key] = v
		}
	}
	if len(vals) == 0 {
		return "", nil
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("encode extra fields: %w", err)
	}
	return string(data), nil
}

func indexHeader(header []string, cols ColumnMap) headerIndex {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	lookup := func(name string) int {
		if i, ok := pos[name]; ok && name != "" {
			return i
		}
		return -1
	}
	idx := headerIndex{
		status: lookup(cols.Status),
		calls:  lookup(cols.TotalCalls),
		first:  lookup(cols.FirstName),
		last:   lookup(cols.LastName),
		phone:  lookup(cols.PhoneNumber),
		email:  lookup(cols.Email),
	}

	mapped := map[int]bool{
		idx.status: true, idx.calls: true, idx.first: true,
		idx.last: true, idx.phone: true, idx.email: true,
	}
	used := make(map[string]bool, len(header))
	for i, h := range header {
		if mapped[i] {
			continue
		}
		key := strings.TrimSpace(h)
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		for base, n := key, 2; used[key]; n++ {
			key = fmt.Sprintf("%s_%d", base, n)
		}
		used[key] = true
		idx.unmapped = append(idx.unmapped, extraColumn{pos: i, key: key})
	}
	return idx
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseCalls accepts integers and integral floats ("3.0" from spreadsheet
// exports). Empty means zero.
func parseCalls(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative call count %d", n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid call count %q", v)
	}
	return int(f), nil
}
