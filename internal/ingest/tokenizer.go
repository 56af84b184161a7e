package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Delimiters are the candidate separators, in tie-break order.
var Delimiters = []rune{',', ';', '\t', '|'}

// ParseError is a row-level problem found while parsing. Line is the 1-based
// line in the input.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"error"`
}

// ParseResult is the output of either parser path.
type ParseResult struct {
	Path      Path
	Delimiter rune
	// Headers holds the raw header cells; ColumnMapping.Key has the lower-cased form.
	Headers []string
	Mapping []ColumnMapping
	Records []Record
	Errors  []ParseError
}

// TokenizeOptions control the structured parser.
type TokenizeOptions struct {
	// Delimiter forces a separator. Zero detects it from the header line.
	Delimiter rune
	// Lenient keeps rows whose field count disagrees with the header, padded
	// or with overflow moved to Extra, and tolerates stray quotes.
	Lenient bool
	// Progress receives bytes consumed out of total. Optional.
	Progress func(done, total int)
	Logger   *slog.Logger
}

// Tokenize parses text as a header-keyed delimited file.
//
// It fails with a *StructuralError when the text has no candidate delimiter,
// when the header row is not key/value shaped, or when no record survives.
// Row-level problems are collected in ParseResult.Errors.
func Tokenize(text string, opts TokenizeOptions) (*ParseResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(text) == "" {
		return nil, structural(PathStructured, ErrEmptyInput)
	}
	if !strings.ContainsAny(text, string(Delimiters)) {
		return nil, structural(PathStructured, ErrNotCSV)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(firstLine(text))
		logger.Debug("delimiter detected", "delimiter", string(delim))
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = opts.Lenient

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, structural(PathStructured, ErrNoRecords)
		}
		return nil, structural(PathStructured, fmt.Errorf("%w: %v", ErrMalformedHeader, err))
	}
	if !keyValueShaped(header) {
		return nil, structural(PathStructured, ErrMalformedHeader)
	}

	res := &ParseResult{
		Path:      PathStructured,
		Delimiter: delim,
		Headers:   header,
		Mapping:   MapHeaders(header, false, logger),
	}

	total := len(text)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Errors = append(res.Errors, ParseError{Line: pe.StartLine, Message: pe.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := r.FieldPos(0)
		if blankRow(row) {
			continue
		}

		if len(row) != len(header) {
			res.Errors = append(res.Errors, ParseError{
				Line:    line,
				Message: fmt.Sprintf("expected %d fields, got %d", len(header), len(row)),
			})
			if !opts.Lenient {
				continue
			}
		}

		res.Records = append(res.Records, buildRecord(res.Mapping, row))

		if opts.Progress != nil {
			opts.Progress(int(r.InputOffset()), total)
		}
	}

	if len(res.Records) == 0 {
		return nil, structural(PathStructured, ErrNoRecords)
	}

	if opts.Progress != nil {
		opts.Progress(total, total)
	}
	return res, nil
}

// DetectDelimiter picks the candidate that splits line into the most
// fields. Ties keep the earlier candidate, so comma wins.
func DetectDelimiter(line string) rune {
	best, bestCount := Delimiters[0], 0
	for _, d := range Delimiters {
		if n := len(splitLine(line, d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// keyValueShaped rejects header rows that cannot key a record: a single
// cell, or only blank cells.
func keyValueShaped(header []string) bool {
	if len(header) < 2 {
		return false
	}
	for _, h := range header {
		if FoldHeader(h) != "" {
			return true
		}
	}
	return false
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func firstLine(text string) string {
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
}
