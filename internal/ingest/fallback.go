package ingest

import (
	"fmt"
	"log/slog"
	"strings"
)

// DefaultLayoutMarker is the file name fragment that selects the fixed
// standard column layout.
const DefaultLayoutMarker = "standard"

// FallbackOptions control the heuristic parser.
type FallbackOptions struct {
	// FileName is checked for LayoutMarker.
	FileName string
	// LayoutMarker overrides DefaultLayoutMarker. "-" disables the name check.
	LayoutMarker string
	Progress     func(done, total int)
	Logger       *slog.Logger
}

// ParseFallback is the second-chance parser used after Tokenize fails
// structurally. It scans non-blank lines with a quote-aware splitter, maps
// headers through the synonym table and guesses positions for required
// fields it cannot find. Only rows with a code or a name are kept.
func ParseFallback(text string, opts FallbackOptions) (*ParseResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// lineNos[i] is the 1-based input line of lines[i].
	var (
		lines   []string
		lineNos []int
	)
	for i, l := range splitLines(strings.TrimPrefix(text, "\ufeff")) {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
			lineNos = append(lineNos, i+1)
		}
	}
	if len(lines) == 0 {
		return nil, structural(PathFallback, ErrEmptyInput)
	}

	delim := DetectDelimiter(lines[0])
	headers := splitLine(lines[0], delim)
	if len(headers) < 2 {
		return nil, structural(PathFallback, ErrNotCSV)
	}
	logger.Debug("fallback delimiter", "delimiter", string(delim), "fields", len(headers))

	marker := opts.LayoutMarker
	switch marker {
	case "":
		marker = DefaultLayoutMarker
	case "-":
		marker = ""
	}

	var mapping []ColumnMapping
	if isStandardLayout(opts.FileName, marker, headers) {
		logger.Info("using fixed standard layout", "file", opts.FileName)
		mapping = fixedLayoutMapping(headers)
	} else {
		mapping = MapHeaders(headers, true, logger)
	}

	res := &ParseResult{
		Path:      PathFallback,
		Delimiter: delim,
		Headers:   headers,
		Mapping:   mapping,
	}

	for i, line := range lines[1:] {
		values := splitLine(line, delim)
		if len(values) != len(headers) {
			res.Errors = append(res.Errors, ParseError{
				Line:    lineNos[i+1],
				Message: fmt.Sprintf("expected %d fields, got %d", len(headers), len(values)),
			})
		}

		rec := buildRecord(mapping, values)
		if rec.Identified() {
			res.Records = append(res.Records, rec)
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(lines)-1)
		}
	}

	if len(res.Records) == 0 {
		return nil, structural(PathFallback, ErrNoRecords)
	}
	return res, nil
}

// splitLine splits one line on delim, treating double-quoted spans as
// opaque. A doubled quote inside a quoted span is a literal quote. Adjacent
// delimiters yield an empty field.
func splitLine(line string, delim rune) []string {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuote && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				i++
				continue
			}
			inQuote = !inQuote
		case c == delim && !inQuote:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}
