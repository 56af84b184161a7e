package ingest

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fieldPriority is the order in which the synonym pass tries fields. Fields
// whose synonyms contain another field's synonym come first ("postcode"
// before "code", "longitude" before "long").
var fieldPriority = []Field{
	FieldPostcode, FieldLatitude, FieldLongitude,
	FieldCode, FieldName, FieldLevel, FieldCategory, FieldState,
	FieldPPD, FieldAddress, FieldCity,
}

// Synonyms is the per-field list of recognised header variants, folded.
var Synonyms = map[Field][]string{
	FieldPostcode:  {"postcode", "post code", "poskod", "postal", "zip"},
	FieldLatitude:  {"latitude", "lat"},
	FieldLongitude: {"longitude", "lng", "lon", "long"},
	FieldCode:      {"code", "kod", "school code", "kod sekolah", "id"},
	FieldName:      {"name", "nama", "nama sekolah", "school name"},
	FieldLevel:     {"level", "peringkat", "tahap", "jenis"},
	FieldCategory:  {"category", "kategori", "type"},
	FieldState:     {"state", "negeri"},
	FieldPPD:       {"ppd", "district", "daerah", "pejabat pendidikan"},
	FieldAddress:   {"address", "alamat"},
	FieldCity:      {"city", "bandar", "town"},
}

// shortSynonym is the length under which a synonym must match a whole word.
const shortSynonym = 4

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldHeader produces the lookup key for a header cell: trimmed, unquoted,
// lower-cased, accents removed, separators collapsed to single spaces.
func FoldHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.Trim(h, `"'`)
	h = strings.ToLower(strings.TrimSpace(h))

	if folded, _, err := transform.String(accentStripper, h); err == nil {
		h = folded
	}

	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-' || r == '.'
	}), " ")
}

// columnKey is the Extra key for an unmapped column: the header trimmed,
// unquoted and lower-cased, or columnN when the header is blank.
func columnKey(header string, index int) string {
	key := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(header), `"'`)))
	if key == "" {
		return "column" + strconv.Itoa(index+1)
	}
	return key
}

func synonymMatches(key, syn string) bool {
	if len(syn) < shortSynonym {
		for _, w := range strings.Fields(key) {
			if w == syn {
				return true
			}
		}
		return false
	}
	return strings.Contains(key, syn)
}

// MapHeaders assigns canonical fields to header cells. Exact names are
// claimed first, then synonyms over the remaining columns. With guess set,
// required fields that are still unmapped take leftover columns in order;
// every such guess is logged at warn level.
func MapHeaders(headers []string, guess bool, logger *slog.Logger) []ColumnMapping {
	if logger == nil {
		logger = slog.Default()
	}

	mapping := make([]ColumnMapping, len(headers))
	claimed := make(map[Field]bool)

	for i, h := range headers {
		key := FoldHeader(h)
		mapping[i] = ColumnMapping{Index: i, Header: h, Key: columnKey(h, i)}
		if f, ok := ParseField(key); ok && !claimed[f] {
			mapping[i].Field = f
			mapping[i].Confidence = ConfidenceExact
			claimed[f] = true
		}
	}

	for i := range mapping {
		if mapping[i].Mapped() {
			continue
		}
		key := FoldHeader(mapping[i].Header)
		if key == "" {
			continue
		}
	fields:
		for _, f := range fieldPriority {
			if claimed[f] {
				continue
			}
			for _, syn := range Synonyms[f] {
				if synonymMatches(key, syn) {
					mapping[i].Field = f
					mapping[i].Confidence = ConfidenceSynonym
					claimed[f] = true
					break fields
				}
			}
		}
	}

	if !guess {
		return mapping
	}

	next := 0
	for _, f := range RequiredFields {
		if claimed[f] {
			continue
		}
		for next < len(mapping) && mapping[next].Mapped() {
			next++
		}
		if next >= len(mapping) {
			logger.Warn("required field left unmapped", "field", f)
			continue
		}
		mapping[next].Field = f
		mapping[next].Confidence = ConfidencePositional
		claimed[f] = true
		logger.Warn("required field assigned by position",
			"field", f,
			"column", next+1,
			"header", mapping[next].Header,
		)
		next++
	}

	return mapping
}

// standardLayout is the fixed column order of the ministry school export.
var standardLayout = []Field{
	FieldName, FieldPPD, FieldLevel, FieldCategory, FieldCode,
	FieldAddress, FieldPostcode, FieldCity, FieldState, FieldLongitude, FieldLatitude,
}

// isStandardLayout reports whether the file name carries marker or the
// first five header cells spell out the fixed layout.
func isStandardLayout(fileName, marker string, headers []string) bool {
	if marker != "" && strings.Contains(strings.ToLower(fileName), strings.ToLower(marker)) {
		return true
	}
	if len(headers) < 5 {
		return false
	}
	for i := 0; i < 5; i++ {
		if FoldHeader(headers[i]) != string(standardLayout[i]) {
			return false
		}
	}
	return true
}

func fixedLayoutMapping(headers []string) []ColumnMapping {
	mapping := make([]ColumnMapping, len(headers))
	for i, h := range headers {
		mapping[i] = ColumnMapping{Index: i, Header: h, Key: columnKey(h, i)}
		if i < len(standardLayout) {
			mapping[i].Field = standardLayout[i]
			mapping[i].Confidence = ConfidenceFixedLayout
		}
	}
	return mapping
}

// MissingRequired lists required fields no column maps to.
func MissingRequired(mapping []ColumnMapping) []Field {
	have := make(map[Field]bool, len(mapping))
	for _, m := range mapping {
		if m.Mapped() {
			have[m.Field] = true
		}
	}
	var missing []Field
	for _, f := range RequiredFields {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// buildRecord applies mapping to one row of values. Values beyond the
// mapping land in Extra under columnN.
func buildRecord(mapping []ColumnMapping, values []string) Record {
	rec := NewRecord()
	for i, v := range values {
		v = strings.TrimSpace(v)
		if i >= len(mapping) {
			if v != "" {
				rec.SetExtra(columnKey("", i), v)
			}
			continue
		}
		m := mapping[i]
		if m.Mapped() {
			rec.Set(m.Field, v)
			continue
		}
		rec.SetExtra(m.Key, v)
	}
	return rec
}
