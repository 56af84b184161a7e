package ingest

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Field is a canonical destination field name.
type Field string

const (
	FieldCode      Field = "code"
	FieldName      Field = "name"
	FieldLevel     Field = "level"
	FieldCategory  Field = "category"
	FieldState     Field = "state"
	FieldPPD       Field = "ppd"
	FieldAddress   Field = "address"
	FieldCity      Field = "city"
	FieldPostcode  Field = "postcode"
	FieldLatitude  Field = "latitude"
	FieldLongitude Field = "longitude"
)

// CanonicalFields lists every field the endpoint understands.
var CanonicalFields = []Field{
	FieldCode, FieldName, FieldLevel, FieldCategory, FieldState,
	FieldPPD, FieldAddress, FieldCity, FieldPostcode, FieldLatitude, FieldLongitude,
}

// RequiredFields must be non-empty for the endpoint to accept a row.
var RequiredFields = []Field{FieldCode, FieldName, FieldLevel, FieldCategory, FieldState}

// ParseField returns the canonical field named s, if any.
func ParseField(s string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range CanonicalFields {
		if c == f {
			return f, true
		}
	}
	return "", false
}

// Required reports whether f is one of RequiredFields.
func (f Field) Required() bool {
	for _, r := range RequiredFields {
		if r == f {
			return true
		}
	}
	return false
}

// Record is one data row. Canonical values live in Fields; columns that did
// not map to a canonical field are kept in Extra under their header key.
type Record struct {
	Fields map[Field]string
	Extra  map[string]string
}

// NewRecord returns an empty record ready for use.
func NewRecord() Record {
	return Record{Fields: make(map[Field]string), Extra: make(map[string]string)}
}

// Get returns the value of a canonical field, or "".
func (r Record) Get(f Field) string {
	return r.Fields[f]
}

// Set stores a canonical value. The zero Record is not writable.
func (r Record) Set(f Field, v string) {
	r.Fields[f] = v
}

// SetExtra stores a pass-through value. Keys that collide with a canonical
// field name are ignored so Extra never shadows Fields on the wire.
func (r Record) SetExtra(key, v string) {
	if _, ok := ParseField(key); ok {
		return
	}
	r.Extra[key] = v
}

// Identified reports whether the row carries a code or a name.
func (r Record) Identified() bool {
	return r.Get(FieldCode) != "" || r.Get(FieldName) != ""
}

// Missing returns the required fields that are empty.
func (r Record) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if strings.TrimSpace(r.Get(f)) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// MarshalJSON writes the record as one flat object: canonical fields first,
// extras after. Empty canonical fields are omitted.
func (r Record) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	first := true

	write := func(k, v string) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
		return nil
	}

	for _, f := range CanonicalFields {
		if v, ok := r.Fields[f]; ok && v != "" {
			if err := write(string(f), v); err != nil {
				return nil, err
			}
		}
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, r.Extra[k]); err != nil {
			return nil, err
		}
	}

	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON reads a flat object. Keys naming a canonical field (any
// case) land in Fields; everything else in Extra. Numbers and booleans are
// kept as their literal text; null becomes "".
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = NewRecord()
	for k, v := range raw {
		s, err := rawString(v)
		if err != nil {
			return err
		}
		if f, ok := ParseField(k); ok {
			r.Fields[f] = strings.TrimSpace(s)
			continue
		}
		r.Extra[k] = s
	}
	return nil
}

func rawString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}

	var x any
	if err := json.Unmarshal(v, &x); err != nil {
		return "", err
	}
	switch t := x.(type) {
	case nil:
		return "", nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return string(v), nil
	}
}

// Confidence tags how a column was assigned to its field.
type Confidence string

const (
	ConfidenceExact       Confidence = "exact"
	ConfidenceSynonym     Confidence = "synonym"
	ConfidencePositional  Confidence = "positional-guess"
	ConfidenceFixedLayout Confidence = "fixed-layout"
)

// ColumnMapping describes one input column. Field is empty for pass-through
// columns, in which case Key names the Extra entry.
type ColumnMapping struct {
	Index      int        `json:"index"`
	Header     string     `json:"header"`
	Key        string     `json:"key"`
	Field      Field      `json:"field,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Mapped reports whether the column was assigned a canonical field.
func (c ColumnMapping) Mapped() bool {
	return c.Field != ""
}
