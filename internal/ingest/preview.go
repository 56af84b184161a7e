package ingest

// DefaultPreviewSample is the number of records shown by default.
const DefaultPreviewSample = 100

// PreviewReport summarises a parsed dataset before it is uploaded.
type PreviewReport struct {
	ImportID  string `json:"importId"`
	FileName  string `json:"fileName"`
	Path      Path   `json:"path"`
	Delimiter string `json:"delimiter"`
	TotalRows int    `json:"totalRows"`
	// ValidRows have every required field filled in.
	ValidRows int `json:"validRows"`
	// MissingFields are required fields no column maps to.
	MissingFields []Field `json:"missingFields"`
	// UnknownFields are header keys that map to no canonical field.
	UnknownFields []string        `json:"unknownFields"`
	ParseErrors   []ParseError    `json:"parseErrors"`
	Mapping       []ColumnMapping `json:"mapping"`
	Sample        []Record        `json:"sample"`
}

// Preview builds a PreviewReport. A sampleSize of zero or less uses
// DefaultPreviewSample.
func Preview(ds *Dataset, sampleSize int) PreviewReport {
	if sampleSize <= 0 {
		sampleSize = DefaultPreviewSample
	}

	rep := PreviewReport{
		ImportID:      ds.ID.String(),
		FileName:      ds.FileName,
		Path:          ds.Path,
		Delimiter:     ds.Delimiter,
		TotalRows:     len(ds.Records),
		MissingFields: MissingRequired(ds.Mapping),
		UnknownFields: []string{},
		ParseErrors:   ds.ParseErrors,
		Mapping:       ds.Mapping,
		Sample:        ds.Records[:min(sampleSize, len(ds.Records))],
	}
	if rep.ParseErrors == nil {
		rep.ParseErrors = []ParseError{}
	}
	if rep.MissingFields == nil {
		rep.MissingFields = []Field{}
	}

	for _, m := range ds.Mapping {
		if !m.Mapped() {
			rep.UnknownFields = append(rep.UnknownFields, m.Key)
		}
	}

	for _, r := range ds.Records {
		if len(r.Missing()) == 0 {
			rep.ValidRows++
		}
	}

	return rep
}
