package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/refimport/internal/ingest"
)

func (e *env) printReport(name string, rep *ingest.Report) error {
	if e.output == "json" {
		return printJSON(e.stdout, rep)
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", name)
	if rep.ImportID != "" {
		fmt.Fprintf(tw, "Import:\t%s\n", rep.ImportID)
	}
	fmt.Fprintf(tw, "Total:\t%d\n", rep.Total)
	fmt.Fprintf(tw, "Created:\t%d\n", rep.Created)
	fmt.Fprintf(tw, "Updated:\t%d\n", rep.Updated)
	fmt.Fprintf(tw, "Skipped:\t%d\n", rep.Skipped)
	fmt.Fprintf(tw, "Chunks:\t%d (%d failed)\n", rep.Chunks, rep.FailedChunks)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.ParseErrors) > 0 {
		fmt.Fprintf(e.stdout, "\nParse errors (%d):\n", len(rep.ParseErrors))
		for _, pe := range rep.ParseErrors {
			fmt.Fprintf(e.stdout, "  line %d: %s\n", pe.Line, pe.Message)
		}
	}

	if len(rep.Errors) > 0 {
		fmt.Fprintf(e.stdout, "\nErrors (%d):\n", len(rep.Errors))
		for _, re := range rep.Errors {
			switch re.Kind {
			case ingest.ReportChunkError:
				fmt.Fprintf(e.stdout, "  chunk %d: %s\n", re.ChunkNumber, re.Message)
			default:
				fmt.Fprintf(e.stdout, "  row %d [%s]: %s\n", re.Row, re.Code, re.Message)
			}
		}
	}
	return nil
}

func (e *env) printPreview(p ingest.PreviewReport) error {
	if e.output == "json" {
		return printJSON(e.stdout, p)
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", p.FileName)
	fmt.Fprintf(tw, "Parser:\t%s (delimiter %q)\n", p.Path, p.Delimiter)
	fmt.Fprintf(tw, "Rows:\t%d (%d complete)\n", p.TotalRows, p.ValidRows)
	if len(p.MissingFields) > 0 {
		missing := make([]string, len(p.MissingFields))
		for i, f := range p.MissingFields {
			missing[i] = string(f)
		}
		fmt.Fprintf(tw, "Missing:\t%s\n", strings.Join(missing, ", "))
	}
	if len(p.UnknownFields) > 0 {
		fmt.Fprintf(tw, "Unmapped:\t%s\n", strings.Join(p.UnknownFields, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, "\nColumns:")
	tw = tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tHEADER\tFIELD\tMATCH")
	for _, m := range p.Mapping {
		field, match := "-", "-"
		if m.Mapped() {
			field, match = string(m.Field), string(m.Confidence)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", m.Index+1, m.Header, field, match)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.ParseErrors) > 0 {
		fmt.Fprintf(e.stdout, "\nParse errors (%d):\n", len(p.ParseErrors))
		for _, pe := range p.ParseErrors {
			fmt.Fprintf(e.stdout, "  line %d: %s\n", pe.Line, pe.Message)
		}
	}

	if len(p.Sample) > 0 {
		fmt.Fprintf(e.stdout, "\nSample (%d):\n", len(p.Sample))
		for _, r := range p.Sample {
			b, err := r.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "  %s\n", b)
		}
	}
	return nil
}
