package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/refimport/internal/ingest"
	"github.com/JonMunkholm/refimport/internal/ingest/chunkclient"
	"github.com/JonMunkholm/refimport/internal/source"
)

type uploadFlags struct {
	url               string
	apiKey            string
	chunkSize         int
	fallbackChunkSize int
	maxConcurrent     int
	timeout           time.Duration
	retries           int
	delimiter         string
	lenient           bool
	failOnErrors      bool
	quiet             bool
}

func newUploadCmd(e *env) *cobra.Command {
	var f uploadFlags

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Parse FILE and upload it in chunks",
		Long: `Parse FILE (csv, tsv, txt or xlsx, optionally .gz/.bz2/.xz/.zst compressed),
split the records into chunks and POST them to the import endpoint a few at a
time. Chunk failures are reported alongside row errors; they do not stop the
import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg
			fl := cmd.Flags()
			if !fl.Changed("url") {
				f.url = cfg.Import.URL
			}
			if !fl.Changed("api-key") {
				f.apiKey = cfg.Import.APIKey
			}
			if !fl.Changed("chunk-size") {
				f.chunkSize = cfg.Import.ChunkSize
			}
			if !fl.Changed("fallback-chunk-size") {
				f.fallbackChunkSize = cfg.Import.FallbackChunkSize
			}
			if !fl.Changed("max-concurrent") {
				f.maxConcurrent = cfg.Import.MaxConcurrent
			}
			if !fl.Changed("timeout") {
				f.timeout = cfg.Import.RequestTimeout
			}
			if f.url == "" {
				return errors.New("no upload URL: pass --url or set IMPORT_URL")
			}

			delim, err := parseDelimiter(f.delimiter)
			if err != nil {
				return err
			}

			file, err := source.OpenPath(args[0], cfg.Upload.MaxFileSize)
			if err != nil {
				return err
			}

			var headers http.Header
			if f.apiKey != "" {
				headers = http.Header{"X-Api-Key": []string{f.apiKey}}
			}
			client, err := chunkclient.New(chunkclient.Config{
				URL:         f.url,
				Timeout:     f.timeout,
				MaxRetries:  f.retries,
				BaseHeaders: headers,
			})
			if err != nil {
				return err
			}

			opts := ingest.Options{
				ChunkSize:         f.chunkSize,
				FallbackChunkSize: f.fallbackChunkSize,
				MaxConcurrent:     f.maxConcurrent,
				Lenient:           f.lenient,
				Delimiter:         delim,
			}
			if !f.quiet {
				opts.Progress = progressPrinter(e)
			}

			rep, err := ingest.NewImporter(client, opts).Import(cmd.Context(), file.Name, file.Text)
			if rep != nil {
				if perr := e.printReport(file.Name, rep); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if f.failOnErrors && rep.HasErrors() {
				return errReportHasErrors
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "Import endpoint URL (default $IMPORT_URL)")
	fl.StringVar(&f.apiKey, "api-key", "", "Value for the X-API-Key header (default $IMPORT_API_KEY)")
	fl.IntVar(&f.chunkSize, "chunk-size", ingest.DefaultChunkSize, "Records per chunk")
	fl.IntVar(&f.fallbackChunkSize, "fallback-chunk-size", ingest.DefaultFallbackChunkSize, "Records per chunk when the heuristic parser was used")
	fl.IntVar(&f.maxConcurrent, "max-concurrent", ingest.DefaultMaxConcurrent, "Chunks in flight at once")
	fl.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout (0 disables)")
	fl.IntVar(&f.retries, "retries", 0, "Retries for a chunk answered with 429 or 503")
	fl.StringVar(&f.delimiter, "delimiter", "", "Force the field separator (one character, e.g. ';' or '\\t')")
	fl.BoolVar(&f.lenient, "lenient", false, "Keep rows whose field count differs from the header")
	fl.BoolVar(&f.failOnErrors, "fail-on-errors", false, "Exit with status 2 when any row or chunk failed")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

// parseDelimiter accepts a single character or the escape \t.
func parseDelimiter(s string) (rune, error) {
	switch {
	case s == "":
		return 0, nil
	case s == `\t` || s == "tab":
		return '\t', nil
	case utf8.RuneCountInString(s) == 1:
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	}
	return 0, fmt.Errorf("invalid delimiter %q: use a single character", s)
}

// progressPrinter writes "phase percent%" lines to stderr.
func progressPrinter(e *env) ingest.ProgressFunc {
	return func(p ingest.Progress) {
		fmt.Fprintf(e.stderr, "%s %d%% (overall %d%%)\n", p.Phase, p.Percent, p.Overall())
	}
}
