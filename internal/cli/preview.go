package cli

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/refimport/internal/ingest"
	"github.com/JonMunkholm/refimport/internal/source"
)

func newPreviewCmd(e *env) *cobra.Command {
	var (
		sample    int
		delimiter string
		lenient   bool
	)

	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Show how FILE would be parsed and mapped without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delim, err := parseDelimiter(delimiter)
			if err != nil {
				return err
			}

			file, err := source.OpenPath(args[0], e.cfg.Upload.MaxFileSize)
			if err != nil {
				return err
			}

			im := ingest.NewImporter(nil, ingest.Options{
				ChunkSize:         e.cfg.Import.ChunkSize,
				FallbackChunkSize: e.cfg.Import.FallbackChunkSize,
				Lenient:           lenient,
				Delimiter:         delim,
			})
			ds, err := im.Parse(cmd.Context(), file.Name, file.Text)
			if err != nil {
				return err
			}
			return e.printPreview(ingest.Preview(ds, sample))
		},
	}

	cmd.Flags().IntVar(&sample, "sample", 5, "Number of records to show")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "Force the field separator")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "Keep rows whose field count differs from the header")
	return cmd
}
