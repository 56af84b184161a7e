// Command refimport parses reference data files and uploads them in chunks.
package main

import (
	"os"

	"github.com/JonMunkholm/refimport/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
