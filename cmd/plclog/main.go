// plclog parses PLC debug logs from the command line or serves the
// parse API over HTTP.
package main

import (
	"os"

	"github.com/plc-visualizer/logparse/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
