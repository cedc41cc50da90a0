// Command campusnet keeps a campus network session alive behind a captive
// portal.
//
//	campusnet run --config /etc/campusnet/campusnet.yaml
//	campusnet check
package main

import (
	"os"

	"github.com/HerbHall/campusnet/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
