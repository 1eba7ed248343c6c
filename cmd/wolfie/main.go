package main

import "wolfie/internal/cli"

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate})
}
