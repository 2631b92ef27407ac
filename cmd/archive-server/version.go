package main

import (
	"github.com/spf13/cobra"

	"github.com/Linaname/async-download-service/cmd"
)

// Build metadata, stamped by the linker in release builds:
//
//	go build -ldflags "-X main.version=$(git describe --tags) \
//	  -X main.commit=$(git rev-parse --short HEAD) \
//	  -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/archive-server
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(c *cobra.Command, args []string) {
		cmd.Out.Println("archive-server %s", version)
		cmd.Out.Info("commit: %s", commit)
		cmd.Out.Info("built: %s", date)
	},
}

func init() {
	cmd.Version = version
	cmd.RootCmd.Version = version
	cmd.RootCmd.AddCommand(versionCmd)
}
