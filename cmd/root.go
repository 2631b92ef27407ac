package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Linaname/async-download-service/internal/output"
)

// GroupID is a typed alias for command group identifiers.
type GroupID = string

// Command group identifiers for organizing help output.
const (
	GroupServer GroupID = "server"
)

// Out is the shared terminal writer. Set by main() before Execute().
var Out *output.Writer

// Version is the build version, shown in the serve banner and logs. Set by
// main's init from the linker-stamped version.
var Version = "dev"

// RootCmd is the top-level cobra command.
var RootCmd = &cobra.Command{
	Use:   "archive-server",
	Short: "Stream zip archives of photo directories over HTTP",
	Long: `archive-server serves every directory below the photos directory as a
zip download. The archive is produced while it is being sent, so the first
bytes reach the client immediately and nothing is stored on disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}
