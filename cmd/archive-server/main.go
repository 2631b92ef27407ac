// archive-server streams zip archives of photo directories over HTTP.
package main

import (
	"os"

	"github.com/Linaname/async-download-service/cmd"
	_ "github.com/Linaname/async-download-service/cmd/serve"
	"github.com/Linaname/async-download-service/internal/output"
)

func main() {
	cmd.Out = output.New()
	if err := cmd.RootCmd.Execute(); err != nil {
		cmd.Out.Error("%v", err)
		os.Exit(1)
	}
}
