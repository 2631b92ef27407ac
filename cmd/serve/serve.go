package serve

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Linaname/async-download-service/cmd"
	"github.com/Linaname/async-download-service/internal/archive"
	"github.com/Linaname/async-download-service/internal/config"
	"github.com/Linaname/async-download-service/internal/logging"
	"github.com/Linaname/async-download-service/internal/metrics"
	"github.com/Linaname/async-download-service/internal/output"
	"github.com/Linaname/async-download-service/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the archive server",
	Long: `Start the HTTP server.

GET /archive/{id}/ streams a zip of <photos-dir>/{id} in chunks of
--chunk-size bytes, optionally pausing --delay seconds between chunks.

Every option can also be set through its environment variable. A flag given
on the command line wins over the environment, which wins over the default.`,
	GroupID: cmd.GroupServer,
	Args:    cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, c, cmd.Out)
	},
}

// listening is called once the listener is open.
var listening = func(net.Addr) {}

// newLogger allows tests to capture logs.
var newLogger = logging.New

func init() {
	cmd.RootCmd.AddGroup(&cobra.Group{ID: cmd.GroupServer, Title: "Server:"})
	config.RegisterFlags(serveCmd.Flags())
	cmd.RootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, c *cobra.Command, out *output.Writer) error {
	cfg, err := config.Load(c.Flags())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	log := newLogger(cfg.Debug)

	producer, err := archive.New(cfg.Archiver)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.PhotosDir); err != nil {
		out.Warning("photos directory %s is not accessible: %v", cfg.PhotosDir, err)
	}

	srv, err := server.New(cfg, producer, metrics.New(), log)
	if err != nil {
		return err
	}

	ln, err := srv.Listen(ctx)
	if err != nil {
		return err
	}

	printStartup(out, cfg, ln.Addr())
	log.Info("Server started", "addr", ln.Addr().String(), "photosDir", cfg.PhotosDir, "archiver", string(cfg.Archiver), "version", cmd.Version)
	listening(ln.Addr())

	if err := srv.Serve(ctx, ln); err != nil {
		return err
	}
	log.Info("Server stopped", "reason", context.Cause(ctx).Error())
	out.Success("Server stopped")
	return nil
}

func printStartup(out *output.Writer, cfg config.Config, addr net.Addr) {
	out.Step("Listening on http://%s", addr)
	out.Result([]output.KeyValue{
		{Key: "Photos dir", Value: cfg.PhotosDir},
		{Key: "Chunk size", Value: output.FormatBytes(int64(cfg.ChunkSize))},
		{Key: "Delay", Value: cfg.Delay.String()},
		{Key: "Archiver", Value: string(cfg.Archiver)},
		{Key: "Debug", Value: strconv.FormatBool(cfg.Debug)},
		{Key: "Version", Value: cmd.Version},
	})

	routes := server.Routes()
	rows := make([][]string, len(routes))
	for i, r := range routes {
		rows[i] = []string{r.Method, r.Path(), r.Description}
	}
	out.Println("")
	out.Table([]string{"METHOD", "PATH", "DESCRIPTION"}, rows)
	out.Info("Press Ctrl+C to stop")
}
