package serve

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Linaname/async-download-service/cmd"
	"github.com/Linaname/async-download-service/internal/config"
	"github.com/Linaname/async-download-service/internal/output"
)

func TestMain(m *testing.M) {
	cmd.Out = output.NewTest(io.Discard)
	os.Exit(m.Run())
}

func newServeCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "serve"}
	config.RegisterFlags(c.Flags())
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestServeCommandRegistration(t *testing.T) {
	var found *cobra.Command
	for _, c := range cmd.RootCmd.Commands() {
		if c.Name() == "serve" {
			found = c
		}
	}
	require.NotNil(t, found, "serve command not registered on root command")
	assert.Equal(t, cmd.GroupServer, found.GroupID)

	for _, name := range []string{
		config.FlagPhotosDir, config.FlagChunkSize, config.FlagDelay, config.FlagDebug,
		config.FlagAddr, config.FlagIndex, config.FlagArchiver,
		config.FlagRequestTimeout, config.FlagShutdownTimeout,
	} {
		assert.NotNil(t, found.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestRunServe(t *testing.T) {
	t.Run("serves until the context ends", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "cats"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "cats", "a.jpg"), []byte("meow"), 0o644))

		newLogger = func(bool) logr.Logger { return testr.New(t) }
		t.Cleanup(func() { newLogger = defaultNewLogger })
		addrs := make(chan net.Addr, 1)
		listening = func(a net.Addr) { addrs <- a }
		t.Cleanup(func() { listening = func(net.Addr) {} })

		c := newServeCommand(t,
			"--addr", "127.0.0.1:0",
			"--photos-dir", root,
			"--archiver", "builtin",
			"--chunk-size", "256",
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var buf bytes.Buffer
		done := make(chan error, 1)
		go func() { done <- runServe(ctx, c, output.NewTest(&buf)) }()

		var addr net.Addr
		select {
		case addr = <-addrs:
		case err := <-done:
			t.Fatalf("runServe returned early: %v", err)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not start listening")
		}

		resp, err := http.Get("http://" + addr.String() + "/archive/cats/")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		require.NoError(t, err)
		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		assert.ElementsMatch(t, []string{"cats/", "cats/a.jpg"}, names)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("runServe did not return after cancel")
		}

		got := buf.String()
		assert.Contains(t, got, "-> Listening on http://127.0.0.1:")
		assert.Contains(t, got, "Chunk size  256 B")
		assert.Contains(t, got, "Version     "+cmd.Version)
		assert.Contains(t, got, "/archive/{id}/")
		assert.Contains(t, got, "OK Server stopped")
	})

	t.Run("invalid configuration", func(t *testing.T) {
		c := newServeCommand(t, "--chunk-size", "0")

		err := runServe(context.Background(), c, output.NewTest(io.Discard))
		require.Error(t, err)
		assert.ErrorContains(t, err, "loading configuration")
		assert.ErrorContains(t, err, "chunk size must be positive")
	})

	t.Run("listen failure", func(t *testing.T) {
		newLogger = func(bool) logr.Logger { return testr.New(t) }
		t.Cleanup(func() { newLogger = defaultNewLogger })

		c := newServeCommand(t, "--addr", "not-an-address", "--photos-dir", t.TempDir())

		err := runServe(context.Background(), c, output.NewTest(io.Discard))
		require.Error(t, err)
		assert.ErrorContains(t, err, "listening on not-an-address")
	})

	t.Run("missing photos directory is a warning", func(t *testing.T) {
		newLogger = func(bool) logr.Logger { return testr.New(t) }
		t.Cleanup(func() { newLogger = defaultNewLogger })

		missing := filepath.Join(t.TempDir(), "nope")
		c := newServeCommand(t, "--addr", "not-an-address", "--photos-dir", missing)

		var buf bytes.Buffer
		_ = runServe(context.Background(), c, output.NewTest(&buf))
		assert.Contains(t, buf.String(), "WARNING photos directory "+missing+" is not accessible")
	})
}

var defaultNewLogger = newLogger
