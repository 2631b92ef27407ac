// Package config resolves the server configuration from command-line flags,
// environment variables and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/Linaname/async-download-service/internal/archive"
)

// Flag names.
const (
	FlagPhotosDir       = "photos-dir"
	FlagChunkSize       = "chunk-size"
	FlagDelay           = "delay"
	FlagDebug           = "debug"
	FlagAddr            = "addr"
	FlagIndex           = "index"
	FlagArchiver        = "archiver"
	FlagRequestTimeout  = "request-timeout"
	FlagShutdownTimeout = "shutdown-timeout"
)

// Environment variable names.
const (
	EnvPhotosDir       = "PHOTOS_DIR"
	EnvChunkSize       = "CHUNK_SIZE"
	EnvDelay           = "DELAY_BETWEEN_CHUNKS_SENDING"
	EnvDebug           = "DEBUG"
	EnvAddr            = "ARCHIVE_SERVER_ADDR"
	EnvIndex           = "INDEX_PAGE"
	EnvArchiver        = "ARCHIVER"
	EnvRequestTimeout  = "REQUEST_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

// Defaults.
const (
	DefaultPhotosDir       = "test_photos"
	DefaultChunkSize       = 1024
	DefaultAddr            = ":8080"
	DefaultIndex           = "index.html"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the resolved server configuration. It is built once at startup
// and passed by value to the components that need it.
type Config struct {
	PhotosDir       string
	ChunkSize       int
	Delay           time.Duration
	Debug           bool
	Addr            string
	IndexPage       string
	Archiver        archive.Kind
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		PhotosDir:       DefaultPhotosDir,
		ChunkSize:       DefaultChunkSize,
		Addr:            DefaultAddr,
		IndexPage:       DefaultIndex,
		Archiver:        archive.KindZip,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// RegisterFlags adds the server flags to fs. Flag defaults are zero values so
// that an unset flag never masks the environment; see Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagPhotosDir, "", fmt.Sprintf("directory holding the archivable folders (env: %s, default %q)", EnvPhotosDir, DefaultPhotosDir))
	fs.Int(FlagChunkSize, 0, fmt.Sprintf("archive chunk size in bytes (env: %s, default %d)", EnvChunkSize, DefaultChunkSize))
	fs.Float64(FlagDelay, 0, fmt.Sprintf("delay between chunks in seconds, 0 disables pacing (env: %s)", EnvDelay))
	fs.Bool(FlagDebug, false, fmt.Sprintf("enable debug logging (env: %s=1)", EnvDebug))
	fs.String(FlagAddr, "", fmt.Sprintf("listen address (env: %s, default %q)", EnvAddr, DefaultAddr))
	fs.String(FlagIndex, "", fmt.Sprintf("HTML file served at / (env: %s, default %q)", EnvIndex, DefaultIndex))
	fs.String(FlagArchiver, "", fmt.Sprintf("archiver: zip or builtin (env: %s, default %q)", EnvArchiver, archive.KindZip))
	fs.Duration(FlagRequestTimeout, 0, fmt.Sprintf("per-request deadline for archive downloads, 0 disables it (env: %s)", EnvRequestTimeout))
	fs.Duration(FlagShutdownTimeout, 0, fmt.Sprintf("how long shutdown waits for downloads to unwind (env: %s, default %s)", EnvShutdownTimeout, DefaultShutdownTimeout))
}

// lookupEnv allows tests to replace the environment.
var lookupEnv = os.LookupEnv

// Load resolves the configuration. A flag explicitly set on the command line
// wins over the environment, which wins over the defaults.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if fs != nil {
		if err := cfg.applyFlags(fs); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.PhotosDir == "" {
		return fmt.Errorf("photos directory must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", c.Delay)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	return archive.ValidateKind(c.Archiver)
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv(EnvPhotosDir); ok && v != "" {
		c.PhotosDir = v
	}
	if v, ok := lookupEnv(EnvChunkSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvChunkSize, err)
		}
		c.ChunkSize = n
	}
	if v, ok := lookupEnv(EnvDelay); ok && v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvDelay, err)
		}
		c.Delay = Seconds(secs)
	}
	if v, ok := lookupEnv(EnvDebug); ok && v == "1" {
		c.Debug = true
	}
	if v, ok := lookupEnv(EnvAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookupEnv(EnvIndex); ok && v != "" {
		c.IndexPage = v
	}
	if v, ok := lookupEnv(EnvArchiver); ok && v != "" {
		c.Archiver = archive.Kind(v)
	}
	if v, ok := lookupEnv(EnvRequestTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = d
	}
	if v, ok := lookupEnv(EnvShutdownTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || !fs.Changed(name) {
			return
		}
		if applyErr := apply(); applyErr != nil {
			err = fmt.Errorf("reading --%s: %w", name, applyErr)
		}
	}

	set(FlagPhotosDir, func() (e error) { c.PhotosDir, e = fs.GetString(FlagPhotosDir); return })
	set(FlagChunkSize, func() (e error) { c.ChunkSize, e = fs.GetInt(FlagChunkSize); return })
	set(FlagDelay, func() error {
		secs, e := fs.GetFloat64(FlagDelay)
		c.Delay = Seconds(secs)
		return e
	})
	// --debug only ever turns debug logging on; DEBUG=1 is not overridable.
	set(FlagDebug, func() error {
		on, e := fs.GetBool(FlagDebug)
		c.Debug = c.Debug || on
		return e
	})
	set(FlagAddr, func() (e error) { c.Addr, e = fs.GetString(FlagAddr); return })
	set(FlagIndex, func() (e error) { c.IndexPage, e = fs.GetString(FlagIndex); return })
	set(FlagArchiver, func() error {
		v, e := fs.GetString(FlagArchiver)
		c.Archiver = archive.Kind(v)
		return e
	})
	set(FlagRequestTimeout, func() (e error) { c.RequestTimeout, e = fs.GetDuration(FlagRequestTimeout); return })
	set(FlagShutdownTimeout, func() (e error) { c.ShutdownTimeout, e = fs.GetDuration(FlagShutdownTimeout); return })

	return err
}

// Seconds converts fractional seconds to a Duration.
func Seconds(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
