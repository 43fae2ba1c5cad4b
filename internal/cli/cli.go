// Package cli parses dockctl's command line and runs the console server.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/germanoeich/dockctl/internal/api"
	"github.com/germanoeich/dockctl/internal/config"
	"github.com/germanoeich/dockctl/internal/console"
	"github.com/germanoeich/dockctl/internal/dockerx"
	"github.com/germanoeich/dockctl/internal/observability"
)

const Version = "0.1.0"

// Options holds the parsed command line. Empty strings mean "not given" and
// leave the config file value in place.
type Options struct {
	ConfigPath  string
	Listen      string
	LogLevel    string
	LogFormat   string
	DockerHost  string
	WriteConfig bool
	ShowHelp    bool
	ShowVersion bool
}

// ParseArgs parses command-line arguments. Help and version requests are
// printed to out and flagged in the result.
func ParseArgs(args []string, out io.Writer) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("dockctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
	}

	fs.StringVar(&opts.ConfigPath, "config", "", "path to the config file")
	fs.StringVar(&opts.Listen, "addr", "", "HTTP listen address")
	fs.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&opts.LogFormat, "log-format", "", "text or json")
	fs.StringVar(&opts.DockerHost, "docker-host", "", "container runtime endpoint")
	fs.BoolVar(&opts.WriteConfig, "write-config", false, "write the effective config and exit")
	fs.BoolVar(&opts.ShowHelp, "h", false, "show help message")
	fs.BoolVar(&opts.ShowHelp, "help", false, "show help message")
	fs.BoolVar(&opts.ShowVersion, "v", false, "show version information")
	fs.BoolVar(&opts.ShowVersion, "version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.ShowHelp {
		fs.Usage()
		return opts, nil
	}
	if opts.ShowVersion {
		fmt.Fprintf(out, "dockctl version %s\n", Version)
		return opts, nil
	}

	if fs.NArg() > 0 {
		return opts, errors.New("unexpected arguments. Use -h for help")
	}
	return opts, nil
}

// Apply overlays the flags that were given onto cfg.
func (o Options) Apply(cfg *config.Config) {
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.DockerHost != "" {
		cfg.DockerHost = o.DockerHost
	}
}

// Resolve loads the config file named by the options (or the default path),
// applies the flags and validates the result.
func (o Options) Resolve() (config.Config, string, error) {
	path := o.ConfigPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return config.Config{}, "", err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, err
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

// Run serves the console until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, path, err := opts.Resolve()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if opts.WriteConfig {
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}

	log := observability.SetupLogging(cfg.Log.Level, cfg.Log.Format)

	client, err := dockerx.NewRealClient(ctx, cfg.DockerHost)
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer client.Close()

	con := console.New(cfg, client, log)
	con.Start(ctx)
	defer con.Stop()

	go func() {
		if err := config.Watch(ctx, path, con.ApplyConfig, log); err != nil {
			log.Warn("config watch disabled", "path", path, "err", err)
		}
	}()

	return serve(ctx, api.NewApp(con, log), cfg.Listen, log)
}

type server interface {
	Listen(addr string) error
	ShutdownWithTimeout(timeout time.Duration) error
}

func serve(ctx context.Context, app server, addr string, log *slog.Logger) error {
	log = observability.OrDefault(log)
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		return err
	}
	return <-errc
}

const usage = `dockctl - resource sync and command console for a container runtime

USAGE:
  dockctl [flags]

EXAMPLES:
  dockctl                              # serve on the configured address
  dockctl -addr :8080 -log-format json
  dockctl -write-config                # write the effective config and exit

FLAGS:
  -h, --help                   show this help message
  -v, --version                show version information
  --config PATH                config file (default: $XDG_CONFIG_HOME/dockctl/config.yaml)
  --addr ADDR                  HTTP listen address (default: 127.0.0.1:7070)
  --log-level LEVEL            debug, info, warn or error (default: info)
  --log-format FORMAT          text or json (default: text)
  --docker-host HOST           runtime endpoint (default: $DOCKER_HOST)
  --write-config               write the effective config file and exit

ENVIRONMENT:
  DOCKCTL_LISTEN, DOCKCTL_DOCKER_HOST, DOCKCTL_LOG_LEVEL, DOCKCTL_LOG_FORMAT,
  DOCKCTL_POLL_CONTAINERS, DOCKCTL_POLL_IMAGES, DOCKCTL_POLL_NETWORKS,
  DOCKCTL_POLL_VOLUMES, DOCKCTL_LOG_RING_CAPACITY

Flags override the environment, which overrides the config file.
The config file is watched and poll intervals are applied on change.
`
