package command

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/cli/config"
	"github.com/yndnr/lime-go/internal/cli/connection"
	"github.com/yndnr/lime-go/internal/cli/output"
	"github.com/yndnr/lime-go/internal/core/channel"
	"github.com/yndnr/lime-go/internal/infra/buildinfo"
	"github.com/yndnr/lime-go/internal/infra/tlsroots"
	"github.com/yndnr/lime-go/internal/telemetry/logger"
	"github.com/yndnr/lime-go/internal/transport/tcp"
)

// Metadata keys shared between Before and the commands.
const (
	metaConnMgr = "connMgr"
	metaConfig  = "config"
	// MetaDialer overrides the transport dialer (used by tests).
	MetaDialer = "dialer"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "lime-cli",
		Usage:   "LIME protocol client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SendCommand(),
			GetCommand(),
			SetCommand(),
			DeleteCommand(),
			ListenCommand(),
			ChatCommand(),
			SchemaCommand(),
			ConfigCommand(),
		},
		Metadata: map[string]any{},
		Before:   before,
		After:    after,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI configuration file",
			EnvVars: []string{"LIME_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"P"},
			Usage:   "Connection profile (defaults to current_profile)",
			EnvVars: []string{"LIME_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Server URI (e.g. " + config.DefaultServer + ")",
			EnvVars: []string{"LIME_SERVER"},
		},
		&cli.StringFlag{
			Name:    "identity",
			Aliases: []string{"i"},
			Usage:   "Identity to claim, name@domain[/instance] (guest when empty)",
			EnvVars: []string{"LIME_IDENTITY"},
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "Password for the plain scheme",
			EnvVars: []string{"LIME_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "key",
			Usage:   "Key for the key scheme",
			EnvVars: []string{"LIME_KEY"},
		},
		&cli.StringFlag{
			Name:    "instance",
			Usage:   "Instance name of this client",
			EnvVars: []string{"LIME_INSTANCE"},
		},
		&cli.BoolFlag{
			Name:    "tls",
			Usage:   "Connect with TLS",
			EnvVars: []string{"LIME_TLS"},
		},
		&cli.StringFlag{
			Name:    "ca",
			Usage:   "PEM file with additional trusted CAs",
			EnvVars: []string{"LIME_CA_FILE"},
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip server certificate verification",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{"LIME_OUTPUT"},
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "color",
			Usage: "Color output: auto, always, never",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "Timeout of each request",
			Value:   30 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log protocol events to stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ConfigFile string
	Profile    string

	Server   string
	Identity string
	Password string
	Key      string
	Instance string
	TLS      bool
	CAFile   string
	Insecure bool

	Output  string
	Wide    bool
	Color   string
	Timeout time.Duration
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		ConfigFile: c.String("config"),
		Profile:    c.String("profile"),
		Server:     c.String("server"),
		Identity:   c.String("identity"),
		Password:   c.String("password"),
		Key:        c.String("key"),
		Instance:   c.String("instance"),
		TLS:        c.Bool("tls"),
		CAFile:     c.String("ca"),
		Insecure:   c.Bool("insecure"),
		Output:     c.String("output"),
		Wide:       c.Bool("wide"),
		Color:      c.String("color"),
		Timeout:    c.Duration("timeout"),
		Verbose:    c.Bool("verbose"),
	}
}

func before(c *cli.Context) error {
	flags := ParseGlobalFlags(c)

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	if flags.Profile != "" {
		if _, ok := cfg.Profiles[flags.Profile]; !ok {
			return fmt.Errorf("unknown profile %q", flags.Profile)
		}
		cfg.CurrentProfile = flags.Profile
	}
	if flags.Output == "" {
		flags.Output = cfg.DefaultOutput
	}
	if _, err := output.ParseFormat(flags.Output); err != nil {
		return err
	}
	c.App.Metadata[metaConfig] = cfg

	profile := config.Merge(cfg, map[string]string{
		"server":   flags.Server,
		"identity": flags.Identity,
		"instance": flags.Instance,
		"ca_file":  flags.CAFile,
		"tls":      setBool(c, "tls"),
		"insecure": setBool(c, "insecure"),
	})

	log, err := cliLogger(c.App.ErrWriter, flags.Verbose)
	if err != nil {
		return err
	}

	dial, ok := c.App.Metadata[MetaDialer].(connection.Dialer)
	if !ok {
		if dial, err = tcpDialer(profile, flags.Timeout); err != nil {
			return err
		}
	}

	c.App.Metadata[metaConnMgr] = connection.NewManager(dial, connection.Options{
		Server:   profile.Server,
		Identity: profile.Identity,
		Password: flags.Password,
		Key:      flags.Key,
		Instance: profile.Instance,
		Channel:  channel.Config{SendTimeout: flags.Timeout, Logger: log.Slog()},
	})
	return nil
}

func after(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mgr.Disconnect(ctx)
}

// setBool returns "true"/"false" for flags given explicitly and "" for
// flags left at their default, so they do not override the profile.
func setBool(c *cli.Context, name string) string {
	if !c.IsSet(name) {
		return ""
	}
	return strconv.FormatBool(c.Bool(name))
}

// cliLogger logs to stderr, errors only unless verbose.
func cliLogger(w io.Writer, verbose bool) (logger.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := "error"
	if verbose {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Format: "text", Output: w})
}

func tcpDialer(profile config.Profile, timeout time.Duration) (connection.Dialer, error) {
	opts := tcp.Options{DialTimeout: timeout, WriteTimeout: timeout}
	if profile.TLS {
		host := ""
		if u, err := url.Parse(profile.Server); err == nil {
			host = u.Hostname()
		}
		tlsCfg, err := tlsroots.ClientConfig(profile.CAFile, host, profile.Insecure)
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsCfg
	}
	return connection.TCPDialer(opts), nil
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[metaConnMgr].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// GetConfig retrieves the loaded CLI configuration from context.
func GetConfig(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

// EnsureConnected returns the established session, connecting if needed.
func EnsureConnected(ctx context.Context, c *cli.Context) (*connection.Session, error) {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return nil, fmt.Errorf("connection manager not initialized")
	}
	s, err := mgr.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", mgr.Options().Server, err)
	}
	return s, nil
}

// requestContext bounds one request by --timeout.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

// outputFormat returns the effective output format.
func outputFormat(c *cli.Context) output.Format {
	f := c.String("output")
	if f == "" {
		f = GetConfig(c).DefaultOutput
	}
	format, err := output.ParseFormat(f)
	if err != nil {
		return output.FormatTable
	}
	return format
}

// printResult formats data on the app writer.
func printResult(c *cli.Context, data any) error {
	return output.NewFormatter(outputFormat(c), c.Bool("wide")).Format(c.App.Writer, data)
}

// palette returns the colors for the app writer.
func palette(c *cli.Context) output.Palette {
	mode := output.ColorMode(c.String("color"))
	if mode == "" {
		mode = output.ColorMode(GetConfig(c).Color)
	}
	if c.App.Writer == os.Stdout {
		return output.NewPalette(os.Stdout, mode)
	}
	return output.NewPalette(nil, mode)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(output.Stderr(), "error: "+format+"\n", args...)
}
