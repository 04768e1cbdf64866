package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/cli/config"
)

// ProfileRow is one line of config show.
type ProfileRow struct {
	Name     string `json:"name"`
	Current  bool   `json:"current"`
	Server   string `json:"server"`
	Identity string `json:"identity"`
	Instance string `json:"instance" table:"wide"`
	TLS      bool   `json:"tls"`
	CAFile   string `json:"ca_file" table:"wide"`
}

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage connection profiles in the CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "List profiles",
				Action: configShow,
			},
			{
				Name:  "path",
				Usage: "Print the configuration file path",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, c.String("config"))
					return err
				},
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: configValidate,
			},
			{
				Name:      "set-profile",
				Usage:     "Create or update a profile",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Usage: "Server URI", Value: config.DefaultServer},
					&cli.StringFlag{Name: "identity", Usage: "Identity to claim"},
					&cli.StringFlag{Name: "instance", Usage: "Instance name"},
					&cli.BoolFlag{Name: "tls", Usage: "Connect with TLS"},
					&cli.StringFlag{Name: "ca", Usage: "PEM file with additional trusted CAs"},
					&cli.BoolFlag{Name: "insecure", Usage: "Skip server certificate verification"},
					&cli.BoolFlag{Name: "use", Usage: "Make it the current profile"},
				},
				Action: configSetProfile,
			},
			{
				Name:      "use",
				Usage:     "Switch the current profile",
				ArgsUsage: "NAME",
				Action:    configUse,
			},
			{
				Name:      "delete-profile",
				Usage:     "Remove a profile",
				ArgsUsage: "NAME",
				Action:    configDeleteProfile,
			},
		},
	}
}

// loadForUpdate reads the file itself so that --profile and other global
// overrides are not saved back.
func loadForUpdate(c *cli.Context) (*config.CLIConfig, error) {
	return config.Load(c.String("config"))
}

func configShow(c *cli.Context) error {
	cfg, err := loadForUpdate(c)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]ProfileRow, 0, len(names))
	for _, name := range names {
		p := cfg.Profiles[name]
		rows = append(rows, ProfileRow{
			Name:     name,
			Current:  name == cfg.CurrentProfile,
			Server:   p.Server,
			Identity: p.Identity,
			Instance: p.Instance,
			TLS:      p.TLS,
			CAFile:   p.CAFile,
		})
	}
	return printResult(c, rows)
}

func configValidate(c *cli.Context) error {
	cfg, err := loadForUpdate(c)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration %s:\n%w", c.String("config"), err)
	}
	_, err = fmt.Fprintf(c.App.Writer, "configuration is valid: %s\n", c.String("config"))
	return err
}

func profileName(c *cli.Context) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", fmt.Errorf("profile name required")
	}
	return name, nil
}

func configSetProfile(c *cli.Context) error {
	name, err := profileName(c)
	if err != nil {
		return err
	}
	cfg, err := loadForUpdate(c)
	if err != nil {
		return err
	}

	p, exists := cfg.Profiles[name]
	if !exists || c.IsSet("server") {
		p.Server = c.String("server")
	}
	if c.IsSet("identity") {
		p.Identity = c.String("identity")
	}
	if c.IsSet("instance") {
		p.Instance = c.String("instance")
	}
	if c.IsSet("tls") {
		p.TLS = c.Bool("tls")
	}
	if c.IsSet("ca") {
		p.CAFile = c.String("ca")
	}
	if c.IsSet("insecure") {
		p.Insecure = c.Bool("insecure")
	}
	cfg.Profiles[name] = p
	if c.Bool("use") || cfg.CurrentProfile == "" {
		cfg.CurrentProfile = name
	}

	if err := config.Save(cfg, c.String("config")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "profile %q saved\n", name)
	return err
}

func configUse(c *cli.Context) error {
	name, err := profileName(c)
	if err != nil {
		return err
	}
	cfg, err := loadForUpdate(c)
	if err != nil {
		return err
	}
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	cfg.CurrentProfile = name
	if err := config.Save(cfg, c.String("config")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "using profile %q\n", name)
	return err
}

func configDeleteProfile(c *cli.Context) error {
	name, err := profileName(c)
	if err != nil {
		return err
	}
	cfg, err := loadForUpdate(c)
	if err != nil {
		return err
	}
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	delete(cfg.Profiles, name)
	if cfg.CurrentProfile == name {
		cfg.CurrentProfile = ""
	}
	if err := config.Save(cfg, c.String("config")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "profile %q deleted\n", name)
	return err
}
