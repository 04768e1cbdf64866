package config

// CLIConfig is the configuration for lime-cli.
type CLIConfig struct {
	DefaultOutput  string             `yaml:"default_output"` // table, json, yaml
	Color          string             `yaml:"color"`          // auto, always, never
	HistoryFile    string             `yaml:"history_file,omitempty"`
	CurrentProfile string             `yaml:"current_profile,omitempty"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile stores the connection settings of one server.
type Profile struct {
	Server   string `yaml:"server" json:"server"`
	Identity string `yaml:"identity,omitempty" json:"identity,omitempty"`
	Instance string `yaml:"instance,omitempty" json:"instance,omitempty"`
	TLS      bool   `yaml:"tls,omitempty" json:"tls"`
	CAFile   string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure" table:"wide"`
}

// DefaultServer is the server used when no profile or flag names one.
const DefaultServer = "net.tcp://127.0.0.1:55321"

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultOutput: "table",
		Color:         "auto",
		Profiles:      make(map[string]Profile),
	}
}

// Current returns the active profile, or a profile pointing at
// DefaultServer when none is selected.
func (c *CLIConfig) Current() Profile {
	if p, ok := c.Profiles[c.CurrentProfile]; ok {
		return p
	}
	return Profile{Server: DefaultServer}
}
