// Package command defines the lime-cli commands.
//
// Commands are built on urfave/cli/v2. Every command shares one session,
// opened on first use from the global flags, the active profile of
// ~/.lime/cli.yaml and LIME_* environment variables (in that order of
// precedence), and finished when the command returns.
package command
