package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env carries what the admin commands need. Open is called at most once per
// command, and only by commands that touch the database.
type Env struct {
	Open     func(ctx context.Context) (*sql.DB, error)
	Out      io.Writer
	TokenTTL time.Duration
}

// NewRootCommand creates the bos-admin root command
func NewRootCommand(env *Env) *Command {
	root := &Command{
		Name:        "bos-admin",
		Description: "BOS - tenant, role and token administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("bos-admin", flag.ExitOnError),
	}

	root.Subcommands["migrate"] = newMigrateCommand(env)
	root.Subcommands["create-tenant"] = newCreateTenantCommand(env)
	root.Subcommands["list-tenants"] = newListTenantsCommand(env)
	root.Subcommands["seed-roles"] = newSeedRolesCommand(env)
	root.Subcommands["issue-token"] = newIssueTokenCommand(env)
	root.Subcommands["disable-user"] = newDisableUserCommand(env)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string, out io.Writer) error {
	if len(args) == 0 {
		return c.usage(out)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" {
		return c.usage(out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
