package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/audit"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/orgs"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/rbac"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage/postgres"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

const commandTimeout = 2 * time.Minute

func (env *Env) newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Out)
	return fs
}

// withDB opens the database for the duration of fn
func (env *Env) withDB(fn func(ctx context.Context, db *sql.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	db, err := env.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending database migrations",
		Flags:       env.newFlags("migrate"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return env.withDB(func(ctx context.Context, db *sql.DB) error {
			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(env.Out, "Schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(env.Out, "Applied migration %03d\n", v)
			}
			return nil
		})
	}
	return cmd
}

func newCreateTenantCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "create-tenant",
		Description: "Create a tenant and seed its built-in roles",
		Flags:       env.newFlags("create-tenant"),
	}
	name := cmd.Flags.String("name", "", "Tenant name (required)")
	tier := cmd.Flags.String("tier", "free", "Subscription tier")
	seed := cmd.Flags.Bool("seed-roles", true, "Create the built-in roles for the new tenant")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return fmt.Errorf("--name is required")
		}
		return env.withDB(func(ctx context.Context, db *sql.DB) error {
			tenant, err := orgs.NewDirectory(db).CreateTenant(ctx, *name, *tier)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Created tenant %d (%s)\n", tenant.ID, tenant.Name)
			if !*seed {
				return nil
			}
			return seedRoles(ctx, env, db, tenant.ID)
		})
	}
	return cmd
}

func newListTenantsCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "list-tenants",
		Description: "List tenants with their status",
		Flags:       env.newFlags("list-tenants"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return env.withDB(func(ctx context.Context, db *sql.DB) error {
			tenants, err := orgs.NewDirectory(db).ListTenants(ctx)
			if err != nil {
				return err
			}
			for _, t := range tenants {
				fmt.Fprintf(env.Out, "%-6d %-10s %-10s %s\n", t.ID, t.Status, t.SubscriptionTier, t.Name)
			}
			return nil
		})
	}
	return cmd
}

func newSeedRolesCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "seed-roles",
		Description: "Create any missing built-in roles for a tenant",
		Flags:       env.newFlags("seed-roles"),
	}
	tenantID := cmd.Flags.Int64("tenant", 0, "Tenant ID (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *tenantID <= 0 {
			return fmt.Errorf("--tenant is required")
		}
		return env.withDB(func(ctx context.Context, db *sql.DB) error {
			return seedRoles(ctx, env, db, *tenantID)
		})
	}
	return cmd
}

func seedRoles(ctx context.Context, env *Env, db *sql.DB, tenantID int64) error {
	scope, err := tenancy.For(tenantID)
	if err != nil {
		return err
	}
	created, err := rbac.NewStore(db, catalog.Default()).InstantiateBuiltInRoles(ctx, scope)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintf(env.Out, "Tenant %d already has every built-in role\n", tenantID)
		return nil
	}
	fmt.Fprintf(env.Out, "Created roles for tenant %d: %s\n", tenantID, strings.Join(created, ", "))
	return nil
}

func newIssueTokenCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "issue-token",
		Description: "Issue a bearer token for a user",
		Flags:       env.newFlags("issue-token"),
	}
	userID := cmd.Flags.Int64("user", 0, "User ID (required)")
	ttl := cmd.Flags.Duration("ttl", 0, "Token lifetime (default: BOS_TOKEN_TTL)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *userID <= 0 {
			return fmt.Errorf("--user is required")
		}
		lifetime := *ttl
		if lifetime <= 0 {
			lifetime = env.TokenTTL
		}
		if lifetime <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}
		return env.withDB(func(ctx context.Context, db *sql.DB) error {
			token, expiresAt, err := auth.NewSessionStore(db).Issue(ctx, *userID, lifetime)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Token:   %s\n", token)
			fmt.Fprintf(env.Out, "Expires: %s\n", expiresAt.Format(time.RFC3339))
			return nil
		})
	}
	return cmd
}

func newDisableUserCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "disable-user",
		Description: "Deactivate a user and drop their sessions",
		Flags:       env.newFlags("disable-user"),
	}
	tenantID := cmd.Flags.Int64("tenant", 0, "Tenant ID (required)")
	userID := cmd.Flags.Int64("user", 0, "User ID (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *tenantID <= 0 {
			return fmt.Errorf("--tenant is required")
		}
		if *userID <= 0 {
			return fmt.Errorf("--user is required")
		}
		scope, err := tenancy.For(*tenantID)
		if err != nil {
			return err
		}
		return env.withDB(func(ctx context.Context, db *sql.DB) error {
			previous, err := rbac.NewStore(db, catalog.Default()).SetUserStatus(ctx, scope, *userID, auth.UserInactive)
			if err != nil {
				return err
			}
			if previous == auth.UserInactive {
				fmt.Fprintf(env.Out, "User %d is already inactive\n", *userID)
				return nil
			}

			id := *userID
			_, err = audit.NewStore(audit.Single(db), audit.Config{}, nil).Record(tenancy.WithScope(ctx, scope), audit.Event{
				Action:     audit.ActionUserDeactivated,
				EntityType: "user",
				EntityID:   &id,
				Details:    map[string]interface{}{"status": auth.UserInactive, "previous_status": previous, "source": "bos-admin"},
			})
			if err != nil {
				fmt.Fprintf(env.Out, "Warning: failed to record the deactivation: %v\n", err)
			}
			fmt.Fprintf(env.Out, "Deactivated user %d in tenant %d\n", *userID, *tenantID)
			return nil
		})
	}
	return cmd
}
