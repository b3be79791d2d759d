package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/models"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			database, err := db.New(cfg.DB.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer database.Close()

			logger.Info("database schema is up to date", "path", cfg.DB.Path)
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "# Merged configuration (defaults + file + environment)")
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
	return cmd
}

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage customers and shoppers",
	}
	cmd.AddCommand(newUserAddCmd(opts))
	return cmd
}

func newUserAddCmd(opts *options) *cobra.Command {
	var firstName, lastName string

	cmd := &cobra.Command{
		Use:   "add <customer|shopper> <email>",
		Short: "Register a customer or a shopper",
		Long: `Register a customer or a shopper.

Examples:
  shopbuddy user add customer ana@example.com --first Ana
  shopbuddy user add shopper sam@example.com --first Sam --last Ortiz`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := models.Role(strings.ToLower(args[0]))
			email := strings.TrimSpace(args[1])
			if email == "" {
				return fmt.Errorf("email is required")
			}

			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			database, err := db.New(cfg.DB.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer database.Close()

			u := models.User{Email: email, FirstName: firstName, LastName: lastName}
			ctx := cmd.Context()

			switch role {
			case models.RoleCustomer:
				c, err := database.AddCustomer(ctx, u)
				if err != nil {
					return fmt.Errorf("add customer: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Customer %d registered for %s\n", c.ID, email)
			case models.RoleShopper:
				s, err := database.AddShopper(ctx, u)
				if err != nil {
					return fmt.Errorf("add shopper: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Shopper %d registered for %s\n", s.ID, email)
			default:
				return fmt.Errorf("unknown role %q: must be customer or shopper", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&firstName, "first", "", "first name")
	cmd.Flags().StringVar(&lastName, "last", "", "last name")

	return cmd
}
