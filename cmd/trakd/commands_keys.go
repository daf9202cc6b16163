package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hgeldenhuys/trak/internal/auth"
	"github.com/hgeldenhuys/trak/internal/store"
	"github.com/hgeldenhuys/trak/pkg/models"
)

func buildKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage bearer API keys",
	}
	cmd.AddCommand(
		buildKeysCreateCmd(),
		buildKeysListCmd(),
		buildKeysRevokeCmd(),
	)
	return cmd
}

func withAuthService(ctx context.Context, fn func(*auth.Service) error) error {
	cfg, err := loadConfigOrDefaults(defaultConfigPath(), false)
	if err != nil {
		return fmt.Errorf("trakd: %w", err)
	}
	dbPath := filepath.Join(cfg.Store.DataDir, "trak.db")
	st, err := store.Open(ctx, store.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("trakd: open store: %w", err)
	}
	defer st.Close()

	return fn(auth.NewService(st))
}

func buildKeysCreateCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new bearer key and print its plaintext once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthService(cmd.Context(), func(svc *auth.Service) error {
				plaintext, record, err := svc.CreateKey(cmd.Context(), args[0], projectID)
				if err != nil {
					return fmt.Errorf("trakd: create key: %w", err)
				}
				fmt.Printf("id:        %d\n", record.ID)
				fmt.Printf("name:      %s\n", record.Name)
				fmt.Printf("key:       %s\n", plaintext)
				fmt.Println("This key is shown only once. Store it securely.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier this key is scoped to")
	return cmd
}

func buildKeysListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthService(cmd.Context(), func(svc *auth.Service) error {
				var (
					list []*models.Credential
					err  error
				)
				if all {
					list, err = svc.List(cmd.Context())
				} else {
					list, err = svc.ListActive(cmd.Context())
				}
				if err != nil {
					return fmt.Errorf("trakd: list keys: %w", err)
				}
				for _, c := range list {
					printCredential(c)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include revoked keys")
	return cmd
}

func printCredential(c *models.Credential) {
	status := "active"
	if c.Revoked() {
		status = "revoked"
	}
	fmt.Printf("%-6d %-20s %-10s %s\n", c.ID, c.Name, status, c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
}

func buildKeysRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a bearer key by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("trakd: invalid id %q", args[0])
			}
			return withAuthService(cmd.Context(), func(svc *auth.Service) error {
				if err := svc.Revoke(cmd.Context(), id); err != nil {
					return fmt.Errorf("trakd: revoke key: %w", err)
				}
				fmt.Printf("revoked key %d\n", id)
				return nil
			})
		},
	}
	return cmd
}
