package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sdlcboard/internal/app"
	"sdlcboard/internal/config"
	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine/auth"
	"sdlcboard/internal/repo"
)

func rbacCmd() *cobra.Command {
	rb := &cobra.Command{
		Use:   "rbac",
		Short: "Manage actor roles",
		Long:  "Each actor has at most one role. PROJECT_MANAGER and ADMIN can view the dashboard; only ADMIN can assign roles or delete projects through the API.",
	}
	rb.AddCommand(rbacListCmd())
	rb.AddCommand(rbacSetRoleCmd())
	rb.AddCommand(rbacWhoamiCmd())
	rb.AddCommand(rbacBootstrapCmd())
	return rb
}

func rbacListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors and roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actors, err := ws.Repo.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Role", "Dashboard", "Created"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Role, auth.Check(a.Role), a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func rbacSetRoleCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Assign a role to an actor (an empty --role removes it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var parsed domain.Role
			if role != "" {
				r, err := domain.ParseRole(role)
				if err != nil {
					return err
				}
				parsed = r
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Repo.SetActorRole(ctx, target, parsed, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "VIEWER, PROJECT_MANAGER or ADMIN")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the role and dashboard access of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				role, err := auth.Service{DB: ws.DB}.ActorRole(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrPretty(map[string]any{
					"actor_id": actorID,
					"role":     role,
					"access":   auth.Check(role),
				})
			})
		},
	}
}

func rbacBootstrapCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Make an actor ADMIN if the workspace has no admin yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = viper.GetString("actor-id")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				granted, err := ws.Bootstrap(ctx, target)
				if err != nil {
					return err
				}
				if granted {
					fmt.Printf("%s is now ADMIN\n", target)
				} else {
					fmt.Println("an admin already exists; nothing changed")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id (defaults to --actor-id)")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apiKeyCreateCmd())
	ak.AddCommand(apiKeyListCmd())
	ak.AddCommand(apiKeyDeleteCmd())
	return ak
}

func apiKeyCreateCmd() *cobra.Command {
	var target, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = viper.GetString("actor-id")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				key, plaintext, err := ws.Repo.CreateAPIKey(ctx, target, name)
				if err != nil {
					return err
				}
				return printJSONOrPretty(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      plaintext,
				})
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Repo.ListAPIKeys(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "only keys of this actor")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the audit event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Repo.LatestEvents(ctx, repo.EventFilters{
					ProjectID:  projectID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter (project, stage, actor)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage sdlcboard.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force, noSecret bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default sdlcboard.yml and a JWT secret in .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			if noSecret || viper.GetString("jwt-secret") != "" {
				return nil
			}
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return err
			}
			if err := app.SetEnv(workspace, "SDLCBOARD_JWT_SECRET", hex.EncodeToString(secret)); err != nil {
				return err
			}
			fmt.Println("wrote SDLCBOARD_JWT_SECRET to", filepath.Join(workspace, ".env"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().BoolVar(&noSecret, "no-secret", false, "do not generate a JWT secret in .env")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrPretty(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate sdlcboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}
