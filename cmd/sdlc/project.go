package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sdlcboard/internal/app"
	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine"
	"sdlcboard/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectImportCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Active", "Stages", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Code, p.Name, p.IsActive, len(p.SDLCStages), p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with annotated stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				detail := engine.Detail(p)
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				renderDetail(detail)
				return nil
			})
		},
	}
}

func projectImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yml>",
		Short: "Create or replace projects from a YAML file",
		Long: `The file holds a top-level "projects" list. Each project replaces any stored
project with the same id, stages included.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				stored, err := app.ImportProjectsFile(ctx, ws.Repo, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stored)
				}
				fmt.Printf("imported %d project(s)\n", len(stored))
				return nil
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Repo.DeleteProject(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func stageCmd() *cobra.Command {
	st := &cobra.Command{Use: "stage", Short: "Manage project stages"}
	st.AddCommand(stageUpdateCmd())
	return st
}

func stageUpdateCmd() *cobra.Command {
	var status, owner, name string
	var entry, exit bool
	var delayed int
	cmd := &cobra.Command{
		Use:   "update <project-id> <stage-id>",
		Short: "Update a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch repo.StagePatch
			if cmd.Flags().Changed("status") {
				parsed, err := domain.ParseStageStatus(status)
				if err != nil {
					return err
				}
				patch.Status = &parsed
			}
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("owner") {
				patch.OwnerName = &owner
			}
			if cmd.Flags().Changed("entry-met") {
				patch.EntryCriteriaMet = &entry
			}
			if cmd.Flags().Changed("exit-met") {
				patch.ExitCriteriaMet = &exit
			}
			if cmd.Flags().Changed("delayed-tasks") {
				patch.DelayedTasks = &delayed
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				s, err := ws.Repo.UpdateStage(ctx, args[0], args[1], patch, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPretty(engine.Annotate(s))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "NOT_STARTED, IN_PROGRESS, COMPLETED or DELAYED")
	cmd.Flags().StringVar(&name, "name", "", "stage name")
	cmd.Flags().StringVar(&owner, "owner", "", "owner name")
	cmd.Flags().BoolVar(&entry, "entry-met", false, "entry criteria met")
	cmd.Flags().BoolVar(&exit, "exit-met", false, "exit criteria met")
	cmd.Flags().IntVar(&delayed, "delayed-tasks", 0, "number of delayed tasks")
	return cmd
}
