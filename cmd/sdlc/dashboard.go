package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sdlcboard/internal/app"
	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine"
	"sdlcboard/internal/engine/auth"
	sdlcboardsdk "sdlcboard/sdk/go"
)

// remoteRole asks the API server for the caller's role.
type remoteRole struct {
	client *sdlcboardsdk.Client
}

func (r remoteRole) CurrentRole(ctx context.Context) (domain.Role, error) {
	me, err := r.client.Me(ctx)
	if err != nil {
		return "", err
	}
	return me.Role, nil
}

func dashboardCmd() *cobra.Command {
	var term, projectID, remote, apiKey, token string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show projects and stage bottlenecks",
		Long: `Render the dashboard for the current actor. Access requires the PROJECT_MANAGER or ADMIN role.
With --remote the projects and the role come from a running API server instead of the local workspace.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if remote != "" {
				client := sdlcboardsdk.New(remote)
				client.APIKey = apiKey
				client.BearerToken = token
				return runDashboard(ctx, engine.New(client, engine.Config{}), remoteRole{client: client}, term, projectID)
			}
			return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
				e := engine.New(ws.Repo, engine.Config{RefreshTimeout: ws.Config.RefreshTimeout()})
				provider := auth.Provider{Service: auth.Service{DB: ws.DB}, ActorID: viper.GetString("actor-id")}
				return runDashboard(ctx, e, provider, term, projectID)
			})
		},
	}
	cmd.Flags().StringVarP(&term, "search", "s", "", "filter by project name or code")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "show stages of this project")
	cmd.Flags().StringVar(&remote, "remote", "", "API server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("SDLCBOARD_API_KEY"), "API key for --remote")
	cmd.Flags().StringVar(&token, "token", os.Getenv("SDLCBOARD_TOKEN"), "bearer token for --remote")
	return cmd
}

func runDashboard(ctx context.Context, e *engine.Engine, provider engine.RoleProvider, term, projectID string) error {
	role, decision := e.Access(ctx, provider)
	if decision != auth.Allowed {
		return fmt.Errorf("access denied: the dashboard requires the PROJECT_MANAGER or ADMIN role")
	}
	view, err := e.Dashboard(ctx, role, engine.Query{Term: term, ProjectID: projectID})
	if errors.Is(err, engine.ErrProjectNotFound) {
		return fmt.Errorf("project %s not found", projectID)
	}
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(view)
	}
	renderView(view)
	return nil
}

var (
	badgeBottleneck = color.New(color.FgWhite, color.BgRed, color.Bold)
	badgeOK         = color.New(color.FgGreen)
	dim             = color.New(color.Faint)
)

func renderView(v engine.View) {
	switch v.State {
	case engine.StateError:
		color.New(color.FgRed).Println(v.Message)
		if !v.Stale {
			return
		}
		dim.Println("showing the last loaded data")
	case engine.StateLoading:
		fmt.Println("loading projects...")
		return
	case engine.StateEmpty:
		fmt.Println("No projects yet.")
		return
	case engine.StateNoMatch:
		fmt.Printf("No projects match %q.\n", v.Term)
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Code", "Name", "Active", "Stages", "Bottlenecks", "Updated"})
	for _, p := range v.Projects {
		bottlenecks := badgeOK.Sprint("0")
		if p.BottleneckCount > 0 {
			bottlenecks = badgeBottleneck.Sprintf(" %d ", p.BottleneckCount)
		}
		tw.AppendRow(table.Row{p.ID, p.Code, p.Name, p.IsActive, p.StageCount, bottlenecks, p.UpdatedAt})
	}
	tw.Render()

	if v.Selected != nil {
		fmt.Println()
		renderDetail(*v.Selected)
	}
}

func renderDetail(d domain.ProjectDetail) {
	fmt.Printf("%s (%s)\n", d.Name, d.Code)
	if len(d.Stages) == 0 {
		dim.Println("no stages")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Stage", "Status", "Owner", "Entry", "Exit", "Delayed", ""})
	for i, s := range d.Stages {
		badge := ""
		if s.IsBottleneck {
			badge = badgeBottleneck.Sprint(" BOTTLENECK ")
		}
		tw.AppendRow(table.Row{i + 1, s.Name, s.Status, s.OwnerName, check(s.EntryCriteriaMet), check(s.ExitCriteriaMet), s.DelayedTasks, badge})
		if s.ShowReasons {
			msgs := make([]string, 0, len(s.Reasons))
			for _, r := range s.Reasons {
				msgs = append(msgs, r.Message)
			}
			tw.AppendRow(table.Row{"", dim.Sprint(strings.Join(msgs, "; "))})
		}
	}
	tw.Render()
}

func check(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
