package domain

import (
	"fmt"
	"strings"
)

// Role is the caller's dashboard role. The empty Role means no role is known.
type Role string

const (
	RoleViewer         Role = "VIEWER"
	RoleProjectManager Role = "PROJECT_MANAGER"
	RoleAdmin          Role = "ADMIN"
)

// Roles lists the known roles, least privileged first.
func Roles() []Role {
	return []Role{RoleViewer, RoleProjectManager, RoleAdmin}
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleViewer:
		return RoleViewer, nil
	case RoleProjectManager:
		return RoleProjectManager, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

type StageStatus string

const (
	StageNotStarted StageStatus = "NOT_STARTED"
	StageInProgress StageStatus = "IN_PROGRESS"
	StageCompleted  StageStatus = "COMPLETED"
	StageDelayed    StageStatus = "DELAYED"
)

// ParseStageStatus parses a stage status case-insensitively.
func ParseStageStatus(s string) (StageStatus, error) {
	switch StageStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StageNotStarted:
		return StageNotStarted, nil
	case StageInProgress:
		return StageInProgress, nil
	case StageCompleted:
		return StageCompleted, nil
	case StageDelayed:
		return StageDelayed, nil
	default:
		return "", fmt.Errorf("invalid stage status %q", s)
	}
}

// Project is one tracked software project. SDLCStages is in pipeline order.
type Project struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Code       string  `json:"code" yaml:"code"`
	IsActive   bool    `json:"is_active" yaml:"is_active"`
	UpdatedAt  string  `json:"updated_at" yaml:"updated_at" format:"date-time"`
	SDLCStages []Stage `json:"sdlc_stages" yaml:"sdlc_stages"`
}

// Stage is the reported status of one SDLC phase within a project.
type Stage struct {
	ID               string      `json:"id" yaml:"id"`
	Name             string      `json:"name" yaml:"name"`
	Status           StageStatus `json:"status" yaml:"status" enum:"NOT_STARTED,IN_PROGRESS,COMPLETED,DELAYED"`
	EntryCriteriaMet bool        `json:"entry_criteria_met" yaml:"entry_criteria_met"`
	ExitCriteriaMet  bool        `json:"exit_criteria_met" yaml:"exit_criteria_met"`
	DelayedTasks     int         `json:"delayed_tasks" yaml:"delayed_tasks" minimum:"0"`
	OwnerName        string      `json:"owner_name" yaml:"owner_name"`
}

// Clone returns a deep copy so callers cannot alias the stage slice.
func (p Project) Clone() Project {
	out := p
	if p.SDLCStages != nil {
		out.SDLCStages = append([]Stage(nil), p.SDLCStages...)
	}
	return out
}

const (
	ReasonStageDelayed       = "stage_delayed"
	ReasonEntryCriteriaUnmet = "entry_criteria_unmet"
	ReasonExitCriteriaUnmet  = "exit_criteria_unmet"
	ReasonDelayedTasks       = "delayed_tasks"
)

// Reason explains one contributing factor of a stage's bottleneck status.
type Reason struct {
	Code    string `json:"code" enum:"stage_delayed,entry_criteria_unmet,exit_criteria_unmet,delayed_tasks"`
	Message string `json:"message"`
}

// StageView is a stage annotated for presentation. Reasons are only meant to be
// shown when ShowReasons is set, which mirrors IsBottleneck.
type StageView struct {
	Stage
	IsBottleneck bool     `json:"is_bottleneck"`
	ShowReasons  bool     `json:"show_reasons"`
	Reasons      []Reason `json:"reasons"`
}

// ProjectSummary is the list-view projection of a project.
type ProjectSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	IsActive        bool   `json:"is_active"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
	StageCount      int    `json:"stage_count"`
	BottleneckCount int    `json:"bottleneck_count"`
}

// ProjectDetail is a project with every stage annotated.
type ProjectDetail struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Code      string      `json:"code"`
	IsActive  bool        `json:"is_active"`
	UpdatedAt string      `json:"updated_at" format:"date-time"`
	Stages    []StageView `json:"stages"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
