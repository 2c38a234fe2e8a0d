package server

import (
	"encoding/json"
	"strings"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine"
	"sdlcboard/internal/repo"
)

// Request payloads

type StageRequest struct {
	ID               string `json:"id,omitempty" doc:"Generated when omitted"`
	Name             string `json:"name"`
	Status           string `json:"status" enum:"NOT_STARTED,IN_PROGRESS,COMPLETED,DELAYED"`
	EntryCriteriaMet bool   `json:"entry_criteria_met"`
	ExitCriteriaMet  bool   `json:"exit_criteria_met"`
	DelayedTasks     int    `json:"delayed_tasks" minimum:"0"`
	OwnerName        string `json:"owner_name,omitempty"`
}

type PutProjectRequest struct {
	Name       string         `json:"name"`
	Code       string         `json:"code"`
	IsActive   *bool          `json:"is_active,omitempty" doc:"Defaults to true"`
	SDLCStages []StageRequest `json:"sdlc_stages,omitempty"`
}

func (r PutProjectRequest) project(id string) domain.Project {
	p := domain.Project{
		ID:         id,
		Name:       strings.TrimSpace(r.Name),
		Code:       strings.TrimSpace(r.Code),
		IsActive:   r.IsActive == nil || *r.IsActive,
		SDLCStages: make([]domain.Stage, 0, len(r.SDLCStages)),
	}
	for _, s := range r.SDLCStages {
		p.SDLCStages = append(p.SDLCStages, domain.Stage{
			ID:               s.ID,
			Name:             s.Name,
			Status:           domain.StageStatus(s.Status),
			EntryCriteriaMet: s.EntryCriteriaMet,
			ExitCriteriaMet:  s.ExitCriteriaMet,
			DelayedTasks:     s.DelayedTasks,
			OwnerName:        s.OwnerName,
		})
	}
	return p
}

type PatchStageRequest struct {
	Name             *string `json:"name,omitempty"`
	Status           *string `json:"status,omitempty" enum:"NOT_STARTED,IN_PROGRESS,COMPLETED,DELAYED"`
	EntryCriteriaMet *bool   `json:"entry_criteria_met,omitempty"`
	ExitCriteriaMet  *bool   `json:"exit_criteria_met,omitempty"`
	DelayedTasks     *int    `json:"delayed_tasks,omitempty" minimum:"0"`
	OwnerName        *string `json:"owner_name,omitempty"`
}

func (r PatchStageRequest) empty() bool {
	return r.Name == nil && r.Status == nil && r.EntryCriteriaMet == nil &&
		r.ExitCriteriaMet == nil && r.DelayedTasks == nil && r.OwnerName == nil
}

func (r PatchStageRequest) patch() repo.StagePatch {
	p := repo.StagePatch{
		Name:             r.Name,
		EntryCriteriaMet: r.EntryCriteriaMet,
		ExitCriteriaMet:  r.ExitCriteriaMet,
		DelayedTasks:     r.DelayedTasks,
		OwnerName:        r.OwnerName,
	}
	if r.Status != nil {
		st := domain.StageStatus(*r.Status)
		p.Status = &st
	}
	return p
}

type SetRoleRequest struct {
	Role string `json:"role" doc:"Empty removes the assignment"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
	Access  string      `json:"access" enum:"allowed,denied"`
	Source  string      `json:"source"`
}

type ProjectListResponse struct {
	State    engine.State            `json:"state" enum:"loading,ready,empty,no_match,error"`
	Message  string                  `json:"message,omitempty"`
	Stale    bool                    `json:"stale"`
	Term     string                  `json:"term"`
	Projects []domain.ProjectSummary `json:"projects"`
}

func projectList(v engine.View) ProjectListResponse {
	return ProjectListResponse{
		State:    v.State,
		Message:  v.Message,
		Stale:    v.Stale,
		Term:     v.Term,
		Projects: v.Projects,
	}
}

type RoleResponse struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}
