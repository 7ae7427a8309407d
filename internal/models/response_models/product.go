package response_models

import (
	"encoding/json"

	"github.com/google/uuid"
)

type ProductInstanceResponse struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   int64     `json:"created_at"`

	CurrentVersion int        `json:"current_version"`
	IsLocked       bool       `json:"is_locked"`
	LockedBy       *uuid.UUID `json:"locked_by,omitempty"`
	LockedAt       *int64     `json:"locked_at,omitempty"`
	LockedReason   string     `json:"locked_reason,omitempty"`

	Sections map[string]json.RawMessage `json:"sections,omitempty"`
}

type ProductMutationResult struct {
	Instance      *ProductInstanceResponse `json:"instance,omitempty"`
	Verdict       *Verdict                 `json:"verdict,omitempty"`
	SharesRemoved int64                    `json:"shares_removed,omitempty"`
	SeatsReleased int                      `json:"seats_released,omitempty"`
}

type VersionResponse struct {
	ID           uuid.UUID `json:"version_id"`
	Number       int       `json:"version_number"`
	CreatedBy    uuid.UUID `json:"created_by"`
	CreatedAt    int64     `json:"created_at"`
	Changelog    string    `json:"changelog"`
	IsCurrent    bool      `json:"is_current"`
	RestoredFrom *int      `json:"restored_from_version,omitempty"`

	Sections map[string]json.RawMessage `json:"form_data,omitempty"`
}

type VersionHistory struct {
	Versions      []VersionResponse `json:"versions"`
	TotalCount    int               `json:"total_count"`
	ActiveEditors []EditorView      `json:"active_editors"`
	CanRestore    bool              `json:"can_restore"`
}

type EditorView struct {
	SessionID    uuid.UUID `json:"session_id"`
	UserID       uuid.UUID `json:"user_id"`
	StartedAt    int64     `json:"started_at"`
	LastActivity int64     `json:"last_activity"`
}

type EditSessionResponse struct {
	SessionID    uuid.UUID `json:"session_id"`
	InstanceID   uuid.UUID `json:"instance_id"`
	UserID       uuid.UUID `json:"user_id"`
	Status       string    `json:"status"`
	BaseVersion  int       `json:"base_version"`
	StartedAt    int64     `json:"started_at"`
	LastActivity int64     `json:"last_activity"`

	Draft         map[string]json.RawMessage `json:"form_data,omitempty"`
	ActiveEditors []EditorView               `json:"active_editors,omitempty"`
}

type SessionSaveResult struct {
	Version     VersionResponse `json:"version"`
	HadConflict bool            `json:"had_conflict"`
}
