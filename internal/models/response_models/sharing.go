package response_models

import "github.com/google/uuid"

// SeatChange reports what a ledger mutation did to the seat counter.
type SeatChange struct {
	Consumed bool `json:"seat_added"`
	Released bool `json:"seat_released"`
}

type ShareResult struct {
	ShareID    uuid.UUID  `json:"share_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Permission string     `json:"permission,omitempty"`
	Status     string     `json:"status,omitempty"`
	Seat       SeatChange `json:"seat"`
	Verdict    *Verdict   `json:"verdict,omitempty"`
}

type PermissionChangeResult struct {
	ShareID       uuid.UUID  `json:"share_id"`
	UserID        *uuid.UUID `json:"user_id"`
	OldPermission string     `json:"old_permission"`
	NewPermission string     `json:"new_permission"`
	Seat          SeatChange `json:"seat"`
	Verdict       *Verdict   `json:"verdict,omitempty"`
}

type Collaborator struct {
	ShareID    uuid.UUID `json:"share_id"`
	Email      string    `json:"email"`
	Permission string    `json:"permission"`
	Status     string    `json:"status"`
	SharedAt   int64     `json:"shared_at"`
}

type SharedFile struct {
	ShareID     uuid.UUID `json:"share_id"`
	InstanceID  uuid.UUID `json:"instance_id"`
	Title       string    `json:"title"`
	SharedBy    uuid.UUID `json:"shared_by"`
	Permission  string    `json:"permission"`
	Status      string    `json:"status"`
	RespondedAt *int64    `json:"accepted_time,omitempty"`
}

type RoleChangeResult struct {
	UserID         uuid.UUID `json:"user_id"`
	OldRole        string    `json:"old_role"`
	NewRole        string    `json:"new_role"`
	SeatConsumed   bool      `json:"seat_consumed"`
	SeatReleased   bool      `json:"seat_released"`
	SeatsRemaining int       `json:"seats_remaining"`
	FilesUpdated   int64     `json:"files_updated"`
	Verdict        *Verdict  `json:"verdict,omitempty"`
}

type MemberRemovalResult struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	SeatReleased bool      `json:"seat_released"`
	FilesRemoved int64     `json:"files_removed"`
}

type CompanyMemberView struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}
