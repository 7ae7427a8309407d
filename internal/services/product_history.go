package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/pkg/utils"
)

// Sessions idle longer than this no longer count as active editors.
const editorIdleAfter = 30 * time.Minute

// recordVersion snapshots the file's sections as its next version. It must
// run inside the transaction that changed them.
func (p *ProductService) recordVersion(ctx context.Context, instanceID, userID uuid.UUID, changelog string, restoredFrom *int) (*dbm.ProductVersion, error) {
	sections, err := p.productRepo.ListSections(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sections: %v", utils.ErrDatabaseError, err)
	}
	snapshot, err := json.Marshal(sectionMap(sections))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	number, err := p.productRepo.NextVersion(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: next version: %v", utils.ErrDatabaseError, err)
	}
	version := &dbm.ProductVersion{
		InstanceID:   instanceID,
		Number:       number,
		CreatedBy:    userID,
		Changelog:    changelog,
		Snapshot:     datatypes.JSON(snapshot),
		RestoredFrom: restoredFrom,
	}
	if err := p.productRepo.CreateVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("%w: create version: %v", utils.ErrDatabaseError, err)
	}
	return version, nil
}

func (p *ProductService) ListVersions(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.VersionHistory, error) {
	role, ok, err := p.memberRepo.GetRole(ctx, companyID, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if !ok {
		return nil, utils.ErrFileNotFound
	}
	instance, err := p.loadInCompany(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}

	versions, err := p.productRepo.ListVersions(ctx, instanceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	editors, err := p.activeEditors(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	history := &rm.VersionHistory{
		Versions:      make([]rm.VersionResponse, 0, len(versions)),
		TotalCount:    len(versions),
		ActiveEditors: editors,
		CanRestore: role != dbm.RoleViewer &&
			instance.Status == dbm.InstanceActive &&
			checkUnlocked(instance, role) == nil,
	}
	for i := range versions {
		v := &versions[i]
		current := v.Number == instance.CurrentVersion
		history.Versions = append(history.Versions, toVersionResponse(v, current, current))
	}
	return history, nil
}

// RestoreVersion copies an earlier snapshot back into the file as a new
// version. History is never rewritten.
func (p *ProductService) RestoreVersion(ctx context.Context, companyID, userID, instanceID, versionID uuid.UUID, reason string) (*rm.VersionResponse, error) {
	role, err := p.requireWriter(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}

	var restored *dbm.ProductVersion
	err = infra.RunInTransaction(ctx, p.db, func(ctx context.Context) error {
		instance, err := p.loadInCompany(ctx, companyID, instanceID)
		if err != nil {
			return err
		}
		if instance.Status != dbm.InstanceActive {
			return utils.ErrFileNotFound
		}
		if err := checkUnlocked(instance, role); err != nil {
			return err
		}

		source, err := p.productRepo.FindVersion(ctx, instanceID, versionID)
		if err != nil {
			return fmt.Errorf("%w: find version: %v", utils.ErrDatabaseError, err)
		}
		if source == nil {
			return utils.ErrVersionNotFound
		}

		sections, err := decodeSections(source.Snapshot)
		if err != nil {
			return err
		}
		if err := p.productRepo.ReplaceSections(ctx, instanceID, toSectionRows(sections)); err != nil {
			return fmt.Errorf("%w: replace sections: %v", utils.ErrDatabaseError, err)
		}

		changelog := fmt.Sprintf("Restored from version %d", source.Number)
		if reason = strings.TrimSpace(reason); reason != "" {
			changelog += ": " + reason
		}
		from := source.Number
		restored, err = p.recordVersion(ctx, instanceID, userID, changelog, &from)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("instance_id", instanceID.String()).
		Int("version", restored.Number).
		Int("restored_from", *restored.RestoredFrom).
		Msg("File version restored")

	resp := toVersionResponse(restored, true, false)
	return &resp, nil
}

// StartEdit opens a draft seeded from the current sections, or resumes the
// caller's open session on the file.
func (p *ProductService) StartEdit(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.EditSessionResponse, error) {
	instance, err := p.loadWritable(ctx, companyID, userID, instanceID)
	if err != nil {
		return nil, err
	}

	session, err := p.productRepo.FindOpenSession(ctx, instanceID, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	now := time.Now().Unix()

	if session != nil {
		if _, err := p.productRepo.TouchSession(ctx, session.ID, map[string]interface{}{"last_activity_at": now}); err != nil {
			return nil, utils.ErrDatabaseError
		}
		session.LastActivityAt = now
	} else {
		sections, err := p.productRepo.ListSections(ctx, instanceID)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		draft, err := json.Marshal(sectionMap(sections))
		if err != nil {
			return nil, fmt.Errorf("encode draft: %w", err)
		}
		session = &dbm.EditSession{
			InstanceID:     instanceID,
			UserID:         userID,
			BaseVersion:    instance.CurrentVersion,
			Draft:          datatypes.JSON(draft),
			Status:         dbm.SessionOpen,
			LastActivityAt: now,
		}
		if err := p.productRepo.CreateSession(ctx, session); err != nil {
			return nil, utils.ErrDatabaseError
		}
	}

	editors, err := p.activeEditors(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	others := editors[:0]
	for _, e := range editors {
		if e.SessionID != session.ID {
			others = append(others, e)
		}
	}

	resp, err := toSessionResponse(session, true)
	if err != nil {
		return nil, err
	}
	resp.ActiveEditors = others
	return resp, nil
}

// AutosaveSession merges sections into the draft without touching the file.
func (p *ProductService) AutosaveSession(ctx context.Context, companyID, userID, instanceID, sessionID uuid.UUID, sections map[string]json.RawMessage) (*rm.EditSessionResponse, error) {
	if _, err := p.loadWritable(ctx, companyID, userID, instanceID); err != nil {
		return nil, err
	}
	session, err := p.loadSession(ctx, userID, instanceID, sessionID)
	if err != nil {
		return nil, err
	}

	draft, err := mergeDraft(session.Draft, sections)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	touched, err := p.productRepo.TouchSession(ctx, sessionID, map[string]interface{}{
		"draft":            draft,
		"last_activity_at": now,
	})
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if !touched {
		return nil, utils.ErrSessionClosed
	}

	session.Draft = draft
	session.LastActivityAt = now
	return toSessionResponse(session, false)
}

// SaveSession writes the draft to the file as a new version and closes the
// session. Another version landing since the session began is reported as a
// conflict; the draft still wins section by section.
func (p *ProductService) SaveSession(ctx context.Context, companyID, userID, instanceID, sessionID uuid.UUID, req request_models.SaveSessionRequest) (*rm.SessionSaveResult, error) {
	role, err := p.requireWriter(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	session, err := p.loadSession(ctx, userID, instanceID, sessionID)
	if err != nil {
		return nil, err
	}
	draft, err := mergeDraft(session.Draft, req.Sections)
	if err != nil {
		return nil, err
	}
	sections, err := decodeSections(draft)
	if err != nil {
		return nil, err
	}

	changelog := strings.TrimSpace(req.Changelog)
	if changelog == "" {
		changelog = "Saved edit session"
	}

	result := &rm.SessionSaveResult{}
	err = infra.RunInTransaction(ctx, p.db, func(ctx context.Context) error {
		instance, err := p.loadInCompany(ctx, companyID, instanceID)
		if err != nil {
			return err
		}
		if instance.Status != dbm.InstanceActive {
			return utils.ErrFileNotFound
		}
		if err := checkUnlocked(instance, role); err != nil {
			return err
		}

		closed, err := p.productRepo.CloseSession(ctx, sessionID, dbm.SessionSaved)
		if err != nil {
			return fmt.Errorf("%w: close session: %v", utils.ErrDatabaseError, err)
		}
		if !closed {
			return utils.ErrSessionClosed
		}
		result.HadConflict = instance.CurrentVersion != session.BaseVersion

		for _, row := range toSectionRows(sections) {
			row.InstanceID = instanceID
			if err := p.productRepo.UpsertSection(ctx, &row); err != nil {
				return fmt.Errorf("%w: save section: %v", utils.ErrDatabaseError, err)
			}
		}

		version, err := p.recordVersion(ctx, instanceID, userID, changelog, nil)
		if err != nil {
			return err
		}
		result.Version = toVersionResponse(version, true, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.HadConflict {
		log.Warn().
			Str("instance_id", instanceID.String()).
			Str("session_id", sessionID.String()).
			Int("base_version", session.BaseVersion).
			Msg("Edit session saved over a newer version")
	}
	return result, nil
}

func (p *ProductService) DiscardSession(ctx context.Context, companyID, userID, instanceID, sessionID uuid.UUID) (*rm.EditSessionResponse, error) {
	if _, err := p.requireWriter(ctx, companyID, userID); err != nil {
		return nil, err
	}
	if _, err := p.loadInCompany(ctx, companyID, instanceID); err != nil {
		return nil, err
	}
	session, err := p.loadSession(ctx, userID, instanceID, sessionID)
	if err != nil {
		return nil, err
	}

	closed, err := p.productRepo.CloseSession(ctx, sessionID, dbm.SessionDiscarded)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if !closed {
		return nil, utils.ErrSessionClosed
	}
	session.Status = dbm.SessionDiscarded
	return toSessionResponse(session, false)
}

func (p *ProductService) ListEditors(ctx context.Context, companyID, userID, instanceID uuid.UUID) ([]rm.EditorView, error) {
	if _, ok, err := p.memberRepo.GetRole(ctx, companyID, userID); err != nil {
		return nil, utils.ErrDatabaseError
	} else if !ok {
		return nil, utils.ErrFileNotFound
	}
	if _, err := p.loadInCompany(ctx, companyID, instanceID); err != nil {
		return nil, err
	}
	return p.activeEditors(ctx, instanceID)
}

// loadWritable returns an active file the caller may change.
func (p *ProductService) loadWritable(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*dbm.ProductInstance, error) {
	role, err := p.requireWriter(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	instance, err := p.loadInCompany(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status != dbm.InstanceActive {
		return nil, utils.ErrFileNotFound
	}
	if err := checkUnlocked(instance, role); err != nil {
		return nil, err
	}
	return instance, nil
}

// loadSession returns the caller's open session on the file.
func (p *ProductService) loadSession(ctx context.Context, userID, instanceID, sessionID uuid.UUID) (*dbm.EditSession, error) {
	session, err := p.productRepo.FindSession(ctx, sessionID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if session == nil || session.InstanceID != instanceID || session.UserID != userID {
		return nil, utils.ErrSessionNotFound
	}
	if session.Status != dbm.SessionOpen {
		return nil, utils.ErrSessionClosed
	}
	return session, nil
}

func (p *ProductService) activeEditors(ctx context.Context, instanceID uuid.UUID) ([]rm.EditorView, error) {
	since := time.Now().Add(-editorIdleAfter).Unix()
	sessions, err := p.productRepo.ListOpenSessions(ctx, instanceID, since)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	out := make([]rm.EditorView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, rm.EditorView{
			SessionID:    s.ID,
			UserID:       s.UserID,
			StartedAt:    s.CreatedAt,
			LastActivity: s.LastActivityAt,
		})
	}
	return out, nil
}

func sectionMap(sections []dbm.ProductSection) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(sections))
	for _, s := range sections {
		if len(s.Data) == 0 {
			out[s.Section] = json.RawMessage("null")
			continue
		}
		out[s.Section] = json.RawMessage(s.Data)
	}
	return out
}

func decodeSections(raw datatypes.JSON) (map[string]json.RawMessage, error) {
	sections := map[string]json.RawMessage{}
	if len(raw) == 0 {
		return sections, nil
	}
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return sections, nil
}

func mergeDraft(draft datatypes.JSON, changes map[string]json.RawMessage) (datatypes.JSON, error) {
	sections, err := decodeSections(draft)
	if err != nil {
		return nil, err
	}
	for name, data := range changes {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sections[name] = data
	}
	merged, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	return datatypes.JSON(merged), nil
}

// toSectionRows orders rows by section name so writes are deterministic.
func toSectionRows(sections map[string]json.RawMessage) []dbm.ProductSection {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]dbm.ProductSection, 0, len(names))
	for _, name := range names {
		rows = append(rows, dbm.ProductSection{
			Section: name,
			Data:    datatypes.JSON(sections[name]),
		})
	}
	return rows
}

func toVersionResponse(v *dbm.ProductVersion, current, withSections bool) rm.VersionResponse {
	resp := rm.VersionResponse{
		ID:           v.ID,
		Number:       v.Number,
		CreatedBy:    v.CreatedBy,
		CreatedAt:    v.CreatedAt,
		Changelog:    v.Changelog,
		IsCurrent:    current,
		RestoredFrom: v.RestoredFrom,
	}
	if withSections {
		if sections, err := decodeSections(v.Snapshot); err == nil {
			resp.Sections = sections
		}
	}
	return resp
}

func toSessionResponse(s *dbm.EditSession, withDraft bool) (*rm.EditSessionResponse, error) {
	resp := &rm.EditSessionResponse{
		SessionID:    s.ID,
		InstanceID:   s.InstanceID,
		UserID:       s.UserID,
		Status:       string(s.Status),
		BaseVersion:  s.BaseVersion,
		StartedAt:    s.CreatedAt,
		LastActivity: s.LastActivityAt,
	}
	if withDraft {
		draft, err := decodeSections(s.Draft)
		if err != nil {
			return nil, err
		}
		resp.Draft = draft
	}
	return resp, nil
}
