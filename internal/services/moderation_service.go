package services

import (
	"context"
	"fmt"

	"github.com/carebridge/telehealth-identity/internal/metrics"
	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ModerationService governs the doctor-account approval lifecycle.
// The transition graph is flat: an admin may move an account between
// any of the four states; only the initial PENDING assignment happens
// without an admin action.
type ModerationService struct {
	users UserStore
	audit AuditStore
}

// NewModerationService creates a new moderation service
func NewModerationService(users UserStore, audit AuditStore) *ModerationService {
	return &ModerationService{users: users, audit: audit}
}

// SetStatus writes a new approval status together with its derived
// is_approved mirror. The status literal must be one of the four
// recognized states; anything else is a malformed request. The write is
// scoped to doctor rows: a non-doctor id affects zero rows and is not
// an error.
func (s *ModerationService) SetStatus(ctx context.Context, id uuid.UUID, status string, meta AuditMeta) (int64, error) {
	newStatus := models.ApprovalStatus(status)
	if !newStatus.IsValid() {
		return 0, NewValidationError(fmt.Sprintf("unknown status: %q", status))
	}

	rows, err := s.users.UpdateApproval(ctx, id, newStatus, newStatus == models.StatusApproved)
	if err != nil {
		return 0, fmt.Errorf("failed to set status: %w", err)
	}

	metrics.ModerationActions.WithLabelValues(string(newStatus)).Inc()
	s.record(ctx, models.ActionSetStatus, id, meta)
	return rows, nil
}

// Approve is the legacy convenience wrapper for setting APPROVED. It
// goes through SetStatus so the mirror boolean stays consistent.
func (s *ModerationService) Approve(ctx context.Context, id uuid.UUID, meta AuditMeta) (int64, error) {
	return s.SetStatus(ctx, id, string(models.StatusApproved), meta)
}

// Delete removes a doctor account. Non-doctor ids affect zero rows.
func (s *ModerationService) Delete(ctx context.Context, id uuid.UUID, meta AuditMeta) (int64, error) {
	rows, err := s.users.DeleteDoctor(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete doctor: %w", err)
	}
	s.record(ctx, models.ActionDeleteDoctor, id, meta)
	return rows, nil
}

// ListDoctors returns doctor accounts, optionally filtered by status
func (s *ModerationService) ListDoctors(ctx context.Context, status string) ([]models.User, error) {
	filter := models.ApprovalStatus(status)
	if status != "" && !filter.IsValid() {
		return nil, NewValidationError(fmt.Sprintf("unknown status: %q", status))
	}

	doctors, err := s.users.ListDoctors(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}

// AuditTrail returns the recorded identity events for an account,
// newest first.
func (s *ModerationService) AuditTrail(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.audit.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

func (s *ModerationService) record(ctx context.Context, action string, target uuid.UUID, meta AuditMeta) {
	entry := &models.AuditLog{
		Action:       action,
		ResourceType: "doctor",
		ResourceID:   target.String(),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Status:       "success",
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}
