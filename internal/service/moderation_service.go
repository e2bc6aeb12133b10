package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/pkg/metrics"

	"github.com/google/uuid"
)

type FlagRepo interface {
	Insert(ctx context.Context, flag *model.ModerationFlag) error
	ActiveFlags(ctx context.Context, clientID, tokenID, ipAddress string, now time.Time) ([]*model.ModerationFlag, error)
	Deactivate(ctx context.Context, flagID string, now time.Time) error
	CountActive(ctx context.Context, organizationID string, now time.Time) (int, error)
	TopOffenders(ctx context.Context, dimension, organizationID string, since time.Time, limit int) ([]model.OffenderCount, error)
}

type ModeratorRepo interface {
	GetRole(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID, role string) error
}

// Permission names one capability on the moderation surface. The core only
// reports the map; enforcement happens at the HTTP boundary.
type Permission string

const (
	PermViewAudit      Permission = "view_audit"
	PermViewReports    Permission = "view_reports"
	PermFlagClient     Permission = "flag_client"
	PermBanToken       Permission = "ban_token"
	PermResolveReports Permission = "resolve_reports"
	PermExportAudit    Permission = "export_audit"
	PermManageConfig   Permission = "manage_config"
)

var rolePermissions = map[string][]Permission{
	"viewer": {PermViewAudit, PermViewReports},
	"moderator": {
		PermViewAudit, PermViewReports,
		PermFlagClient, PermBanToken, PermResolveReports,
	},
	"admin": {
		PermViewAudit, PermViewReports,
		PermFlagClient, PermBanToken, PermResolveReports,
		PermExportAudit, PermManageConfig,
	},
}

type ModerationService struct {
	flags  FlagRepo
	mods   ModeratorRepo
	audit  *AuditService
	events EventPublisher
	now    func() time.Time
}

func NewModerationService(flags FlagRepo, mods ModeratorRepo, audit *AuditService, events EventPublisher) *ModerationService {
	return &ModerationService{
		flags:  flags,
		mods:   mods,
		audit:  audit,
		events: events,
		now:    time.Now,
	}
}

// FlagClient creates an enforcement flag against exactly the dimension the
// request supplies and mirrors the action into the audit trail. Validation
// runs before any store write.
func (s *ModerationService) FlagClient(ctx context.Context, req model.FlagClientRequest, flaggedBy, ip string) (*model.ModerationFlag, error) {
	if req.ClientID == "" && req.TokenID == "" && req.IPAddress == "" {
		return nil, apperrors.NewValidation("at least one of client_id, token_id or ip_address is required")
	}
	if req.FlagReason == "" {
		return nil, apperrors.NewValidation("flag_reason is required")
	}
	if req.FlagType == "" {
		req.FlagType = model.FlagTypeGeneric
	}
	if req.Severity == "" {
		req.Severity = model.SeverityMedium
	}

	flag := &model.ModerationFlag{
		FlagID:         uuid.New().String(),
		ClientID:       req.ClientID,
		TokenID:        req.TokenID,
		IPAddress:      req.IPAddress,
		OrganizationID: req.OrganizationID,
		FlagReason:     req.FlagReason,
		FlagType:       req.FlagType,
		Severity:       req.Severity,
		FlaggedBy:      flaggedBy,
		FlaggedAt:      s.now().UTC(),
		ExpiresAt:      req.ExpiresAt,
		Metadata:       req.Metadata,
	}
	if err := s.flags.Insert(ctx, flag); err != nil {
		return nil, apperrors.NewStore("moderation flag insert", err)
	}
	metrics.FlagsCreated.WithLabelValues(string(flag.FlagType)).Inc()

	// An enforcement action without its trail entry must not report success.
	targetType, targetID := flag.TargetDimension()
	if _, err := s.audit.Log(ctx, &model.AuditLogEntry{
		ActorID:        flaggedBy,
		ActionType:     model.ActionClientFlagged,
		TargetType:     targetType,
		TargetID:       targetID,
		IPAddress:      ip,
		OrganizationID: flag.OrganizationID,
		Metadata: map[string]interface{}{
			"flag_id":   flag.FlagID,
			"flag_type": flag.FlagType,
			"severity":  flag.Severity,
			"reason":    flag.FlagReason,
		},
		Success: true,
	}); err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Publish(model.ModerationEvent{
			Type:           "flag_created",
			OrganizationID: flag.OrganizationID,
			Payload:        flag,
			EmittedAt:      flag.FlaggedAt,
		})
	}
	return flag, nil
}

// BanToken bans a token via a CRITICAL flag of type BAN. A nil duration
// means permanent. Notification delivery is left to an external
// collaborator; NotifyClient is accepted and recorded only.
func (s *ModerationService) BanToken(ctx context.Context, req model.BanTokenRequest, bannedBy, ip string) (*model.BanTokenResponse, error) {
	if req.TokenID == "" {
		return nil, apperrors.NewValidation("token_id is required")
	}
	if req.Reason == "" {
		return nil, apperrors.NewValidation("reason is required")
	}

	var expiresAt *time.Time
	if req.BanDurationHours != nil {
		t := s.now().UTC().Add(time.Duration(*req.BanDurationHours) * time.Hour)
		expiresAt = &t
	}

	flag, err := s.FlagClient(ctx, model.FlagClientRequest{
		TokenID:        req.TokenID,
		OrganizationID: req.OrganizationID,
		FlagReason:     req.Reason,
		FlagType:       model.FlagTypeBan,
		Severity:       model.SeverityCritical,
		ExpiresAt:      expiresAt,
		Metadata:       map[string]interface{}{"notify_client": req.NotifyClient},
	}, bannedBy, ip)
	if err != nil {
		return nil, err
	}

	if _, err := s.audit.Log(ctx, &model.AuditLogEntry{
		ActorID:        bannedBy,
		ActionType:     model.ActionTokenBanned,
		TargetType:     "token",
		TargetID:       req.TokenID,
		IPAddress:      ip,
		OrganizationID: req.OrganizationID,
		Metadata: map[string]interface{}{
			"flag_id":    flag.FlagID,
			"reason":     req.Reason,
			"expires_at": expiresAt,
		},
		Success: true,
	}); err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Publish(model.ModerationEvent{
			Type:           "token_banned",
			OrganizationID: req.OrganizationID,
			Payload:        flag,
			EmittedAt:      flag.FlaggedAt,
		})
	}

	message := fmt.Sprintf("token %s banned permanently", req.TokenID)
	if expiresAt != nil {
		message = fmt.Sprintf("token %s banned until %s", req.TokenID, expiresAt.Format(time.RFC3339))
	}
	return &model.BanTokenResponse{
		Success:   true,
		TokenID:   req.TokenID,
		FlagID:    flag.FlagID,
		ExpiresAt: expiresAt,
		Message:   message,
	}, nil
}

// GetActiveFlags returns flags in force right now for the one supplied
// dimension. No dimension at all yields an empty list, not an error.
func (s *ModerationService) GetActiveFlags(ctx context.Context, clientID, tokenID, ipAddress string) ([]*model.ModerationFlag, error) {
	if clientID == "" && tokenID == "" && ipAddress == "" {
		return []*model.ModerationFlag{}, nil
	}
	flags, err := s.flags.ActiveFlags(ctx, clientID, tokenID, ipAddress, s.now().UTC())
	if err != nil {
		return nil, apperrors.NewStore("active flag lookup", err)
	}
	return flags, nil
}

// IsFlagged reports whether any active flag exists on the dimension.
func (s *ModerationService) IsFlagged(ctx context.Context, clientID, tokenID, ipAddress string) (bool, error) {
	flags, err := s.GetActiveFlags(ctx, clientID, tokenID, ipAddress)
	if err != nil {
		return false, err
	}
	return len(flags) > 0, nil
}

// DeactivateFlag manually reverses a flag by forcing its expiry to now and
// records the reversal. Additive to lazy expiry, not a replacement for it.
func (s *ModerationService) DeactivateFlag(ctx context.Context, flagID, actorID, ip string) error {
	if flagID == "" {
		return apperrors.NewValidation("flag_id is required")
	}
	err := s.flags.Deactivate(ctx, flagID, s.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound("moderation flag not found")
	}
	if err != nil {
		return apperrors.NewStore("moderation flag deactivate", err)
	}

	if _, err := s.audit.Log(ctx, &model.AuditLogEntry{
		ActorID:    actorID,
		ActionType: model.ActionFlagRemoved,
		TargetType: "flag",
		TargetID:   flagID,
		IPAddress:  ip,
		Success:    true,
	}); err != nil {
		return err
	}

	if s.events != nil {
		s.events.Publish(model.ModerationEvent{
			Type:      "flag_removed",
			Payload:   map[string]string{"flag_id": flagID},
			EmittedAt: s.now().UTC(),
		})
	}
	return nil
}

// SetModeratorRole grants or changes a user's moderator role and records
// the change. Only the known roles are accepted.
func (s *ModerationService) SetModeratorRole(ctx context.Context, userID, role, actorID, ip string) error {
	if userID == "" {
		return apperrors.NewValidation("user id is required")
	}
	if _, known := rolePermissions[role]; !known {
		return apperrors.NewValidation("unknown role " + role)
	}
	if err := s.mods.SetRole(ctx, userID, role); err != nil {
		return apperrors.NewStore("moderator role upsert", err)
	}

	if _, err := s.audit.Log(ctx, &model.AuditLogEntry{
		ActorID:    actorID,
		ActionType: model.ActionRoleChanged,
		TargetType: "moderator",
		TargetID:   userID,
		IPAddress:  ip,
		Metadata:   map[string]interface{}{"role": role},
		Success:    true,
	}); err != nil {
		return err
	}
	return nil
}

// VerifyModeratorAccess reports whether the user holds any moderator role.
func (s *ModerationService) VerifyModeratorAccess(ctx context.Context, userID string) (bool, error) {
	role, err := s.mods.GetRole(ctx, userID)
	if err != nil {
		return false, apperrors.NewStore("moderator lookup", err)
	}
	_, known := rolePermissions[role]
	return known, nil
}

// GetModeratorPermissions returns the capability map for the user. Unknown
// users get an empty set.
func (s *ModerationService) GetModeratorPermissions(ctx context.Context, userID string) ([]Permission, error) {
	role, err := s.mods.GetRole(ctx, userID)
	if err != nil {
		return nil, apperrors.NewStore("moderator lookup", err)
	}
	perms, ok := rolePermissions[role]
	if !ok {
		return []Permission{}, nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out, nil
}

// HasPermission is a convenience wrapper for the HTTP middleware.
func (s *ModerationService) HasPermission(ctx context.Context, userID string, perm Permission) (bool, error) {
	perms, err := s.GetModeratorPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}
