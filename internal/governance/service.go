package governance

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/audit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/auth"
)

const settingsTargetID = "system_global_settings"

// SettingsStore reads and replaces the settings document.
type SettingsStore interface {
	SettingsReader
	Put(ctx context.Context, st Settings) error
}

// ModeChange is a request to switch the operating mode.
type ModeChange struct {
	Mode             string
	Reason           string
	EmergencyMessage string
}

// Service exposes the admin read/write of the operating mode.
type Service struct {
	store   SettingsStore
	gate    *Gate
	audit   audit.Logger
	log     *zap.Logger
	nowFunc func() time.Time
}

func NewService(store SettingsStore, gate *Gate, auditLog audit.Logger, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		gate:    gate,
		audit:   auditLog,
		log:     log,
		nowFunc: time.Now,
	}
}

// Settings returns the stored settings, defaulting to NORMAL.
func (s *Service) Settings(ctx context.Context, actor auth.Identity) (Settings, error) {
	if err := auth.RequireRole(actor, auth.RoleAdmin); err != nil {
		return Settings{}, err
	}
	st, err := s.store.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	if st == nil {
		return Settings{Mode: ModeNormal}, nil
	}
	return *st, nil
}

// ChangeMode validates and persists a mode change, then audits it under a
// fresh correlation ID which is returned. Mode changes are not themselves
// subject to the EMERGENCY deny-list so operators can always leave it.
func (s *Service) ChangeMode(ctx context.Context, actor auth.Identity, req ModeChange, who audit.Requester) (string, Settings, error) {
	if err := auth.RequireRole(actor, auth.RoleAdmin); err != nil {
		return "", Settings{}, err
	}
	if req.Mode == "" || strings.TrimSpace(req.Reason) == "" {
		return "", Settings{}, apperr.Validation("Faltan campos obligatorios (mode, reason)")
	}
	mode, ok := ParseMode(req.Mode)
	if !ok {
		return "", Settings{}, apperr.Validation("Modo de sistema inválido: " + req.Mode)
	}
	if mode == ModeEmergency && !actor.Elevated() {
		return "", Settings{}, apperr.Forbidden("Privilegios insuficientes para activar MODO EMERGENCIA")
	}

	previous, err := s.store.Get(ctx)
	if err != nil {
		return "", Settings{}, err
	}

	now := s.nowFunc().UTC()
	next := Settings{
		Mode:             mode,
		EmergencyMessage: req.EmergencyMessage,
		UpdatedAt:        now,
		UpdatedBy:        actor.UID,
	}
	if err := s.store.Put(ctx, next); err != nil {
		return "", Settings{}, err
	}
	s.gate.Invalidate()

	correlationID := NewCorrelationID(now)
	before := map[string]interface{}{"mode": string(ModeNormal)}
	if previous != nil {
		before = settingsSnapshot(*previous)
	}
	entry := audit.Entry{
		ActorID:       actor.UID,
		Action:        audit.ActionConfigChange,
		TargetID:      settingsTargetID,
		Before:        before,
		After:         settingsSnapshot(next),
		Reason:        req.Reason,
		CorrelationID: correlationID,
		IP:            who.IP,
		UserAgent:     who.UserAgent,
		Metadata:      map[string]interface{}{"action": "SYSTEM_MODE_CHANGE"},
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Error("failed to write audit record for mode change",
			zap.String("correlation_id", correlationID), zap.Error(err))
	}

	s.log.Warn("system mode changed",
		zap.String("mode", string(mode)),
		zap.String("actor", actor.UID),
		zap.String("correlation_id", correlationID))
	return correlationID, next, nil
}

func settingsSnapshot(st Settings) map[string]interface{} {
	return map[string]interface{}{
		"mode":             string(st.Mode),
		"emergencyMessage": st.EmergencyMessage,
		"updatedAt":        st.UpdatedAt.Format(time.RFC3339),
		"updatedBy":        st.UpdatedBy,
	}
}
