package orders

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/audit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/auth"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/governance"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/validation"
)

const (
	minReasonLength      = 5
	modificationWindow   = 24 * time.Hour
	defaultHistoryReason = "Acción operativa estándar"
)

// ModeGate reports the operating mode and whether an action is allowed in it.
type ModeGate interface {
	Allowed(ctx context.Context, action string) (governance.Mode, bool)
}

// Change is an operator request against one order.
type Change struct {
	OrderID       string
	Status        string
	TransactionID string
	Notes         string
	Confirm       bool
	DecisionType  string
	Reason        string
}

// UpdateResult is either an applied change or a confirmation request.
type UpdateResult struct {
	Success       bool   `json:"success,omitempty"`
	Status        string `json:"status,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	ConfirmationRequired bool   `json:"confirmationRequired,omitempty"`
	Message              string `json:"message,omitempty"`
	ExpiresIn            string `json:"expiresIn,omitempty"`
}

// Updater applies operator status changes behind the role, governance and
// lifecycle guardrails.
type Updater struct {
	store    *Store
	gate     ModeGate
	audit    audit.Logger
	terminal lifecycle.TerminalPolicy
	log      *zap.Logger
	nowFunc  func() time.Time
	newID    func() string
}

func NewUpdater(store *Store, gate ModeGate, auditLog audit.Logger, terminal lifecycle.TerminalPolicy, log *zap.Logger) *Updater {
	return &Updater{
		store:    store,
		gate:     gate,
		audit:    auditLog,
		terminal: terminal,
		log:      log,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

// Update runs the guardrails in order and, when they all pass, writes the
// order and its manual decision atomically before auditing the change.
func (u *Updater) Update(ctx context.Context, actor auth.Identity, ch Change, who audit.Requester) (UpdateResult, error) {
	if err := auth.RequireRole(actor, auth.RoleAdmin, auth.RoleStaff); err != nil {
		return UpdateResult{}, err
	}
	if strings.TrimSpace(ch.OrderID) == "" {
		return UpdateResult{}, apperr.Validation("Faltan campos obligatorios (id)")
	}
	validation.Sanitize(&ch)

	order, err := u.store.Get(ctx, ch.OrderID)
	if err != nil {
		return UpdateResult{}, err
	}
	if order == nil {
		return UpdateResult{}, apperr.NotFound("Pedido no encontrado")
	}

	now := u.nowFunc().UTC()
	current := lifecycle.Normalize(string(order.Status))
	var next lifecycle.Status
	if strings.TrimSpace(ch.Status) != "" {
		next = lifecycle.Normalize(ch.Status)
	}
	manual := next != "" && next != current

	mode, allowed := u.gate.Allowed(ctx, governance.ActionOrderStatusOverride)
	if manual && !allowed {
		return UpdateResult{}, apperr.Forbidden("Acceso Denegado: Modo de Emergencia Activo").
			WithDetails("El sistema se encuentra en un estado de protección crítica y no permite cambios manuales en este momento.")
	}

	if u.terminal.IsTerminal(current) {
		return UpdateResult{}, apperr.Validation(fmt.Sprintf("El pedido está en estado terminal (%s) y es inmutable.", current))
	}

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if now.Sub(createdAt) > modificationWindow && !actor.Elevated() {
		return UpdateResult{}, apperr.Forbidden("Acceso Restringido").
			WithDetails("Los pedidos con más de 24h de antigüedad solo pueden ser modificados por un SuperAdministrador.")
	}

	if manual && utf8.RuneCountInString(strings.TrimSpace(ch.Reason)) < minReasonLength {
		return UpdateResult{}, apperr.Validation("Toda decisión manual debe formalizarse con un motivo válido (mínimo 5 caracteres).")
	}

	if manual {
		if !lifecycle.CanTransition(string(current), string(next)) {
			return UpdateResult{}, apperr.Validation("Transición de estado inválida").
				WithDetails(fmt.Sprintf("No es posible pasar de %s a %s directamente.", current, next))
		}
		if lifecycle.RequiresDoubleConfirmation(string(next)) && !ch.Confirm {
			return u.requestConfirmation(ctx, *order, next, now)
		}
		if ch.Confirm && !order.PendingAction.Confirms(next, now) {
			return UpdateResult{}, apperr.Validation("Confirmación inválida o expirada")
		}
		if next == lifecycle.PaidVerified && ch.TransactionID == "" && order.TransactionID == "" {
			return UpdateResult{}, apperr.Validation("Se requiere un código de transacción para verificar el pago")
		}
	}

	final := current
	if next != "" {
		final = next
	}
	correlationID := governance.NewCorrelationID(now)
	decisionType := ch.DecisionType
	if decisionType == "" {
		decisionType = DecisionStatusOverride
	}
	historyReason := ch.Reason
	if historyReason == "" {
		historyReason = defaultHistoryReason
	}

	expected := order.Version
	updated := *order
	updated.Status = final
	updated.UpdatedAt = now
	updated.UpdatedBy = actor.UID
	updated.PendingAction = nil
	if ch.TransactionID != "" {
		updated.TransactionID = ch.TransactionID
	}
	if ch.Notes != "" {
		updated.Notes = ch.Notes
	}
	if final == lifecycle.Delivered && current != lifecycle.Delivered {
		delivered := now
		updated.DeliveredAt = &delivered
	}
	updated.History = append(append([]HistoryEntry(nil), order.History...), HistoryEntry{
		At:            now,
		From:          current,
		To:            final,
		By:            string(actor.Role),
		UserID:        actor.UID,
		Reason:        historyReason,
		Type:          decisionType,
		CorrelationID: correlationID,
	})

	var decision *ManualDecision
	if manual {
		decision = &ManualDecision{
			DecisionID:     u.newID(),
			OrderID:        order.OrderID,
			Type:           decisionType,
			Reason:         ch.Reason,
			OperatorID:     actor.UID,
			At:             now,
			PreviousStatus: current,
			NewStatus:      next,
			CorrelationID:  correlationID,
		}
	}

	if err := u.store.ApplyUpdate(ctx, updated, expected, decision); err != nil {
		return UpdateResult{}, err
	}

	after := map[string]interface{}{
		"status":    string(final),
		"updatedAt": now.Format(time.RFC3339),
		"updatedBy": actor.UID,
	}
	if ch.TransactionID != "" {
		after["transactionId"] = ch.TransactionID
	}
	if ch.Notes != "" {
		after["notes"] = ch.Notes
	}
	entry := audit.Entry{
		ActorID:       actor.UID,
		Action:        audit.ActionOrderStatusChange,
		TargetID:      order.OrderID,
		Before:        map[string]interface{}{"status": string(current)},
		After:         after,
		Reason:        historyReason,
		CorrelationID: correlationID,
		IP:            who.IP,
		UserAgent:     who.UserAgent,
		Metadata:      map[string]interface{}{"systemMode": string(mode)},
	}
	if err := u.audit.Record(ctx, entry); err != nil {
		u.log.Error("failed to write audit record for order update",
			zap.String("order_id", order.OrderID), zap.String("correlation_id", correlationID), zap.Error(err))
	}

	u.log.Info("order updated",
		zap.String("order_id", order.OrderID),
		zap.String("from", string(current)),
		zap.String("to", string(final)),
		zap.String("actor", actor.UID),
		zap.String("correlation_id", correlationID))
	return UpdateResult{Success: true, Status: string(final), CorrelationID: correlationID}, nil
}

// requestConfirmation parks the requested status on the order, replacing any
// earlier pending action, and leaves the status untouched.
func (u *Updater) requestConfirmation(ctx context.Context, order Order, next lifecycle.Status, now time.Time) (UpdateResult, error) {
	pa := lifecycle.NewPendingAction(next, now)
	order.PendingAction = &pa
	if err := u.store.SavePendingAction(ctx, order); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{
		ConfirmationRequired: true,
		Message:              fmt.Sprintf("La acción '%s' requiere doble confirmación.", next),
		ExpiresIn:            "5 minutos",
	}, nil
}
