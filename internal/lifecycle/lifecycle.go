// Package lifecycle defines the order status graph and the checkpoints that
// guard movement along it.
package lifecycle

import (
	"strings"
	"time"
)

// Status is an order status. Values are upper-case.
type Status string

const (
	Created          Status = "CREATED"
	WaitingPayment   Status = "WAITING_PAYMENT"
	PaidVerified     Status = "PAID_VERIFIED"
	Cutting          Status = "CUTTING"
	Packing          Status = "PACKING"
	Routing          Status = "ROUTING"
	Delivered        Status = "DELIVERED"
	DeliveryFailed   Status = "DELIVERY_FAILED"
	Returned         Status = "RETURNED"
	Cancelled        Status = "CANCELLED"
	CancelledTimeout Status = "CANCELLED_TIMEOUT"
	Refunded         Status = "REFUNDED"
)

// PendingActionTTL bounds how long a double-confirmation request stays valid.
const PendingActionTTL = 5 * time.Minute

var transitions = map[Status][]Status{
	Created:          {WaitingPayment, Cancelled, CancelledTimeout},
	WaitingPayment:   {PaidVerified, Cancelled, CancelledTimeout},
	PaidVerified:     {Cutting, Refunded},
	Cutting:          {Packing, Refunded},
	Packing:          {Routing, Refunded},
	Routing:          {Delivered, DeliveryFailed, Refunded},
	Delivered:        {Returned},
	DeliveryFailed:   {Routing, Returned, Cancelled},
	Returned:         {Refunded},
	Cancelled:        nil,
	CancelledTimeout: nil,
	Refunded:         nil,
}

var doubleConfirmation = map[Status]bool{
	PaidVerified: true,
	Cancelled:    true,
	Refunded:     true,
	Returned:     true,
}

// All returns every known status in graph order.
func All() []Status {
	return []Status{
		Created, WaitingPayment, PaidVerified, Cutting, Packing, Routing,
		Delivered, DeliveryFailed, Returned, Cancelled, CancelledTimeout, Refunded,
	}
}

// Normalize upper-cases s and maps legacy aliases onto current statuses.
// An empty status is treated as CREATED.
func Normalize(s string) Status {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case "":
		return Created
	case "PENDING", "PENDING_VERIFICATION":
		return WaitingPayment
	}
	return st
}

// CanTransition reports whether to is a direct successor of from.
// Both arguments are compared case-insensitively.
func CanTransition(from, to string) bool {
	f := Status(strings.ToUpper(from))
	t := Status(strings.ToUpper(to))
	for _, next := range transitions[f] {
		if next == t {
			return true
		}
	}
	return false
}

// RequiresDoubleConfirmation reports whether entering to needs a second,
// explicitly confirmed request.
func RequiresDoubleConfirmation(to string) bool {
	return doubleConfirmation[Status(strings.ToUpper(to))]
}

// TerminalPolicy decides which statuses the update path treats as immutable.
type TerminalPolicy struct {
	// AllowPostDeliveryReturn keeps DELIVERED and RETURNED mutable so the
	// DELIVERED -> RETURNED -> REFUNDED edges can be used.
	AllowPostDeliveryReturn bool
}

// IsTerminal reports whether no further change may be applied to an order in s.
func (p TerminalPolicy) IsTerminal(s Status) bool {
	switch s {
	case Cancelled, CancelledTimeout, Refunded:
		return true
	case Delivered, Returned:
		return !p.AllowPostDeliveryReturn
	}
	return false
}

// PendingAction is a single outstanding confirmation request on an order.
type PendingAction struct {
	Type         string    `json:"type" dynamodbav:"type"`
	TargetStatus Status    `json:"targetStatus" dynamodbav:"target_status"`
	ExpiresAt    time.Time `json:"expiresAt" dynamodbav:"expires_at"`
}

const pendingTypeStatusChange = "STATUS_CHANGE"

// NewPendingAction returns a confirmation request for target expiring
// PendingActionTTL after now.
func NewPendingAction(target Status, now time.Time) PendingAction {
	return PendingAction{
		Type:         pendingTypeStatusChange,
		TargetStatus: target,
		ExpiresAt:    now.Add(PendingActionTTL),
	}
}

// Confirms reports whether p authorizes moving to target at now.
func (p *PendingAction) Confirms(target Status, now time.Time) bool {
	if p == nil {
		return false
	}
	return p.TargetStatus == target && !now.After(p.ExpiresAt)
}
