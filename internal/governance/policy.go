// Package governance holds the global operating mode and decides which
// administrative actions the current mode permits.
package governance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode is the global operational posture.
type Mode string

const (
	ModeNormal    Mode = "NORMAL"
	ModeDegraded  Mode = "DEGRADED"
	ModeEmergency Mode = "EMERGENCY"
)

// ParseMode validates s as a mode.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeNormal, ModeDegraded, ModeEmergency:
		return m, true
	}
	return "", false
}

// Action classes checked against the mode.
const (
	ActionOrderBulkDelete     = "ORDER_BULK_DELETE"
	ActionAdminSettingsChange = "ADMIN_SETTINGS_CHANGE"
	ActionUserRoleChange      = "USER_ROLE_CHANGE"
	ActionOrderStatusOverride = "ORDER_STATUS_OVERRIDE"
)

var deniedInEmergency = map[string]bool{
	ActionOrderBulkDelete:     true,
	ActionAdminSettingsChange: true,
	ActionUserRoleChange:      true,
	ActionOrderStatusOverride: true,
}

// IsActionAllowed reports whether action may run under mode. DEGRADED only
// raises alerting; EMERGENCY denies destructive and override actions.
func IsActionAllowed(mode Mode, action string) bool {
	if mode == ModeEmergency {
		return !deniedInEmergency[action]
	}
	return true
}

// NewCorrelationID returns an ID linking a state change to its audit record.
func NewCorrelationID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:7])
	return fmt.Sprintf("TX-%d-%s", now.UnixMilli(), suffix)
}
