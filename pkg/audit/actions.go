package audit

import (
	"strings"
	"unicode"
)

// Action is a namespaced activity identifier such as "role.deleted"
type Action string

const (
	ActionLogin       Action = "auth.login"
	ActionLogout      Action = "auth.logout"
	ActionLoginFailed Action = "auth.login_failed"

	ActionUserCreated       Action = "user.created"
	ActionUserUpdated       Action = "user.updated"
	ActionUserDeleted       Action = "user.deleted"
	ActionUserRoleChanged   Action = "user.role_changed"
	ActionUserStatusChanged Action = "user.status_changed"
	ActionUserDeactivated   Action = "user.deactivated"

	ActionRoleCreated            Action = "role.created"
	ActionRoleUpdated            Action = "role.updated"
	ActionRoleDeleted            Action = "role.deleted"
	ActionRolePermissionsUpdated Action = "role.permissions_updated"

	ActionTenantCreated  Action = "sme.created"
	ActionTenantUpdated  Action = "sme.updated"
	ActionTenantDeleted  Action = "sme.deleted"
	ActionTenantSwitched Action = "sme.switched"

	ActionPermissionDenied  Action = "permission.denied"
	ActionPermissionGranted Action = "permission.granted"

	ActionSettingsUpdated Action = "system.settings_updated"
	ActionMaintenanceMode Action = "system.maintenance_mode"
	ActionLogsCleanup     Action = "system.logs_cleanup"
	ActionLogsExported    Action = "system.logs_exported"
)

// Severity classifies how much attention an action deserves
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Color returns the presentation colour for the severity
func (s Severity) Color() string {
	switch s {
	case SeverityHigh:
		return "red"
	case SeverityMedium:
		return "yellow"
	case SeverityLow:
		return "green"
	}
	return "gray"
}

// ActionInfo is how an action is presented
type ActionInfo struct {
	DisplayName string
	Severity    Severity
}

var actionTable = map[Action]ActionInfo{
	ActionLogin:       {"User Login", SeverityLow},
	ActionLogout:      {"User Logout", SeverityLow},
	ActionLoginFailed: {"Failed Login Attempt", SeverityMedium},

	ActionUserCreated:       {"User Created", SeverityMedium},
	ActionUserUpdated:       {"User Updated", SeverityMedium},
	ActionUserDeleted:       {"User Deleted", SeverityHigh},
	ActionUserRoleChanged:   {"User Role Changed", SeverityLow},
	ActionUserStatusChanged: {"User Status Changed", SeverityLow},
	ActionUserDeactivated:   {"User Deactivated", SeverityHigh},

	ActionRoleCreated:            {"Role Created", SeverityMedium},
	ActionRoleUpdated:            {"Role Updated", SeverityMedium},
	ActionRoleDeleted:            {"Role Deleted", SeverityHigh},
	ActionRolePermissionsUpdated: {"Role Permissions Updated", SeverityLow},

	ActionTenantCreated:  {"SME Created", SeverityLow},
	ActionTenantUpdated:  {"SME Updated", SeverityLow},
	ActionTenantDeleted:  {"SME Deleted", SeverityHigh},
	ActionTenantSwitched: {"SME Switched", SeverityLow},

	ActionPermissionDenied:  {"Permission Denied", SeverityHigh},
	ActionPermissionGranted: {"Permission Granted", SeverityLow},

	ActionSettingsUpdated: {"System Settings Updated", SeverityLow},
	ActionMaintenanceMode: {"Maintenance Mode Toggled", SeverityLow},
	ActionLogsCleanup:     {"System Logs Cleanup", SeverityLow},
	ActionLogsExported:    {"Activity Logs Exported", SeverityLow},
}

// KnownActions returns every action with a presentation entry
func KnownActions() []Action {
	out := make([]Action, 0, len(actionTable))
	for a := range actionTable {
		out = append(out, a)
	}
	return out
}

// Known reports whether a has a presentation entry
func (a Action) Known() bool {
	_, ok := actionTable[a]
	return ok
}

// Info returns the presentation of a. Unknown actions are title-cased with
// "_" and "." read as spaces, at low severity.
func (a Action) Info() ActionInfo {
	if info, ok := actionTable[a]; ok {
		return info
	}
	return ActionInfo{DisplayName: titleCase(string(a)), Severity: SeverityLow}
}

// DisplayName is shorthand for Info().DisplayName
func (a Action) DisplayName() string {
	return a.Info().DisplayName
}

// Severity is shorthand for Info().Severity
func (a Action) Severity() Severity {
	return a.Info().Severity
}

func titleCase(s string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", ".", " ").Replace(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
