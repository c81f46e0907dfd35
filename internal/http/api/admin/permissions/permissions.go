// Package permissions defines the per-route grants of non-super admins.
package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Definition describes an admin permission.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// Key builds a permission key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// ValidatePermissions reports the first permission missing from the definition set.
func ValidatePermissions(perms []string) error {
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := definitionMap[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// ParsePermissions parses and normalizes permissions from JSON.
func ParsePermissions(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return []string{}
	}
	return NormalizePermissions(perms)
}

// MarshalPermissions serializes normalized permissions to JSON.
func MarshalPermissions(perms []string) ([]byte, error) {
	return json.Marshal(NormalizePermissions(perms))
}

// HasPermission checks whether the key exists in the permission list.
func HasPermission(perms []string, key string) bool {
	if key == "" {
		return false
	}
	for _, perm := range perms {
		if perm == key {
			return true
		}
	}
	return false
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// IsDefined reports whether key names a guarded route.
func IsDefined(key string) bool {
	_, ok := definitionMap[key]
	return ok
}

func newDefinition(method, path, label, module string) Definition {
	upperMethod := strings.ToUpper(method)
	return Definition{
		Key:    Key(upperMethod, path),
		Method: upperMethod,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

var definitions = []Definition{
	newDefinition("GET", "/v0/admin/models", "List Models", "Models"),
	newDefinition("POST", "/v0/admin/models", "Create Model", "Models"),
	newDefinition("PUT", "/v0/admin/models/:id", "Update Model", "Models"),
	newDefinition("POST", "/v0/admin/models/:id/enable", "Enable Model", "Models"),
	newDefinition("POST", "/v0/admin/models/:id/disable", "Disable Model", "Models"),

	newDefinition("GET", "/v0/admin/templates", "List Templates", "Templates"),
	newDefinition("POST", "/v0/admin/templates", "Create Template", "Templates"),
	newDefinition("PUT", "/v0/admin/templates/:id", "Update Template", "Templates"),
	newDefinition("DELETE", "/v0/admin/templates/:id", "Delete Template", "Templates"),

	newDefinition("GET", "/v0/admin/tiers", "List Tiers", "Tiers"),
	newDefinition("POST", "/v0/admin/tiers", "Create Tier", "Tiers"),
	newDefinition("PUT", "/v0/admin/tiers/:id", "Update Tier", "Tiers"),

	newDefinition("GET", "/v0/admin/subscriptions", "List Subscriptions", "Subscriptions"),
	newDefinition("POST", "/v0/admin/subscriptions/:user_id/reset-usage", "Reset Subscription Usage", "Subscriptions"),

	newDefinition("GET", "/v0/admin/webhook-events", "List Webhook Events", "Billing"),

	newDefinition("GET", "/v0/admin/admins", "List Administrators", "Administrators"),
	newDefinition("POST", "/v0/admin/admins", "Create Administrator", "Administrators"),
	newDefinition("POST", "/v0/admin/admins/:id/disable", "Disable Administrator", "Administrators"),
	newDefinition("POST", "/v0/admin/admins/:id/enable", "Enable Administrator", "Administrators"),
	newDefinition("PUT", "/v0/admin/admins/:id/password", "Change Administrator Password", "Administrators"),
	newDefinition("PUT", "/v0/admin/admins/:id/permissions", "Update Administrator Permissions", "Administrators"),
	newDefinition("GET", "/v0/admin/permissions", "List Permission Definitions", "Administrators"),
}

var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()
