package limitkit

import (
	"fmt"
	"strings"
)

// Scope is the dimension along which rate limits are partitioned.
// Exactly one scope is active per decision; composite scopes combine the
// caller identity with the endpoint.
type Scope string

const (
	ScopeGlobal       Scope = "global"
	ScopeIP           Scope = "ip"
	ScopeUser         Scope = "user"
	ScopeEndpoint     Scope = "endpoint"
	ScopeIPUser       Scope = "ip_user"
	ScopeIPEndpoint   Scope = "ip_endpoint"
	ScopeUserEndpoint Scope = "user_endpoint"
)

// ParseScope converts a string into a Scope, rejecting unknown values.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeIP, ScopeUser, ScopeEndpoint, ScopeIPUser, ScopeIPEndpoint, ScopeUserEndpoint:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown rate limit scope %q", s)
}

// keyPrefix namespaces every key the limiter writes, including list entries
// and algorithm state.
const keyPrefix = "rate_limit"

// buildKey composes the storage key for a decision. Components are joined
// with ":"; endpoint paths have "/" substituted so the delimiter stays
// unambiguous. Scopes that need a user or endpoint fall back to the IP scope
// when the component is absent, so a key is never silently empty.
func buildKey(scope Scope, identifier, endpoint, userID string) string {
	parts := []string{keyPrefix}

	switch {
	case scope == ScopeGlobal:
		parts = append(parts, "global")
	case scope == ScopeIP:
		parts = append(parts, "ip", identifier)
	case scope == ScopeUser && userID != "":
		parts = append(parts, "user", userID)
	case scope == ScopeEndpoint && endpoint != "":
		parts = append(parts, "endpoint", sanitizeEndpoint(endpoint))
	case scope == ScopeIPUser && userID != "":
		parts = append(parts, "ip_user", identifier+"_"+userID)
	case scope == ScopeIPEndpoint && endpoint != "":
		parts = append(parts, "ip_endpoint", identifier+"_"+sanitizeEndpoint(endpoint))
	case scope == ScopeUserEndpoint && userID != "" && endpoint != "":
		parts = append(parts, "user_endpoint", userID+"_"+sanitizeEndpoint(endpoint))
	default:
		parts = append(parts, "ip", identifier)
	}

	return strings.Join(parts, ":")
}

func sanitizeEndpoint(endpoint string) string {
	return strings.ReplaceAll(endpoint, "/", "_")
}
