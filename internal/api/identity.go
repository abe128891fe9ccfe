package api

import (
	"net/http"
	"strings"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
)

// Identity headers set by the authenticating reverse proxy in front of this
// service. The service trusts them as-is; it performs authorization, not
// authentication.
const (
	headerUserID     = "X-User-Id"
	headerUserName   = "X-User-Name"
	headerUserGroups = "X-User-Groups"
)

// identityFromRequest builds the caller's identity from the proxy headers.
// Groups arrive comma-separated.
func identityFromRequest(r *http.Request) validation.Identity {
	var groups []string
	for _, g := range strings.Split(r.Header.Get(headerUserGroups), ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}

	return validation.Identity{
		ID:     strings.TrimSpace(r.Header.Get(headerUserID)),
		Name:   strings.TrimSpace(r.Header.Get(headerUserName)),
		Groups: groups,
	}
}
