// Package credentials waits for the session credentials that an external
// collaborator extracts from an authenticated browser session.
//
// The engine never obtains credentials itself. It signals a Requester once
// when the session is not on the target site, then polls a Source until a
// Bundle appears, the configured timeout elapses, or the context is cancelled.
package credentials

import (
	"context"
	"strings"
)

// Bundle holds the opaque session artifacts attached to every listing request.
// It is read-only to the engine and treated as valid for the whole run.
type Bundle struct {
	Cookie    string `json:"cookie"`
	CSRFToken string `json:"csrfToken"`
}

// Usable reports whether the bundle can authenticate a request.
func (b *Bundle) Usable() bool {
	return b != nil && strings.TrimSpace(b.Cookie) != ""
}

// Session is the explicit navigation context of the caller.
type Session struct {
	Tenant  string
	Subject string

	// OnSite is true when the hosting session already sits on the target site,
	// in which case no acquisition request is sent.
	OnSite bool
}

// Source reads a previously published Bundle.
// Load returns (nil, nil) when no bundle has been published yet.
type Source interface {
	Load(ctx context.Context, tenant, subject string) (*Bundle, error)
}
