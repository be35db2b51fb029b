// Package guards – route guards
//
// This file defines the guard predicates that decide whether the current user
// may open a route: AuthGuard (signed in), AdminGuard (admin role) and
// RoleGuard (declared roles and permissions). Guards run in order against an
// explicit RouteContext and the first denial wins; a denial carries the path
// the caller should be redirected to.
//
// Guards are pure functions of the RouteContext. They never read the session
// store themselves, so one request always sees one user snapshot.
package guards

import (
	"github.com/tbourn/go-docqa-web/internal/domain"
)

// Default redirect destinations.
const (
	DefaultLoginPath        = "/auth/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// RouteContext is what a guard sees: a snapshot of the user taken once
// before evaluation, and the route's declared requirements.
type RouteContext struct {
	// Path is the route being opened, relative to the API base.
	Path string
	// User is the signed-in user, or nil.
	User *domain.User
	// Authenticated reports whether User's access token is still valid.
	Authenticated bool
	// RequiredRoles lists roles of which the user must hold one.
	RequiredRoles []domain.Role
	// RequiredPermissions lists permissions the user must hold, all of them.
	RequiredPermissions []string
}

// Decision is the outcome of a guard. Redirect is set iff !Allowed.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Allow is the passing decision.
var Allow = Decision{Allowed: true}

// RedirectTo denies and points to path.
func RedirectTo(path string) Decision { return Decision{Redirect: path} }

// Guard is one predicate in a route's chain.
type Guard interface {
	// Activate returns Allow, or a denial naming the redirect target.
	Activate(rc RouteContext) Decision
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(RouteContext) Decision

// Activate calls f.
func (f GuardFunc) Activate(rc RouteContext) Decision { return f(rc) }

// Paths are the redirect targets shared by the guards.
type Paths struct {
	// Login is where unauthenticated users are sent. Defaults to
	// DefaultLoginPath.
	Login string
	// Unauthorized is where signed-in users lacking a role or permission
	// are sent. Defaults to DefaultUnauthorizedPath.
	Unauthorized string
}

func (p Paths) login() string {
	if p.Login == "" {
		return DefaultLoginPath
	}
	return p.Login
}

func (p Paths) unauthorized() string {
	if p.Unauthorized == "" {
		return DefaultUnauthorizedPath
	}
	return p.Unauthorized
}

// AuthGuard requires a present, authenticated user.
type AuthGuard struct{ Paths Paths }

// Activate denies with the login path when there is no user or the token
// has expired.
func (g AuthGuard) Activate(rc RouteContext) Decision {
	if rc.User == nil || !rc.Authenticated {
		return RedirectTo(g.Paths.login())
	}
	return Allow
}

// AdminGuard requires the admin role.
type AdminGuard struct{ Paths Paths }

// Activate denies with the unauthorized path unless the user is an admin.
func (g AdminGuard) Activate(rc RouteContext) Decision {
	if rc.User != nil && rc.User.Role == domain.RoleAdmin {
		return Allow
	}
	return RedirectTo(g.Paths.unauthorized())
}

// RoleGuard enforces the route's declared roles, then its declared
// permissions. Every declared permission must be held.
type RoleGuard struct{ Paths Paths }

// Activate sends anonymous users to login and everyone else who misses a
// role or permission to the unauthorized path.
func (g RoleGuard) Activate(rc RouteContext) Decision {
	u := rc.User
	if u == nil {
		return RedirectTo(g.Paths.login())
	}
	if len(rc.RequiredRoles) > 0 && !hasRole(rc.RequiredRoles, u.Role) {
		return RedirectTo(g.Paths.unauthorized())
	}
	for _, p := range rc.RequiredPermissions {
		if !u.HasPermission(p) {
			return RedirectTo(g.Paths.unauthorized())
		}
	}
	return Allow
}

func hasRole(roles []domain.Role, r domain.Role) bool {
	for _, want := range roles {
		if want == r {
			return true
		}
	}
	return false
}

// Chain evaluates guards in order and returns the first denial.
type Chain []Guard

// Activate runs the guards in order. An empty chain allows.
func (c Chain) Activate(rc RouteContext) Decision {
	for _, g := range c {
		if d := g.Activate(rc); !d.Allowed {
			return d
		}
	}
	return Allow
}
