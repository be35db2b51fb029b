package guards

import (
	"strings"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

// Kind names a guard in a route declaration.
type Kind string

const (
	Auth  Kind = "auth"
	Admin Kind = "admin"
	Role  Kind = "role"
)

// Route declares a protected path prefix.
type Route struct {
	Prefix      string
	Guards      []Kind
	Roles       []domain.Role
	Permissions []string
}

// DefaultRoutes is the application route table.
var DefaultRoutes = []Route{
	{Prefix: "/dashboard", Guards: []Kind{Auth}},
	{Prefix: "/users", Guards: []Kind{Auth, Admin}, Roles: []domain.Role{domain.RoleAdmin}},
	{Prefix: "/documents", Guards: []Kind{Auth}, Permissions: []string{"document_read"}},
	{Prefix: "/ingestion", Guards: []Kind{Auth, Role}, Roles: []domain.Role{domain.RoleAdmin, domain.RoleUser}, Permissions: []string{"ingestion_access"}},
	{Prefix: "/qa", Guards: []Kind{Auth}, Permissions: []string{"qa_access"}},
}

// Table resolves paths to guard chains.
type Table struct {
	paths  Paths
	routes []Route
}

// NewTable builds a table over routes.
func NewTable(paths Paths, routes []Route) *Table {
	return &Table{paths: paths, routes: append([]Route(nil), routes...)}
}

// Lookup returns the most specific route whose prefix matches path.
func (t *Table) Lookup(path string) (Route, bool) {
	var (
		best  Route
		found bool
	)
	for _, r := range t.routes {
		if !matchPrefix(path, r.Prefix) {
			continue
		}
		if !found || len(r.Prefix) > len(best.Prefix) {
			best, found = r, true
		}
	}
	return best, found
}

// Chain builds the guard chain for r. Declared roles or permissions are
// enforced by a RoleGuard appended when the route does not list one.
func (t *Table) Chain(r Route) Chain {
	chain := make(Chain, 0, len(r.Guards)+1)
	hasRoleGuard := false
	for _, k := range r.Guards {
		switch k {
		case Auth:
			chain = append(chain, AuthGuard{Paths: t.paths})
		case Admin:
			chain = append(chain, AdminGuard{Paths: t.paths})
		case Role:
			chain = append(chain, RoleGuard{Paths: t.paths})
			hasRoleGuard = true
		}
	}
	if !hasRoleGuard && (len(r.Roles) > 0 || len(r.Permissions) > 0) {
		chain = append(chain, RoleGuard{Paths: t.paths})
	}
	return chain
}

// Check evaluates path for the given user. Unlisted paths are open.
func (t *Table) Check(path string, user *domain.User, authenticated bool) Decision {
	r, ok := t.Lookup(path)
	if !ok {
		return Allow
	}
	return t.Chain(r).Activate(RouteContext{
		Path:                path,
		User:                user,
		Authenticated:       authenticated,
		RequiredRoles:       r.Roles,
		RequiredPermissions: r.Permissions,
	})
}

func matchPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimRight(prefix, "/")+"/")
}
