package guards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

var (
	admin  = &domain.User{ID: "1", Role: domain.RoleAdmin, Permissions: []string{"document_read", "qa_access", "ingestion_access"}}
	member = &domain.User{ID: "2", Role: domain.RoleUser, Permissions: []string{"qa_access"}}
	viewer = &domain.User{ID: "3", Role: domain.RoleViewer, Permissions: []string{"ingestion_access"}}
)

func TestAuthGuard(t *testing.T) {
	g := AuthGuard{}
	assert.Equal(t, RedirectTo(DefaultLoginPath), g.Activate(RouteContext{}))
	assert.Equal(t, RedirectTo(DefaultLoginPath), g.Activate(RouteContext{User: member}))
	assert.Equal(t, Allow, g.Activate(RouteContext{User: member, Authenticated: true}))

	custom := AuthGuard{Paths: Paths{Login: "/signin"}}
	assert.Equal(t, "/signin", custom.Activate(RouteContext{}).Redirect)
}

func TestAdminGuard(t *testing.T) {
	g := AdminGuard{}
	assert.Equal(t, Allow, g.Activate(RouteContext{User: admin, Authenticated: true}))
	assert.Equal(t, RedirectTo(DefaultUnauthorizedPath), g.Activate(RouteContext{User: member, Authenticated: true}))
	assert.Equal(t, RedirectTo(DefaultUnauthorizedPath), g.Activate(RouteContext{}))
}

func TestRoleGuard(t *testing.T) {
	g := RoleGuard{}
	tests := []struct {
		name string
		rc   RouteContext
		want Decision
	}{
		{"no user", RouteContext{RequiredRoles: []domain.Role{domain.RoleUser}}, RedirectTo(DefaultLoginPath)},
		{"nothing declared", RouteContext{User: viewer}, Allow},
		{"role mismatch", RouteContext{User: viewer, RequiredRoles: []domain.Role{domain.RoleAdmin, domain.RoleUser}}, RedirectTo(DefaultUnauthorizedPath)},
		{"role ok", RouteContext{User: member, RequiredRoles: []domain.Role{domain.RoleAdmin, domain.RoleUser}}, Allow},
		{"missing permission", RouteContext{User: member, RequiredPermissions: []string{"qa_access", "document_read"}}, RedirectTo(DefaultUnauthorizedPath)},
		{"all permissions", RouteContext{User: admin, RequiredPermissions: []string{"qa_access", "document_read"}}, Allow},
		{"exact match only", RouteContext{User: member, RequiredPermissions: []string{"QA_ACCESS"}}, RedirectTo(DefaultUnauthorizedPath)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Activate(tc.rc))
		})
	}
}

func TestChain_ShortCircuits(t *testing.T) {
	var ran []string
	mark := func(name string, d Decision) Guard {
		return GuardFunc(func(RouteContext) Decision {
			ran = append(ran, name)
			return d
		})
	}
	c := Chain{mark("a", Allow), mark("b", RedirectTo("/x")), mark("c", Allow)}

	assert.Equal(t, RedirectTo("/x"), c.Activate(RouteContext{}))
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, Allow, Chain{}.Activate(RouteContext{}))
}

func TestTable_Scenarios(t *testing.T) {
	tbl := NewTable(Paths{}, DefaultRoutes)

	// unauthenticated user goes to login
	assert.Equal(t, RedirectTo(DefaultLoginPath), tbl.Check("/users", nil, false))
	// non-admin on an admin route is unauthorized
	assert.Equal(t, RedirectTo(DefaultUnauthorizedPath), tbl.Check("/users", member, true))
	// admin passes both
	assert.Equal(t, Allow, tbl.Check("/users/42", admin, true))

	assert.Equal(t, Allow, tbl.Check("/dashboard", viewer, true))
	assert.Equal(t, RedirectTo(DefaultUnauthorizedPath), tbl.Check("/documents", member, true))
	assert.Equal(t, Allow, tbl.Check("/qa", member, true))
	assert.Equal(t, RedirectTo(DefaultUnauthorizedPath), tbl.Check("/ingestion", viewer, true))
	assert.Equal(t, RedirectTo(DefaultUnauthorizedPath), tbl.Check("/ingestion", member, true))
	assert.Equal(t, Allow, tbl.Check("/ingestion", admin, true))

	assert.Equal(t, Allow, tbl.Check("/auth/login", nil, false))
	assert.Equal(t, Allow, tbl.Check("/usersettings", nil, false))
}

func TestTable_ChainAppendsRoleGuardOnlyWhenDeclared(t *testing.T) {
	tbl := NewTable(Paths{}, DefaultRoutes)

	r, ok := tbl.Lookup("/dashboard/stats")
	require.True(t, ok)
	assert.Len(t, tbl.Chain(r), 1)

	r, ok = tbl.Lookup("/documents")
	require.True(t, ok)
	c := tbl.Chain(r)
	require.Len(t, c, 2)
	assert.IsType(t, RoleGuard{}, c[1])

	r, ok = tbl.Lookup("/ingestion")
	require.True(t, ok)
	assert.Len(t, tbl.Chain(r), 2)
}
