// Auth endpoints:
//   - POST /auth/login
//   - POST /auth/signup
//   - POST /auth/logout
//   - POST /auth/refresh
//   - GET  /auth/me
//   - GET  /auth/events  (server-sent user changes)
//   - GET  /auth/guard   (route check for the UI router)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/guards"
)

// MeResponse describes the current session.
type MeResponse struct {
	User          *domain.User `json:"user"`
	Authenticated bool         `json:"authenticated"`
	RefreshAt     *time.Time   `json:"refreshAt,omitempty"`
}

// GuardResponse is the outcome of a route check.
type GuardResponse struct {
	Path     string `json:"path"`
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      auth.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.MeResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Rejected by the QA API"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	h.track.TrackUserAction("login", "auth", "", u.ID)
	ok(c, http.StatusOK, h.me(u))
}

// Signup godoc
// @ID          signup
// @Summary     Create an account and sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      auth.SignupRequest  true  "New account"
// @Success     201   {object}  handlers.MeResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req auth.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.auth.Signup(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	h.track.TrackUserAction("signup", "auth", "", u.ID)
	ok(c, http.StatusCreated, h.me(u))
}

// Logout godoc
// @ID          logout
// @Summary     Sign out and forget the stored credentials
// @Tags        Auth
// @Success     204
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	uid := h.userID(c)
	h.auth.Logout(c.Request.Context())
	h.track.TrackUserAction("logout", "auth", "", uid)
	noContent(c)
}

// Refresh godoc
// @ID          refresh
// @Summary     Exchange the refresh token for a new pair
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	u, err := h.auth.Refresh(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.me(u))
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.MeResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	ok(c, http.StatusOK, h.meAs(h.session.Principal()))
}

// Events godoc
// @ID          authEvents
// @Summary     Stream user changes
// @Description Server-sent events. The current user is sent first, then every change. A null user means signed out.
// @Tags        Auth
// @Produce     text/event-stream
// @Router      /auth/events [get]
func (h *Handlers) Events(c *gin.Context) {
	ch, cancel := h.session.Subscribe()
	defer cancel()

	ctx := c.Request.Context()
	startSSE(c)
	for {
		select {
		case <-ctx.Done():
			return
		case u, open := <-ch:
			if !open {
				return
			}
			sendSSE(c, "user", h.me(u))
		}
	}
}

// Guard godoc
// @ID          guardCheck
// @Summary     Check whether the current user may open a UI route
// @Tags        Auth
// @Produce     json
// @Param       path  query     string  true  "Route path, e.g. /users"
// @Success     200   {object}  handlers.GuardResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /auth/guard [get]
func (h *Handlers) Guard(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if !strings.HasPrefix(path, "/") {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "path must start with '/'")
		return
	}
	var d guards.Decision
	if h.guards == nil {
		d = guards.Allow
	} else {
		u, authed := h.session.Principal()
		d = h.guards.Check(path, u, authed)
	}
	ok(c, http.StatusOK, GuardResponse{Path: path, Allowed: d.Allowed, Redirect: d.Redirect})
}

// me describes u, a user just returned by the auth flow or the feed.
func (h *Handlers) me(u *domain.User) MeResponse {
	return h.meAs(u, u != nil && h.session.IsAuthenticated())
}

func (h *Handlers) meAs(u *domain.User, authed bool) MeResponse {
	resp := MeResponse{User: u, Authenticated: u != nil && authed}
	if at, scheduled := h.auth.NextRefresh(); scheduled {
		resp.RefreshAt = &at
	}
	return resp
}
