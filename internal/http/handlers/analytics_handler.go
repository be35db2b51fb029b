// Analytics HTTP handlers.
//
// This file exposes the endpoints the UI uses to report telemetry:
//   - POST /analytics/pageview    (page navigation)
//   - POST /analytics/metrics     (custom timing sample)
//
// Both only enqueue; delivery to the upstream is batched.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PageViewRequest reports a UI navigation.
type PageViewRequest struct {
	Page string `json:"page" example:"/qa"`
}

// MetricRequest reports a custom timing sample from the UI.
type MetricRequest struct {
	Name  string  `json:"name" example:"first_paint"`
	Value float64 `json:"value" example:"123.4"`
}

// TrackPageView godoc
// @ID          trackPageView
// @Summary     Record a page view and tag later timings with the page
// @Tags        Analytics
// @Accept      json
// @Param       body  body  handlers.PageViewRequest  true  "Page"
// @Success     202
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /analytics/pageview [post]
func (h *Handlers) TrackPageView(c *gin.Context) {
	var req PageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Page) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "page required")
		return
	}
	h.perf.SetPage(req.Page)
	h.track.TrackPageView(req.Page, h.userID(c))
	c.Status(http.StatusAccepted)
}

// TrackMetric godoc
// @ID          trackMetric
// @Summary     Record a custom performance sample
// @Tags        Analytics
// @Accept      json
// @Param       body  body  handlers.MetricRequest  true  "Sample"
// @Success     202
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /analytics/metrics [post]
func (h *Handlers) TrackMetric(c *gin.Context) {
	var req MetricRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	h.perf.TrackCustomMetric(req.Name, req.Value, h.userID(c))
	c.Status(http.StatusAccepted)
}
