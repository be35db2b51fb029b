// QA endpoints. The transcript lives in the chat controller; these
// handlers drive it and return its snapshot.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

// AskRequest is the body of POST /qa/ask.
type AskRequest struct {
	Question string `json:"question" example:"What share of Gen Z uses TikTok daily?"`
	// Popular marks a question picked from the suggestions.
	Popular bool `json:"popular,omitempty"`
}

// AskResponse carries the message that replaced the placeholder. When the
// QA API failed, Message is the error answer and Error holds the upstream
// message.
type AskResponse struct {
	Message  domain.ChatMessage `json:"message"`
	Error    string             `json:"error,omitempty"`
	Snapshot chat.Snapshot      `json:"snapshot"`
}

// RateRequest is the body of POST /qa/answers/{id}/rate.
type RateRequest struct {
	Rating domain.Rating `json:"rating" example:"helpful"`
}

// InitChat godoc
// @ID          initChat
// @Summary     Load sessions and suggestions and open a fresh session
// @Tags        QA
// @Produce     json
// @Success     200  {object}  chat.Snapshot
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /qa/init [post]
func (h *Handlers) InitChat(c *gin.Context) {
	if err := h.chat.Init(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.chat.Snapshot())
}

// Transcript godoc
// @ID          transcript
// @Summary     Current chat state
// @Tags        QA
// @Produce     json
// @Success     200  {object}  chat.Snapshot
// @Router      /qa/transcript [get]
func (h *Handlers) Transcript(c *gin.Context) {
	ok(c, http.StatusOK, h.chat.Snapshot())
}

// Ask godoc
// @ID          ask
// @Summary     Ask a question in the current session
// @Description Fails with 409 while another question is awaiting its answer. An upstream failure still answers 200 with the error answer and the upstream message in "error".
// @Tags        QA
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.AskRequest  true  "Question"
// @Success     200   {object}  handlers.AskResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Question too short"
// @Failure     409   {object}  handlers.ErrorResponse  "Question in flight or session changed"
// @Router      /qa/ask [post]
func (h *Handlers) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ask := h.chat.Ask
	if req.Popular {
		ask = h.chat.AskPopular
	}
	msg, err := ask(c.Request.Context(), req.Question)
	if msg == nil {
		failErr(c, err)
		return
	}
	resp := AskResponse{Message: *msg, Snapshot: h.chat.Snapshot()}
	if err != nil {
		resp.Error = apiclient.MessageOf(err)
	}
	ok(c, http.StatusOK, resp)
}

// RateAnswer godoc
// @ID          rateAnswer
// @Summary     Rate an answer
// @Tags        QA
// @Accept      json
// @Param       id    path  string                true  "Answer ID"
// @Param       body  body  handlers.RateRequest  true  "Rating"
// @Success     204
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     502   {object}  handlers.ErrorResponse
// @Router      /qa/answers/{id}/rate [post]
func (h *Handlers) RateAnswer(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Rating.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be helpful or not_helpful")
		return
	}
	if err := h.chat.RateAnswer(c.Request.Context(), c.Param("id"), req.Rating); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List QA sessions
// @Tags        QA
// @Produce     json
// @Success     200  {array}   domain.QASession
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /qa/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ss, err := h.qa.Sessions(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if ss == nil {
		ss = []domain.QASession{}
	}
	ok(c, http.StatusOK, ss)
}

// NewSession godoc
// @ID          newSession
// @Summary     Clear the transcript and start a new session
// @Tags        QA
// @Produce     json
// @Success     201  {object}  domain.QASession
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /qa/sessions [post]
func (h *Handlers) NewSession(c *gin.Context) {
	s, err := h.chat.StartNewSession(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

// SwitchSession godoc
// @ID          switchSession
// @Summary     Replace the transcript with a session's history
// @Tags        QA
// @Produce     json
// @Param       id   path      string  true  "Session ID"
// @Success     200  {object}  chat.Snapshot
// @Failure     409  {object}  handlers.ErrorResponse  "Superseded by a later switch"
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /qa/sessions/{id}/switch [post]
func (h *Handlers) SwitchSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id required")
		return
	}
	if err := h.chat.SwitchSession(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.chat.Snapshot())
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a QA session
// @Tags        QA
// @Param       id   path  string  true  "Session ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /qa/sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.qa.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// PopularQuestions godoc
// @ID          popularQuestions
// @Summary     Suggested questions
// @Tags        QA
// @Produce     json
// @Success     200  {array}   domain.PopularQuestion
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /qa/popular [get]
func (h *Handlers) PopularQuestions(c *gin.Context) {
	pq, err := h.qa.PopularQuestions(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if len(pq) > chat.PopularLimit {
		pq = pq[:chat.PopularLimit]
	}
	if pq == nil {
		pq = []domain.PopularQuestion{}
	}
	ok(c, http.StatusOK, pq)
}
