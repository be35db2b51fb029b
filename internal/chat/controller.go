// Package chat drives the question/answer transcript of one QA session.
//
// The Controller is Idle or Awaiting. Only one question may be in flight;
// a second Ask while Awaiting is rejected without side effects. Each ask
// appends the question and a pending answer placeholder, and the resolved
// answer (or a fixed error answer) later replaces that placeholder in
// place. Switching or starting a session bumps an epoch and cancels the
// session context, so responses for the old session are dropped.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

// MinQuestionRunes is the shortest accepted question after trimming.
const MinQuestionRunes = 3

// ErrorAnswerText replaces the placeholder when a question fails.
const ErrorAnswerText = "Sorry, I encountered an error while processing your question. Please try again."

// PopularLimit caps the suggestions kept by Init.
const PopularLimit = 5

// State of the controller.
type State int

const (
	Idle State = iota
	Awaiting
)

func (s State) String() string {
	if s == Awaiting {
		return "awaiting"
	}
	return "idle"
}

// QA is the upstream question-answering API. *qa.Client satisfies it.
type QA interface {
	Ask(ctx context.Context, question, sessionID string) (*domain.Answer, error)
	History(ctx context.Context, sessionID string) (*domain.History, error)
	Sessions(ctx context.Context) ([]domain.QASession, error)
	CreateSession(ctx context.Context, title string) (*domain.QASession, error)
	PopularQuestions(ctx context.Context) ([]domain.PopularQuestion, error)
	RateAnswer(ctx context.Context, answerID string, r domain.Rating) error
}

// Tracker receives analytics. *analytics.Service satisfies it.
type Tracker interface {
	TrackSearchQuery(query string, results int, userID string)
	TrackUserAction(action, category, label, userID string)
}

// Users yields the signed-in user. *session.Store satisfies it.
type Users interface {
	CurrentUser() *domain.User
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	State    State                    `json:"state"`
	Session  *domain.QASession        `json:"session,omitempty"`
	Messages []domain.ChatMessage     `json:"messages"`
	Sessions []domain.QASession       `json:"sessions"`
	Popular  []domain.PopularQuestion `json:"popularQuestions"`
}

// Controller owns the transcript.
type Controller struct {
	qa    QA
	track Tracker
	users Users
	log   zerolog.Logger
	now   func() time.Time
	lang  language.Tag

	mu         sync.Mutex
	state      State
	session    *domain.QASession
	messages   []domain.ChatMessage
	sessions   []domain.QASession
	popular    []domain.PopularQuestion
	epoch      uint64
	sessCtx    context.Context
	sessCancel context.CancelFunc
}

// New returns an Idle controller with no session.
func New(qa QA, track Tracker, users Users, log zerolog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		qa:         qa,
		track:      track,
		users:      users,
		log:        log,
		now:        time.Now,
		lang:       language.English,
		sessCtx:    ctx,
		sessCancel: cancel,
	}
}

// Ask submits a question in the current session, creating one first when
// none exists. It returns the message that replaced the placeholder: the
// answer, or the error answer together with the upstream error.
func (c *Controller) Ask(ctx context.Context, text string) (*domain.ChatMessage, error) {
	q := strings.TrimSpace(text)
	if utf8.RuneCountInString(q) < MinQuestionRunes {
		return nil, ErrQuestionTooShort
	}

	c.mu.Lock()
	if c.state == Awaiting {
		c.mu.Unlock()
		return nil, ErrQuestionInFlight
	}
	c.state = Awaiting
	epoch, sctx := c.epoch, c.sessCtx
	now := c.now()
	c.messages = append(c.messages,
		domain.ChatMessage{Kind: domain.KindQuestion, Text: q, Timestamp: now},
		domain.ChatMessage{Kind: domain.KindAnswer, Timestamp: now, Pending: true},
	)
	slot := len(c.messages) - 1
	var sessionID string
	if c.session != nil {
		sessionID = c.session.ID
	}
	c.mu.Unlock()

	ctx, span := otel.Tracer("chat").Start(ctx, "Ask", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	// The request dies with either the caller or the session.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sctx, cancel)
	defer stop()

	uid := c.userID()
	c.track.TrackSearchQuery(q, 0, uid)

	var (
		ans *domain.Answer
		err error
	)
	if sessionID == "" {
		sessionID, err = c.createForQuestion(ctx, epoch, q)
	}
	if err == nil {
		ans, err = c.qa.Ask(ctx, q, sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.log.Debug().Str("session_id", sessionID).Msg("discarding response for a replaced session")
		return nil, ErrSessionChanged
	}
	c.state = Idle

	if err != nil {
		span.RecordError(err)
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("qa error")
		c.messages[slot] = domain.ChatMessage{Kind: domain.KindAnswer, Text: ErrorAnswerText, Timestamp: c.now()}
		msg := c.messages[slot]
		return &msg, err
	}

	c.messages[slot] = answerMessage(*ans, c.now())
	msg := cloneMessage(c.messages[slot])
	c.track.TrackSearchQuery(q, len(ans.Sources), uid)
	return &msg, nil
}

// AskPopular asks a suggested question.
func (c *Controller) AskPopular(ctx context.Context, question string) (*domain.ChatMessage, error) {
	return c.Ask(ctx, question)
}

// RateAnswer submits feedback and, on success, records it on the matching
// transcript answer, if it is still shown. Re-rating overwrites. On failure
// the transcript is untouched.
func (c *Controller) RateAnswer(ctx context.Context, answerID string, r domain.Rating) error {
	if err := c.qa.RateAnswer(ctx, answerID, r); err != nil {
		c.log.Error().Err(err).Str("answer_id", answerID).Msg("rating error")
		return err
	}

	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].Kind == domain.KindAnswer && c.messages[i].ID == answerID {
			c.messages[i].Rating = r
			break
		}
	}
	c.mu.Unlock()

	c.track.TrackUserAction("rate_answer", "qa", string(r), c.userID())
	return nil
}

// SwitchSession replaces the transcript with the history of sessionID,
// merged and sorted by timestamp ascending.
func (c *Controller) SwitchSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	sess := domain.QASession{ID: sessionID}
	for _, s := range c.sessions {
		if s.ID == sessionID {
			sess = s
			break
		}
	}
	epoch, sctx := c.resetLocked(&sess)
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sctx, cancel)
	defer stop()

	h, err := c.qa.History(ctx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrSessionChanged
	}
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("load session error")
		return err
	}
	c.messages = historyMessages(h)
	return nil
}

// StartNewSession clears the transcript and creates a fresh session.
func (c *Controller) StartNewSession(ctx context.Context) (*domain.QASession, error) {
	c.mu.Lock()
	epoch, _ := c.resetLocked(nil)
	c.mu.Unlock()

	s, err := c.qa.CreateSession(ctx, "")
	if err != nil {
		c.log.Error().Err(err).Msg("create session error")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil, ErrSessionChanged
	}
	c.adoptLocked(*s)
	out := *s
	return &out, nil
}

// Init loads the session list and popular questions and starts a fresh
// session, concurrently. Each failure is logged; the first is returned.
func (c *Controller) Init(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		ss, err := c.qa.Sessions(ctx)
		if err != nil {
			c.log.Error().Err(err).Msg("load sessions error")
			return err
		}
		c.mu.Lock()
		// Keep sessions created meanwhile at the front.
		merged := append([]domain.QASession(nil), ss...)
		for i := len(c.sessions) - 1; i >= 0; i-- {
			if !containsSession(merged, c.sessions[i].ID) {
				merged = append([]domain.QASession{c.sessions[i]}, merged...)
			}
		}
		c.sessions = merged
		c.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		pq, err := c.qa.PopularQuestions(ctx)
		if err != nil {
			c.log.Error().Err(err).Msg("load popular questions error")
			return err
		}
		if len(pq) > PopularLimit {
			pq = pq[:PopularLimit]
		}
		c.mu.Lock()
		c.popular = append([]domain.PopularQuestion(nil), pq...)
		c.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		_, err := c.StartNewSession(ctx)
		return err
	})
	return g.Wait()
}

// State reports Idle or Awaiting.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the messages.
func (c *Controller) Transcript() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

// Snapshot returns a copy of everything the UI renders.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sess *domain.QASession
	if c.session != nil {
		s := *c.session
		sess = &s
	}
	return Snapshot{
		State:    c.state,
		Session:  sess,
		Messages: cloneMessages(c.messages),
		Sessions: append([]domain.QASession{}, c.sessions...),
		Popular:  append([]domain.PopularQuestion{}, c.popular...),
	}
}

// Reset forgets everything tied to the signed-in user: the transcript, the
// current session, the session list and the suggestions. An in-flight
// question is cancelled and its answer dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(nil)
	c.sessions = nil
	c.popular = nil
}

// Close cancels any in-flight request.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.sessCancel()
}

// resetLocked starts a new epoch: cancels the old session context, clears
// the transcript and returns to Idle.
func (c *Controller) resetLocked(sess *domain.QASession) (uint64, context.Context) {
	c.epoch++
	c.sessCancel()
	c.sessCtx, c.sessCancel = context.WithCancel(context.Background())
	c.state = Idle
	c.session = sess
	c.messages = nil
	return c.epoch, c.sessCtx
}

// createForQuestion creates the session an Ask needs, titled after the
// question.
func (c *Controller) createForQuestion(ctx context.Context, epoch uint64, q string) (string, error) {
	s, err := c.qa.CreateSession(ctx, titleFromQuestion(q, c.lang))
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	if c.epoch == epoch {
		c.adoptLocked(*s)
	}
	c.mu.Unlock()
	return s.ID, nil
}

func (c *Controller) adoptLocked(s domain.QASession) {
	c.session = &s
	if !containsSession(c.sessions, s.ID) {
		c.sessions = append([]domain.QASession{s}, c.sessions...)
	}
}

func (c *Controller) userID() string {
	if c.users == nil {
		return ""
	}
	if u := c.users.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}

func answerMessage(a domain.Answer, fallback time.Time) domain.ChatMessage {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = fallback
	}
	return domain.ChatMessage{
		ID:         a.ID,
		Kind:       domain.KindAnswer,
		Text:       a.Text,
		Timestamp:  ts,
		Confidence: a.Confidence,
		Sources:    append([]domain.DocumentExcerpt(nil), a.Sources...),
	}
}

func historyMessages(h *domain.History) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(h.Questions)+len(h.Answers))
	for _, q := range h.Questions {
		out = append(out, domain.ChatMessage{Kind: domain.KindQuestion, Text: q.Text, Timestamp: q.Timestamp})
	}
	for _, a := range h.Answers {
		out = append(out, answerMessage(a, a.Timestamp))
	}
	// Stable: on equal timestamps questions stay ahead of answers.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func containsSession(ss []domain.QASession, id string) bool {
	for _, s := range ss {
		if s.ID == id {
			return true
		}
	}
	return false
}

func cloneMessage(m domain.ChatMessage) domain.ChatMessage {
	m.Sources = append([]domain.DocumentExcerpt(nil), m.Sources...)
	if m.Confidence != nil {
		v := *m.Confidence
		m.Confidence = &v
	}
	return m
}

func cloneMessages(ms []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(ms))
	for i, m := range ms {
		out[i] = cloneMessage(m)
	}
	return out
}

// IsRejected reports whether err means Ask refused the input without side
// effects.
func IsRejected(err error) bool {
	return errors.Is(err, ErrQuestionTooShort) || errors.Is(err, ErrQuestionInFlight)
}
