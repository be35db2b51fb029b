// Package domain defines the data model shared by the client gateway: the
// signed-in user and credential pair, chat transcript entries, QA sessions,
// document excerpts and uploaded documents. These types mirror the JSON
// shapes exchanged with the upstream QA API.
package domain

import (
	"time"
)

// Role is the coarse authorization level carried by a User.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

// User is the profile of the signed-in account. It is replaced wholesale on
// login/refresh and cleared on logout.
type User struct {
	ID          string   `json:"id"          yaml:"id"`
	Email       string   `json:"email"       yaml:"email"`
	Name        string   `json:"name"        yaml:"name"`
	Role        Role     `json:"role"        yaml:"role"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// HasPermission reports exact membership of p in the user's permission set.
func (u *User) HasPermission(p string) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so observers never share the permission slice.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = append([]string(nil), u.Permissions...)
	return &c
}

// Credentials is the access/refresh token pair issued together by the auth
// endpoint. The access token is a JWT carrying an "exp" claim.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// AuthResponse is the body returned by /auth/login, /auth/signup and
// /auth/refresh. ExpiresIn is the access token lifetime in seconds.
type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Rating is the user's feedback on an answer. The zero value means unset.
type Rating string

const (
	RatingUnset      Rating = ""
	RatingHelpful    Rating = "helpful"
	RatingNotHelpful Rating = "not_helpful"
)

// Valid reports whether r may be submitted to the rating endpoint.
func (r Rating) Valid() bool {
	return r == RatingHelpful || r == RatingNotHelpful
}

// DocumentExcerpt is a read-only source excerpt embedded in an Answer.
type DocumentExcerpt struct {
	DocumentID     string  `json:"documentId"           yaml:"documentId"`
	DocumentName   string  `json:"documentName"         yaml:"documentName"`
	Excerpt        string  `json:"excerpt"              yaml:"excerpt"`
	RelevanceScore float64 `json:"relevanceScore"       yaml:"relevanceScore"`
	PageNumber     *int    `json:"pageNumber,omitempty" yaml:"pageNumber,omitempty"`
}

// Question is a question as recorded by the QA API.
type Question struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
}

// Answer is the QA API's response to a question.
type Answer struct {
	ID             string            `json:"id"`
	QuestionID     string            `json:"questionId"`
	Text           string            `json:"text"`
	Confidence     *float64          `json:"confidence,omitempty"`
	Sources        []DocumentExcerpt `json:"sources"`
	Timestamp      time.Time         `json:"timestamp"`
	ProcessingTime float64           `json:"processingTime"`
}

// History is the transcript replay returned for a session.
type History struct {
	Questions []Question `json:"questions"`
	Answers   []Answer   `json:"answers"`
}

// QASession is a server-side conversation. The client only selects it.
type QASession struct {
	ID            string    `json:"id"            yaml:"id"`
	Title         string    `json:"title"         yaml:"title"`
	CreatedAt     time.Time `json:"createdAt"     yaml:"createdAt"`
	LastActivity  time.Time `json:"lastActivity"  yaml:"lastActivity"`
	QuestionCount int       `json:"questionCount" yaml:"questionCount"`
}

// PopularQuestion is a suggestion with its ask count.
type PopularQuestion struct {
	Question string `json:"question" yaml:"question"`
	Count    int    `json:"count"    yaml:"count"`
}

// MessageKind tags a ChatMessage as a question or an answer.
type MessageKind string

const (
	KindQuestion MessageKind = "question"
	KindAnswer   MessageKind = "answer"
)

// ChatMessage is one transcript entry. Answer-only fields are empty on
// questions. Pending marks the placeholder answer occupying the slot of an
// unresolved question.
type ChatMessage struct {
	ID         string            `json:"id,omitempty"         yaml:"id,omitempty"`
	Kind       MessageKind       `json:"type"                 yaml:"type"`
	Text       string            `json:"content"              yaml:"content"`
	Timestamp  time.Time         `json:"timestamp"            yaml:"timestamp"`
	Confidence *float64          `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Sources    []DocumentExcerpt `json:"sources,omitempty"    yaml:"sources,omitempty"`
	Rating     Rating            `json:"rating,omitempty"     yaml:"rating,omitempty"`
	Pending    bool              `json:"isLoading,omitempty"  yaml:"pending,omitempty"`
}

// DocumentStatus is the upload/processing state of a Document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the client's transient copy of an uploaded document.
type Document struct {
	ID           string         `json:"id"                 yaml:"id"`
	Name         string         `json:"name"               yaml:"name"`
	OriginalName string         `json:"originalName"       yaml:"originalName"`
	Size         int64          `json:"size"               yaml:"size"`
	Type         string         `json:"type"               yaml:"type"`
	UploadedAt   time.Time      `json:"uploadedAt"         yaml:"uploadedAt"`
	UploadedBy   string         `json:"uploadedBy"         yaml:"uploadedBy"`
	Status       DocumentStatus `json:"status"             yaml:"status"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DocumentPage is one page of the documents listing.
type DocumentPage struct {
	Documents []Document `json:"documents" yaml:"documents"`
	Total     int64      `json:"total"     yaml:"total"`
}

// DocumentUpdate is a partial update for PATCH /documents/{id}.
type DocumentUpdate struct {
	Name     *string        `json:"name,omitempty"     validate:"omitempty,min=1,max=255"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UploadEvent is one element of an upload stream: zero or more progress
// events followed by exactly one terminal event carrying Document or Err.
type UploadEvent struct {
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Document *Document `json:"document,omitempty"`
	Err      error     `json:"-"`
}

// Terminal reports whether e ends the stream.
func (e UploadEvent) Terminal() bool { return e.Document != nil || e.Err != nil }

// AnalyticsEvent is a telemetry record batched to /analytics/events.
type AnalyticsEvent struct {
	Event     string         `json:"event"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	Label     string         `json:"label,omitempty"`
	Value     *float64       `json:"value,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// PerformanceMetric is a timing sample batched to /analytics/performance.
type PerformanceMetric struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page,omitempty"`
	UserID    string    `json:"userId,omitempty"`
}
