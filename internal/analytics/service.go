// Package analytics – user event tracking
//
// This file implements Service, which stamps user-facing events (page views,
// actions, uploads, searches) and ships them in batches to
// /analytics/events. A disabled Service drops events.
package analytics

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

// Poster sends one upstream request. *apiclient.Client satisfies it.
type Poster interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Service records user-facing events and ships them to /analytics/events.
type Service struct {
	batch   *Batcher[domain.AnalyticsEvent]
	enabled bool
	now     func() time.Time
}

// NewService returns a Service flushing batchSize events at a time. A
// disabled Service drops everything.
func NewService(api Poster, batchSize int, enabled bool, log zerolog.Logger) *Service {
	send := func(ctx context.Context, events []domain.AnalyticsEvent) error {
		return api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   "/analytics/events",
			JSON:   map[string]any{"events": events},
		}, nil)
	}
	return &Service{
		batch:   NewBatcher("events", batchSize, send, log),
		enabled: enabled,
		now:     time.Now,
	}
}

// Track stamps ev with the current time and enqueues it.
func (s *Service) Track(ev domain.AnalyticsEvent) {
	if !s.enabled {
		return
	}
	ev.Timestamp = s.now().UnixMilli()
	s.batch.Add(ev)
}

// TrackPageView records a navigation to page.
func (s *Service) TrackPageView(page, userID string) {
	s.Track(domain.AnalyticsEvent{
		Event:    "page_view",
		Category: "navigation",
		Action:   "view",
		Label:    page,
		UserID:   userID,
	})
}

// TrackUserAction records a generic interaction.
func (s *Service) TrackUserAction(action, category, label, userID string) {
	s.Track(domain.AnalyticsEvent{
		Event:    "user_action",
		Category: category,
		Action:   action,
		Label:    label,
		UserID:   userID,
	})
}

// TrackFileUpload records an upload with its size in bytes.
func (s *Service) TrackFileUpload(fileName string, size int64, userID string) {
	v := float64(size)
	s.Track(domain.AnalyticsEvent{
		Event:    "file_upload",
		Category: "documents",
		Action:   "upload",
		Label:    fileName,
		Value:    &v,
		UserID:   userID,
	})
}

// TrackSearchQuery records a question and how many sources answered it.
func (s *Service) TrackSearchQuery(query string, results int, userID string) {
	v := float64(results)
	s.Track(domain.AnalyticsEvent{
		Event:    "search",
		Category: "qa",
		Action:   "query",
		Label:    query,
		Value:    &v,
		UserID:   userID,
	})
}

// Flush sends queued events now.
func (s *Service) Flush(ctx context.Context) error { return s.batch.Flush(ctx) }

// Run flushes periodically until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) { s.batch.Run(ctx, interval) }

// Pending returns queued events.
func (s *Service) Pending() []domain.AnalyticsEvent { return s.batch.Pending() }
