package analytics

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

// Monitor collects timing samples and ships them to /analytics/performance.
// It implements apiclient.Observer.
type Monitor struct {
	batch   *Batcher[domain.PerformanceMetric]
	enabled bool
	now     func() time.Time

	mu   sync.RWMutex
	page string
}

// NewMonitor returns a Monitor flushing batchSize samples at a time.
func NewMonitor(api Poster, batchSize int, enabled bool, log zerolog.Logger) *Monitor {
	send := func(ctx context.Context, metrics []domain.PerformanceMetric) error {
		return api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   "/analytics/performance",
			JSON:   map[string]any{"metrics": metrics},
		}, nil)
	}
	return &Monitor{
		batch:   NewBatcher("performance", batchSize, send, log),
		enabled: enabled,
		now:     time.Now,
	}
}

// SetPage tags subsequent samples with page.
func (m *Monitor) SetPage(page string) {
	m.mu.Lock()
	m.page = page
	m.mu.Unlock()
}

// TrackCustomMetric records a named value.
func (m *Monitor) TrackCustomMetric(name string, value float64, userID string) {
	if !m.enabled {
		return
	}
	m.mu.RLock()
	page := m.page
	m.mu.RUnlock()
	m.batch.Add(domain.PerformanceMetric{
		Name:      name,
		Value:     value,
		Timestamp: m.now(),
		Page:      page,
		UserID:    userID,
	})
}

// TrackAPIResponseTime records an upstream latency in milliseconds.
func (m *Monitor) TrackAPIResponseTime(endpoint string, d time.Duration) {
	m.TrackCustomMetric("api_response_"+endpoint, float64(d.Microseconds())/1000, "")
}

// ObserveAPI feeds upstream latencies in, skipping the analytics endpoints
// themselves so flushes do not generate samples.
func (m *Monitor) ObserveAPI(endpoint string, d time.Duration) {
	if strings.HasPrefix(endpoint, "/analytics/") {
		return
	}
	m.TrackAPIResponseTime(endpoint, d)
}

// Flush sends queued samples now.
func (m *Monitor) Flush(ctx context.Context) error { return m.batch.Flush(ctx) }

// Run flushes periodically until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) { m.batch.Run(ctx, interval) }

// Pending returns queued samples.
func (m *Monitor) Pending() []domain.PerformanceMetric { return m.batch.Pending() }
