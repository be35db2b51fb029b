// Package documents is the client for the upstream document endpoints.
//
// Upload vets the file locally first (nothing is sent when any rule fails),
// renames it to a server-safe name and streams it as multipart form data,
// reporting progress on a channel.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/cache"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/security"
)

// API is the upstream transport. *apiclient.Client satisfies it.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
	Send(ctx context.Context, req apiclient.Request) (*http.Response, error)
}

// Source is a file to upload. Open is called once per attempt.
type Source struct {
	Name string
	Size int64
	Type string
	Open func() (io.ReadCloser, error)
}

// UploadError wraps a failed upload.
type UploadError struct{ Err error }

func (e *UploadError) Error() string { return "Upload failed: " + apiclient.MessageOf(e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

// ListOptions selects a page of documents.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

// Client wraps the /documents endpoints.
type Client struct {
	api      API
	vet      *security.Validator
	cache    *cache.Cache
	ttl      time.Duration
	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// New returns a Client. A nil cache disables caching of single documents.
func New(api API, vet *security.Validator, c *cache.Cache, ttl time.Duration, log zerolog.Logger) *Client {
	return &Client{
		api:      api,
		vet:      vet,
		cache:    c,
		ttl:      ttl,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Upload validates src and starts the upload. Validation failures return a
// *domain.ValidationError and no channel. Otherwise the channel yields
// progress events with non-decreasing percentages followed by exactly one
// terminal event, then closes.
func (c *Client) Upload(ctx context.Context, src Source, metadata map[string]any) (<-chan domain.UploadEvent, error) {
	if err := c.vet.Check(security.FileInfo{Name: src.Name, Size: src.Size, Type: src.Type}); err != nil {
		return nil, err
	}
	if src.Open == nil {
		return nil, errors.New("documents: source has no content")
	}

	// At most 101 distinct percentages plus the terminal event, so sends
	// never block even if the reader walks away.
	events := make(chan domain.UploadEvent, 102)
	tr := &tracker{total: src.Size, events: events}
	secureName := security.GenerateSecureFileName(src.Name, c.now())

	go func() {
		defer close(events)

		var doc domain.Document
		err := c.api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   "/documents/upload",
			Body: func() (io.Reader, string, error) {
				return multipartBody(src, secureName, metadata, tr)
			},
		}, &doc)
		if err != nil {
			c.log.Warn().Err(err).Str("file", src.Name).Msg("upload failed")
			events <- domain.UploadEvent{Progress: tr.percent(), Err: &UploadError{Err: err}}
			return
		}
		tr.complete()
		c.log.Info().Str("document_id", doc.ID).Str("file", src.Name).Int64("size", src.Size).Msg("document uploaded")
		events <- domain.UploadEvent{Progress: 100, Document: &doc}
	}()
	return events, nil
}

// Wait drains an upload stream, calling onProgress for each progress event,
// and returns the terminal result.
func Wait(events <-chan domain.UploadEvent, onProgress func(domain.UploadEvent)) (*domain.Document, error) {
	for ev := range events {
		if ev.Terminal() {
			return ev.Document, ev.Err
		}
		if onProgress != nil {
			onProgress(ev)
		}
	}
	return nil, &UploadError{Err: errors.New("stream closed without result")}
}

// List returns one page of documents.
func (c *Client) List(ctx context.Context, opt ListOptions) (*domain.DocumentPage, error) {
	if opt.Page < 1 {
		opt.Page = 1
	}
	if opt.Limit < 1 {
		opt.Limit = 10
	}
	q := url.Values{
		"page":  {strconv.Itoa(opt.Page)},
		"limit": {strconv.Itoa(opt.Limit)},
	}
	if s := strings.TrimSpace(opt.Search); s != "" {
		q.Set("search", s)
	}
	var out domain.DocumentPage
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/documents", Query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one document.
func (c *Client) Get(ctx context.Context, id string) (*domain.Document, error) {
	load := func(ctx context.Context) (*domain.Document, error) {
		var out domain.Document
		if err := c.api.Do(ctx, apiclient.Request{
			Method: http.MethodGet,
			Path:   docPath(id),
			Route:  "/documents/:id",
		}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}
	if c.cache == nil {
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, c.cache, cacheKey(id), c.ttl, load)
}

// Update applies a partial update.
func (c *Client) Update(ctx context.Context, id string, upd domain.DocumentUpdate) (*domain.Document, error) {
	if err := c.validate.Struct(upd); err != nil {
		return nil, domain.NewValidationError([]string{"name must be between 1 and 255 characters"})
	}
	var out domain.Document
	if err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   docPath(id),
		Route:  "/documents/:id",
		JSON:   upd,
	}, &out); err != nil {
		return nil, err
	}
	c.forget(id)
	return &out, nil
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   docPath(id),
		Route:  "/documents/:id",
	}, nil); err != nil {
		return err
	}
	c.forget(id)
	return nil
}

// Download streams the raw bytes of a document. The caller closes the
// reader.
func (c *Client) Download(ctx context.Context, id string) (io.ReadCloser, string, error) {
	resp, err := c.api.Send(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   docPath(id) + "/download",
		Route:  "/documents/:id/download",
	})
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return resp.Body, ct, nil
}

func (c *Client) forget(id string) {
	if c.cache != nil {
		c.cache.Delete(cacheKey(id))
	}
}

func docPath(id string) string { return "/documents/" + url.PathEscape(id) }

func cacheKey(id string) string { return "doc:" + id }

// DescribeEvent renders a progress event for logs and terminals.
func DescribeEvent(ev domain.UploadEvent) string {
	switch {
	case ev.Err != nil:
		return ev.Err.Error()
	case ev.Document != nil:
		return fmt.Sprintf("Uploaded %s (%s)", ev.Document.Name, ev.Document.ID)
	case ev.Message != "":
		return ev.Message
	}
	return fmt.Sprintf("Uploading... %d%%", ev.Progress)
}
