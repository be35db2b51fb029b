// Package documents – streamed upload bodies
//
// This file builds the multipart upload body through an io.Pipe so the file is
// never buffered in memory, and tracks bytes read to report non-decreasing
// progress percentages.
package documents

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody streams the form through a pipe so large files are never
// buffered in memory.
func multipartBody(src Source, fileName string, metadata map[string]any, tr *tracker) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	tr.restart()

	go func() {
		f, err := src.Open()
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		defer f.Close()

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
		h.Set("Content-Type", src.Type)
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, &countingReader{r: f, tr: tr}); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("originalName", src.Name); err != nil {
			pw.CloseWithError(err)
			return
		}
		if metadata != nil {
			raw, err := json.Marshal(metadata)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := mw.WriteField("metadata", string(raw)); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType(), nil
}

// tracker turns bytes read into percentage events. Percentages only ever
// increase, including across a retried attempt.
type tracker struct {
	mu     sync.Mutex
	total  int64
	read   int64
	last   int
	sent   bool
	events chan<- domain.UploadEvent
}

func (t *tracker) restart() {
	t.mu.Lock()
	t.read = 0
	t.mu.Unlock()
}

func (t *tracker) add(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.read += int64(n)
	if t.total <= 0 {
		return
	}
	p := int(math.Round(100 * float64(t.read) / float64(t.total)))
	if p > 100 {
		p = 100
	}
	t.emitLocked(p)
}

// complete reports 100% if the byte count never got there.
func (t *tracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitLocked(100)
}

func (t *tracker) percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *tracker) emitLocked(p int) {
	if t.sent && p <= t.last {
		return
	}
	t.last, t.sent = p, true
	t.events <- domain.UploadEvent{Progress: p, Message: fmt.Sprintf("Uploading... %d%%", p)}
}

type countingReader struct {
	r  io.Reader
	tr *tracker
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.tr.add(n)
	}
	return n, err
}
