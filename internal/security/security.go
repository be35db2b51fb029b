// Package security vets files before they leave the client: size ceiling,
// MIME allow-list, blocked executable extensions and the double-extension
// heuristic. All violated rules are reported together.
package security

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

// DefaultMaxBytes is the upload ceiling (10MB).
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// AllowedTypes are the MIME types accepted for upload.
var AllowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"text/csv",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// BlockedExtensions are rejected regardless of declared type.
var BlockedExtensions = []string{".exe", ".bat", ".cmd", ".scr", ".vbs", ".js"}

// Violation messages.
const (
	msgBlockedExt = "File extension is not allowed for security reasons"
	msgDoubleExt  = "Files with double extensions are not allowed"
)

// FileInfo is what the validator inspects.
type FileInfo struct {
	Name string
	Size int64
	Type string
}

// Validator applies the upload policy.
type Validator struct {
	MaxBytes int64
	allowed  map[string]struct{}
}

// NewValidator returns a Validator with the given size ceiling; zero or
// negative means DefaultMaxBytes.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	allowed := make(map[string]struct{}, len(AllowedTypes))
	for _, t := range AllowedTypes {
		allowed[t] = struct{}{}
	}
	return &Validator{MaxBytes: maxBytes, allowed: allowed}
}

// Violations lists every rule f breaks, in rule order. Empty means valid.
func (v *Validator) Violations(f FileInfo) []string {
	var errs []string

	if f.Size > v.MaxBytes {
		mb := strconv.FormatFloat(float64(v.MaxBytes)/(1024*1024), 'f', -1, 64)
		errs = append(errs, fmt.Sprintf("File size exceeds maximum limit of %sMB", mb))
	}
	if _, ok := v.allowed[f.Type]; !ok {
		errs = append(errs, fmt.Sprintf("File type %s is not allowed", f.Type))
	}

	name := strings.ToLower(f.Name)
	for _, ext := range BlockedExtensions {
		if strings.HasSuffix(name, ext) {
			errs = append(errs, msgBlockedExt)
			break
		}
	}
	// More than one '.' anywhere counts, e.g. "report.v2.pdf".
	if strings.Count(name, ".") > 1 {
		errs = append(errs, msgDoubleExt)
	}
	return errs
}

// Check returns a *domain.ValidationError carrying every violation, or nil.
func (v *Validator) Check(f FileInfo) error {
	return domain.NewValidationError(v.Violations(f))
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	dotRuns     = regexp.MustCompile(`\.+`)
)

// SanitizeFileName replaces characters outside [a-zA-Z0-9.-] with '_',
// collapses runs of dots, drops one leading dot and caps the length at 255.
func SanitizeFileName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = dotRuns.ReplaceAllString(s, ".")
	s = strings.TrimPrefix(s, ".")
	if len(s) > 255 {
		s = s[:255]
	}
	return s
}

// GenerateSecureFileName returns "<unixmillis>_<random>.<ext>" where ext is
// the text after the last '.' of originalName (the whole name if it has none).
func GenerateSecureFileName(originalName string, now time.Time) string {
	ext := originalName
	if i := strings.LastIndexByte(originalName, '.'); i >= 0 {
		ext = originalName[i+1:]
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("%d_%s.%s", now.UnixMilli(), random, ext)
}

// DetectType sniffs the MIME type of r's content without parameters
// (e.g. "text/plain", never "text/plain; charset=utf-8").
func DetectType(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	t, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(t), nil
}
