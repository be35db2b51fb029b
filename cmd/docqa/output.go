package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	questionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			PaddingLeft(2)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
)

// emit writes v as JSON or YAML, or calls text for the human format.
func (c *cli) emit(w io.Writer, v any, text func(io.Writer)) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	text(w)
	return nil
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Local().Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Local().Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Local().Format("Jan 02 15:04")
	}
	return t.Local().Format("2006-01-02")
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func printUser(w io.Writer, u *domain.User) {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	fmt.Fprintf(w, "%s %s <%s>\n", okStyle.Render("Signed in as"), titleStyle.Render(name), u.Email)
	fmt.Fprintf(w, "  role: %s\n", u.Role)
	if len(u.Permissions) > 0 {
		fmt.Fprintf(w, "  permissions: %s\n", strings.Join(u.Permissions, ", "))
	}
}

func printMessage(w io.Writer, m domain.ChatMessage) {
	if m.Kind == domain.KindQuestion {
		fmt.Fprintf(w, "%s %s\n", questionStyle.Render("You:"), m.Text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", answerStyle.Render("Assistant:"), m.Text)
	for i, s := range m.Sources {
		line := fmt.Sprintf("[%d] %s", i+1, s.DocumentName)
		if s.PageNumber != nil {
			line += fmt.Sprintf(", p. %d", *s.PageNumber)
		}
		line += fmt.Sprintf(" (%.0f%%)", s.RelevanceScore*100)
		fmt.Fprintln(w, sourceStyle.Render(line))
	}
	var meta []string
	if m.Confidence != nil {
		meta = append(meta, fmt.Sprintf("confidence %.0f%%", *m.Confidence*100))
	}
	if m.Rating != domain.RatingUnset {
		meta = append(meta, "rated "+string(m.Rating))
	}
	if m.ID != "" {
		meta = append(meta, "id "+m.ID)
	}
	if len(meta) > 0 {
		fmt.Fprintln(w, idStyle.Render("  "+strings.Join(meta, " | ")))
	}
}

func printTranscript(w io.Writer, msgs []domain.ChatMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No messages yet"))
		return
	}
	for _, m := range msgs {
		printMessage(w, m)
		if m.Kind == domain.KindAnswer {
			fmt.Fprintln(w)
		}
	}
}

func printSessions(w io.Writer, ss []domain.QASession) {
	if len(ss) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No sessions found"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(ss))))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tTitle\tQuestions\tLast activity")
	for _, s := range ss {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, clip(title, 50), s.QuestionCount, formatWhen(s.LastActivity))
	}
	_ = tw.Flush()
}

func printDocuments(w io.Writer, page *domain.DocumentPage) {
	if len(page.Documents) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No documents found"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Showing %d of %d document(s)", len(page.Documents), page.Total)))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tSize\tStatus\tUploaded")
	for _, d := range page.Documents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, clip(d.OriginalName, 40), formatSize(d.Size), d.Status, formatWhen(d.UploadedAt))
	}
	_ = tw.Flush()
}

func printDocument(w io.Writer, d *domain.Document) {
	fmt.Fprintln(w, titleStyle.Render(d.OriginalName))
	fmt.Fprintf(w, "  id:       %s\n", d.ID)
	fmt.Fprintf(w, "  stored:   %s\n", d.Name)
	fmt.Fprintf(w, "  type:     %s\n", d.Type)
	fmt.Fprintf(w, "  size:     %s\n", formatSize(d.Size))
	fmt.Fprintf(w, "  status:   %s\n", d.Status)
	fmt.Fprintf(w, "  uploaded: %s\n", dateStyle.Render(formatWhen(d.UploadedAt)))
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, d.Metadata[k])
	}
}
