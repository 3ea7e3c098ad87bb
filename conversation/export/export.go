package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"discussion-facilitator/backend/conversation/models"
)

// Format is an export serialization
type Format string

const (
	Markdown Format = "markdown"
	Text     Format = "text"
	JSON     Format = "json"
)

// DefaultTitle heads every exported document
const DefaultTitle = "Chat Conversation"

// ParseFormat accepts the format names and their file extensions. Empty
// means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return Markdown, nil
	case "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json; charset=utf-8"
	case Text:
		return "text/plain; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

func (f Format) Extension() string {
	switch f {
	case JSON:
		return "json"
	case Text:
		return "txt"
	default:
		return "md"
	}
}

// FileName returns the attachment name for an export taken at t
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("conversation-%s.%s", t.UTC().Format("20060102-150405"), f.Extension())
}

// Document is a read-only copy of the log to serialize
type Document struct {
	Title      string           `json:"title"`
	Topic      string           `json:"topic,omitempty"`
	ExportedAt time.Time        `json:"exported_at"`
	Members    []string         `json:"members"`
	Messages   []models.Message `json:"messages"`
}

// Render writes doc to w in format f
func Render(w io.Writer, f Format, doc Document) error {
	if doc.Title == "" {
		doc.Title = DefaultTitle
	}
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case Text:
		return renderText(w, doc)
	case Markdown:
		return renderMarkdown(w, doc)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

func renderMarkdown(w io.Writer, doc Document) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	if doc.Topic != "" {
		fmt.Fprintf(&b, "**Topic:** %s\n\n", doc.Topic)
	}
	fmt.Fprintf(&b, "_Exported %s · %d messages · %d participants_\n\n",
		doc.ExportedAt.UTC().Format("2006-01-02 15:04 MST"), len(doc.Messages), len(doc.Members))
	for _, m := range doc.Messages {
		fmt.Fprintf(&b, "**%s:** %s\n\n", m.Author, strings.ReplaceAll(m.Content, "\n", "  \n"))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderText(w io.Writer, doc Document) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", doc.Title)
	if doc.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", doc.Topic)
	}
	fmt.Fprintf(&b, "Exported: %s\n\n", doc.ExportedAt.UTC().Format(time.RFC3339))
	for _, m := range doc.Messages {
		fmt.Fprintf(&b, "%s: %s\n\n", m.Author, m.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
