// Package export renders a negotiation transcript to a file. The operator
// appears as "You"; the counterparty appears under its group name.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fish-not-phish/RansomNegotiator/internal/session"
)

// Exporter renders one transcript to a writer.
type Exporter interface {
	Export(group string, messages []session.Message, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for a format name.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "txt", "text":
		return &TextExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: txt, md, json)", format)
	}
}

// DefaultFilename builds the conventional export filename for a session.
func DefaultFilename(group string, ext string, now time.Time) string {
	return fmt.Sprintf("ransomchat-%s-%s%s", strings.ToLower(group), now.Format("2006-01-02"), ext)
}

func speaker(group string, role session.Role) string {
	if role == session.RoleOperator {
		return "You"
	}
	return group
}

// TextExporter writes the plain-text transcript format.
type TextExporter struct{}

func (e *TextExporter) Extension() string { return ".txt" }

func (e *TextExporter) Export(group string, messages []session.Message, w io.Writer) error {
	for i, m := range messages {
		if i > 0 {
			if _, err := fmt.Fprint(w, "\n\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s: %s", speaker(group, m.Role), m.Content); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// MarkdownExporter writes a markdown transcript.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Extension() string { return ".md" }

func (e *MarkdownExporter) Export(group string, messages []session.Message, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Negotiation with %s\n\n**Messages:** %d\n\n---\n\n", group, len(messages)); err != nil {
		return err
	}
	for i, m := range messages {
		if _, err := fmt.Fprintf(w, "**%s:**\n\n%s\n\n", speaker(group, m.Role), m.Content); err != nil {
			return err
		}
		if i < len(messages)-1 {
			if _, err := fmt.Fprint(w, "---\n\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// JSONExporter writes the transcript as a JSON document.
type JSONExporter struct{}

func (e *JSONExporter) Extension() string { return ".json" }

func (e *JSONExporter) Export(group string, messages []session.Message, w io.Writer) error {
	doc := struct {
		Group    string            `json:"group"`
		Messages []session.Message `json:"messages"`
	}{Group: group, Messages: messages}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
