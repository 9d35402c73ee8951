// ABOUTME: Transcript export: markdown passthrough and goldmark-rendered HTML.
// ABOUTME: Assistant replies are markdown, so the HTML export renders them properly.

package archive

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
)

// ExportMarkdown writes a session transcript as a markdown document.
func ExportMarkdown(w io.Writer, session *chat.Session) error {
	title := session.Title
	if title == "" {
		title = session.SessionID
	}

	if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
		return err
	}

	for _, msg := range session.Messages {
		if _, err := fmt.Fprintf(w, "**%s** (%s):\n\n%s\n\n---\n\n",
			msg.Role, msg.Timestamp.Format(time.RFC3339), msg.Content); err != nil {
			return err
		}
	}
	return nil
}

// ExportHTML writes a session transcript as a standalone HTML page. Message
// content is converted from markdown; conversion failures fall back to
// escaped plain text rather than aborting the export.
func ExportHTML(w io.Writer, session *chat.Session) error {
	title := session.Title
	if title == "" {
		title = session.SessionID
	}

	if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title></head>
<body>
<h1>%s</h1>
`, html.EscapeString(title), html.EscapeString(title)); err != nil {
		return err
	}

	for _, msg := range session.Messages {
		var body bytes.Buffer
		if err := goldmark.Convert([]byte(msg.Content), &body); err != nil {
			body.Reset()
			body.WriteString("<p>" + html.EscapeString(msg.Content) + "</p>")
		}

		if _, err := fmt.Fprintf(w, `<div class="message %s">
<p><strong>%s</strong> <em>%s</em></p>
%s
</div>
`, msg.Role, msg.Role, msg.Timestamp.Format(time.RFC3339), body.String()); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(w, "</body>\n</html>\n")
	return err
}
