package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/tempohq/tempo/internal/models"
	tsync "github.com/tempohq/tempo/internal/sync"
)

// renderActivityDetail renders one activity for the detail modal. The
// description is treated as markdown; render failures fall back to the
// raw text.
func renderActivityDetail(a models.ActivityRecord, width int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n", a.Title))
	b.WriteString(fmt.Sprintf("%s – %s\n",
		a.StartTime.Local().Format("Mon Jan 2 15:04"),
		a.EndTime.Local().Format("15:04")))
	if len(a.SourceEventIDs) > 0 {
		b.WriteString(fmt.Sprintf("events: %d\n", len(a.SourceEventIDs)))
	}
	if a.Description != "" {
		b.WriteString("\n")
		b.WriteString(renderMarkdown(a.Description, width))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderMarkdown renders markdown for terminal display.
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// formatNotification turns an engine notification into a status line.
func formatNotification(n tsync.Notification) string {
	switch n.Kind {
	case tsync.NotificationNewActivities:
		if n.Count == 1 {
			return "1 new activity above, press g to view"
		}
		return fmt.Sprintf("%d new activities above, press g to view", n.Count)
	case tsync.NotificationRetrying:
		return "sync hiccup, retrying in the background"
	}
	return ""
}
