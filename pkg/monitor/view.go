package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderView renders the complete TUI view.
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}
	if m.ShowHelp {
		return m.renderHelp()
	}

	header := m.renderHeader()
	body := m.renderTimeline(m.Height - 4)
	footer := m.renderFooter()

	base := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)

	if m.DetailOpen {
		modal := modalStyle.Width(m.detailWidth()).Render(m.Detail)
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, modal,
			lipgloss.WithWhitespaceChars(" "),
			lipgloss.WithWhitespaceForeground(lipgloss.Color("0")))
	}
	return base
}

// renderHeader shows sync health and the watermark.
func (m Model) renderHeader() string {
	title := headerStyle.Render("tempo timeline")

	health := healthyStyle.Render("● synced")
	if !m.State.Healthy {
		health = unhealthyStyle.Render(fmt.Sprintf("● degraded (%d failures)", m.State.ConsecutiveFailures))
	}
	if m.Syncing {
		health = m.spinner.View() + " syncing"
	}

	right := subtleStyle.Render(fmt.Sprintf("v%d", m.State.Watermark))
	if m.State.PendingUpdates > 0 {
		right = noticeStyle.Render(fmt.Sprintf("%d new ↑ ", m.State.PendingUpdates)) + right
	}

	gap := m.Width - lipgloss.Width(title) - lipgloss.Width(health) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return title + " " + health + strings.Repeat(" ", gap) + right
}

// renderTimeline renders the visible window of flattened rows.
func (m Model) renderTimeline(height int) string {
	rows := m.rowCache
	if len(rows) == 0 {
		return subtleStyle.Render("\n  No activities yet. Waiting for the first sync...")
	}

	// Keep the cursor inside the window.
	top := 0
	if m.Cursor >= height {
		top = m.Cursor - height + 1
	}
	end := top + height
	if end > len(rows) {
		end = len(rows)
	}

	var b strings.Builder
	for i := top; i < end; i++ {
		r := rows[i]
		var line string
		switch r.kind {
		case rowHeader:
			line = dateHeaderStyle.Render("▸ " + r.date)
		case rowActivity:
			a := r.activity
			span := fmt.Sprintf("%s–%s",
				a.StartTime.Local().Format("15:04"),
				a.EndTime.Local().Format("15:04"))
			line = fmt.Sprintf("  %s  %s", timeStyle.Render(span), a.Title)
		}
		if i == m.Cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderFooter shows the last notice and key hints.
func (m Model) renderFooter() string {
	hints := helpStyle.Render("j/k:scroll  g:top  G:bottom  r:sync  enter:detail  ?:help  q:quit")
	if m.Err != nil {
		return noticeStyle.Render("sync error: "+m.Err.Error()) + "\n" + hints
	}
	if m.Notice != "" {
		return noticeStyle.Render(m.Notice) + "\n" + hints
	}
	return "\n" + hints
}

// renderCompact is the minimal view for small terminals.
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("tempo timeline (resize for full view)\n\n")
	total := 0
	for _, b := range m.Buckets {
		total += len(b.Activities)
	}
	s.WriteString(fmt.Sprintf("Days: %d  Activities: %d\n", len(m.Buckets), total))
	if !m.State.Healthy {
		s.WriteString(fmt.Sprintf("sync degraded (%d failures)\n", m.State.ConsecutiveFailures))
	}
	s.WriteString("\nq:quit r:sync ?:help")
	return s.String()
}

// renderHelp renders the key binding reference.
func (m Model) renderHelp() string {
	help := `tempo timeline keys

  j / down     scroll down (past the end loads older days)
  k / up       scroll up
  g            jump to the live edge
  G            jump to the oldest cached day
  r            sync now
  enter        activity detail
  esc          close detail
  ?            toggle this help
  q / ctrl+c   quit

Scrolling away from the live edge defers update banners;
new activities are still merged in the background.`
	return modalStyle.Render(help)
}
