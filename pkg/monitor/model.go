package monitor

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"

	"github.com/tempohq/tempo/internal/models"
	tsync "github.com/tempohq/tempo/internal/sync"
)

// DefaultRefreshInterval is how often the view re-reads the engine's
// cache snapshot.
const DefaultRefreshInterval = 2 * time.Second

// MinWidth is the minimum terminal width for the full layout.
const MinWidth = 40

// MinHeight is the minimum terminal height for the full layout.
const MinHeight = 10

// rowKind distinguishes flattened display rows.
type rowKind int

const (
	rowHeader rowKind = iota
	rowActivity
)

// row is one rendered line of the timeline.
type row struct {
	kind     rowKind
	date     string
	activity models.ActivityRecord
}

// TickMsg triggers a snapshot refresh.
type TickMsg time.Time

// RefreshDataMsg carries a fresh cache snapshot and sync state.
type RefreshDataMsg struct {
	Buckets   []models.DayBucket
	State     tsync.Snapshot
	Timestamp time.Time
}

// NotificationMsg carries an engine notification into the TUI.
type NotificationMsg tsync.Notification

// SyncDoneMsg reports a manually triggered sync.
type SyncDoneMsg struct {
	Err error
}

// LoadedMoreMsg reports a completed pagination fetch.
type LoadedMoreMsg struct {
	Added int
	Err   error
}

// Model is the Bubble Tea model for the timeline monitor.
type Model struct {
	Engine *tsync.Engine

	Width  int
	Height int

	Buckets []models.DayBucket
	State   tsync.Snapshot

	Cursor   int
	rowCache []row

	ShowHelp   bool
	DetailOpen bool
	Detail     string

	Notice      string
	LastRefresh time.Time
	Syncing     bool
	Err         error

	RefreshInterval time.Duration
	spinner         spinner.Model
	notifCh         <-chan tsync.Notification
}

// NewModel creates a monitor over a started engine. notifCh receives
// the engine's notifications; pass nil to disable.
func NewModel(engine *tsync.Engine, interval time.Duration, notifCh <-chan tsync.Notification) Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		Engine:          engine,
		RefreshInterval: interval,
		spinner:         sp,
		notifCh:         notifCh,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchData(), m.scheduleTick()}
	if m.notifCh != nil {
		cmds = append(cmds, m.waitForNotification())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Buckets = msg.Buckets
		m.State = msg.State
		m.LastRefresh = msg.Timestamp
		m.rowCache = flattenRows(msg.Buckets)
		if m.Cursor >= len(m.rowCache) {
			m.Cursor = max(0, len(m.rowCache)-1)
		}
		return m, nil

	case NotificationMsg:
		m.Notice = formatNotification(tsync.Notification(msg))
		var cmd tea.Cmd
		if m.notifCh != nil {
			cmd = m.waitForNotification()
		}
		return m, cmd

	case SyncDoneMsg:
		m.Syncing = false
		m.Err = msg.Err
		return m, m.fetchData()

	case LoadedMoreMsg:
		m.Err = msg.Err
		return m, m.fetchData()

	case spinner.TickMsg:
		if !m.Syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.DetailOpen {
		switch msg.String() {
		case "esc", "q", "enter":
			m.DetailOpen = false
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		if m.Cursor < len(m.rowCache)-1 {
			m.Cursor++
			m.syncLiveEdge()
		} else {
			// Past the bottom edge: page older history in.
			return m, m.loadMoreBottom()
		}
		return m, nil

	case "k", "up":
		if m.Cursor > 0 {
			m.Cursor--
			m.syncLiveEdge()
			return m, nil
		}
		// Already at the live edge: re-anchor on the newest page.
		return m, m.loadMoreTop()

	case "g":
		m.Cursor = 0
		m.syncLiveEdge()
		return m, m.fetchData()

	case "G":
		if len(m.rowCache) > 0 {
			m.Cursor = len(m.rowCache) - 1
			m.syncLiveEdge()
		}
		return m, nil

	case "r":
		m.Syncing = true
		return m, tea.Batch(m.runSync(), m.spinner.Tick)

	case "enter":
		return m.openDetail()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// syncLiveEdge tells the engine whether the view is anchored at the
// most recent entry; deferred-update notifications depend on it.
func (m *Model) syncLiveEdge() {
	if m.Engine != nil {
		m.Engine.SetAtLatest(m.Cursor == 0)
	}
}

// openDetail renders the selected activity's description as markdown.
func (m Model) openDetail() (tea.Model, tea.Cmd) {
	if m.Cursor >= len(m.rowCache) {
		return m, nil
	}
	r := m.rowCache[m.Cursor]
	if r.kind != rowActivity {
		return m, nil
	}
	m.Detail = renderActivityDetail(r.activity, m.detailWidth())
	m.DetailOpen = true
	return m, nil
}

func (m Model) detailWidth() int {
	w := m.Width - 8
	if w < 20 {
		w = 60
	}
	return w
}

// View implements tea.Model.
func (m Model) View() string {
	return m.renderView()
}

func (m Model) fetchData() tea.Cmd {
	engine := m.Engine
	return func() tea.Msg {
		if engine == nil {
			return RefreshDataMsg{Timestamp: time.Now()}
		}
		return RefreshDataMsg{
			Buckets:   engine.Snapshot(),
			State:     engine.State(),
			Timestamp: time.Now(),
		}
	}
}

func (m Model) runSync() tea.Cmd {
	engine := m.Engine
	return func() tea.Msg {
		if engine == nil {
			return SyncDoneMsg{}
		}
		return SyncDoneMsg{Err: engine.SyncOnce(context.Background())}
	}
}

func (m Model) loadMoreTop() tea.Cmd {
	engine := m.Engine
	return func() tea.Msg {
		if engine == nil {
			return LoadedMoreMsg{}
		}
		added, err := engine.LoadMoreTop(context.Background())
		return LoadedMoreMsg{Added: added, Err: err}
	}
}

func (m Model) loadMoreBottom() tea.Cmd {
	engine := m.Engine
	return func() tea.Msg {
		if engine == nil {
			return LoadedMoreMsg{}
		}
		added, err := engine.LoadMoreBottom(context.Background())
		return LoadedMoreMsg{Added: added, Err: err}
	}
}

func (m Model) waitForNotification() tea.Cmd {
	ch := m.notifCh
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return NotificationMsg(n)
	}
}

// scheduleTick schedules the next snapshot refresh.
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// flattenRows turns day buckets into scrollable display rows.
func flattenRows(buckets []models.DayBucket) []row {
	var rows []row
	for _, b := range buckets {
		rows = append(rows, row{kind: rowHeader, date: b.Date})
		for _, a := range b.Activities {
			rows = append(rows, row{kind: rowActivity, date: b.Date, activity: a})
		}
	}
	return rows
}
