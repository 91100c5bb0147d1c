package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"msmanager/internal/activity"
	"msmanager/internal/api"
	"msmanager/internal/dashboard"
	"msmanager/internal/logging"
	"msmanager/internal/output"
	"msmanager/ui/tui/components"
	"msmanager/ui/tui/state"
	"msmanager/ui/tui/views"
)

const activityHeight = 8

// MainModel is the Bubble Tea Model acting as the Controller. It never
// changes dashboard state itself; every key maps to a reconciler call and
// the model redraws from the snapshots the reconciler publishes.
type MainModel struct {
	ctx     context.Context
	rec     *dashboard.Reconciler
	picker  *FolderPicker
	updates chan struct{}

	state    state.AppState
	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	bar      *components.FlashBar
	input    textinput.Model
	activity viewport.Model
	files    filepicker.Model
	pending  *pickRequest

	cursor     int
	animCursor float64
	velocity   float64
	spring     harmonica.Spring

	quitting bool
	width    int
	height   int
}

// Messages
type AnimateMsg time.Time
type stateChangedMsg struct{}
type outcomeMsg struct {
	action  string
	outcome dashboard.Outcome
}
type copiedMsg struct {
	lines int
	err   error
}

func InitialModel(ctx context.Context, rec *dashboard.Reconciler, picker *FolderPicker) MainModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	in := textinput.New()
	in.Placeholder = "/path/to/payload"
	in.CharLimit = 4096
	in.Width = 48

	m := MainModel{
		ctx:      ctx,
		rec:      rec,
		picker:   picker,
		updates:  make(chan struct{}, 1),
		keys:     defaultKeys(),
		help:     help.New(),
		spinner:  s,
		bar:      components.NewFlashBar(30),
		input:    in,
		activity: viewport.New(80, activityHeight),
		spring:   harmonica.NewSpring(harmonica.FPS(60), 12.0, 0.9),
	}
	m.sync()
	return m
}

// notify wakes the model. Bursts of changes collapse into one redraw.
func (m *MainModel) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func (m *MainModel) Init() tea.Cmd {
	zone.NewGlobal()
	return tea.Batch(
		m.spinner.Tick,
		animateCmd(),
		waitForChange(m.updates),
		waitForPick(m.picker),
	)
}

// Commands
func animateCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*16, func(t time.Time) tea.Msg {
		return AnimateMsg(t)
	})
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return stateChangedMsg{}
	}
}

// run calls a reconciler command off the UI goroutine.
func (m *MainModel) run(action string, fn func(context.Context) dashboard.Outcome) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return outcomeMsg{action: action, outcome: fn(ctx)}
	}
}

func copyCmd(entries []activity.Entry) tea.Cmd {
	return func() tea.Msg {
		err := clipboard.WriteAll(activity.Text(entries))
		return copiedMsg{lines: len(entries), err: err}
	}
}

func (m *MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case AnimateMsg:
		return m.handleAnimateMsg(msg)

	case tea.WindowSizeMsg:
		return m.handleWindowSizeMsg(msg)

	case stateChangedMsg:
		m.sync()
		return m, waitForChange(m.updates)

	case outcomeMsg:
		return m.handleOutcomeMsg(msg)

	case pickRequestMsg:
		return m.handlePickRequest(pickRequest(msg))

	case copiedMsg:
		if msg.err != nil {
			m.state.Notice = "copy failed: " + msg.err.Error()
		} else {
			m.state.Notice = fmt.Sprintf("copied %d lines", msg.lines)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)
	}

	// Directory listings and other picker internals.
	if m.pending != nil {
		var cmd tea.Cmd
		m.files, cmd = m.files.Update(msg)
		return m, cmd
	}
	return m, nil
}

// sync pulls the latest snapshot into the view state.
func (m *MainModel) sync() {
	st := m.rec.State()
	m.state.Dash = st
	m.state.Snapshot = output.Evaluate(st)
	m.state.Activity = activity.Filter(m.rec.Activity().Entries(), st.ActivityFilter)
	m.state.LastUpdate = time.Now()

	if n := len(st.ProfileOptions); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	m.bar.SetPercent(st.FlashPercent)

	atBottom := m.activity.AtBottom()
	m.activity.SetContent(views.ActivityContent(m.state.Activity, m.activity.Width))
	if atBottom {
		m.activity.GotoBottom()
	}

	if st.RelocateModal.Open {
		if st.RelocateModal.NextRoot != m.input.Value() {
			m.input.SetValue(st.RelocateModal.NextRoot)
			m.input.CursorEnd()
		}
		if !m.input.Focused() {
			m.input.Focus()
		}
	} else if m.input.Focused() {
		m.input.Blur()
	}
}

func (m *MainModel) profileAt(i int) string {
	opts := m.state.Dash.ProfileOptions
	if i < 0 || i >= len(opts) {
		return ""
	}
	return opts[i]
}

func (m *MainModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	switch m.state.Mode() {
	case state.ModeBrowse:
		return m.handleBrowseKey(msg)
	case state.ModeFlashConfirm:
		return m.handleFlashKey(msg)
	case state.ModeRelocate:
		return m.handleRelocateKey(msg)
	case state.ModeContextMenu:
		return m.handleMenuKey(msg)
	}
	return m.handleDashboardKey(msg)
}

func (m *MainModel) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.state.Notice = ""
	st := m.state.Dash

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(st.ProfileOptions)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		if p := m.profileAt(m.cursor); p != "" && p != st.Profile {
			return m, m.run("profile", func(ctx context.Context) dashboard.Outcome { return m.rec.SetProfile(ctx, p) })
		}

	case key.Matches(msg, m.keys.Channel):
		next := nextChannel(st.Channel)
		return m, m.run("channel", func(ctx context.Context) dashboard.Outcome { return m.rec.SetChannel(ctx, next) })

	case key.Matches(msg, m.keys.Pin):
		next := nextPin(st.PinnedTag, st.Tags)
		return m, m.run("pin", func(ctx context.Context) dashboard.Outcome { return m.rec.SetPinnedTag(ctx, next) })

	case key.Matches(msg, m.keys.Install):
		return m, m.run("install", m.rec.Install)

	case key.Matches(msg, m.keys.Flash):
		if p := m.profileAt(m.cursor); p != "" {
			m.rec.OpenFlashModal(p)
		}

	case key.Matches(msg, m.keys.Menu):
		if p := m.profileAt(m.cursor); p != "" {
			// Beside the row: header and now line, then three lines per row.
			m.rec.OpenContextMenu(p, 34, 4+m.cursor*3)
		}

	case key.Matches(msg, m.keys.Relocate):
		m.rec.OpenRelocateModal()

	case key.Matches(msg, m.keys.Activity):
		m.rec.ToggleActivity()

	case key.Matches(msg, m.keys.Filter):
		m.rec.SetActivityFilter(nextScope(st.ActivityFilter))

	case key.Matches(msg, m.keys.Clear):
		m.rec.ClearActivity()

	case key.Matches(msg, m.keys.Copy):
		return m, copyCmd(m.state.Activity)

	case key.Matches(msg, m.keys.Update):
		return m, m.run("app update", m.rec.InstallAppUpdate)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.run("refresh", func(ctx context.Context) dashboard.Outcome {
			if err := m.rec.RefreshStatus(ctx); err != nil {
				return dashboard.Failed
			}
			m.rec.RefreshTags(ctx)
			return m.rec.RefreshRelease(ctx)
		})

	case key.Matches(msg, m.keys.Dismiss):
		m.rec.ClearError()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	default:
		if st.ActivityOpen {
			var cmd tea.Cmd
			m.activity, cmd = m.activity.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *MainModel) handleFlashKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if !m.state.Dash.Flashing {
			m.rec.CancelFlashModal()
		}
	case key.Matches(msg, m.keys.Ack):
		m.rec.SetFlashAck(!m.state.Dash.FlashModal.Ack)
	case key.Matches(msg, m.keys.Confirm):
		return m, m.run("flash", m.rec.ConfirmFlashModal)
	}
	return m, nil
}

func (m *MainModel) handleRelocateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if !m.state.Dash.Relocating {
			m.rec.CancelRelocateModal()
		}
		return m, nil
	case key.Matches(msg, m.keys.AckRelocate):
		m.rec.SetRelocateAck(!m.state.Dash.RelocateModal.Ack)
		return m, nil
	case key.Matches(msg, m.keys.Browse):
		return m, m.run("browse", m.rec.BrowseRelocateRoot)
	case key.Matches(msg, m.keys.Confirm):
		m.rec.SetRelocateRoot(m.input.Value())
		return m, m.run("relocate", m.rec.ConfirmRelocateModal)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.rec.SetRelocateRoot(m.input.Value())
	return m, cmd
}

func (m *MainModel) handleMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	profile := m.state.Dash.ContextMenu.Profile
	switch msg.String() {
	case "f", "enter":
		return m, m.menuFlash(profile)
	case "s":
		return m, m.menuSelect(profile)
	case "esc", "q":
		m.rec.CloseContextMenu()
	}
	return m, nil
}

func (m *MainModel) menuFlash(profile string) tea.Cmd {
	m.rec.CloseContextMenu()
	m.rec.OpenFlashModal(profile)
	return nil
}

func (m *MainModel) menuSelect(profile string) tea.Cmd {
	m.rec.CloseContextMenu()
	return m.run("profile", func(ctx context.Context) dashboard.Outcome { return m.rec.SetProfile(ctx, profile) })
}

func (m *MainModel) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.answerPick(pickResult{})
		return m, waitForPick(m.picker)
	case key.Matches(msg, m.keys.UseDir):
		m.answerPick(pickResult{path: m.files.CurrentDirectory, ok: true})
		return m, waitForPick(m.picker)
	}

	var cmd tea.Cmd
	m.files, cmd = m.files.Update(msg)
	if ok, path := m.files.DidSelectFile(msg); ok {
		m.answerPick(pickResult{path: path, ok: true})
		return m, tea.Batch(cmd, waitForPick(m.picker))
	}
	return m, cmd
}

func (m *MainModel) handlePickRequest(req pickRequest) (tea.Model, tea.Cmd) {
	if m.pending != nil {
		// One browser at a time.
		req.reply <- pickResult{}
		return m, waitForPick(m.picker)
	}
	fp := filepicker.New()
	fp.DirAllowed = true
	fp.FileAllowed = false
	fp.CurrentDirectory = req.start
	if st, err := os.Stat(req.start); err != nil || !st.IsDir() {
		if home, err := os.UserHomeDir(); err == nil {
			fp.CurrentDirectory = home
		}
	}
	fp, _ = fp.Update(tea.WindowSizeMsg{Width: m.width, Height: max(m.height-10, 5)})
	m.files = fp
	m.pending = &req
	m.state.Browsing = true
	return m, m.files.Init()
}

func (m *MainModel) answerPick(res pickResult) {
	if m.pending == nil {
		return
	}
	m.pending.reply <- res
	m.pending = nil
	m.state.Browsing = false
}

func (m *MainModel) handleOutcomeMsg(msg outcomeMsg) (tea.Model, tea.Cmd) {
	switch msg.outcome {
	case dashboard.Failed:
		m.state.Notice = msg.action + " failed"
	case dashboard.Noop:
		if msg.action != "browse" {
			m.state.Notice = msg.action + ": nothing to do"
		}
	default:
		m.state.Notice = ""
	}
	m.sync()
	return m, nil
}

func (m *MainModel) handleAnimateMsg(msg AnimateMsg) (tea.Model, tea.Cmd) {
	m.animCursor, m.velocity = m.spring.Update(m.animCursor, m.velocity, float64(m.cursor))
	m.bar.Step()
	return m, animateCmd()
}

func (m *MainModel) handleWindowSizeMsg(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.help.Width = msg.Width
	m.bar.SetWidth(msg.Width / 3)
	if w := msg.Width - 8; w > 20 {
		m.activity.Width = w
		m.activity.SetContent(views.ActivityContent(m.state.Activity, w))
	}
	if m.pending != nil {
		var cmd tea.Cmd
		m.files, cmd = m.files.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MainModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch m.state.Mode() {
	case state.ModeContextMenu:
		if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		profile := m.state.Dash.ContextMenu.Profile
		switch {
		case zone.Get(views.ZoneMenuFlash).InBounds(msg):
			return m, m.menuFlash(profile)
		case zone.Get(views.ZoneMenuSelect).InBounds(msg):
			return m, m.menuSelect(profile)
		}
		m.rec.CloseContextMenu()
		return m, nil

	case state.ModeDashboard:
		for i := range m.state.Dash.ProfileOptions {
			if !zone.Get(views.ProfileZone(i)).InBounds(msg) {
				continue
			}
			switch {
			case msg.Button == tea.MouseButtonRight && msg.Action == tea.MouseActionPress:
				m.cursor = i
				m.rec.OpenContextMenu(m.profileAt(i), msg.X, msg.Y)
			case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionRelease:
				m.cursor = i
			}
			return m, nil
		}
		if m.state.Dash.ActivityOpen {
			var cmd tea.Cmd
			m.activity, cmd = m.activity.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *MainModel) quit() (tea.Model, tea.Cmd) {
	m.answerPick(pickResult{})
	m.quitting = true
	return m, tea.Quit
}

func (m *MainModel) View() string {
	if m.quitting {
		return "Bye!\n"
	}

	props := views.ViewProps{
		Width:         m.width,
		Height:        m.height,
		ProfileCursor: m.cursor,
		AnimCursor:    m.animCursor,
		BarView:       m.bar.View(),
		ActivityView:  m.activity.View(),
		InputView:     m.input.View(),
		HelpView:      m.help.View(m.keys),
	}
	if m.state.Dash.Busy() || m.state.Dash.Loading() {
		props.SpinnerView = m.spinner.View()
	}
	if m.pending != nil {
		props.PickerView = m.files.View()
	}
	return zone.Scan(views.Render(m.state, props))
}

func nextChannel(c api.Channel) api.Channel {
	all := api.Channels()
	for i, ch := range all {
		if ch == c {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

// nextPin cycles latest -> tags[0] -> tags[1] ... -> latest.
func nextPin(current string, tags []string) string {
	if current == "" {
		if len(tags) == 0 {
			return ""
		}
		return tags[0]
	}
	for i, t := range tags {
		if t == current && i+1 < len(tags) {
			return tags[i+1]
		}
	}
	return ""
}

// nextScope cycles all -> each scope -> all.
func nextScope(s activity.Scope) activity.Scope {
	scopes := activity.Scopes()
	if s == "" {
		return scopes[0]
	}
	for i, sc := range scopes {
		if sc == s && i+1 < len(scopes) {
			return scopes[i+1]
		}
	}
	return ""
}

// Run starts a dashboard session and drives it from the terminal until the
// user quits. picker must be the FolderPicker the reconciler was built with
// (or nil when it has none).
func Run(ctx context.Context, rec *dashboard.Reconciler, picker *FolderPicker) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := logging.Logger(logging.SourceTUI)

	m := InitialModel(ctx, rec, picker)
	unsubState := rec.Subscribe(func(dashboard.State) { m.notify() })
	unsubLog := rec.Activity().Subscribe(func([]activity.Entry) { m.notify() })

	// The first load runs behind the UI.
	started := make(chan *dashboard.Session, 1)
	go func() { started <- rec.Start(ctx) }()

	p := tea.NewProgram(
		&m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, runErr := p.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}

	cancel()
	sess := <-started
	unsubLog()
	unsubState()

	closeErr := sess.Close()
	if closeErr != nil {
		logger.Warn("session teardown incomplete", "err", closeErr)
	}
	return errors.Join(runErr, closeErr)
}
