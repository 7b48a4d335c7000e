package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/session"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

// Editor is the engine surface the editor drives. The daemon session and the
// IPC client both implement it.
type Editor interface {
	View(ctx context.Context) (hierarchy.View, error)
	Refresh(ctx context.Context) error
	Submit(ctx context.Context, c hierarchy.PendingChange) error
	Apply(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Notifier is implemented by editors that can push change notifications.
// Editors without it are polled.
type Notifier interface {
	Subscribe() (<-chan struct{}, func())
}

// HealthReporter is implemented by editors that track refresh health
type HealthReporter interface {
	Health() session.Health
}

type viewMsg struct {
	view   hierarchy.View
	health session.Health
	err    error
}

type opDoneMsg struct {
	op  string
	err error
}

type updateMsg struct{}

type pollMsg struct{}

const (
	opSubmit      = "submit"
	opApply       = "apply"
	opCancel      = "cancel"
	opRefresh     = "refresh"
	opQuitApply   = "quit-apply"
	opQuitDiscard = "quit-discard"
)

type formKind int

const (
	formNone formKind = iota
	formNewMaster
	formRemoveMaster
	formQuit
)

const (
	quitApply   = "apply"
	quitDiscard = "discard"
	quitStay    = "stay"
)

// Options configures the editor
type Options struct {
	Title        string
	PollInterval time.Duration
}

// Model is the bubbletea model of the hierarchy editor
type Model struct {
	ctx     context.Context
	editor  Editor
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	title   string

	view   hierarchy.View
	health session.Health
	loaded bool
	cursor int
	picked int

	form          *huh.Form
	formKind      formKind
	newName       string
	confirmRemove bool
	removeTarget  hierarchy.Row
	quitChoice    string

	busy    string
	status  string
	lastErr error

	updates      <-chan struct{}
	stopUpdates  func()
	pollInterval time.Duration
	width        int
	quitting     bool
}

// NewModel creates an editor over e
func NewModel(ctx context.Context, e Editor, opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	if opts.Title == "" {
		opts.Title = "xhier"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	m := &Model{
		ctx:          ctx,
		editor:       e,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      s,
		title:        opts.Title,
		pollInterval: opts.PollInterval,
	}
	if n, ok := e.(Notifier); ok {
		m.updates, m.stopUpdates = n.Subscribe()
	}
	return m
}

// Close releases the change subscription
func (m *Model) Close() {
	if m.stopUpdates != nil {
		m.stopUpdates()
		m.stopUpdates = nil
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	if m.updates != nil {
		return tea.Batch(m.fetchView(), m.waitForUpdate())
	}
	return tea.Batch(m.fetchView(), m.poll())
}

func (m *Model) fetchView() tea.Cmd {
	return func() tea.Msg {
		v, err := m.editor.View(m.ctx)
		msg := viewMsg{view: v, err: err}
		if h, ok := m.editor.(HealthReporter); ok {
			msg.health = h.Health()
		}
		return msg
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return updateMsg{}
	}
}

func (m *Model) poll() tea.Cmd {
	return tea.Tick(m.pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m *Model) runOp(op string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = op
	m.status = ""
	ctx := m.ctx
	return tea.Batch(func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}, m.spinner.Tick)
}

func (m *Model) submit(c hierarchy.PendingChange) tea.Cmd {
	return m.runOp(opSubmit, func(ctx context.Context) error {
		return m.editor.Submit(ctx, c)
	})
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case viewMsg:
		m.health = msg.health
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.view = msg.view
		m.loaded = true
		m.clamp()
		return m, nil

	case opDoneMsg:
		return m, m.finishOp(msg)

	case updateMsg:
		return m, tea.Batch(m.fetchView(), m.waitForUpdate())

	case pollMsg:
		return m, tea.Batch(m.fetchView(), m.poll())

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		return m, m.handleKey(k)
	}
	return m, nil
}

func (m *Model) finishOp(msg opDoneMsg) tea.Cmd {
	m.busy = ""
	switch msg.op {
	case opQuitDiscard:
		m.quitting = true
		return tea.Quit
	case opQuitApply:
		if msg.err == nil {
			m.quitting = true
			return tea.Quit
		}
	}
	if msg.err != nil {
		m.lastErr = msg.err
		m.status = ""
		return m.fetchView()
	}
	m.lastErr = nil
	switch msg.op {
	case opSubmit:
		if m.view.Mode == hierarchy.ModeImmediate {
			m.status = "change applied"
		} else {
			m.status = "change staged, press a to apply"
		}
	case opApply:
		m.status = "all changes applied"
	case opCancel:
		m.status = "pending changes discarded"
	case opRefresh:
		m.status = "hierarchy refreshed"
	}
	return m.fetchView()
}

func (m *Model) clamp() {
	if m.cursor >= len(m.view.Rows) {
		m.cursor = len(m.view.Rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.picked != 0 {
		if _, ok := m.view.Row(m.picked); !ok {
			m.picked = 0
		}
	}
}

func (m *Model) current() (hierarchy.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Rows) {
		return hierarchy.Row{}, false
	}
	return m.view.Rows[m.cursor], true
}

func (m *Model) handleKey(k tea.KeyMsg) tea.Cmd {
	switch {
	case k.String() == "ctrl+c":
		m.quitting = true
		return tea.Quit
	case key.Matches(k, m.keys.Quit):
		if len(m.view.Pending) > 0 {
			return m.openQuitForm()
		}
		m.quitting = true
		return tea.Quit
	case key.Matches(k, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	case key.Matches(k, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return nil
	case key.Matches(k, m.keys.Down):
		if m.cursor < len(m.view.Rows)-1 {
			m.cursor++
		}
		return nil
	case key.Matches(k, m.keys.Back):
		m.picked = 0
		m.status = ""
		return nil
	}

	// edits wait for the running operation
	if m.busy != "" {
		return nil
	}

	row, ok := m.current()
	switch {
	case key.Matches(k, m.keys.Move):
		if !ok || row.Depth == 0 {
			m.status = "select a slave device to move"
			return nil
		}
		m.picked = row.ID
		m.status = fmt.Sprintf("moving %q: select a master or Unassigned and press enter", row.Name)
	case key.Matches(k, m.keys.Drop):
		if m.picked == 0 || !ok {
			return nil
		}
		if row.Depth != 0 {
			m.status = "drop the device on a master or on Unassigned"
			return nil
		}
		c := hierarchy.Reattach(m.picked, row.ID)
		m.picked = 0
		return m.submit(c)
	case key.Matches(k, m.keys.Float):
		if !ok || row.Depth == 0 {
			m.status = "select a slave device to float"
			return nil
		}
		return m.submit(hierarchy.Float(row.ID))
	case key.Matches(k, m.keys.New):
		return m.openNameForm()
	case key.Matches(k, m.keys.Remove):
		if !ok || row.Depth != 0 || row.IsUnassigned() {
			m.status = "select a master device to remove"
			return nil
		}
		if row.ID == hierarchy.CorePointerID || row.ID == hierarchy.CoreKeyboardID {
			m.lastErr = fmt.Errorf("%q is a core master and cannot be removed", row.Name)
			return nil
		}
		return m.openRemoveForm(row)
	case key.Matches(k, m.keys.Apply):
		if len(m.view.Pending) == 0 {
			m.status = "nothing to apply"
			return nil
		}
		return m.runOp(opApply, m.editor.Apply)
	case key.Matches(k, m.keys.Cancel):
		return m.runOp(opCancel, m.editor.Cancel)
	case key.Matches(k, m.keys.Refresh):
		return m.runOp(opRefresh, m.editor.Refresh)
	}
	return nil
}

func (m *Model) openNameForm() tea.Cmd {
	m.newName = ""
	m.formKind = formNewMaster
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("New master device").
				Description("Creates a master pointer and keyboard pair").
				Placeholder("e.g. Left hand").
				Value(&m.newName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name cannot be empty")
					}
					return nil
				}),
		),
	).WithShowHelp(false)
	return m.form.Init()
}

func (m *Model) openRemoveForm(row hierarchy.Row) tea.Cmd {
	m.confirmRemove = false
	m.removeTarget = row
	m.formKind = formRemoveMaster
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Remove master %q?", row.Name)).
				Description("Its paired master goes too. Attached slaves are returned as configured.").
				Affirmative("Remove").
				Negative("Keep").
				Value(&m.confirmRemove),
		),
	).WithShowHelp(false)
	return m.form.Init()
}

func (m *Model) openQuitForm() tea.Cmd {
	m.quitChoice = quitStay
	m.formKind = formQuit
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("%d change(s) have not been applied", len(m.view.Pending))).
				Options(
					huh.NewOption("Apply and quit", quitApply),
					huh.NewOption("Discard and quit", quitDiscard),
					huh.NewOption("Keep editing", quitStay),
				).
				Value(&m.quitChoice),
		),
	).WithShowHelp(false)
	return m.form.Init()
}

func (m *Model) closeForm() {
	m.form = nil
	m.formKind = formNone
}

func (m *Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		if k.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if key.Matches(k, m.keys.Back) {
			m.closeForm()
			return m, nil
		}
	}

	model, cmd := m.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m, m.finishForm()
	case huh.StateAborted:
		m.closeForm()
		return m, nil
	}
	return m, cmd
}

func (m *Model) finishForm() tea.Cmd {
	kind := m.formKind
	m.closeForm()

	switch kind {
	case formNewMaster:
		name := strings.TrimSpace(m.newName)
		if name == "" {
			return nil
		}
		return m.submit(hierarchy.CreateMaster(name))
	case formRemoveMaster:
		if !m.confirmRemove {
			m.status = fmt.Sprintf("kept %q", m.removeTarget.Name)
			return nil
		}
		return m.submit(hierarchy.RemoveMaster(m.removeTarget.ID, hierarchy.ReturnToDefaults))
	case formQuit:
		switch m.quitChoice {
		case quitApply:
			return m.runOp(opQuitApply, m.editor.Apply)
		case quitDiscard:
			return m.runOp(opQuitDiscard, m.editor.Cancel)
		}
	}
	return nil
}

// View implements tea.Model
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	if m.loaded {
		b.WriteString("  ")
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("generation %d · %s mode", m.view.Generation, m.view.Mode)))
	}
	if m.health.Offline() {
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("display offline"))
	}
	b.WriteString("\n\n")

	if !m.loaded {
		if m.lastErr != nil {
			b.WriteString(FormatResult(false, m.lastErr.Error()))
		} else {
			b.WriteString(m.spinner.View() + " loading hierarchy...")
		}
		b.WriteString("\n")
		return b.String()
	}

	tree := RenderTree(m.view, RenderOptions{Styled: true, Cursor: m.cursor, Picked: m.picked, ShowIDs: true})
	b.WriteString(BoxStyle.Render(strings.TrimRight(tree, "\n")))
	b.WriteString("\n")
	b.WriteString(CreateSeparator(min(max(m.width, 20), 60), ""))
	b.WriteString("\n")

	b.WriteString(BoldStyle.Render(fmt.Sprintf("Pending (%d)", len(m.view.Pending))))
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(RenderPending(m.view, true), "\n"))
	b.WriteString("\n\n")

	if m.form != nil {
		b.WriteString(m.form.View())
		b.WriteString("\n")
		b.WriteString(FormatControl("esc", "close"))
		b.WriteString("\n")
	}

	switch {
	case m.busy != "":
		b.WriteString(m.spinner.View() + " " + m.busy + "...")
	case m.lastErr != nil:
		b.WriteString(FormatResult(false, m.lastErr.Error()))
	case m.health.Offline():
		b.WriteString(WarningStyle.Render(m.health.Status()))
	case m.status != "":
		b.WriteString(InfoStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
