// Package tui is the interactive list. It renders whatever the live query
// delivers and turns key presses into store mutations; it never edits the
// list it shows.
package tui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/ui"
)

// Todos is the part of the todo store the list drives.
type Todos interface {
	Items() (<-chan []model.TodoItem, func())
	Errors() (<-chan error, func())
	Add(title string) *dispatch.Op
	AddItem(title string, completed bool) *dispatch.Op
	UpdateTitle(id, title string) *dispatch.Op
	ToggleComplete(id string, completed bool) *dispatch.Op
	Remove(id string) *dispatch.Op
}

// Auth is the part of the auth session the list drives.
type Auth interface {
	Sessions() (<-chan session.Session, func())
	SignOut(ctx context.Context) *dispatch.Op
}

type itemsMsg []model.TodoItem

type queryErrMsg struct{ err error }

type sessionMsg session.Session

type opDoneMsg struct {
	action string
	err    error
}

type streamClosedMsg struct{}

// listItem adapts a TodoItem to bubbles/list.Item
type listItem struct {
	model.TodoItem
}

func (i listItem) TitleText() string {
	box := ui.Current().BoxUnchecked
	if i.Completed {
		box = ui.Current().BoxChecked
	}
	return fmt.Sprintf("%s %s", box, i.TodoItem.Title)
}

func (i listItem) Title() string       { return i.TitleText() }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.TodoItem.Title }

// single line rows
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, _ := item.(listItem)

	theme := ui.Current()
	boxStyled := mutedStyle.Render(theme.BoxUnchecked)
	textStyled := it.TodoItem.Title
	if it.Completed {
		boxStyled = successStyle.Render(theme.BoxChecked)
		textStyled = doneStyle.Render(textStyled)
	}

	line := fmt.Sprintf("%s %s", boxStyled, textStyled)
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

// Model is the Bubble Tea model of the list.
type Model struct {
	todos Todos
	auth  Auth
	ctx   context.Context

	items    <-chan []model.TodoItem
	errs     <-chan error
	sessions <-chan session.Session
	cancels  []func()

	list   list.Model
	ti     textinput.Model
	width  int
	height int

	adding    bool
	editing   bool
	editID    string
	inputErr  string
	status    string
	queryErr  error
	undoTitle string
	undoDone  bool
	signedOut bool
}

// New subscribes to the stores. Call Close when done with the model.
func New(ctx context.Context, todos Todos, auth Auth) Model {
	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("item", "items")
	l.Title = header(nil)

	addBind := key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind := key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit"))
	toggleBind := key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	deleteBind := key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	undoBind := key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo"))
	signOutBind := key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "sign out"))
	extra := []key.Binding{addBind, editBind, toggleBind, deleteBind, undoBind, signOutBind}
	l.AdditionalShortHelpKeys = func() []key.Binding { return extra[:3] }
	l.AdditionalFullHelpKeys = func() []key.Binding { return extra }

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "New item title..."
	ti.CharLimit = 200

	m := Model{
		todos:  todos,
		auth:   auth,
		ctx:    ctx,
		list:   l,
		ti:     ti,
		width:  80,
		height: 24,
	}
	var cancel func()
	m.items, cancel = todos.Items()
	m.cancels = append(m.cancels, cancel)
	m.errs, cancel = todos.Errors()
	m.cancels = append(m.cancels, cancel)
	m.sessions, cancel = auth.Sessions()
	m.cancels = append(m.cancels, cancel)
	return m
}

// Close releases the store subscriptions.
func (m Model) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
}

// SignedOut reports whether the list closed because the session ended.
func (m Model) SignedOut() bool { return m.signedOut }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitItems(m.items),
		waitErr(m.errs),
		waitSession(m.sessions),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case itemsMsg:
		m.setItems(msg)
		return m, waitItems(m.items)
	case queryErrMsg:
		m.queryErr = msg.err
		return m, waitErr(m.errs)
	case sessionMsg:
		if !session.Session(msg).IsSignedIn() {
			m.signedOut = true
			return m, tea.Quit
		}
		return m, waitSession(m.sessions)
	case opDoneMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(msg.action + " failed: " + msg.err.Error())
		} else {
			m.status = ""
		}
		return m, nil
	case streamClosedMsg:
		return m, tea.Quit
	}

	if m.adding || m.editing {
		return m.updateInput(msg)
	}

	if km, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		if next, cmd, handled := m.handleKey(km); handled {
			return next, cmd
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q", "esc":
		if m.list.FilterState() == list.FilterApplied {
			return m, nil, false
		}
		return m, tea.Quit, true
	case " ":
		it, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		return m, await("toggle", m.todos.ToggleComplete(it.ID, !it.Completed)), true
	case "d":
		it, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		m.undoTitle, m.undoDone = it.TodoItem.Title, it.Completed
		return m, await("delete", m.todos.Remove(it.ID)), true
	case "u":
		// single level; the item comes back as a new entry at the end
		if m.undoTitle == "" {
			return m, nil, true
		}
		title, done := m.undoTitle, m.undoDone
		m.undoTitle, m.undoDone = "", false
		return m, await("undo", m.todos.AddItem(title, done)), true
	case "a":
		m.adding = true
		m.inputErr = ""
		m.ti.SetValue("")
		m.ti.Placeholder = "New item title..."
		m.ti.Focus()
		return m, nil, true
	case "e":
		it, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		m.editing = true
		m.editID = it.ID
		m.inputErr = ""
		m.ti.SetValue(it.TodoItem.Title)
		m.ti.CursorEnd()
		m.ti.Placeholder = "Edit item title..."
		m.ti.Focus()
		return m, nil, true
	case "o":
		return m, await("sign out", m.auth.SignOut(m.ctx)), true
	}
	return m, nil, false
}

func (m Model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "enter":
			title, ok := model.CleanTitle(m.ti.Value())
			if !ok {
				m.inputErr = "Title cannot be empty"
				return m, nil
			}
			var cmd tea.Cmd
			if m.adding {
				cmd = await("add", m.todos.Add(title))
			} else {
				cmd = await("edit", m.todos.UpdateTitle(m.editID, title))
			}
			m.closeInput()
			return m, cmd
		case "esc":
			m.closeInput()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.adding, m.editing = false, false
	m.editID, m.inputErr = "", ""
	m.ti.SetValue("")
	m.ti.Blur()
}

func (m *Model) setItems(items []model.TodoItem) {
	li := make([]list.Item, 0, len(items))
	for _, it := range items {
		li = append(li, listItem{TodoItem: it})
	}
	m.list.SetItems(li)
	m.list.Title = header(items)
	// a fresh snapshot supersedes an old live query error
	m.queryErr = nil
}

func (m Model) selected() (listItem, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	return it, ok
}

func (m Model) View() string {
	listHeight := m.height - 4
	if m.adding || m.editing {
		listHeight = m.height - 6
	}
	m.list.SetSize(m.width-2, listHeight)

	content := m.list.View()
	if m.queryErr != nil {
		content += "\n" + errorStyle.Render("sync error: "+m.queryErr.Error())
	} else if m.status != "" {
		content += "\n" + m.status
	}
	if m.adding || m.editing {
		title := "Add new item"
		if m.editing {
			title = "Edit item"
		}
		if m.inputErr != "" {
			title += " " + errorStyle.Render(m.inputErr)
		}
		content += "\n" + inputBar(title+"\n"+m.ti.View())
	}
	return panelString(content)
}

func header(items []model.TodoItem) string {
	dn, pn := model.Stats(items)
	theme := ui.Current()
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render("Todos"),
		successStyle.Render(theme.SymDone), dn,
		pendingStyle.Render(theme.SymUnchecked), pn,
		accentStyle.Render("Total"), len(items),
	)
}

func waitItems(ch <-chan []model.TodoItem) tea.Cmd {
	return func() tea.Msg {
		items, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return itemsMsg(items)
	}
}

func waitErr(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return queryErrMsg{err: err}
	}
}

func waitSession(ch <-chan session.Session) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return sessionMsg(s)
	}
}

func await(action string, op *dispatch.Op) tea.Cmd {
	return func() tea.Msg {
		<-op.Done()
		return opDoneMsg{action: action, err: op.Err()}
	}
}

// Run shows the list until the user quits or the session ends. It reports
// whether the session ended.
func Run(ctx context.Context, todos Todos, auth Auth) (signedOut bool, err error) {
	m := New(ctx, todos, auth)
	defer m.Close()

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return false, err
	}
	if fm, ok := final.(Model); ok {
		return fm.SignedOut(), nil
	}
	return false, nil
}

var _ tea.Model = Model{}
