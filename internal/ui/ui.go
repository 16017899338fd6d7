package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"vinylog/internal/models"
	"vinylog/internal/services"
	"vinylog/internal/store"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SearchView ViewState = iota
	ResultListView
	ConfirmView
	DoneView
)

// Model represents the TUI application state.
type Model struct {
	ctx           context.Context
	view          ViewState
	catalog       services.Catalog
	store         *store.Store
	width         int
	height        int
	searchInput   textinput.Model
	dateInput     textinput.Model
	resultList    list.Model
	albums        []models.Album
	selectedAlbum *models.Album
	loggedPlay    *models.Play
	searching     bool
	err           error
	help          help.Model
	keys          keyMap
}

// keyMap defines the key bindings for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "log another"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.back, k.restart, k.quit},
	}
}

// albumItem wraps [models.Album] to implement list.Item.
type albumItem struct {
	album models.Album
}

func (i albumItem) FilterValue() string { return i.album.Title }
func (i albumItem) Title() string       { return i.album.Title }
func (i albumItem) Description() string {
	return fmt.Sprintf("%s • %s", i.album.Artist, i.album.Year)
}

type albumsFetchedMsg struct {
	albums []models.Album
	err    error
}

type playLoggedMsg struct {
	play models.Play
	err  error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, catalog services.Catalog, st *store.Store) *Model {
	searchInput := textinput.New()
	searchInput.Placeholder = "Album or artist..."
	searchInput.Focus()

	dateInput := textinput.New()
	dateInput.Placeholder = models.DateLayout

	return &Model{
		ctx:         ctx,
		view:        SearchView,
		catalog:     catalog,
		store:       st,
		searchInput: searchInput,
		dateInput:   dateInput,
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

// Init focuses the search input.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.resultList.Width() == 0 {
			m.resultList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		case ResultListView:
			return m.handleResultListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case DoneView:
			return m.handleDoneKeys(msg)
		}

	case albumsFetchedMsg:
		m.searching = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.albums = msg.albums
		items := make([]list.Item, len(msg.albums))
		for i, album := range msg.albums {
			items[i] = albumItem{album: album}
		}
		m.resultList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.resultList.Title = fmt.Sprintf("Results for '%s'", m.searchInput.Value())
		m.resultList.SetSize(m.width-4, m.height-8)
		m.view = ResultListView
		return m, nil

	case playLoggedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = ConfirmView
			return m, nil
		}
		m.err = nil
		m.loggedPlay = &msg.play
		m.view = DoneView
		return m, nil
	}

	return m.updateInputs(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	case ResultListView:
		return m.renderResultList()
	case ConfirmView:
		return m.renderConfirm()
	case DoneView:
		return m.renderDone()
	default:
		return ""
	}
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		return m, tea.Quit
	case "enter":
		query := m.searchInput.Value()
		if query == "" {
			return m, nil
		}
		m.searching = true
		return m, m.searchAlbums(query)
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *Model) handleResultListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = SearchView
		m.searchInput.Focus()
		return m, textinput.Blink
	case "enter":
		selected := m.resultList.SelectedItem()
		if selected != nil {
			if item, ok := selected.(albumItem); ok {
				album := item.album
				m.selectedAlbum = &album
				m.dateInput.SetValue(time.Now().Format(models.DateLayout))
				m.dateInput.Focus()
				m.view = ConfirmView
				return m, textinput.Blink
			}
		}
	}

	var cmd tea.Cmd
	m.resultList, cmd = m.resultList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.err = nil
		m.view = ResultListView
		return m, nil
	case "enter":
		date := m.dateInput.Value()
		if date != "" {
			if _, err := time.Parse(models.DateLayout, date); err != nil {
				m.err = fmt.Errorf("date must be %s", models.DateLayout)
				return m, nil
			}
		}
		return m, m.logPlay(*m.selectedAlbum, date)
	}

	var cmd tea.Cmd
	m.dateInput, cmd = m.dateInput.Update(msg)
	return m, cmd
}

func (m *Model) handleDoneKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "r":
		m.view = SearchView
		m.selectedAlbum = nil
		m.loggedPlay = nil
		m.err = nil
		m.searchInput.SetValue("")
		m.searchInput.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case SearchView:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case ResultListView:
		m.resultList, cmd = m.resultList.Update(msg)
	case ConfirmView:
		m.dateInput, cmd = m.dateInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) searchAlbums(query string) tea.Cmd {
	return func() tea.Msg {
		albums, err := m.catalog.SearchAlbums(m.ctx, query)
		return albumsFetchedMsg{albums: albums, err: err}
	}
}

func (m *Model) logPlay(album models.Album, date string) tea.Cmd {
	return func() tea.Msg {
		play, err := m.store.AddPlay(models.Play{
			Title:        album.Title,
			Artist:       album.Artist,
			Year:         album.Year,
			CoverURL:     album.CoverURL,
			DiscogsURL:   album.DiscogsURL,
			DateListened: date,
		})
		return playLoggedMsg{play: play, err: err}
	}
}

func (m *Model) renderSearch() string {
	title := styles.title.Render("Log a Vinyl Play")

	status := ""
	if m.searching {
		status = "\nSearching..."
	}
	if m.err != nil {
		status = "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s\n\n%s", title, m.searchInput.View(), status, helpView)
}

func (m *Model) renderResultList() string {
	if len(m.albums) == 0 {
		title := styles.title.Render("No Results")
		helpKeys := []key.Binding{m.keys.back, m.keys.quit}
		helpView := m.help.ShortHelpView(helpKeys)
		return fmt.Sprintf("%s\nNothing matched your search.\n\n%s", title, helpView)
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.resultList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Log '%s'?", m.selectedAlbum.Title))
	info := fmt.Sprintf("\nAlbum: %s\nArtist: %s\nYear: %s\n\nDate listened: %s\n",
		m.selectedAlbum.Title, m.selectedAlbum.Artist, m.selectedAlbum.Year, m.dateInput.View())

	status := ""
	if m.err != nil {
		status = styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}

	logKey := key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "log play"),
	)
	helpKeys := []key.Binding{logKey, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s%s\n%s%s", title, info, status, helpView)
}

func (m *Model) renderDone() string {
	title := styles.ok.Render("✓ Play Logged!")

	date := m.loggedPlay.DateListened
	if date == "" {
		date = "undated"
	}
	info := fmt.Sprintf("\n%s - %s [%s]\n", m.loggedPlay.Artist, m.loggedPlay.Title, date)

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s%s\n%s", title, info, helpView)
}
