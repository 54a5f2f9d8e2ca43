package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/audio"
	"github.com/jscyril/golang_midi_player/internal/config"
	"github.com/jscyril/golang_midi_player/internal/library"
	"github.com/jscyril/golang_midi_player/internal/playlist"
	"github.com/jscyril/golang_midi_player/internal/ui/views"
)

// ViewType represents the current active view
type ViewType int

const (
	ViewPlayer ViewType = iota
	ViewLibrary
	ViewQueue
)

const (
	seekStep   = 5 * time.Second
	volumeStep = 0.05
)

// Model is the main bubbletea model
type Model struct {
	width  int
	height int

	activeView ViewType

	playerView  views.PlayerView
	libraryView views.LibraryView
	queueView   views.QueueView

	engine  *audio.AudioEngine
	library *library.Library
	queue   *playlist.Queue
	events  <-chan api.AudioEvent
	keys    config.KeyMap

	ctx       context.Context
	cancel    context.CancelFunc
	err       error
	notice    string
	showStats bool
	scanning  bool

	tabStyle       lipgloss.Style
	activeTabStyle lipgloss.Style
	noticeStyle    lipgloss.Style
	errorStyle     lipgloss.Style
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// StateUpdateMsg is sent when playback state changes
type StateUpdateMsg struct {
	State *api.PlaybackState
}

// songEndedMsg triggers auto-advance
type songEndedMsg struct{}

type errMsg struct{ err error }

type scanDoneMsg struct {
	result library.ScanResult
	err    error
}

// NewModel creates a new application model. events should carry every
// engine event; see pkg/events.
func NewModel(ctx context.Context, engine *audio.AudioEngine, lib *library.Library, events <-chan api.AudioEvent, keys config.KeyMap) Model {
	ctx, cancel := context.WithCancel(ctx)

	m := Model{
		width:      80,
		height:     24,
		activeView: ViewLibrary,
		engine:     engine,
		library:    lib,
		queue:      playlist.NewQueue(),
		events:     events,
		keys:       keys,
		ctx:        ctx,
		cancel:     cancel,
		showStats:  true,
		tabStyle: lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("240")),
		activeTabStyle: lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("236")),
		noticeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
	}

	m.playerView = views.NewPlayerView(m.width, m.height/3)
	m.libraryView = views.NewLibraryView(m.width, m.height-10)
	m.libraryView.SearchKey = keys.Search
	m.queueView = views.NewQueueView(m.width, m.height-10)

	m.libraryView.SetSongs(lib.GetAllSongs())
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.listenForEvents(),
	)
}

// tickCmd returns a command that ticks every 500ms
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// listenForEvents waits for the next engine event
func (m Model) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		select {
		case event, ok := <-m.events:
			if !ok {
				return nil
			}
			switch event.Type {
			case api.EventSongEnded:
				return songEndedMsg{}
			case api.EventError:
				if err, ok := event.Payload.(error); ok {
					return errMsg{err}
				}
			}
			return StateUpdateMsg{State: m.engine.GetState()}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// state returns the engine state with the queue's modes filled in
func (m Model) state() *api.PlaybackState {
	state := m.engine.GetState()
	state.Repeat = m.queue.RepeatMode()
	state.Shuffle = m.queue.IsShuffled()
	return state
}

func (m *Model) refreshPlayer(state *api.PlaybackState) {
	stats := ""
	if m.showStats {
		stats = m.engine.Stats()
	}
	m.playerView.SetState(state, stats)
	m.queueView.SetQueue(m.queue.All(), m.queue.Index())
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewSizes()

	case TickMsg:
		m.refreshPlayer(m.state())
		cmds = append(cmds, tickCmd())

	case StateUpdateMsg:
		m.refreshPlayer(m.state())
		cmds = append(cmds, m.listenForEvents())

	case songEndedMsg:
		if next := m.queue.Next(); next != nil {
			m.play(next)
		}
		m.refreshPlayer(m.state())
		cmds = append(cmds, m.listenForEvents())

	case errMsg:
		m.err = msg.err
		cmds = append(cmds, m.listenForEvents())

	case views.FileAddedMsg:
		song, err := m.library.AddFile(msg.Path)
		if err != nil {
			m.err = err
		} else {
			m.libraryView.AddSong(song)
			m.notice = "Added " + song.Title
		}

	case views.ScanDirMsg:
		if !m.scanning {
			m.scanning = true
			m.notice = "Scanning " + msg.Path + "..."
			cmds = append(cmds, m.scanCmd(msg.Path))
		}

	case scanDoneMsg:
		m.scanning = false
		m.libraryView.SetSongs(m.library.GetAllSongs())
		m.notice = fmt.Sprintf("Scan added %d songs, %d failed", msg.result.Added, len(msg.result.Errors))
		if msg.err != nil {
			m.err = msg.err
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) scanCmd(path string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.library.Scan(m.ctx, []string{path})
		return scanDoneMsg{result: result, err: err}
	}
}

func (m *Model) play(song *api.Song) {
	m.err = nil
	if err := m.engine.Play(song); err != nil {
		m.err = err
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Text entry gets every key but ctrl+c
	if m.activeView == ViewLibrary && (m.libraryView.Searching || m.libraryView.Browsing) {
		if key == "ctrl+c" {
			m.cancel()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.libraryView, cmd = m.libraryView.Update(msg)
		return m, cmd
	}

	state := m.engine.GetState()

	switch key {
	case m.keys.Quit, "ctrl+c":
		m.cancel()
		return m, tea.Quit

	case "1":
		m.activeView = ViewPlayer
	case "2", m.keys.Library:
		m.activeView = ViewLibrary
	case "3":
		m.activeView = ViewQueue
	case "tab":
		m.activeView = (m.activeView + 1) % 3

	case m.keys.PlayPause:
		switch state.Status {
		case api.StatusPlaying:
			m.err = m.engine.Pause()
		case api.StatusPaused:
			m.err = m.engine.Resume()
		default:
			if song := m.queue.Current(); song != nil {
				m.play(song)
			}
		}

	case m.keys.Stop:
		m.err = m.engine.Stop()

	case m.keys.Next:
		if next := m.queue.Next(); next != nil {
			m.play(next)
		}

	case m.keys.Previous:
		if prev := m.queue.Previous(); prev != nil {
			m.play(prev)
		}

	case m.keys.SeekForward:
		m.err = m.engine.Seek(state.Position + seekStep)
	case m.keys.SeekBack:
		m.err = m.engine.Seek(max(state.Position-seekStep, 0))

	case m.keys.VolumeUp, "=":
		m.err = m.engine.SetVolume(min(state.Volume+volumeStep, 1))
	case m.keys.VolumeDown:
		m.err = m.engine.SetVolume(max(state.Volume-volumeStep, 0))

	case "]":
		m.err = m.engine.SetRelativeVolume(state.RelativeVolume * 1.25)
	case "[":
		m.err = m.engine.SetRelativeVolume(state.RelativeVolume / 1.25)

	case "r":
		m.queue.CycleRepeat()
	case "S":
		if m.queue.IsShuffled() {
			m.queue.Unshuffle()
		} else {
			m.queue.Shuffle()
		}

	case m.keys.Stats:
		m.showStats = !m.showStats

	case "enter":
		m.playSelected()

	case "d":
		if m.activeView == ViewQueue {
			if i := m.queueView.SelectedIndex(); i >= 0 {
				m.err = m.queue.Remove(i)
			}
		}

	default:
		switch m.activeView {
		case ViewLibrary:
			var cmd tea.Cmd
			m.libraryView, cmd = m.libraryView.Update(msg)
			m.refreshPlayer(m.state())
			return m, cmd
		case ViewQueue:
			m.queueView, _ = m.queueView.Update(msg)
		}
	}

	m.refreshPlayer(m.state())
	return m, nil
}

// playSelected queues the visible library songs from the selection on, or
// jumps within the queue.
func (m *Model) playSelected() {
	switch m.activeView {
	case ViewLibrary:
		song := m.libraryView.SelectedSong()
		if song == nil {
			return
		}
		m.queue.Set(m.libraryView.Visible())
		if _, err := m.queue.JumpTo(m.libraryView.SongList.Selected); err != nil {
			m.err = err
			return
		}
		m.play(song)
	case ViewQueue:
		i := m.queueView.SelectedIndex()
		if i < 0 {
			return
		}
		song, err := m.queue.JumpTo(i)
		if err != nil {
			m.err = err
			return
		}
		m.play(song)
	}
}

// updateViewSizes updates view dimensions
func (m *Model) updateViewSizes() {
	m.playerView.Width = m.width
	m.playerView.Height = 10
	m.playerView.ProgressBar.Width = m.width - 4
	m.libraryView.Width = m.width
	m.libraryView.Height = m.height - 12
	m.libraryView.SongList.Width = m.width - 6
	m.libraryView.SongList.Height = m.height - 20
	m.queueView.Width = m.width
	m.queueView.Height = m.height - 12
	m.queueView.SongList.Width = m.width - 6
	m.queueView.SongList.Height = m.height - 18
}

// View renders the UI
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.renderTabs())
	sb.WriteString("\n")

	sb.WriteString(m.playerView.View())
	switch m.activeView {
	case ViewLibrary:
		sb.WriteString("\n")
		sb.WriteString(m.libraryView.View())
	case ViewQueue:
		sb.WriteString("\n")
		sb.WriteString(m.queueView.View())
	}

	if m.notice != "" {
		sb.WriteString("\n" + m.noticeStyle.Render(m.notice))
	}
	if m.err != nil {
		sb.WriteString("\n" + m.errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return sb.String()
}

// renderTabs renders the tab bar
func (m Model) renderTabs() string {
	tabs := []string{"[1] Player", "[2] Library", "[3] Queue"}

	var rendered []string
	for i, tab := range tabs {
		if ViewType(i) == m.activeView {
			rendered = append(rendered, m.activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, m.tabStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// Run starts the bubbletea program
func Run(ctx context.Context, engine *audio.AudioEngine, lib *library.Library, events <-chan api.AudioEvent, keys config.KeyMap) error {
	model := NewModel(ctx, engine, lib, events, keys)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
