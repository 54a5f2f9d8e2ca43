package views

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/ui/components"
)

// FileAddedMsg is sent when a file is added via the file browser
type FileAddedMsg struct {
	Path string
}

// ScanDirMsg asks for a folder to be scanned into the library
type ScanDirMsg struct {
	Path string
}

// containerFilters is the order the "m" key steps through. A nil entry
// shows every song.
var containerFilters = []*api.ContainerType{
	nil,
	ptr(api.ContainerMIDI),
	ptr(api.ContainerMUS),
	ptr(api.ContainerHMI),
	ptr(api.ContainerXMI),
	ptr(api.ContainerNotMidi),
}

func ptr[T any](v T) *T { return &v }

// LibraryView displays the music library
type LibraryView struct {
	Width       int
	Height      int
	SongList    components.SongList
	SearchBar   components.SearchInput
	FileBrowser components.FileBrowser
	Searching   bool
	Browsing    bool // file browser open
	AllSongs    []*api.Song
	BorderStyle lipgloss.Style
	TitleStyle  lipgloss.Style
	SearchKey   string

	filter int
}

// NewLibraryView creates a new library view
func NewLibraryView(width, height int) LibraryView {
	songList := components.NewSongList(height-8, width-6)
	songList.Title = "🎹 Library"

	return LibraryView{
		Width:     width,
		Height:    height,
		SongList:  songList,
		SearchBar: components.NewSearchInput(width - 6),
		SearchKey: "/",
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
	}
}

// SetSongs replaces the songs shown
func (v *LibraryView) SetSongs(songs []*api.Song) {
	v.AllSongs = songs
	v.refresh()
}

// AddSong appends a song to the view
func (v *LibraryView) AddSong(song *api.Song) {
	v.AllSongs = append(v.AllSongs, song)
	v.refresh()
}

// Visible returns the songs that pass the search and container filter
func (v *LibraryView) Visible() []*api.Song {
	return v.SongList.Items
}

// Update handles messages
func (v LibraryView) Update(msg tea.Msg) (LibraryView, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return v, nil
	}

	switch {
	case v.Browsing:
		return v.updateBrowser(key)

	case v.Searching:
		switch key.String() {
		case "enter", "esc":
			v.Searching = false
			v.SearchBar.Blur()
		default:
			v.SearchBar, _ = v.SearchBar.Update(key)
		}
		v.refresh()

	default:
		switch key.String() {
		case v.SearchKey:
			v.Searching = true
			v.SearchBar.Focus()
		case "a":
			v.Browsing = true
			v.FileBrowser = components.NewFileBrowser("", v.Width, v.Height)
		case "m":
			v.filter = (v.filter + 1) % len(containerFilters)
			v.refresh()
		default:
			v.SongList, _ = v.SongList.Update(key)
		}
	}
	return v, nil
}

func (v LibraryView) updateBrowser(key tea.KeyMsg) (LibraryView, tea.Cmd) {
	switch key.String() {
	case "esc":
		v.Browsing = false
	case "enter":
		if path := v.FileBrowser.EnterSelected(); path != "" {
			v.Browsing = false
			return v, func() tea.Msg { return FileAddedMsg{Path: path} }
		}
	case "s":
		v.Browsing = false
		path := v.FileBrowser.CurrentPath
		return v, func() tea.Msg { return ScanDirMsg{Path: path} }
	default:
		v.FileBrowser, _ = v.FileBrowser.Update(key)
	}
	return v, nil
}

// refresh reapplies the search text and container filter
func (v *LibraryView) refresh() {
	query := strings.ToLower(v.SearchBar.Value())
	kind := containerFilters[v.filter]

	filtered := make([]*api.Song, 0, len(v.AllSongs))
	for _, song := range v.AllSongs {
		if kind != nil && song.Container != *kind {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(song.Title), query) &&
			!strings.Contains(strings.ToLower(song.Artist), query) &&
			!strings.Contains(strings.ToLower(song.Album), query) {
			continue
		}
		filtered = append(filtered, song)
	}
	v.SongList.SetItems(filtered)
}

// SelectedSong returns the currently selected song
func (v *LibraryView) SelectedSong() *api.Song {
	return v.SongList.SelectedItem()
}

// filterLabel names the active container filter
func (v LibraryView) filterLabel() string {
	kind := containerFilters[v.filter]
	switch {
	case kind == nil:
		return "all"
	case *kind == api.ContainerNotMidi:
		return "sampled audio"
	default:
		return kind.String()
	}
}

// View renders the library view
func (v LibraryView) View() string {
	if v.Browsing {
		return v.FileBrowser.View()
	}

	var sb strings.Builder

	sb.WriteString(v.SearchBar.View())
	sb.WriteString("\n\n")
	sb.WriteString(v.SongList.View())

	sb.WriteString("\n\n")
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	if v.Searching {
		sb.WriteString(helpStyle.Render("[Enter] Confirm  [Esc] Cancel"))
	} else {
		sb.WriteString(helpStyle.Render(
			"[" + v.SearchKey + "] Search  [m] Filter: " + v.filterLabel() + "  [a] Add Files  [Enter] Play  [↑↓] Navigate"))
	}

	return v.BorderStyle.Width(v.Width - 4).Render(sb.String())
}
