package components

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/golang_midi_player/api"
)

// SongList is a scrollable list of songs
type SongList struct {
	Items         []*api.Song
	Selected      int
	Height        int
	Width         int
	Offset        int
	Title         string
	ShowNumbers   bool
	SelectedStyle lipgloss.Style
	NormalStyle   lipgloss.Style
	MarkedStyle   lipgloss.Style
	TitleStyle    lipgloss.Style

	// Marked is highlighted as the playing entry; -1 for none.
	Marked int
}

// NewSongList creates a new song list
func NewSongList(height, width int) SongList {
	return SongList{
		Height:      height,
		Width:       width,
		Marked:      -1,
		ShowNumbers: true,
		SelectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Bold(true).
			Padding(0, 1),
		NormalStyle: lipgloss.NewStyle().
			Padding(0, 1),
		MarkedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Padding(0, 1),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1),
	}
}

// SetItems replaces the items and resets the selection
func (l *SongList) SetItems(items []*api.Song) {
	l.Items = items
	l.Selected = 0
	l.Offset = 0
}

// Select moves the selection to index if it is in range
func (l *SongList) Select(index int) {
	if index < 0 || index >= len(l.Items) {
		return
	}
	l.Selected = index
	l.ensureVisible()
}

// Update handles messages for the song list
func (l SongList) Update(msg tea.Msg) (SongList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			l.Select(l.Selected - 1)
		case "down", "j":
			l.Select(l.Selected + 1)
		case "home":
			l.Select(0)
		case "end":
			l.Select(len(l.Items) - 1)
		case "pgup":
			l.Select(max(l.Selected-l.visibleHeight(), 0))
		case "pgdown":
			l.Select(min(l.Selected+l.visibleHeight(), len(l.Items)-1))
		}
	}
	return l, nil
}

func (l *SongList) visibleHeight() int {
	// title and footer
	return max(l.Height-2, 1)
}

func (l *SongList) ensureVisible() {
	visible := l.visibleHeight()
	if l.Selected < l.Offset {
		l.Offset = l.Selected
	} else if l.Selected >= l.Offset+visible {
		l.Offset = l.Selected - visible + 1
	}
}

// SelectedItem returns the selected song, or nil
func (l *SongList) SelectedItem() *api.Song {
	if l.Selected >= 0 && l.Selected < len(l.Items) {
		return l.Items[l.Selected]
	}
	return nil
}

// View renders the song list
func (l SongList) View() string {
	var sb strings.Builder

	if l.Title != "" {
		sb.WriteString(l.TitleStyle.Render(l.Title))
		sb.WriteString("\n")
	}

	if len(l.Items) == 0 {
		sb.WriteString(l.NormalStyle.Render("No songs"))
		return sb.String()
	}

	end := min(l.Offset+l.visibleHeight(), len(l.Items))
	for i := l.Offset; i < end; i++ {
		line := l.formatLine(i, l.Items[i])

		switch i {
		case l.Selected:
			sb.WriteString(l.SelectedStyle.Render(line))
		case l.Marked:
			sb.WriteString(l.MarkedStyle.Render(line))
		default:
			sb.WriteString(l.NormalStyle.Render(line))
		}
		if i < end-1 {
			sb.WriteString("\n")
		}
	}

	if len(l.Items) > l.visibleHeight() {
		sb.WriteString("\n")
		sb.WriteString(l.NormalStyle.Render(fmt.Sprintf("  [%d/%d]", l.Selected+1, len(l.Items))))
	}

	return sb.String()
}

func (l SongList) formatLine(i int, song *api.Song) string {
	var line string
	if l.ShowNumbers {
		line = fmt.Sprintf("%3d. ", i+1)
	}
	if i == l.Marked {
		line += "♪ "
	}
	line += fmt.Sprintf("%-4s ", containerLabel(song.Container))
	if song.Artist != "" {
		line += truncate(song.Artist, 20) + " - "
	}
	line += truncate(song.Title, 35)
	if song.Duration > 0 {
		line += "  " + FormatDuration(song.Duration)
	}
	return truncate(line, l.Width-2)
}

// containerLabel is the container name for MIDI-family songs and PCM for
// sampled audio.
func containerLabel(kind api.ContainerType) string {
	if kind.IsMidi() {
		return kind.String()
	}
	return "PCM"
}

// truncate shortens s to at most maxLen runes
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 3 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
