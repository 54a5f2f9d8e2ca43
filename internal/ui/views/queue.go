package views

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/ui/components"
)

// QueueView lists the play queue with the playing song marked
type QueueView struct {
	Width       int
	Height      int
	SongList    components.SongList
	BorderStyle lipgloss.Style
}

// NewQueueView creates a new queue view
func NewQueueView(width, height int) QueueView {
	songList := components.NewSongList(height-6, width-6)
	songList.Title = "📋 Queue"

	return QueueView{
		Width:    width,
		Height:   height,
		SongList: songList,
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}

// SetQueue shows songs with the entry at current marked. The selection
// is kept when the queue is unchanged.
func (v *QueueView) SetQueue(songs []*api.Song, current int) {
	selected := v.SongList.Selected
	same := len(songs) == len(v.SongList.Items)
	for i := 0; same && i < len(songs); i++ {
		same = songs[i] == v.SongList.Items[i]
	}

	v.SongList.SetItems(songs)
	v.SongList.Marked = current
	if same {
		v.SongList.Select(selected)
	} else {
		v.SongList.Select(current)
	}
}

// SelectedIndex returns the queue position under the cursor, or -1
func (v *QueueView) SelectedIndex() int {
	if v.SongList.SelectedItem() == nil {
		return -1
	}
	return v.SongList.Selected
}

// Update handles messages
func (v QueueView) Update(msg tea.Msg) (QueueView, tea.Cmd) {
	v.SongList, _ = v.SongList.Update(msg)
	return v, nil
}

// View renders the queue view
func (v QueueView) View() string {
	var sb strings.Builder

	sb.WriteString(v.SongList.View())
	sb.WriteString("\n\n")
	sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(
		"[Enter] Play  [d] Remove  [r] Repeat  [S] Shuffle  [↑↓] Navigate"))

	return v.BorderStyle.Width(v.Width - 4).Render(sb.String())
}
