package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/ui/components"
)

// PlayerView displays the current playback state
type PlayerView struct {
	Width       int
	Height      int
	State       *api.PlaybackState
	Stats       string
	ProgressBar components.ProgressBar

	TitleStyle    lipgloss.Style
	ArtistStyle   lipgloss.Style
	AlbumStyle    lipgloss.Style
	StatusStyle   lipgloss.Style
	DeviceStyle   lipgloss.Style
	ControlsStyle lipgloss.Style
	BorderStyle   lipgloss.Style
}

// NewPlayerView creates a new player view
func NewPlayerView(width, height int) PlayerView {
	return PlayerView{
		Width:       width,
		Height:      height,
		ProgressBar: components.NewProgressBar(width - 4),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1),
		ArtistStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")),
		AlbumStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		StatusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		DeviceStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		ControlsStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}

// SetState updates the playback state and device statistics
func (v *PlayerView) SetState(state *api.PlaybackState, stats string) {
	v.State = state
	v.Stats = stats
	if state != nil && state.CurrentSong != nil {
		v.ProgressBar.SetProgress(state.Position, state.CurrentSong.Duration)
	} else {
		v.ProgressBar.SetProgress(0, 0)
	}
}

// View renders the player view
func (v PlayerView) View() string {
	var sb strings.Builder

	if v.State == nil || v.State.CurrentSong == nil {
		sb.WriteString(v.TitleStyle.Render("♪ No song playing"))
		sb.WriteString("\n\n")
		sb.WriteString(v.ControlsStyle.Render("Press Enter on a song to play"))
	} else {
		song := v.State.CurrentSong

		sb.WriteString(v.StatusStyle.Render(statusIcon(v.State.Status) + " "))
		sb.WriteString(v.TitleStyle.Render(song.Title))
		sb.WriteString("\n")
		if song.Artist != "" {
			sb.WriteString(v.ArtistStyle.Render(song.Artist))
			sb.WriteString("\n")
		}
		if song.Album != "" {
			sb.WriteString(v.AlbumStyle.Render(song.Album))
			sb.WriteString("\n")
		}
		sb.WriteString(v.DeviceStyle.Render(deviceLine(v.State, song)))
		sb.WriteString("\n\n")

		sb.WriteString(v.ProgressBar.View())
		sb.WriteString("\n\n")

		sb.WriteString(fmt.Sprintf("Volume: %s %d%%", renderVolumeBar(v.State.Volume), int(v.State.Volume*100)))
		if v.State.RelativeVolume != 1 || v.State.ReplayGain != 1 {
			sb.WriteString(v.DeviceStyle.Render(fmt.Sprintf("  (song x%.2f, replay gain x%.2f)",
				v.State.RelativeVolume, v.State.ReplayGain)))
		}
		sb.WriteString("\n")

		if modes := modeLine(v.State); modes != "" {
			sb.WriteString(v.DeviceStyle.Render(modes))
			sb.WriteString("\n")
		}
		if v.Stats != "" {
			sb.WriteString(v.DeviceStyle.Render(v.Stats))
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString(v.ControlsStyle.Render(
		"[Space] Play/Pause  [s] Stop  [n] Next  [p] Prev  [←/→] Seek  [+/-] Volume  [q] Quit",
	))

	return v.BorderStyle.Width(v.Width - 4).Render(sb.String())
}

func statusIcon(status api.PlaybackStatus) string {
	switch status {
	case api.StatusPlaying:
		return "▶"
	case api.StatusPaused:
		return "⏸"
	default:
		return "⏹"
	}
}

// deviceLine shows the container and, for MIDI, the device and transport state.
func deviceLine(state *api.PlaybackState, song *api.Song) string {
	if !song.Container.IsMidi() {
		return "sampled audio"
	}
	return fmt.Sprintf("%s on %s, transport %s", song.Container, state.Backend, state.Transport)
}

func modeLine(state *api.PlaybackState) string {
	var modes []string
	switch state.Repeat {
	case api.RepeatOne:
		modes = append(modes, "🔂 Repeat One")
	case api.RepeatAll:
		modes = append(modes, "🔁 Repeat All")
	}
	if state.Shuffle {
		modes = append(modes, "🔀 Shuffle")
	}
	return strings.Join(modes, " | ")
}

// renderVolumeBar renders a volume bar
func renderVolumeBar(volume float64) string {
	filled := min(max(int(volume*10), 0), 10)

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	return filledStyle.Render(strings.Repeat("●", filled)) + emptyStyle.Render(strings.Repeat("○", 10-filled))
}
