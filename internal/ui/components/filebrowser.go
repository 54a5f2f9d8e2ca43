package components

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/audio"
	"github.com/jscyril/golang_midi_player/internal/midifile"
)

// FileEntry is a directory or a playable file. Files carry the container
// their header was sniffed as; sampled audio is ContainerNotMidi.
type FileEntry struct {
	Name  string
	Path  string
	IsDir bool
	Kind  api.ContainerType
}

// FileBrowser lets the user pick songs or folders to add to the library.
// Only files whose header sniffs as a MIDI-family container, or whose
// extension is a supported sampled format, are listed.
type FileBrowser struct {
	Width       int
	Height      int
	CurrentPath string
	Entries     []FileEntry
	Selected    int
	Offset      int
	Err         error

	DirStyle      lipgloss.Style
	FileStyle     lipgloss.Style
	SelectedStyle lipgloss.Style
	PathStyle     lipgloss.Style
	MutedStyle    lipgloss.Style
	ErrorStyle    lipgloss.Style
	BorderStyle   lipgloss.Style
}

// NewFileBrowser opens a browser at startPath, or the home directory.
func NewFileBrowser(startPath string, width, height int) FileBrowser {
	fb := FileBrowser{
		Width:  width,
		Height: height,
		DirStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true),
		FileStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")),
		SelectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("255")).
			Bold(true),
		PathStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true),
		MutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		ErrorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}

	if startPath == "" {
		startPath = "/"
		if home, err := os.UserHomeDir(); err == nil {
			startPath = home
		}
	}
	fb.Navigate(startPath)
	return fb
}

// Navigate lists dir.
func (fb *FileBrowser) Navigate(dir string) {
	fb.CurrentPath = dir
	fb.Selected = 0
	fb.Offset = 0
	fb.Entries, fb.Err = listDir(dir)
}

// listDir returns the parent entry, then subdirectories, then playable
// files, each group sorted by name. Hidden entries are skipped.
func listDir(dir string) ([]FileEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dirs, files []FileEntry
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if de.IsDir() {
			dirs = append(dirs, FileEntry{Name: name, Path: path, IsDir: true})
			continue
		}
		kind := sniff(path)
		if !kind.IsMidi() && !audio.IsDigital(path) {
			continue
		}
		files = append(files, FileEntry{Name: name, Path: path, Kind: kind})
	}

	byName := func(a, b FileEntry) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
	slices.SortFunc(dirs, byName)
	slices.SortFunc(files, byName)

	entries := make([]FileEntry, 0, len(dirs)+len(files)+1)
	if parent := filepath.Dir(dir); parent != dir {
		entries = append(entries, FileEntry{Name: "..", Path: parent, IsDir: true})
	}
	entries = append(entries, dirs...)
	return append(entries, files...), nil
}

// sniff identifies the container from the start of the file.
func sniff(path string) api.ContainerType {
	f, err := os.Open(path)
	if err != nil {
		return api.ContainerNotMidi
	}
	defer f.Close()

	head := make([]byte, midifile.HeaderSize)
	n, _ := io.ReadFull(f, head)
	return midifile.Identify(head[:n])
}

// Update handles navigation keys. Enter is left to the owner, see
// EnterSelected.
func (fb FileBrowser) Update(msg tea.Msg) (FileBrowser, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return fb, nil
	}
	switch key.String() {
	case "up", "k":
		fb.move(-1)
	case "down", "j":
		fb.move(1)
	case "pgup":
		fb.move(-fb.visibleHeight())
	case "pgdown":
		fb.move(fb.visibleHeight())
	case "home":
		fb.move(-len(fb.Entries))
	case "end":
		fb.move(len(fb.Entries))
	case "backspace":
		fb.Navigate(filepath.Dir(fb.CurrentPath))
	case "~":
		if home, err := os.UserHomeDir(); err == nil {
			fb.Navigate(home)
		}
	}
	return fb, nil
}

func (fb *FileBrowser) move(delta int) {
	fb.Selected = max(0, min(fb.Selected+delta, len(fb.Entries)-1))
	fb.ensureVisible()
}

// SelectedEntry returns the highlighted entry, or nil.
func (fb *FileBrowser) SelectedEntry() *FileEntry {
	if fb.Selected >= 0 && fb.Selected < len(fb.Entries) {
		return &fb.Entries[fb.Selected]
	}
	return nil
}

// EnterSelected descends into a selected directory and returns "", or
// returns the path of a selected file.
func (fb *FileBrowser) EnterSelected() string {
	entry := fb.SelectedEntry()
	if entry == nil {
		return ""
	}
	if entry.IsDir {
		fb.Navigate(entry.Path)
		return ""
	}
	return entry.Path
}

// visibleHeight leaves room for the border, path and footer.
func (fb *FileBrowser) visibleHeight() int {
	return max(fb.Height-6, 1)
}

func (fb *FileBrowser) ensureVisible() {
	visible := fb.visibleHeight()
	if fb.Selected < fb.Offset {
		fb.Offset = fb.Selected
	} else if fb.Selected >= fb.Offset+visible {
		fb.Offset = fb.Selected - visible + 1
	}
}

func (e FileEntry) line() string {
	switch {
	case e.IsDir:
		return "📂 " + e.Name
	case e.Kind.IsMidi():
		return fmt.Sprintf("🎹 %-4s %s", containerLabel(e.Kind), e.Name)
	default:
		return fmt.Sprintf("🎵 %-4s %s", containerLabel(e.Kind), e.Name)
	}
}

// Summary counts the listed files per container, e.g. "3 songs: 2 MIDI, 1 PCM".
func (fb FileBrowser) Summary() string {
	counts := make(map[string]int)
	var order []string
	total := 0
	for _, e := range fb.Entries {
		if e.IsDir {
			continue
		}
		label := containerLabel(e.Kind)
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
		total++
	}
	if total == 0 {
		return "no songs here"
	}
	slices.Sort(order)
	parts := make([]string, len(order))
	for i, label := range order {
		parts[i] = fmt.Sprintf("%d %s", counts[label], label)
	}
	return fmt.Sprintf("%d songs: %s", total, strings.Join(parts, ", "))
}

// View renders the file browser
func (fb FileBrowser) View() string {
	var sb strings.Builder

	sb.WriteString(fb.PathStyle.Render("📁 " + fb.CurrentPath))
	sb.WriteString("\n\n")
	if fb.Err != nil {
		sb.WriteString(fb.ErrorStyle.Render("Error: " + fb.Err.Error()))
		sb.WriteString("\n")
	}

	visible := fb.visibleHeight()
	end := min(fb.Offset+visible, len(fb.Entries))
	for i := fb.Offset; i < end; i++ {
		entry := fb.Entries[i]
		line := truncate(entry.line(), fb.Width-10)
		switch {
		case i == fb.Selected:
			sb.WriteString(fb.SelectedStyle.Render(line))
		case entry.IsDir:
			sb.WriteString(fb.DirStyle.Render(line))
		default:
			sb.WriteString(fb.FileStyle.Render(line))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Repeat("\n", max(visible-(end-fb.Offset), 0)))

	sb.WriteString(fb.MutedStyle.Render(strings.Repeat("─", 20) + "\n" + fb.Summary()))
	sb.WriteString("\n\n")
	sb.WriteString(fb.MutedStyle.Render("[Enter] Open/Add  [s] Scan folder  [Backspace] Up  [~] Home  [Esc] Cancel"))

	return fb.BorderStyle.Width(fb.Width - 4).Render(sb.String())
}
