package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages driving the resolution progress view.
type (
	resolvedMsg     struct{ label string }
	walkDoneMsg     struct{ err error }
	progressTickMsg struct{}
)

// maxRecent bounds the trailing list of recently resolved packages.
const maxRecent = 4

// resolveProgress is the bubbletea model shown while a dependency walk is
// running: a spinner line with a running package count, followed by the most
// recently resolved packages.
type resolveProgress struct {
	message string
	frames  []string
	frame   int
	count   int
	recent  []string
	done    bool
	aborted bool
	err     error
}

func newResolveProgress(message string) resolveProgress {
	return resolveProgress{
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func (m resolveProgress) Init() tea.Cmd {
	return progressTick()
}

func (m resolveProgress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	case resolvedMsg:
		m.count++
		m.recent = append([]string{msg.label}, m.recent...)
		if len(m.recent) > maxRecent {
			m.recent = m.recent[:maxRecent]
		}
	case walkDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case progressTickMsg:
		m.frame++
		return m, progressTick()
	}
	return m, nil
}

func (m resolveProgress) View() string {
	if m.done || m.aborted {
		return ""
	}

	var b strings.Builder
	frame := m.frames[m.frame%len(m.frames)]
	b.WriteString(fmt.Sprintf("%s %s %s\n",
		styleIconSpinner.Render(frame),
		StyleDim.Render(m.message),
		StyleHighlight.Render(fmt.Sprintf("(%d packages)", m.count))))
	for _, label := range m.recent {
		b.WriteString("  " + StyleDim.Render(label) + "\n")
	}
	return b.String()
}
