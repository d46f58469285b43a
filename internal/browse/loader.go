package browse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobagent/internal/model"
)

// searchTimeout bounds a single search.
const searchTimeout = 30 * time.Second

// ErrCancelled is returned by RunLoader when the user aborts with ctrl+c.
var ErrCancelled = errors.New("cancelled")

type searchDoneMsg struct {
	results []model.Summary
	err     error
}

type loaderModel struct {
	label   string
	search  func(ctx context.Context) ([]model.Summary, error)
	spin    spinner.Model
	results []model.Summary
	err     error
	done    bool
}

func newLoaderModel(label string, search func(ctx context.Context) ([]model.Summary, error)) loaderModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(accent)),
	)
	return loaderModel{label: label, search: search, spin: s}
}

func (m loaderModel) Init() tea.Cmd {
	search := m.search
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		results, err := search(ctx)
		return searchDoneMsg{results: results, err: err}
	}
	return tea.Batch(run, m.spin.Tick)
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case searchDoneMsg:
		m.results, m.err, m.done = msg.results, msg.err, true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err, m.done = ErrCancelled, true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Searching %s...\n", m.spin.View(), m.label)
}

// RunLoader shows a spinner while searchFn runs. It renders inline (no alt screen).
func RunLoader(label string, searchFn func(ctx context.Context) ([]model.Summary, error)) ([]model.Summary, error) {
	result, err := tea.NewProgram(newLoaderModel(label, searchFn)).Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.results, final.err
}
