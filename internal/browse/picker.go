package browse

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobagent/internal/model"
)

var (
	pickerTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(1, 0, 1, 2)
	pickerItemStyle     = lipgloss.NewStyle().PaddingLeft(4)
	pickerSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).PaddingLeft(2)
	pickerCountStyle    = lipgloss.NewStyle().Foreground(dim)
	pickerHintStyle     = lipgloss.NewStyle().Foreground(muted).Padding(1, 0, 0, 2)
)

type pickerModel struct {
	title  string
	values []model.FacetCount
	cursor int
	picked bool
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.values)-1, 0))
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.values)-1, 0))
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.values)-1, 0)
	case "enter":
		if len(m.values) > 0 {
			m.picked = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render(m.title) + "\n")

	if len(m.values) == 0 {
		b.WriteString(pickerItemStyle.Render("(nothing stored yet)") + "\n")
	}
	for i, v := range m.values {
		label := displayValue(v.Value) + " " + pickerCountStyle.Render(fmt.Sprintf("(%d)", v.Count))
		if i == m.cursor {
			b.WriteString(pickerSelectedStyle.Render("> "+label) + "\n")
			continue
		}
		b.WriteString(pickerItemStyle.Render(label) + "\n")
	}

	b.WriteString(pickerHintStyle.Render("↑/↓ move · enter select · q quit"))
	return b.String()
}

func displayValue(v string) string {
	if v == "" {
		return "(unclassified)"
	}
	return v
}

// RunFacetPicker shows an interactive selector over facet values.
// ok is false when the user quit without choosing.
func RunFacetPicker(title string, values []model.FacetCount) (value string, ok bool, err error) {
	result, err := tea.NewProgram(pickerModel{title: title, values: values}).Run()
	if err != nil {
		return "", false, err
	}
	final := result.(pickerModel)
	if !final.picked {
		return "", false, nil
	}
	return final.values[final.cursor].Value, true, nil
}
