// Package browse is the interactive terminal browser over search results.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobagent/internal/model"
)

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}()

// Lines per result in the list view (title + subtitle + blank separator).
const resultItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

// Palette (xterm-256).
const (
	accent  = lipgloss.Color("39")
	muted   = lipgloss.Color("240")
	dim     = lipgloss.Color("245")
	light   = lipgloss.Color("252")
	white   = lipgloss.Color("15")
	cursorB = lipgloss.Color("24")
	barBG   = lipgloss.Color("236")
	alert   = lipgloss.Color("196")
)

var (
	paneBorder          = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	activeBorderStyle   = paneBorder.BorderForeground(accent)
	inactiveBorderStyle = paneBorder.BorderForeground(muted)

	paneHeader          = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	activeHeaderStyle   = paneHeader.Foreground(accent)
	inactiveHeaderStyle = paneHeader.Foreground(muted)

	statusBarStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(light).Background(barBG)

	titleStyle            = lipgloss.NewStyle().Bold(true)
	subtitleStyle         = lipgloss.NewStyle().Foreground(dim)
	selectedTitleStyle    = titleStyle.Foreground(white).Background(cursorB)
	selectedSubtitleStyle = lipgloss.NewStyle().Foreground(light).Background(cursorB)

	detailTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(white).MarginBottom(1)
	detailLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Width(14)
	errorStyle       = lipgloss.NewStyle().Foreground(alert)
	descDividerStyle = lipgloss.NewStyle().Foreground(muted)
	descHintStyle    = lipgloss.NewStyle().Foreground(dim).Italic(true)
	descBodyStyle    = lipgloss.NewStyle().Foreground(light)
)

// DetailFunc loads the full stored posting behind a search result.
type DetailFunc func(ctx context.Context, provider, nativeID string) (model.Posting, error)

// detailLoadedMsg is sent when an async detail load completes.
type detailLoadedMsg struct {
	posting model.Posting
	err     error
}

// pane is one scrollable column of results.
type pane struct {
	label  string
	items  []model.Summary
	cursor int
	vp     viewport.Model
}

func (p *pane) move(delta int) {
	p.cursor = clamp(p.cursor+delta, 0, max(len(p.items)-1, 0))
}

// follow scrolls the viewport so the cursor row is on screen.
func (p *pane) follow() {
	top := p.cursor * resultItemHeight
	bottom := top + resultItemHeight - 1
	switch {
	case top < p.vp.YOffset:
		p.vp.SetYOffset(top)
	case bottom >= p.vp.YOffset+p.vp.Height:
		p.vp.SetYOffset(bottom - p.vp.Height + 1)
	}
}

func (p *pane) selected() (model.Summary, bool) {
	if len(p.items) == 0 {
		return model.Summary{}, false
	}
	return p.items[p.cursor], true
}

func (p pane) render(active bool) string {
	header := inactiveHeaderStyle
	border := inactiveBorderStyle
	if active {
		header = activeHeaderStyle
		border = activeBorderStyle
	}
	title := lipgloss.NewStyle().Width(p.vp.Width + 2).
		Render(header.Render(fmt.Sprintf(" %s (%d)", p.label, len(p.items))))
	return lipgloss.JoinVertical(lipgloss.Left, title, border.Width(p.vp.Width).Render(p.vp.View()))
}

const (
	paneAll = iota
	paneMatched
)

type browseModel struct {
	panes  [2]pane
	active int
	width  int
	height int
	ready  bool

	view          viewState
	detail        model.Posting
	loading       bool
	loadErr       string
	detailVP      viewport.Model
	load          DetailFunc
	showFullDescr bool
}

func newBrowseModel(query string, results []model.Summary, filter model.PostingFilter, load DetailFunc) browseModel {
	var matched []model.Summary
	for _, r := range results {
		if filter == nil || filter.Match(summaryPosting(r)) {
			matched = append(matched, r)
		}
	}
	label := "All results"
	if query != "" {
		label = fmt.Sprintf("Results for %q", query)
	}
	return browseModel{
		panes: [2]pane{
			{label: label, items: results},
			{label: "Alert matches", items: matched},
		},
		load: load,
	}
}

// summaryPosting lifts a search hit into a Posting so posting filters apply.
func summaryPosting(s model.Summary) model.Posting {
	return model.Posting{
		RawPosting: model.RawPosting{
			Provider: s.Provider,
			NativeID: s.NativeID,
			Company:  s.Company,
			Title:    s.Title,
			Location: s.Location,
			URL:      s.URL,
			PostedAt: s.PostedAt,
		},
		Facets: model.Facets{
			City:      s.City,
			Remote:    s.Remote,
			RoleLevel: s.RoleLevel,
			WorkType:  s.WorkType,
		},
		LastSeen: s.LastSeen,
	}
}

func (m browseModel) Init() tea.Cmd { return nil }

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case detailLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.loadErr = fmt.Sprintf("failed to load posting: %v", msg.err)
		} else {
			m.loadErr = ""
			m.detail = msg.posting
		}
		m.detailVP.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.onDetailKey(msg)
		}
		return m.onListKey(msg)
	}
	return m, nil
}

func (m browseModel) onListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.panes[m.active]
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "tab", "left", "right", "h", "l":
		m.active = 1 - m.active
	case "up", "k":
		p.move(-1)
		p.follow()
	case "down", "j":
		p.move(1)
		p.follow()
	case "enter":
		return m.openDetail()
	default:
		// pgup/pgdn/home/end scroll the active pane.
		var cmd tea.Cmd
		p.vp, cmd = p.vp.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m browseModel) onDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		openURL(m.detail.URL)
		return m, nil
	case "r":
		if m.detail.Description == "" {
			return m, nil
		}
		m.showFullDescr = !m.showFullDescr
		m.detailVP.SetContent(m.renderDetail())
		m.detailVP.GotoTop()
		return m, nil
	}
	var cmd tea.Cmd
	m.detailVP, cmd = m.detailVP.Update(msg)
	return m, cmd
}

func (m browseModel) openDetail() (tea.Model, tea.Cmd) {
	hit, ok := m.panes[m.active].selected()
	if !ok {
		return m, nil
	}
	m.view = viewDetail
	m.detail = summaryPosting(hit)
	m.loadErr = ""
	m.showFullDescr = false
	m.detailVP = viewport.New(m.width-4, m.height-4)
	m.detailVP.SetContent(m.renderDetail())
	if m.load == nil {
		return m, nil
	}

	m.loading = true
	load := m.load
	return m, func() tea.Msg {
		p, err := load(context.Background(), hit.Provider, hit.NativeID)
		return detailLoadedMsg{posting: p, err: err}
	}
}

// resize fits both panes side by side: two border columns each plus a one
// column gap, and four rows for header, borders and status bar.
func (m *browseModel) resize() {
	w := max((m.width-5)/2, 20)
	h := max(m.height-4, 5)
	for i := range m.panes {
		if !m.ready {
			m.panes[i].vp = viewport.New(w, h)
			continue
		}
		m.panes[i].vp.Width, m.panes[i].vp.Height = w, h
	}
	m.ready = true
	m.refresh()

	if m.view == viewDetail {
		m.detailVP.Width, m.detailVP.Height = m.width-4, m.height-4
		m.detailVP.SetContent(m.renderDetail())
	}
}

func (m *browseModel) refresh() {
	for i := range m.panes {
		p := &m.panes[i]
		p.vp.SetContent(renderResults(p.items, p.cursor, i == m.active))
	}
}

func (m browseModel) View() string {
	switch {
	case !m.ready:
		return "Loading..."
	case m.view == viewDetail:
		return m.viewDetail()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panes[paneAll].render(m.active == paneAll),
		" ",
		m.panes[paneMatched].render(m.active == paneMatched),
	)
	status := fmt.Sprintf(" %d results, %d alert matches   tab switch pane · ↑/↓ move · enter open · q quit",
		len(m.panes[paneAll].items), len(m.panes[paneMatched].items))
	return body + "\n" + statusBarStyle.Width(m.width).Render(status)
}

func (m browseModel) viewDetail() string {
	heading := detailTitleStyle.Render(m.detail.Title)
	if m.loading {
		heading += descHintStyle.Render("  loading…")
	}
	keys := " o open in browser · esc back · ↑/↓ scroll · q quit"
	if m.detail.Description != "" {
		keys = " o open in browser · r description · esc back · ↑/↓ scroll · q quit"
	}
	return heading + "\n" +
		activeBorderStyle.Width(m.width-2).Render(m.detailVP.View()) + "\n" +
		statusBarStyle.Width(m.width).Render(keys)
}

func (m browseModel) renderDetail() string {
	p := m.detail
	stamp := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(eastern).Format("Mon Jan 2 2006, 3:04 PM MST")
	}
	remote := ""
	if p.Remote {
		remote = "yes"
	}
	var posted string
	if p.PostedAt != nil {
		posted = stamp(*p.PostedAt)
	}

	groups := [][][2]string{
		{{"Company", p.Company}, {"Location", p.Location}, {"Source", p.Provider + " #" + p.NativeID}},
		{{"City", p.City}, {"Level", string(p.RoleLevel)}, {"Work type", string(p.WorkType)}, {"Remote", remote}, {"Commitment", p.Commitment}},
		{{"Posted", posted}, {"First seen", stamp(p.FirstSeen)}, {"Last changed", stamp(p.LastSeen)}},
		{{"URL", p.URL}},
	}

	var sections []string
	for _, g := range groups {
		var rows []string
		for _, f := range g {
			if f[1] != "" {
				rows = append(rows, detailLabelStyle.Render(f[0])+f[1])
			}
		}
		if len(rows) > 0 {
			sections = append(sections, strings.Join(rows, "\n"))
		}
	}
	if m.loadErr != "" {
		sections = append(sections, errorStyle.Render("⚠ "+m.loadErr))
	}

	if p.Description != "" {
		if !m.showFullDescr {
			sections = append(sections, descHintStyle.Render("press r to read the description"))
		} else {
			width := max(m.width-8, 20)
			rule := descDividerStyle.Render("Description " + strings.Repeat("─", max(width-12, 3)))
			sections = append(sections, rule+"\n\n"+descBodyStyle.Render(wrapParagraphs(p.Description, width)))
		}
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func renderResults(results []model.Summary, cursor int, active bool) string {
	if len(results) == 0 {
		return "  (no results)"
	}
	rows := make([]string, 0, len(results))
	for i, r := range results {
		head, sub, mark := titleStyle, subtitleStyle, "  "
		if active && i == cursor {
			head, sub, mark = selectedTitleStyle, selectedSubtitleStyle, "> "
		}
		rows = append(rows,
			mark+head.Render(r.Title+" · "+r.Company)+"\n"+
				mark+sub.Render(Subtitle(r)))
	}
	return strings.Join(rows, "\n\n")
}

// Subtitle is the one-line facet summary shown under a result title.
func Subtitle(r model.Summary) string {
	parts := []string{orNA(r.Location)}
	if r.RoleLevel != "" {
		parts = append(parts, string(r.RoleLevel))
	}
	parts = append(parts, string(r.WorkType))
	if r.Remote {
		parts = append(parts, "remote")
	}
	posted := "n/a"
	if r.PostedAt != nil {
		posted = r.PostedAt.In(eastern).Format("2006-01-02")
	}
	parts = append(parts, posted)
	return strings.Join(parts, " · ")
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

// wrapParagraphs word-wraps each line of text separately so paragraph breaks
// survive.
func wrapParagraphs(text string, width int) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wordWrap(line, width)
	}
	return strings.Join(lines, "\n")
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	if url == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the split-pane browser: every search hit on the left, the
// hits that pass the alert filter on the right. filter and load may be nil.
func Run(query string, results []model.Summary, filter model.PostingFilter, load DetailFunc) error {
	m := newBrowseModel(query, results, filter, load)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
