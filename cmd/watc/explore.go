package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/engine"
	"github.com/wippyai/watc/wat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD866"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newExploreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explore <file.wat>",
		Short: "Browse diagnostics or exports interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newExploreModel(args[0], a.compileOptions())
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err := p.Run()
			return err
		},
	}
}

type itemKind int

const (
	itemError itemKind = iota
	itemWarning
	itemExport
)

type exploreItem struct {
	kind   itemKind
	title  string
	detail string
}

type exploreModel struct {
	err       error
	res       *wat.Result
	filename  string
	opts      []wat.Option
	items     []exploreItem
	visible   []int
	filter    textinput.Model
	selected  int
	loaded    bool
	filtering bool
}

type loadedMsg struct {
	err     error
	res     *wat.Result
	exports []engine.Export
}

func newExploreModel(filename string, opts []wat.Option) *exploreModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter"
	ti.Width = 40
	return &exploreModel{
		filename: filename,
		opts:     opts,
		filter:   ti,
	}
}

func (m *exploreModel) Init() tea.Cmd {
	return m.load
}

func (m *exploreModel) load() tea.Msg {
	src, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	res, err := wat.Compile(m.filename, src, m.opts...)
	if err != nil {
		return loadedMsg{err: err}
	}
	if !res.OK() {
		return loadedMsg{res: res}
	}
	exports, err := engine.Exports(context.Background(), res.Binary)
	return loadedMsg{res: res, exports: exports, err: err}
}

func (m *exploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.loaded = true
		m.err = msg.err
		m.res = msg.res
		m.items = buildItems(msg.res, msg.exports)
		m.applyFilter()
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.visible)-1 {
				m.selected++
			}
		case "/":
			m.filtering = true
			return m, m.filter.Focus()
		case "esc":
			m.filter.SetValue("")
			m.applyFilter()
		}
	}
	return m, nil
}

func (m *exploreModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		m.filtering = false
		m.filter.Blur()
		return m, nil
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

// applyFilter recomputes the visible items, matching the filter text
// case-insensitively against titles.
func (m *exploreModel) applyFilter() {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, it := range m.items {
		if needle == "" || strings.Contains(strings.ToLower(it.title), needle) {
			m.visible = append(m.visible, i)
		}
	}
	m.selected = min(m.selected, max(len(m.visible)-1, 0))
}

func buildItems(res *wat.Result, exports []engine.Export) []exploreItem {
	if res == nil {
		return nil
	}
	r := diag.NewRenderer(diag.RenderOptions{Context: 2})
	var items []exploreItem
	for _, d := range res.Diagnostics {
		kind := itemError
		if d.Severity == diag.SevWarning {
			kind = itemWarning
		}
		items = append(items, exploreItem{
			kind:   kind,
			title:  d.String(),
			detail: strings.TrimRight(r.Format(res.Source, d), "\n"),
		})
	}
	for _, x := range exports {
		items = append(items, exploreItem{kind: itemExport, title: x.String()})
	}
	return items
}

func (m *exploreModel) View() string {
	if !m.loaded {
		return "Compiling " + m.filename + "..."
	}
	if m.err != nil && m.res == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("watc explore"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n")
	b.WriteString(m.status())
	b.WriteString("\n\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	if len(m.visible) == 0 {
		b.WriteString(helpStyle.Render("nothing to show"))
		b.WriteString("\n")
	}
	for i, idx := range m.visible {
		it := m.items[idx]
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + it.title))
		} else {
			b.WriteString("  " + itemStyle(it.kind).Render(it.title))
		}
		b.WriteString("\n")
	}

	if it, ok := m.current(); ok && it.detail != "" {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(it.detail))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • / filter • esc clear • q quit"))
	return b.String()
}

func (m *exploreModel) status() string {
	if m.res == nil {
		return ""
	}
	if !m.res.OK() {
		s := fmt.Sprintf("%d errors, %d warnings", len(m.res.Errors()), len(m.res.Warnings()))
		return errorStyle.Render(s)
	}
	s := fmt.Sprintf("compiled to %d bytes", len(m.res.Binary))
	if n := len(m.res.Warnings()); n > 0 {
		s += fmt.Sprintf(", %d warnings", n)
	}
	if m.err != nil {
		return s + " " + errorStyle.Render(fmt.Sprintf("(exports unavailable: %v)", m.err))
	}
	return funcStyle.Render(s)
}

func (m *exploreModel) current() (exploreItem, bool) {
	if m.selected < 0 || m.selected >= len(m.visible) {
		return exploreItem{}, false
	}
	return m.items[m.visible[m.selected]], true
}

func itemStyle(k itemKind) lipgloss.Style {
	switch k {
	case itemWarning:
		return warnStyle
	case itemExport:
		return funcStyle
	}
	return errorStyle
}
