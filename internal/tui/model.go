// Package tui is a terminal front end for the add-layer dialog.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/modal"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
)

// stateMsg reports a dialog state change. closed means the dialog was torn
// down and no further updates will arrive.
type stateMsg struct{ closed bool }

func waitForState(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-ch
		return stateMsg{closed: !ok}
	}
}

// Model renders a modal.Controller and forwards keys to it.
type Model struct {
	ctx    context.Context
	dialog *modal.Controller
	loc    i18n.Localizer

	input      textinput.Model
	inputFocus bool
	cursor     int
	view       modal.View
	items      []modal.Item

	updates     <-chan struct{}
	unsubscribe func()

	added *service.Layer
	err   error
}

// New creates a model for dialog. A nil localizer uses the dialog's.
func New(ctx context.Context, dialog *modal.Controller, loc i18n.Localizer) Model {
	if loc == nil {
		loc = dialog.Localizer()
	}
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 2048
	ti.SetValue(dialog.State().Input)

	updates, unsubscribe := dialog.Subscribe()
	m := Model{
		ctx:         ctx,
		dialog:      dialog,
		loc:         loc,
		input:       ti,
		updates:     updates,
		unsubscribe: unsubscribe,
	}
	if dialog.Config().AllowUserInput {
		m.inputFocus = true
		m.input.Focus()
	}
	m.refresh()
	return m
}

// Added returns the layer added to the map, if any.
func (m Model) Added() *service.Layer {
	return m.added
}

// Err returns the last error from adding a layer.
func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForState(m.updates))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.refresh()
		if msg.closed {
			return m, tea.Quit
		}
		return m, waitForState(m.updates)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc":
		m.dialog.Close()
		return m.quit()
	case "tab":
		if m.view.Input != nil {
			m.setInputFocus(!m.inputFocus)
		}
		return m, nil
	}

	if m.inputFocus {
		if msg.Type == tea.KeyEnter {
			m.dialog.SetInput(m.input.Value())
			m.dialog.Connect(m.ctx)
			m.setInputFocus(false)
			m.refresh()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "d":
		m.dialog.DismissError()
		m.refresh()
	case "enter":
		if m.cursor >= len(m.items) || !m.items[m.cursor].Clickable {
			return m, nil
		}
		layer, err := m.dialog.Click(m.items[m.cursor].Path)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.added, m.err = layer, nil
		return m.quit()
	}
	return m, nil
}

func (m *Model) setInputFocus(on bool) {
	m.inputFocus = on
	if on {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.unsubscribe()
	return m, tea.Quit
}

func (m *Model) refresh() {
	m.view = m.dialog.View(m.loc)
	m.items = modal.Flatten(m.view.Items)
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.view.Title))
	b.WriteString("\n")

	if in := m.view.Input; in != nil {
		b.WriteString(labelStyle.Render(in.Label + ": "))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
	}

	if m.view.Loading {
		b.WriteString(loadingStyle.Render(m.view.LoadingLabel))
		b.WriteString("\n")
	}

	for i, it := range m.items {
		b.WriteString(m.renderItem(i, it))
		b.WriteString("\n")
	}

	if e := m.view.Error; e != nil && e.Open {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(e.Message))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))
	return frameStyle.Render(b.String())
}

func (m Model) renderItem(i int, it modal.Item) string {
	marker := "  "
	if i == m.cursor && !m.inputFocus {
		marker = cursorStyle.Render("> ")
	}

	icon := "  "
	switch it.Icon {
	case modal.IconFolder:
		icon = "▸ "
	case modal.IconLayer:
		icon = "◆ "
	}

	title := clickableStyle.Render(it.Primary)
	switch {
	case it.EmptyTitle:
		title = emptyStyle.Render(it.Primary)
	case !it.Clickable:
		title = disabledStyle.Render(it.Primary)
	}

	line := marker + strings.Repeat("  ", modal.Depth(it.Path)) + icon + title
	if it.Secondary != "" {
		line += " " + nameStyle.Render(it.Secondary)
	}
	return line
}

func (m Model) help() string {
	keys := []string{"↑/↓ move", "enter add", "d dismiss", "esc " + strings.ToLower(m.view.CloseLabel)}
	if m.view.Input != nil {
		keys = append(keys, "tab url")
	}
	return strings.Join(keys, "  ")
}
