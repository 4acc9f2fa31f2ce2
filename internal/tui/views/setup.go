package views

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shawnBuilds/suspended-business-scanner/internal/config"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
	"github.com/shawnBuilds/suspended-business-scanner/internal/tui/styles"
)

// Field indices. Mode, strategy and backend are choice fields, not textinputs.
const (
	fieldCity = iota
	fieldMode
	fieldStrategy
	fieldRadius
	fieldBackend
	fieldEnv
	fieldOutput
	fieldCount
)

var (
	modeChoices     = []string{model.ModePlaces, model.ModeCount}
	strategyChoices = []string{model.StrategyBackoff, model.StrategySweep}
	backendChoices  = []string{"sheets", "sqlite"}
)

type SetupModel struct {
	inputs      []textinput.Model
	focused     int
	err         string
	cities      []string
	suggestions []string
	suggIdx     int

	modeIdx     int
	strategyIdx int
	backendIdx  int
}

func NewSetupModel() SetupModel {
	inputs := make([]textinput.Model, fieldCount)

	inputs[fieldCity] = newInput("type to search city...", "", 30)
	inputs[fieldMode] = textinput.New() // placeholder, never used
	inputs[fieldStrategy] = textinput.New()
	inputs[fieldRadius] = newInput("40234", "", 10)
	inputs[fieldBackend] = textinput.New()
	inputs[fieldEnv] = newInput(".env", "", 40)
	inputs[fieldOutput] = newInput("data", "", 40)

	cities := make([]string, 0, len(config.Presets()))
	for name := range config.Presets() {
		cities = append(cities, name)
	}
	sort.Strings(cities)

	m := SetupModel{
		inputs:  inputs,
		focused: fieldCity,
		cities:  cities,
		suggIdx: -1,
	}
	m.inputs[fieldCity].Focus()
	return m
}

func newInput(placeholder, value string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	if width > 0 {
		ti.Width = width
	}
	if value != "" {
		ti.SetValue(value)
	}
	return ti
}

func isChoiceField(idx int) bool {
	return idx == fieldMode || idx == fieldStrategy || idx == fieldBackend
}

func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()

		switch key {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }

		case "up":
			if m.focused == fieldCity && len(m.suggestions) > 0 && m.suggIdx > 0 {
				m.suggIdx--
				return m, nil
			}
			m.err = ""
			return m, m.focusPrev()

		case "down":
			if m.focused == fieldCity && len(m.suggestions) > 0 && m.suggIdx < len(m.suggestions)-1 {
				m.suggIdx++
				return m, nil
			}
			m.err = ""
			return m, m.focusNext()

		case "tab":
			m.err = ""
			if m.focused == fieldCity && len(m.suggestions) > 0 {
				m.selectSuggestion()
			}
			return m, m.focusNext()

		case "shift+tab":
			m.err = ""
			return m, m.focusPrev()

		case "enter":
			if m.focused == fieldCity && len(m.suggestions) > 0 {
				m.selectSuggestion()
				return m, m.focusNext()
			}
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}

		case "left":
			if isChoiceField(m.focused) {
				m.cycleChoice(-1)
				return m, nil
			}

		case "right":
			if isChoiceField(m.focused) {
				m.cycleChoice(1)
				return m, nil
			}
		}
	}

	// Update focused textinput (choice fields have none)
	var cmd tea.Cmd
	if !isChoiceField(m.focused) && m.focused >= 0 && m.focused < fieldCount {
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	}

	// Update suggestions when typing in the city field
	if m.focused == fieldCity {
		m.updateSuggestions()
	}

	return m, cmd
}

func (m *SetupModel) cycleChoice(dir int) {
	cycle := func(idx, n int) int {
		idx += dir
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		return idx
	}
	switch m.focused {
	case fieldMode:
		m.modeIdx = cycle(m.modeIdx, len(modeChoices))
	case fieldStrategy:
		m.strategyIdx = cycle(m.strategyIdx, len(strategyChoices))
	case fieldBackend:
		m.backendIdx = cycle(m.backendIdx, len(backendChoices))
	}
}

func (m *SetupModel) selectSuggestion() {
	if m.suggIdx >= 0 && m.suggIdx < len(m.suggestions) {
		m.inputs[fieldCity].SetValue(m.suggestions[m.suggIdx])
		m.suggestions = nil
		m.suggIdx = -1
	}
}

func (m *SetupModel) updateSuggestions() {
	raw := strings.TrimSpace(m.inputs[fieldCity].Value())
	if raw == "" {
		m.suggestions = nil
		m.suggIdx = -1
		return
	}

	q := strings.ToLower(raw)
	var matches []string
	for _, c := range m.cities {
		if strings.Contains(strings.ToLower(c), q) {
			matches = append(matches, c)
		}
	}
	m.suggestions = matches
	if len(matches) > 0 {
		if m.suggIdx < 0 || m.suggIdx >= len(matches) {
			m.suggIdx = 0
		}
	} else {
		m.suggIdx = -1
	}
}

// resolveCity checks the input against the preset cities and returns the
// canonical name.
func (m *SetupModel) resolveCity(input string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(input))
	for _, c := range m.cities {
		if strings.ToLower(c) == q {
			return c, true
		}
	}
	return "", false
}

func (m *SetupModel) focusNext() tea.Cmd {
	if !isChoiceField(m.focused) {
		m.inputs[m.focused].Blur()
	}
	m.focused++
	if m.focused >= fieldCount {
		m.focused = fieldCity
	}
	if isChoiceField(m.focused) {
		return nil
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *SetupModel) focusPrev() tea.Cmd {
	if !isChoiceField(m.focused) {
		m.inputs[m.focused].Blur()
	}
	m.focused--
	if m.focused < 0 {
		m.focused = fieldOutput
	}
	if isChoiceField(m.focused) {
		return nil
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *SetupModel) submit() tea.Cmd {
	city := ""
	if raw := strings.TrimSpace(m.inputs[fieldCity].Value()); raw != "" {
		name, ok := m.resolveCity(raw)
		if !ok {
			m.err = fmt.Sprintf("Unknown city %q, type to search", raw)
			return nil
		}
		city = name
	}

	radius := strings.TrimSpace(m.inputs[fieldRadius].Value())
	if radius != "" {
		r, err := strconv.Atoi(radius)
		if err != nil || r <= 0 {
			m.err = "Radius must be a positive number of meters"
			return nil
		}
	}

	mode := modeChoices[m.modeIdx]
	strategy := strategyChoices[m.strategyIdx]
	backend := backendChoices[m.backendIdx]
	env := strings.TrimSpace(m.inputs[fieldEnv].Value())
	output := strings.TrimSpace(m.inputs[fieldOutput].Value())

	return func() tea.Msg {
		return StartScanMsg{
			City:     city,
			Mode:     mode,
			Strategy: strategy,
			RadiusM:  radius,
			Backend:  backend,
			EnvPath:  env,
			Output:   output,
		}
	}
}

func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Scan Setup") + "\n\n")

	b.WriteString(m.renderField("City:", fieldCity))
	if m.focused == fieldCity && len(m.suggestions) > 0 {
		b.WriteString(m.renderSuggestions())
	}
	if m.focused == fieldCity {
		hint := lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("  empty = config default")
		b.WriteString(hint + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderChoice("Mode:", fieldMode, modeChoices, m.modeIdx))
	b.WriteString(m.renderChoice("Strategy:", fieldStrategy, strategyChoices, m.strategyIdx))
	b.WriteString(m.renderField("Radius (m):", fieldRadius))
	b.WriteString(m.renderChoice("Backend:", fieldBackend, backendChoices, m.backendIdx))

	b.WriteString("\n")
	b.WriteString(m.renderField("Env file:", fieldEnv))
	b.WriteString(m.renderField("Output:", fieldOutput))

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.StatusBar.Render("enter start • tab next • ←→ toggle • esc back"))

	return styles.Border.Render(b.String())
}

func (m SetupModel) renderSuggestions() string {
	var sb strings.Builder
	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	for i, c := range m.suggestions {
		if i == m.suggIdx {
			sb.WriteString(active.Render("  > " + c))
		} else {
			sb.WriteString(inactive.Render("    " + c))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m SetupModel) renderChoice(label string, idx int, choices []string, selected int) string {
	l := styles.Label.Render(label)

	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	parts := make([]string, len(choices))
	for i, c := range choices {
		if i == selected {
			parts[i] = active.Render("< " + c + " >")
		} else {
			parts[i] = inactive.Render(c)
		}
	}

	line := fmt.Sprintf("%s %s", l, strings.Join(parts, "   "))
	if m.focused == idx {
		line += lipgloss.NewStyle().Foreground(styles.Secondary).Render(" ←→")
	}
	return line + "\n"
}

func (m SetupModel) renderField(label string, idx int) string {
	l := styles.Label.Render(label)
	v := m.inputs[idx].View()
	return fmt.Sprintf("%s %s\n", l, v)
}

// StartScanMsg carries the resolved setup into the progress view. Empty
// fields fall back to the built-in config defaults.
type StartScanMsg struct {
	City      string
	AllCities bool
	Mode      string
	Strategy  string
	RadiusM   string
	Backend   string
	EnvPath   string
	Output    string
}
