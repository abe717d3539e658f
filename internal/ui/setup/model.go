// Package setup is the first-run form for the API key and model settings.
package setup

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/theme"
)

// KeyStore persists the API key.
type KeyStore interface {
	Store(key string) error
}

// SaveFunc persists the updated configuration.
type SaveFunc func(model.AppConfig) error

// DoneMsg signals the setup view should close. Err is set when saving
// failed; Saved is false when the user aborted.
type DoneMsg struct {
	Saved  bool
	Config model.AppConfig
	Err    error
}

type savedMsg struct {
	cfg model.AppConfig
	err error
}

// fields is heap-allocated so the huh bindings survive model copies.
type fields struct {
	apiKey  string
	model   string
	baseURL string
	mode    model.UIMode
	theme   string
}

// Model is the Bubble Tea model for the setup form.
type Model struct {
	form    *huh.Form
	fields  *fields
	cfg     model.AppConfig
	keys    KeyStore
	save    SaveFunc
	hasKey  bool
	saving  bool
	spinner spinner.Model
	width   int
	height  int
}

// New creates a setup form prefilled from cfg. hasKey reports whether a key
// is already stored, in which case the key field may be left blank.
func New(cfg model.AppConfig, keys KeyStore, save SaveFunc, hasKey bool, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		fields: &fields{
			model:   cfg.AI.Model,
			baseURL: cfg.AI.BaseURL,
			mode:    cfg.Mode(),
			theme:   cfg.UI.Theme,
		},
		cfg:     cfg,
		keys:    keys,
		save:    save,
		hasKey:  hasKey,
		spinner: sp,
		width:   width,
		height:  height,
	}
	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

func (m Model) buildForm() *huh.Form {
	keyDesc := "Stored in the system keyring"
	validateKey := validateRequired("API key")
	if m.hasKey {
		keyDesc = "Leave blank to keep the stored key"
		validateKey = nil
	}

	modeOpts := make([]huh.Option[model.UIMode], 0, len(model.AllModes))
	for _, mode := range model.AllModes {
		modeOpts = append(modeOpts, huh.NewOption(mode.Label(), mode))
	}

	key := huh.NewInput().
		Title("API Key").
		Description(keyDesc).
		EchoMode(huh.EchoModePassword).
		Value(&m.fields.apiKey)
	if validateKey != nil {
		key = key.Validate(validateKey)
	}

	return huh.NewForm(
		huh.NewGroup(
			key,
			huh.NewInput().
				Title("Model").
				Placeholder(model.DefaultAppConfig().AI.Model).
				Value(&m.fields.model).
				Validate(validateRequired("Model")),
			huh.NewInput().
				Title("Base URL").
				Description("OpenAI-compatible endpoint").
				Value(&m.fields.baseURL).
				Validate(validateURL),
		),
		huh.NewGroup(
			huh.NewSelect[model.UIMode]().
				Title("Default mode").
				Options(modeOpts...).
				Value(&m.fields.mode),
			huh.NewSelect[string]().
				Title("Theme").
				Options(
					huh.NewOption("Dark", "dark"),
					huh.NewOption("Light", "light"),
					huh.NewOption("Dracula", "dracula"),
					huh.NewOption("Tokyo Night", "tokyo-night"),
				).
				Value(&m.fields.theme),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

// Update handles messages for the setup form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedMsg:
		m.saving = false
		return m, func() tea.Msg {
			return DoneMsg{Saved: msg.err == nil, Config: msg.cfg, Err: msg.err}
		}

	case spinner.TickMsg:
		if m.saving {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.saving {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.saving = true
		return m, tea.Batch(m.spinner.Tick, m.persist())
	case huh.StateAborted:
		return m, func() tea.Msg { return DoneMsg{} }
	}
	return m, cmd
}

// Result returns the configuration the form currently describes.
func (m Model) Result() model.AppConfig {
	cfg := m.cfg
	cfg.AI.Model = strings.TrimSpace(m.fields.model)
	cfg.AI.BaseURL = strings.TrimSpace(m.fields.baseURL)
	cfg.UI.DefaultMode = string(m.fields.mode)
	cfg.UI.Theme = m.fields.theme
	return cfg
}

func (m Model) persist() tea.Cmd {
	cfg := m.Result()
	key := strings.TrimSpace(m.fields.apiKey)
	keys, save := m.keys, m.save

	return func() tea.Msg {
		if key != "" && keys != nil {
			if err := keys.Store(key); err != nil {
				return savedMsg{cfg: cfg, err: fmt.Errorf("saving API key: %w", err)}
			}
		}
		if save != nil {
			if err := save(cfg); err != nil {
				return savedMsg{cfg: cfg, err: fmt.Errorf("saving config: %w", err)}
			}
		}
		return savedMsg{cfg: cfg}
	}
}

// View renders the setup form.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Setup")

	body := m.form.View()
	if m.saving {
		body = m.spinner.View() + " Saving..."
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.form = m.form.WithWidth(m.formWidth())
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://api.openai.com/v1)")
	}
	return nil
}
