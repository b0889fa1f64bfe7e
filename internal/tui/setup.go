package tui

import (
	"errors"
	"net/url"
	"strings"

	"github.com/theirongolddev/voxdeck/internal/config"
	"github.com/theirongolddev/voxdeck/internal/tui/theme"

	"github.com/charmbracelet/huh"
)

// setupValues holds the first-run form answers.
type setupValues struct {
	offerURL    string
	theme       string
	view        string
	autoConnect bool
}

var errBadURL = errors.New("enter an http or https URL")

// ValidateOfferURL checks that s is an absolute http(s) URL.
func ValidateOfferURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return errBadURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errBadURL
	}
	return nil
}

func newSetupForm(cfg config.Config, v *setupValues) *huh.Form {
	v.offerURL = cfg.Connection.OfferURL
	v.theme = cfg.Appearance.Theme
	v.view = cfg.Appearance.DefaultView
	v.autoConnect = cfg.Connection.AutoConnect

	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, th := range theme.All {
		themes = append(themes, huh.NewOption(th.Name, th.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to voxdeck").
				Description("Talk to a voice agent and watch its latency live.\n\nRun `voxdeck setup` anytime to reconfigure."),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Offer URL").
				Description("Endpoint that answers WebRTC offers").
				Placeholder("http://localhost:7860/api/offer").
				Value(&v.offerURL).
				Validate(ValidateOfferURL),
			huh.NewSelect[string]().
				Title("Theme").
				Options(themes...).
				Value(&v.theme),
			huh.NewSelect[string]().
				Title("Default view").
				Options(
					huh.NewOption("Visualizer", config.ViewVisualizer),
					huh.NewOption("Conversation", config.ViewConversation),
				).
				Value(&v.view),
			huh.NewConfirm().
				Title("Connect on launch?").
				Value(&v.autoConnect),
		),
	).WithTheme(huh.ThemeCharm()).WithShowHelp(true)
}

// apply copies the answers into cfg.
func (v *setupValues) apply(cfg *config.Config) {
	cfg.Connection.OfferURL = strings.TrimSpace(v.offerURL)
	cfg.Connection.AutoConnect = v.autoConnect
	cfg.Appearance.Theme = v.theme
	cfg.Appearance.DefaultView = v.view
	cfg.Normalize()
}

func (a *App) applySetup() {
	a.setupVals.apply(&a.cfg)
	theme.SetActive(a.cfg.Appearance.Theme)
	if a.cfg.Appearance.DefaultView == config.ViewConversation {
		a.view = 1
	} else {
		a.view = 0
	}
}

// RunSetup runs the setup form standalone and returns the updated config.
func RunSetup(cfg config.Config) (config.Config, error) {
	vals := &setupValues{}
	if err := newSetupForm(cfg, vals).Run(); err != nil {
		return cfg, err
	}
	vals.apply(&cfg)
	return cfg, nil
}
