package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

// Prompter asks the operator a question on the terminal.
type Prompter interface {
	Ask(query string, opts *input.Options) (string, error)
}

const captchaFile = "captcha.png"

// SignIn logs the site in through Steam OpenID. The Steam Guard code and,
// when Steam shows one, the captcha are answered by the operator.
type SignIn struct {
	session  Session
	config   *Config
	prompter Prompter
	pause    func()
}

func NewSignIn(session Session, config *Config, prompter Prompter, pause func()) *SignIn {
	if pause == nil {
		pause = func() {}
	}
	return &SignIn{session: session, config: config, prompter: prompter, pause: pause}
}

func (s *SignIn) Run(ctx context.Context, username, password string) error {
	sel := s.config.Selectors
	elementTimeout := seconds(s.config.ElementTimeoutSeconds)
	loginTimeout := seconds(s.config.LoginTimeoutSeconds)

	log.Info().Str("url", s.config.SiteURL).Msg("Opening site")
	if err := s.session.Navigate(s.config.SiteURL); err != nil {
		return err
	}

	if err := s.click(sel.SignInLink, elementTimeout); err != nil {
		return fmt.Errorf("sign in link: %w", err)
	}

	if _, err := waitForURLPrefix(ctx, s.session, []string{s.config.LoginURLPrefix}, loginTimeout, urlPollInterval); err != nil {
		return fmt.Errorf("steam login page: %w", err)
	}
	log.Info().Msg("On Steam login page")

	if err := s.fill(sel.SteamUsername, username, elementTimeout); err != nil {
		return fmt.Errorf("steam username: %w", err)
	}
	s.pause()
	if err := s.fill(sel.SteamPassword, password, elementTimeout); err != nil {
		return fmt.Errorf("steam password: %w", err)
	}
	s.pause()

	if captcha, err := s.session.Find(sel.SteamCaptcha, Visible, seconds(3)); err == nil {
		if err := s.handleCaptcha(captcha); err != nil {
			return err
		}
	}

	if err := s.click(sel.SteamLogin, seconds(10)); err != nil {
		return fmt.Errorf("steam login button: %w", err)
	}

	code, err := s.prompter.Ask("Enter Steam Guard code:", &input.Options{Required: true, Loop: true, HideOrder: true})
	if err != nil {
		return fmt.Errorf("read steam guard code: %w", err)
	}
	if err := s.fill(sel.SteamGuardInput, code, elementTimeout); err != nil {
		return fmt.Errorf("steam guard input: %w", err)
	}
	if err := s.click(sel.SteamGuardSubmit, elementTimeout); err != nil {
		return fmt.Errorf("steam guard submit: %w", err)
	}

	if _, err := waitForURLPrefix(ctx, s.session, []string{s.config.SiteURL + "/"}, loginTimeout, urlPollInterval); err != nil {
		return fmt.Errorf("return to site: %w", err)
	}

	log.Info().Str("username", username).Msg("Signed in")
	return nil
}

// handleCaptcha saves the captcha image for the operator, who solves it in
// the browser window before the login button is pressed.
func (s *SignIn) handleCaptcha(captcha Element) error {
	img, err := captcha.Screenshot()
	if err != nil {
		return fmt.Errorf("captcha screenshot: %w", err)
	}
	if err := os.WriteFile(captchaFile, img, 0644); err != nil {
		return err
	}
	log.Warn().Str("file", captchaFile).Msg("Steam is asking for a captcha")

	_, err = s.prompter.Ask(fmt.Sprintf("Solve the captcha from %s in the browser, then press Enter", captchaFile),
		&input.Options{HideOrder: true})
	if err != nil {
		return fmt.Errorf("captcha prompt: %w", err)
	}
	return nil
}

func (s *SignIn) click(locator string, timeout time.Duration) error {
	el, err := s.session.Find(locator, Clickable, timeout)
	if err != nil {
		return err
	}
	return el.Click()
}

func (s *SignIn) fill(locator, value string, timeout time.Duration) error {
	el, err := s.session.Find(locator, Clickable, timeout)
	if err != nil {
		return err
	}
	return el.Input(value)
}
