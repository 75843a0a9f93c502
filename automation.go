package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

// Automation owns the Chrome process and the single tab the bot drives. It
// implements Session on top of go-rod.
type Automation struct {
	config   *Config
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	rand     *rand.Rand
	stopChan chan bool
}

func NewAutomation(config *Config) *Automation {
	return &Automation{
		config:   config,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan: make(chan bool, 1),
	}
}

func (a *Automation) Close() {
	select {
	case a.stopChan <- true:
	default:
	}

	log.Info().Msg("Cleaning up browser")

	if a.page != nil {
		a.page.Close()
	}

	if a.browser != nil {
		a.browser.Close()
	}

	if a.launcher != nil {
		a.launcher.Cleanup()
	}
}

func (a *Automation) isBrowserAlive() bool {
	if a.browser == nil {
		return false
	}

	_, err := a.browser.Version()
	if err != nil {
		log.Debug().Err(err).Msg("Browser version check failed")
		return false
	}

	if a.page != nil {
		_, err := a.page.Info()
		if err != nil {
			log.Debug().Err(err).Msg("Page info check failed")
			return false
		}
	}

	return true
}

func (a *Automation) watchBrowser() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if !a.isBrowserAlive() {
				log.Warn().Msg("Browser was closed, shutting down")
				os.Exit(0)
			}
		}
	}
}

// randomDelay pauses between form interactions so typing does not look scripted.
func (a *Automation) randomDelay() {
	min := a.config.MinDelayBetween
	max := a.config.MaxDelayBetween
	duration := min + a.rand.Float64()*(max-min)

	log.Debug().Float64("seconds", duration).Msg("Waiting")
	time.Sleep(time.Duration(duration * float64(time.Second)))
}

func (a *Automation) setupBrowser() error {
	log.Info().Bool("headless", a.config.Headless).Msg("Launching browser")

	// Leakless deadlocks on Windows, see https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	a.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(a.config.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("start-maximized")

	// Must be set before Bin()
	if a.config.BrowserProfilePath != "" {
		a.launcher = a.launcher.UserDataDir(a.config.BrowserProfilePath)
		log.Debug().Str("path", a.config.BrowserProfilePath).Msg("Browser profile set")
	}

	if chromeExists {
		a.launcher = a.launcher.Bin(chromePath)
		log.Info().Str("path", chromePath).Msg("Using system Chrome")
	} else {
		log.Info().Msg("Chrome not found, a Chromium build will be downloaded")
	}

	url, err := a.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "ProcessSingleton") || strings.Contains(errMsg, "SingletonLock") {
			return fmt.Errorf("browser profile %s is used by another Chrome, close it and retry: %w",
				a.config.BrowserProfilePath, err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	a.browser = rod.New().ControlURL(url)
	if err := a.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	a.page, err = stealth.Page(a.browser)
	if err != nil {
		return fmt.Errorf("failed to create stealth page: %w", err)
	}

	if err := a.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: a.config.UserAgent}); err != nil {
		log.Warn().Err(err).Msg("Failed to set User-Agent")
	}

	go a.watchBrowser()

	log.Info().Msg("Browser launched")
	return nil
}

func (a *Automation) Snapshot() (string, error) {
	if a.page == nil {
		return "", errors.New("browser page is not open")
	}
	return a.page.HTML()
}

func (a *Automation) Navigate(url string) error {
	if a.page == nil {
		return errors.New("browser page is not open")
	}
	if err := a.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := a.page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

func (a *Automation) URL() (string, error) {
	if a.page == nil {
		return "", errors.New("browser page is not open")
	}
	info, err := a.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Find looks the locator up and waits, within timeout, for it to reach cond.
func (a *Automation) Find(locator string, cond Condition, timeout time.Duration) (Element, error) {
	if a.page == nil {
		return nil, errors.New("browser page is not open")
	}

	if timeout <= 0 {
		el, err := queryElement(a.page.Sleeper(rod.NotFoundSleeper), locator)
		if err != nil {
			return nil, notFound(locator, cond, err)
		}
		if cond == Visible {
			if ok, err := el.Visible(); err != nil || !ok {
				return nil, fmt.Errorf("%s not %s: %w", locator, cond, ErrElementNotFound)
			}
		}
		if cond == Clickable {
			if _, err := el.Interactable(); err != nil {
				return nil, fmt.Errorf("%s not %s: %w", locator, cond, ErrElementNotFound)
			}
		}
		return &rodElement{el: el}, nil
	}

	page := a.page.Timeout(timeout)
	el, err := queryElement(page, locator)
	if err == nil {
		switch cond {
		case Visible:
			err = el.WaitVisible()
		case Clickable:
			_, err = el.WaitInteractable()
		}
	}
	if err != nil {
		page.CancelTimeout()
		return nil, notFound(locator, cond, err)
	}

	return &rodElement{el: el.CancelTimeout()}, nil
}

func queryElement(page *rod.Page, locator string) (*rod.Element, error) {
	if isXPath(locator) {
		return page.ElementX(locator)
	}
	return page.Element(locator)
}

// notFound folds timeouts and lookup misses into ErrElementNotFound and passes
// anything else (a dead browser, a broken selector) through.
func notFound(locator string, cond Condition, err error) error {
	var nf *rod.ElementNotFoundError
	if errors.As(err, &nf) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s not %s: %w", locator, cond, ErrElementNotFound)
	}
	return fmt.Errorf("find %s: %w", locator, err)
}

// Capture saves a screenshot and the page source for post-mortem debugging.
func (a *Automation) Capture(name string) error {
	if a.page == nil {
		return errors.New("browser page is not open")
	}
	stamp := time.Now().Format("20060102150405")
	pngFile := fmt.Sprintf("%s_%s.png", name, stamp)
	htmlFile := fmt.Sprintf("%s_%s.html", name, stamp)

	var errs []error
	if img, err := a.page.Screenshot(false, nil); err != nil {
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	} else if err := os.WriteFile(pngFile, img, 0644); err != nil {
		errs = append(errs, err)
	}

	url, _ := a.URL()
	html, err := a.page.HTML()
	if err != nil {
		errs = append(errs, fmt.Errorf("page html: %w", err))
	} else if err := os.WriteFile(htmlFile, []byte(url+"\n"+html), 0644); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info().Str("screenshot", pngFile).Str("html", htmlFile).Msg("Diagnostics captured")
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Input(text string) error {
	return e.el.Input(text)
}

func (e *rodElement) Screenshot() ([]byte, error) {
	return e.el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}
