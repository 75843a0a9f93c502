package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrElementNotFound is returned by Session.Find when nothing matched the
// locator in the requested state before the timeout.
var ErrElementNotFound = errors.New("element not found")

const urlPollInterval = 200 * time.Millisecond

// Condition is the state an element must reach before Find returns it.
type Condition int

const (
	Present Condition = iota
	Visible
	Clickable
)

func (c Condition) String() string {
	switch c {
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	default:
		return "present"
	}
}

// Element is a handle to one node on the live page.
type Element interface {
	Click() error
	Text() (string, error)
	Input(text string) error
	Screenshot() ([]byte, error)
}

// Session is the slice of the browser the bot needs. A timeout of zero makes
// Find look once without waiting.
type Session interface {
	Snapshot() (string, error)
	Find(locator string, cond Condition, timeout time.Duration) (Element, error)
	Navigate(url string) error
	URL() (string, error)
	Capture(name string) error
}

func isXPath(locator string) bool {
	return strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(")
}

// waitForURLPrefix polls the current URL until it starts with one of prefixes.
func waitForURLPrefix(ctx context.Context, s Session, prefixes []string, timeout, interval time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		current, err := s.URL()
		if err != nil {
			return "", err
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(current, prefix) {
				return prefix, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out after %v waiting for %v, last url %s", timeout, prefixes, current)
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return "", err
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
