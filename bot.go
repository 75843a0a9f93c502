package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// extractRetryInterval is how often an empty auction page is re-read.
const extractRetryInterval = time.Second

// Bot watches the auction page and bids on listings from the wanted list.
type Bot struct {
	config      *Config
	session     Session
	notifier    Notifier
	wanted      []WantedItem
	username    string
	priceAlerts *AlertLimiter

	pageOpenedAt time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewBot(config *Config, session Session, notifier Notifier, username string, wanted []WantedItem) *Bot {
	return &Bot{
		config:      config,
		session:     session,
		notifier:    notifier,
		wanted:      wanted,
		username:    username,
		priceAlerts: NewAlertLimiter(seconds(config.PriceAlertIntervalSeconds)),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Run polls the auction page until ctx is done or an unexpected error stops
// the bot. Unexpected errors are reported to the operator before returning.
func (b *Bot) Run(ctx context.Context) error {
	b.notify(ctx, fmt.Sprintf("%s will try to bid for item %v", b.username, b.wanted))

	err := b.openAuctionPage(ctx)
	for err == nil {
		if err = b.runCycle(ctx); err != nil {
			break
		}
		err = b.sleep(ctx, millis(b.config.PollIntervalMs))
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return b.fail(ctx, err)
}

// runCycle is one pass over the current listings.
func (b *Bot) runCycle(ctx context.Context) error {
	if b.now().Sub(b.pageOpenedAt) > seconds(b.config.PageRefreshSeconds) {
		if err := b.openAuctionPage(ctx); err != nil {
			return err
		}
	}

	items, err := b.pollListings(ctx)
	if err != nil {
		return err
	}
	log.Debug().Int("listings", len(items)).Msg("Polled auction page")

	for index, item := range items {
		for _, wanted := range b.wanted {
			if !b.evaluate(ctx, wanted, item) {
				continue
			}

			selected, err := b.selectItem(index, item)
			if err != nil {
				return err
			}
			if !selected {
				continue
			}

			result, err := b.offerSelectedItem(ctx, item, wanted.MaxPrice)
			if err != nil {
				return err
			}

			switch {
			case result.Success:
				b.notify(ctx, fmt.Sprintf("Offer successfully: %v", wanted))
				return b.cooldown(ctx)
			case result.Notify:
				b.notify(ctx, fmt.Sprintf("FAILED to offer: %v, error message %s", wanted, result.Message))
				return b.cooldown(ctx)
			default:
				log.Info().Str("reason", result.Message).Msg("Skipping auction")
			}
		}
	}

	return nil
}

// evaluate runs the qualification check and sends the alerts that go with it.
func (b *Bot) evaluate(ctx context.Context, wanted WantedItem, item AuctionItem) bool {
	switch Qualify(wanted, item) {
	case PriceTooHigh:
		if b.priceAlerts.Allow() {
			b.notify(ctx, fmt.Sprintf("Found an auction item with higher price %v, our max price %v", item, wanted.MaxPrice))
		}
		return false
	case Qualified:
		b.notify(ctx, fmt.Sprintf("BIDING AN ITEM %v", item))
		return true
	default:
		return false
	}
}

func (b *Bot) openAuctionPage(ctx context.Context) error {
	sel := b.config.Selectors
	timeout := seconds(b.config.ElementTimeoutSeconds)

	log.Info().Str("url", b.config.WithdrawURL).Msg("Opening auction page")
	if err := b.session.Navigate(b.config.WithdrawURL); err != nil {
		return err
	}

	for _, locator := range []string{sel.AllItemsButton, sel.AuctionItemsButton} {
		if err := b.sleep(ctx, time.Second); err != nil {
			return err
		}
		btn, err := b.session.Find(locator, Visible, timeout)
		if err != nil {
			return fmt.Errorf("open auction page: %w", err)
		}
		if err := btn.Click(); err != nil {
			return fmt.Errorf("open auction page: click %s: %w", locator, err)
		}
	}

	b.pageOpenedAt = b.now()
	return nil
}

// pollListings reads the listings, retrying an empty page for a while
// before settling for no listings this cycle.
func (b *Bot) pollListings(ctx context.Context) ([]AuctionItem, error) {
	items, err := b.extract()
	if err != nil {
		return nil, err
	}

	start := b.now()
	for len(items) == 0 {
		if err := b.sleep(ctx, extractRetryInterval); err != nil {
			return nil, err
		}
		if items, err = b.extract(); err != nil {
			return nil, err
		}
		if b.now().Sub(start) > seconds(b.config.ExtractRetrySeconds) {
			break
		}
	}
	return items, nil
}

// extract parses the current page. A malformed listing only costs this pass,
// so extraction errors are logged and reported as no listings.
func (b *Bot) extract() ([]AuctionItem, error) {
	html, err := b.session.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("page snapshot: %w", err)
	}

	items, err := ExtractListings(strings.NewReader(html))
	if err != nil {
		event := log.Warn().Err(err)
		var extractErr *ExtractError
		if errors.As(err, &extractErr) {
			event = event.Int("index", extractErr.Index).Int("listings", extractErr.Raw.Length())
		}
		event.Msg("Listing extraction aborted")
		return nil, nil
	}
	return items, nil
}

// selectItem clicks the listing at index and checks that the trade sidebar
// opened for the expected item.
func (b *Bot) selectItem(index int, item AuctionItem) (bool, error) {
	locator := fmt.Sprintf(b.config.Selectors.Listing, index+1)
	el, err := b.session.Find(locator, Present, 0)
	if err != nil {
		return false, fmt.Errorf("listing %d: %w", index+1, err)
	}
	if err := el.Click(); err != nil {
		return false, fmt.Errorf("click listing %d: %w", index+1, err)
	}
	return b.sidebarShows(item), nil
}

func (b *Bot) sidebarShows(item AuctionItem) bool {
	sel := b.config.Selectors
	if _, ok := b.lookup(sel.Sidebar, Visible, seconds(b.config.SidebarSeconds)); !ok {
		return false
	}

	name1, err := b.readText(sel.SidebarName1)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check sidebar")
		return false
	}
	name2, err := b.readText(sel.SidebarName2)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check sidebar")
		return false
	}

	want1, want2 := normalizeName(item.Name1), normalizeName(item.Name2)
	got1, got2 := normalizeName(name1), normalizeName(name2)
	if !strings.Contains(got1, want1) || !strings.Contains(got2, want2) {
		log.Warn().
			Str("expected", want1+" "+want2).
			Str("clicked", got1+" "+got2).
			Msg("Sidebar shows a different item")
		return false
	}
	return true
}

func (b *Bot) readText(locator string) (string, error) {
	el, err := b.session.Find(locator, Present, 0)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (b *Bot) cooldown(ctx context.Context) error {
	d := time.Duration(b.config.CooldownHours) * time.Hour
	log.Info().Dur("duration", d).Msg("Done for now, cooling down")
	return b.sleep(ctx, d)
}

func (b *Bot) fail(ctx context.Context, err error) error {
	log.Error().Err(err).Str("username", b.username).Msg("There is an error with bot")
	b.notify(ctx, fmt.Sprintf("There is an error with bot %s, error %v", b.username, err))
	if captureErr := b.session.Capture("error"); captureErr != nil {
		log.Error().Err(captureErr).Msg("Failed to capture diagnostics")
	}
	return err
}

// notify never fails the caller; delivery problems are only logged.
func (b *Bot) notify(ctx context.Context, msg string) {
	if err := b.notifier.Notify(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("Notification failed")
	}
}
