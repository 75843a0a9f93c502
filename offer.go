package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// OfferResult is how an offer attempt ended. Notify separates failures the
// operator must hear about from quiet skips such as a price above the cap.
type OfferResult struct {
	Message string
	Success bool
	Notify  bool
}

type offerState int

const (
	stateSelecting offerState = iota
	stateOffering
	stateWaitingReady
	stateConfirmingReady
	stateDone
	stateFailed
)

func (s offerState) String() string {
	switch s {
	case stateSelecting:
		return "selecting"
	case stateOffering:
		return "offering"
	case stateWaitingReady:
		return "waiting_ready"
	case stateConfirmingReady:
		return "confirming_ready"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func failed(format string, args ...any) OfferResult {
	return OfferResult{Message: fmt.Sprintf(format, args...), Notify: true}
}

// offerSelectedItem drives the offer panel of the selected listing until the
// trade is ready, the offer is refused or the deadline passes. The returned
// error is reserved for session failures the poll loop cannot recover from.
func (b *Bot) offerSelectedItem(ctx context.Context, item AuctionItem, maxPrice float64) (OfferResult, error) {
	cfg := b.config
	start := b.now()
	state := stateSelecting

	for {
		next := b.probeOffer()
		switch {
		case next != stateSelecting:
			b.setState(&state, next)
		case state == stateOffering:
			// Offer went out, nothing to click until the trade is ready
			b.setState(&state, stateWaitingReady)
		}

		switch next {
		case stateConfirmingReady:
			log.Info().Msg("Ready to trade")
			btn, ok := b.lookup(cfg.Selectors.ReadyButton, Clickable, seconds(cfg.ReadyClickSeconds))
			if !ok {
				b.setState(&state, stateFailed)
				return failed("Cannot find ready to trade button. Auction failed!"), nil
			}
			if err := btn.Click(); err != nil {
				return OfferResult{}, fmt.Errorf("click ready to trade: %w", err)
			}
			b.setState(&state, stateDone)
			return OfferResult{Success: true, Notify: true}, nil

		case stateOffering:
			result, done, err := b.submitOffer(item, maxPrice)
			if err != nil || done {
				return result, err
			}
		}

		if b.now().Sub(start) > seconds(cfg.OfferDeadlineSeconds) {
			b.setState(&state, stateFailed)
			return failed("Something is wrong with auction. Do not know what to do"), nil
		}

		if err := b.sleep(ctx, millis(cfg.OfferPollIntervalMs)); err != nil {
			return OfferResult{}, err
		}
	}
}

// probeOffer checks which control the offer panel currently shows.
func (b *Bot) probeOffer() offerState {
	cfg := b.config
	if _, ok := b.lookup(cfg.Selectors.OfferButton, Clickable, seconds(cfg.OfferProbeSeconds)); ok {
		return stateOffering
	}
	if _, ok := b.lookup(cfg.Selectors.ReadyButton, Visible, seconds(cfg.ReadyProbeSeconds)); ok {
		return stateConfirmingReady
	}
	return stateSelecting
}

// submitOffer places the offer when the current offer price is within
// maxPrice. done is false when the offer went out and the loop should keep
// waiting for the trade to become ready.
func (b *Bot) submitOffer(item AuctionItem, maxPrice float64) (result OfferResult, done bool, err error) {
	sel := b.config.Selectors

	priceElem, err := b.session.Find(sel.OfferPrice, Present, 0)
	if err != nil {
		return OfferResult{}, true, fmt.Errorf("offer price: %w", err)
	}
	text, err := priceElem.Text()
	if err != nil {
		return OfferResult{}, true, fmt.Errorf("offer price text: %w", err)
	}
	offerPrice, err := parseAmount(text)
	if err != nil {
		return OfferResult{}, true, fmt.Errorf("offer price %q: %w", text, err)
	}

	if offerPrice > maxPrice {
		msg := fmt.Sprintf("Item %s %s has high offer price %v, max price %v. Will ignore auction!",
			item.Name1, item.Name2, offerPrice, maxPrice)
		log.Info().Msg(msg)
		return OfferResult{Message: msg}, true, nil
	}
	log.Info().
		Str("item", item.Name1+" "+item.Name2).
		Float64("offer_price", offerPrice).
		Float64("max_price", maxPrice).
		Msg("Good offer price, offering")

	if b.config.DryRun {
		msg := fmt.Sprintf("Dry run: would offer %v for %s %s", offerPrice, item.Name1, item.Name2)
		log.Warn().Msg(msg)
		return OfferResult{Message: msg}, true, nil
	}

	btn, ok := b.lookup(sel.OfferButton, Clickable, seconds(b.config.OfferProbeSeconds))
	if !ok {
		return failed("Cannot find Offer button. Auction failed!"), true, nil
	}
	if err := btn.Click(); err != nil {
		return OfferResult{}, true, fmt.Errorf("click offer: %w", err)
	}

	btn, ok = b.lookup(sel.ConfirmButton, Clickable, seconds(b.config.OfferProbeSeconds))
	if !ok {
		return failed("Cannot find Confirm button. Auction failed!"), true, nil
	}
	if err := btn.Click(); err != nil {
		return OfferResult{}, true, fmt.Errorf("click confirm: %w", err)
	}

	if dialog, ok := b.lookup(sel.ErrorDialog, Visible, seconds(b.config.ErrorDialogSeconds)); ok {
		text, err := dialog.Text()
		if err != nil {
			text = err.Error()
		}
		return failed("Failed to offer, error: %s", text), true, nil
	}

	return OfferResult{}, false, nil
}

// lookup is Find for probes: any failure means the control is not there.
func (b *Bot) lookup(locator string, cond Condition, timeout time.Duration) (Element, bool) {
	el, err := b.session.Find(locator, cond, timeout)
	if err != nil {
		if !errors.Is(err, ErrElementNotFound) {
			log.Debug().Err(err).Str("locator", locator).Msg("Lookup failed")
		}
		return nil, false
	}
	return el, true
}

func (b *Bot) setState(state *offerState, next offerState) {
	if *state != next {
		log.Debug().Stringer("from", *state).Stringer("to", next).Msg("Offer state changed")
		*state = next
	}
}
