package main

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Verdict is the outcome of matching one listing against one wanted item.
type Verdict int

const (
	NameMismatch Verdict = iota
	WearRejected
	PriceTooHigh
	Qualified
)

func (v Verdict) String() string {
	switch v {
	case NameMismatch:
		return "name_mismatch"
	case WearRejected:
		return "wear_rejected"
	case PriceTooHigh:
		return "price_too_high"
	case Qualified:
		return "qualified"
	default:
		return "unknown"
	}
}

var nonNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// normalizeName keeps letters, digits, '-' and '_' and lowercases the rest,
// so "StatTrak™ AK-47" and "stattrak ak-47" compare equal.
func normalizeName(name string) string {
	return strings.ToLower(nonNameChars.ReplaceAllString(name, ""))
}

// Qualify decides whether item is worth bidding on for wanted. It has no side
// effects; alerts for PriceTooHigh and Qualified are the caller's business.
func Qualify(wanted WantedItem, item AuctionItem) Verdict {
	if normalizeName(item.Name1) != normalizeName(wanted.Name1) ||
		normalizeName(item.Name2) != normalizeName(wanted.Name2) {
		return NameMismatch
	}

	// The configured wear is a floor: only listings above it qualify. A
	// listing without a wear band reads as 0 and never clears a set floor.
	if wanted.WearValue != nil && item.WearValue <= *wanted.WearValue {
		return WearRejected
	}

	if item.Price > wanted.MaxPrice {
		return PriceTooHigh
	}
	return Qualified
}

// IsQualified reports whether Qualify accepts the pair.
func IsQualified(wanted WantedItem, item AuctionItem) bool {
	return Qualify(wanted, item) == Qualified
}

// AlertLimiter lets one alert through per interval and drops the rest.
type AlertLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func NewAlertLimiter(interval time.Duration) *AlertLimiter {
	return &AlertLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		now:     time.Now,
	}
}

// Allow reports whether an alert may fire now and consumes the slot if so.
func (l *AlertLimiter) Allow() bool {
	return l.limiter.AllowN(l.now(), 1)
}
