package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AuctionItem is one listing scraped from the auction page. Items are rebuilt
// on every poll and have no identity beyond their position in that poll.
type AuctionItem struct {
	Quality      string
	WearValue    float64 // 0 when the listing has no wear band
	Name1        string
	Name2        string
	Price        float64
	OfferPercent float64
}

func (it AuctionItem) String() string {
	return fmt.Sprintf("AuctionItem(quality=%q, wear_value=%v, name1=%q, name2=%q, price=%v, offer_percent=%v)",
		it.Quality, it.WearValue, it.Name1, it.Name2, it.Price, it.OfferPercent)
}

// ExtractError aborts a whole extraction pass. Raw holds the listing nodes
// exactly as they were found so the caller can inspect or dump them.
type ExtractError struct {
	Index int
	Raw   *goquery.Selection
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract listing %d of %d: %v", e.Index, e.Raw.Length(), e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

const (
	listingSelector = "div.item--trading"
	nameSelector    = "div.item__name"
	priceSelector   = "div.item__price"
	qualitySelector = "div.item__quality"
)

// ExtractListings parses a rendered auction page into listings, in page order.
// A single malformed listing fails the whole pass: no partial result is
// returned, only an *ExtractError.
func ExtractListings(r io.Reader) ([]AuctionItem, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	nodes := doc.Find(listingSelector)
	items := make([]AuctionItem, 0, nodes.Length())

	var extractErr *ExtractError
	nodes.EachWithBreak(func(i int, s *goquery.Selection) bool {
		item, err := extractListing(s)
		if err != nil {
			extractErr = &ExtractError{Index: i, Raw: nodes, Err: err}
			return false
		}
		items = append(items, item)
		return true
	})
	if extractErr != nil {
		return nil, extractErr
	}

	return items, nil
}

func extractListing(s *goquery.Selection) (AuctionItem, error) {
	var item AuctionItem

	nameElem := s.Find(nameSelector).First()
	if nameElem.Length() == 0 {
		return item, fmt.Errorf("no %s", nameSelector)
	}
	item.Name2 = strings.TrimSpace(nameElem.Text())

	// The primary name, when there is one, sits right before the secondary name
	if prev := nameElem.Prev(); prev.Length() > 0 && goquery.NodeName(prev) == "div" {
		item.Name1 = strings.TrimSpace(prev.Text())
	}

	priceElem := s.Find(priceSelector).First()
	if priceElem.Length() == 0 {
		return item, fmt.Errorf("no %s", priceSelector)
	}
	price, err := parseAmount(priceElem.Text())
	if err != nil {
		return item, fmt.Errorf("price: %w", err)
	}
	if price < 0 {
		return item, fmt.Errorf("negative price %v", price)
	}
	item.Price = price

	if btn := priceElem.Next().Find("button").First(); btn.Length() > 0 {
		percent, err := parseOfferPercent(btn.Text())
		if err != nil {
			return item, fmt.Errorf("offer percent: %w", err)
		}
		item.OfferPercent = percent
	}

	qualityElem := s.Find(qualitySelector).First()
	if qualityElem.Length() > 0 {
		quality, wear, err := parseQuality(qualityElem.Find("span"))
		if err != nil {
			return item, err
		}
		item.Quality = quality
		item.WearValue = wear
	}

	return item, nil
}

// parseQuality reads the quality markers. One marker is a bare quality, three
// markers are quality, separator and an approximate wear like "~0.153".
func parseQuality(spans *goquery.Selection) (string, float64, error) {
	switch spans.Length() {
	case 0:
		return "", 0, nil
	case 1:
		return strings.TrimSpace(spans.First().Text()), 0, nil
	case 3:
		quality := strings.TrimSpace(spans.First().Text())
		raw := strings.TrimSpace(spans.Eq(2).Text())
		wear, err := strconv.ParseFloat(strings.TrimPrefix(raw, "~"), 64)
		if err != nil {
			return "", 0, fmt.Errorf("wear value %q: %w", raw, err)
		}
		return quality, wear, nil
	default:
		return "", 0, fmt.Errorf("cannot detect wear value from %d quality markers", spans.Length())
	}
}

// parseOfferPercent turns "5% off" into -5 and "+3%" into 3.
func parseOfferPercent(text string) (float64, error) {
	text = strings.ToLower(text)
	sign := 1.0
	if strings.Contains(text, "off") {
		sign = -1
		text = strings.ReplaceAll(text, "off", "")
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "%", ""))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	return sign * v, nil
}

// parseAmount parses a displayed coin amount such as "1,234.56".
func parseAmount(text string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, ",", "")), 64)
}
