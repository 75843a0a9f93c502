package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg string) error {
	n.messages = append(n.messages, msg)
	return n.err
}

// testBot wires a Bot to a fake page and a fake clock. Sleeping advances the
// clock instead of blocking.
type testBot struct {
	*Bot
	session  *fakeSession
	notifier *recordingNotifier
	clock    time.Time
	sleeps   []time.Duration
}

func newTestBot(t *testing.T, wanted ...WantedItem) *testBot {
	t.Helper()
	config := DefaultConfig()
	tb := &testBot{
		session:  newFakeSession(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	tb.Bot = NewBot(config, tb.session, tb.notifier, "gaben", wanted)
	tb.now = func() time.Time { return tb.clock }
	tb.priceAlerts.now = tb.now
	tb.sleep = func(ctx context.Context, d time.Duration) error {
		tb.sleeps = append(tb.sleeps, d)
		tb.clock = tb.clock.Add(d)
		return ctx.Err()
	}
	tb.pageOpenedAt = tb.clock
	return tb
}

func (tb *testBot) advance(d time.Duration) {
	tb.clock = tb.clock.Add(d)
}

// showSidebar makes clicking listing position i open the trade sidebar for
// the given names.
func (tb *testBot) showSidebar(position int, name1, name2 string) *fakeElement {
	sel := tb.config.Selectors
	return tb.session.add(fmt.Sprintf(sel.Listing, position), &fakeElement{onClick: func() {
		tb.session.add(sel.Sidebar, &fakeElement{})
		tb.session.add(sel.SidebarName1, &fakeElement{text: name1})
		tb.session.add(sel.SidebarName2, &fakeElement{text: name2})
	}})
}

// acceptOffers makes the offer panel go through offer, confirm and ready.
func (tb *testBot) acceptOffers(offerPrice string) *fakeElement {
	sel := tb.config.Selectors
	s := tb.session
	ready := &fakeElement{}
	s.add(sel.OfferPrice, &fakeElement{text: offerPrice})
	s.add(sel.OfferButton, &fakeElement{})
	s.add(sel.ConfirmButton, &fakeElement{onClick: func() {
		s.remove(sel.OfferButton)
		s.remove(sel.ConfirmButton)
		s.add(sel.ReadyButton, ready)
	}})
	return ready
}

func redlineWanted() WantedItem {
	return WantedItem{Name1: "AK-47", Name2: "Redline", MaxPrice: 100, WearValue: wear(0.15)}
}

func TestBotCycleBidsAndCoolsDown(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(
		listingHTML("AWP", "Asiimov", "99", "", ""),
		listingHTML("AK-47", "Redline", "80", "5% off", `<span>FT</span><span>|</span><span>~0.2</span>`),
	)
	listing := tb.showSidebar(2, "AK-47", "Redline")
	ready := tb.acceptOffers("90.00")

	require.NoError(t, tb.runCycle(context.Background()))

	assert.Equal(t, 1, listing.clicks)
	assert.Equal(t, 1, ready.clicks)
	require.Len(t, tb.notifier.messages, 2)
	assert.True(t, strings.HasPrefix(tb.notifier.messages[0], "BIDING AN ITEM AuctionItem("), tb.notifier.messages[0])
	assert.Equal(t, "Offer successfully: "+redlineWanted().String(), tb.notifier.messages[1])
	assert.Equal(t, 24*time.Hour, tb.sleeps[len(tb.sleeps)-1])
}

func TestBotCycleReportsFailedOffer(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>|</span><span>~0.2</span>`))
	tb.showSidebar(1, "AK-47", "Redline")
	sel := tb.config.Selectors
	tb.session.add(sel.OfferPrice, &fakeElement{text: "90"})
	tb.session.add(sel.OfferButton, &fakeElement{})

	require.NoError(t, tb.runCycle(context.Background()))

	require.Len(t, tb.notifier.messages, 2)
	assert.Equal(t,
		"FAILED to offer: "+redlineWanted().String()+", error message Cannot find Confirm button. Auction failed!",
		tb.notifier.messages[1])
	assert.Equal(t, 24*time.Hour, tb.sleeps[len(tb.sleeps)-1])
}

func TestBotCycleSkipsHighOfferPrice(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>|</span><span>~0.2</span>`))
	tb.showSidebar(1, "AK-47", "Redline")
	sel := tb.config.Selectors
	tb.session.add(sel.OfferPrice, &fakeElement{text: "120"})
	offer := tb.session.add(sel.OfferButton, &fakeElement{})

	require.NoError(t, tb.runCycle(context.Background()))

	assert.Equal(t, 0, offer.clicks)
	require.Len(t, tb.notifier.messages, 1)
	assert.True(t, strings.HasPrefix(tb.notifier.messages[0], "BIDING AN ITEM"))
	assert.NotContains(t, tb.sleeps, 24*time.Hour)
}

func TestBotCycleSidebarMismatch(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>|</span><span>~0.2</span>`))
	tb.showSidebar(1, "AK-47", "Vulcan")
	offer := tb.session.add(tb.config.Selectors.OfferButton, &fakeElement{})

	require.NoError(t, tb.runCycle(context.Background()))

	assert.Equal(t, 0, offer.clicks)
	assert.Len(t, tb.notifier.messages, 1)
}

func TestBotCycleWearAndNameFilters(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(
		listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>|</span><span>~0.1</span>`),
		listingHTML("AK-47", "Vulcan", "80", "", `<span>FT</span><span>|</span><span>~0.2</span>`),
	)

	require.NoError(t, tb.runCycle(context.Background()))

	assert.Empty(t, tb.notifier.messages)
}

func TestBotPriceAlertsAreThrottled(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "150", "", `<span>FT</span><span>|</span><span>~0.2</span>`))
	ctx := context.Background()

	require.NoError(t, tb.runCycle(ctx))
	tb.advance(10 * time.Second)
	require.NoError(t, tb.runCycle(ctx))
	tb.advance(171 * time.Second)
	require.NoError(t, tb.runCycle(ctx))

	require.Len(t, tb.notifier.messages, 2)
	expected := "Found an auction item with higher price " +
		`AuctionItem(quality="FT", wear_value=0.2, name1="AK-47", name2="Redline", price=150, offer_percent=0)` +
		", our max price 100"
	assert.Equal(t, expected, tb.notifier.messages[0])
	assert.Equal(t, expected, tb.notifier.messages[1])
}

func TestBotPollRetriesEmptyPage(t *testing.T) {
	tb := newTestBot(t, redlineWanted())

	items, err := tb.pollListings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Len(t, tb.sleeps, 31)
	for _, d := range tb.sleeps {
		assert.Equal(t, time.Second, d)
	}
}

func TestBotExtractSwallowsMalformedListing(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>~0.2</span>`))

	items, err := tb.extract()
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestBotReopensStalePage(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	sel := tb.config.Selectors
	all := tb.session.add(sel.AllItemsButton, &fakeElement{})
	auction := tb.session.add(sel.AuctionItemsButton, &fakeElement{})
	tb.session.html = auctionPage(listingHTML("AWP", "Asiimov", "99", "", ""))

	tb.advance(299 * time.Second)
	require.NoError(t, tb.runCycle(context.Background()))
	assert.Empty(t, tb.session.navigated)

	tb.advance(2 * time.Second)
	require.NoError(t, tb.runCycle(context.Background()))
	assert.Equal(t, []string{tb.config.WithdrawURL}, tb.session.navigated)
	assert.Equal(t, 1, all.clicks)
	assert.Equal(t, 1, auction.clicks)
	assert.Equal(t, tb.clock, tb.pageOpenedAt)
}

func TestBotRunReportsTerminalError(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.session.navigateErr = errors.New("net::ERR_CONNECTION_RESET")

	err := tb.Run(context.Background())
	require.Error(t, err)

	require.Len(t, tb.notifier.messages, 2)
	assert.Equal(t, "gaben will try to bid for item ["+redlineWanted().String()+"]", tb.notifier.messages[0])
	assert.Equal(t, "There is an error with bot gaben, error net::ERR_CONNECTION_RESET", tb.notifier.messages[1])
	assert.Equal(t, []string{"error"}, tb.session.captured)
}

func TestBotRunEscalatesMissingListing(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	sel := tb.config.Selectors
	tb.session.add(sel.AllItemsButton, &fakeElement{})
	tb.session.add(sel.AuctionItemsButton, &fakeElement{})
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>|</span><span>~0.2</span>`))

	err := tb.Run(context.Background())
	require.ErrorIs(t, err, ErrElementNotFound)
	assert.True(t, strings.HasPrefix(tb.notifier.messages[len(tb.notifier.messages)-1], "There is an error with bot gaben"))
	assert.Equal(t, []string{"error"}, tb.session.captured)
}

func TestBotRunStopsOnCancel(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	sel := tb.config.Selectors
	tb.session.add(sel.AllItemsButton, &fakeElement{})
	tb.session.add(sel.AuctionItemsButton, &fakeElement{})
	tb.session.html = auctionPage(listingHTML("AWP", "Asiimov", "99", "", ""))
	tb.config.PollIntervalMs = 250

	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	tb.sleep = func(ctx context.Context, d time.Duration) error {
		if d == millis(tb.config.PollIntervalMs) {
			cycles++
			if cycles == 3 {
				cancel()
			}
		}
		return ctx.Err()
	}

	err := tb.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, cycles)
	assert.Empty(t, tb.session.captured)
	assert.Len(t, tb.notifier.messages, 1)
}

func TestBotNotifyFailureIsNotFatal(t *testing.T) {
	tb := newTestBot(t, redlineWanted())
	tb.notifier.err = errors.New("slack down")
	tb.session.html = auctionPage(listingHTML("AK-47", "Redline", "80", "", `<span>FT</span><span>|</span><span>~0.2</span>`))
	tb.showSidebar(1, "AK-47", "Redline")
	tb.acceptOffers("90")

	require.NoError(t, tb.runCycle(context.Background()))
	assert.Len(t, tb.notifier.messages, 2)
}
