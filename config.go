package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SiteURL        string `yaml:"site_url"`
	WithdrawURL    string `yaml:"withdraw_url"`
	LoginURLPrefix string `yaml:"login_url_prefix"`

	BrowserProfilePath string `yaml:"browser_profile_path"`
	UserAgent          string `yaml:"user_agent"`

	LoginTimeoutSeconds   int     `yaml:"login_timeout_seconds"`
	ElementTimeoutSeconds int     `yaml:"element_timeout_seconds"`
	MinDelayBetween       float64 `yaml:"min_delay_between"`
	MaxDelayBetween       float64 `yaml:"max_delay_between"`

	PollIntervalMs      int `yaml:"poll_interval_ms"`
	ExtractRetrySeconds int `yaml:"extract_retry_seconds"`
	PageRefreshSeconds  int `yaml:"page_refresh_seconds"`
	CooldownHours       int `yaml:"cooldown_hours"`

	OfferDeadlineSeconds      int `yaml:"offer_deadline_seconds"`
	OfferPollIntervalMs       int `yaml:"offer_poll_interval_ms"`
	OfferProbeSeconds         int `yaml:"offer_probe_seconds"`
	ReadyProbeSeconds         int `yaml:"ready_probe_seconds"`
	ReadyClickSeconds         int `yaml:"ready_click_seconds"`
	ErrorDialogSeconds        int `yaml:"error_dialog_seconds"`
	SidebarSeconds            int `yaml:"sidebar_seconds"`
	PriceAlertIntervalSeconds int `yaml:"price_alert_interval_seconds"`

	SlackWebhookURL    string `yaml:"slack_webhook_url"`
	NotifyWholeChannel bool   `yaml:"notify_whole_channel"`

	Headless  bool `yaml:"headless"`
	DryRun    bool `yaml:"dry_run"`
	DebugMode bool `yaml:"debug_mode"`

	Selectors SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds every locator the bot uses. Values starting with "/"
// or "(" are XPath, anything else is a CSS selector.
type SelectorConfig struct {
	SignInLink       string `yaml:"sign_in_link"`
	SteamUsername    string `yaml:"steam_username"`
	SteamPassword    string `yaml:"steam_password"`
	SteamCaptcha     string `yaml:"steam_captcha"`
	SteamLogin       string `yaml:"steam_login"`
	SteamGuardInput  string `yaml:"steam_guard_input"`
	SteamGuardSubmit string `yaml:"steam_guard_submit"`

	AllItemsButton     string `yaml:"all_items_button"`
	AuctionItemsButton string `yaml:"auction_items_button"`
	// Listing is a format string; %d is the 1-based listing position.
	Listing string `yaml:"listing"`

	Sidebar      string `yaml:"sidebar"`
	SidebarName1 string `yaml:"sidebar_name1"`
	SidebarName2 string `yaml:"sidebar_name2"`

	OfferButton   string `yaml:"offer_button"`
	OfferPrice    string `yaml:"offer_price"`
	ConfirmButton string `yaml:"confirm_button"`
	ReadyButton   string `yaml:"ready_button"`
	ErrorDialog   string `yaml:"error_dialog"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		SiteURL:        "https://csgoempire.com",
		WithdrawURL:    "https://csgoempire.com/withdraw",
		LoginURLPrefix: "https://steamcommunity.com/openid/login",

		BrowserProfilePath: filepath.Join(userDataDir, "browser-profile"),
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",

		LoginTimeoutSeconds:   120,
		ElementTimeoutSeconds: 60,
		MinDelayBetween:       0.5,
		MaxDelayBetween:       1.0,

		PollIntervalMs:      1000,
		ExtractRetrySeconds: 30,
		PageRefreshSeconds:  300,
		CooldownHours:       24,

		OfferDeadlineSeconds:      600,
		OfferPollIntervalMs:       500,
		OfferProbeSeconds:         5,
		ReadyProbeSeconds:         1,
		ReadyClickSeconds:         30,
		ErrorDialogSeconds:        1,
		SidebarSeconds:            5,
		PriceAlertIntervalSeconds: 180,

		SlackWebhookURL:    "",
		NotifyWholeChannel: true,

		Headless:  false,
		DryRun:    false,
		DebugMode: false,

		Selectors: SelectorConfig{
			SignInLink:       `//a[contains(., 'Sign In')]`,
			SteamUsername:    "#steamAccountName",
			SteamPassword:    "#steamPassword",
			SteamCaptcha:     "#captchaImg",
			SteamLogin:       "#imageLogin",
			SteamGuardInput:  "#twofactorcode_entry",
			SteamGuardSubmit: `//*[@id="login_twofactorauth_buttonset_entercode"]/div[1]`,

			AllItemsButton:     `//*[@id="page-scroll"]/div[1]/div/div/div[2]/div[1]/div[1]/div[2]/div[4]/div/div/button`,
			AuctionItemsButton: `/html/body/div[3]/div/div[1]/div[1]/button[2]/div/div`,
			Listing:            `//*[@id="page-scroll"]/div[1]/div/div/div[3]/div/div/div[%d]`,

			Sidebar:      ".trades-sidebar",
			SidebarName1: `/html/body/div[1]/div[6]/div/div[3]/div/div/div/div[3]/div[1]/div/div[2]/div[1]`,
			SidebarName2: `/html/body/div[1]/div[6]/div/div[3]/div/div/div/div[3]/div[1]/div/div[2]/div[2]`,

			OfferButton:   `/html/body/div[1]/div[6]/div/div[3]/div/div/div/div[4]/div[3]/button`,
			OfferPrice:    `/html/body/div[1]/div[6]/div/div[3]/div/div/div/div[4]/div[2]/div/div/div[2]/div[2]`,
			ConfirmButton: `/html/body/div[1]/div[6]/div/div[3]/div/div/div/div[4]/div[3]/button[2]`,
			ReadyButton:   `/html/body/div[1]/div[6]/div/div[2]/div/div/div/div[4]/div[2]/div[1]/button`,
			ErrorDialog:   ".dialog-c-text",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	}

	// Keep the webhook out of the config file when it comes from the environment
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		config.SlackWebhookURL = webhook
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.WithdrawURL == "" {
		return fmt.Errorf("withdraw_url is required")
	}
	if !strings.Contains(c.Selectors.Listing, "%d") {
		return fmt.Errorf("selectors.listing must contain %%d for the listing position")
	}
	if c.PollIntervalMs <= 0 || c.OfferPollIntervalMs <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.OfferDeadlineSeconds <= 0 {
		return fmt.Errorf("offer_deadline_seconds must be positive")
	}
	if c.MaxDelayBetween < c.MinDelayBetween {
		return fmt.Errorf("max_delay_between must not be below min_delay_between")
	}
	if c.PriceAlertIntervalSeconds <= 0 {
		return fmt.Errorf("price_alert_interval_seconds must be positive")
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
