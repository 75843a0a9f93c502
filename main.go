package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

type options struct {
	username   string
	password   string
	configPath string
	headless   bool
	debug      bool
	dryRun     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "auctionbot <wanted.csv>",
		Short: "Watches the CSGOEmpire auction page and bids on wanted items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0])
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.username, "username", "u", "", "Steam username")
	flags.StringVarP(&opts.password, "password", "p", "", "Steam password (prompted when omitted)")
	flags.StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	flags.BoolVar(&opts.headless, "headless", false, "Run the browser without a window")
	flags.BoolVar(&opts.debug, "debug", false, "Enable detailed debug logging")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Stop before placing any offer")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func run(ctx context.Context, opts *options, wantedPath string) error {
	setupEnvironment(os.Stderr, opts.debug)
	checkUserDataDirPermissions()

	config, err := LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(config, opts)
	applyDebugMode(config.DebugMode)

	wanted, err := LoadWantedItems(wantedPath)
	if err != nil {
		return fmt.Errorf("failed to load wanted items: %w", err)
	}

	ui := input.DefaultUI()
	if opts.password == "" {
		opts.password, err = ui.Ask("Steam password:", &input.Options{Required: true, Mask: true, HideOrder: true})
		if err != nil {
			return err
		}
	}

	printBanner(config, opts.username, wanted)

	automation := NewAutomation(config)
	defer automation.Close()

	if err := automation.setupBrowser(); err != nil {
		return fmt.Errorf("failed to setup browser: %w", err)
	}

	signIn := NewSignIn(automation, config, ui, automation.randomDelay)
	if err := signIn.Run(ctx, opts.username, opts.password); err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}

	notifier := NewSlackNotifier(config.SlackWebhookURL, config.NotifyWholeChannel)
	bot := NewBot(config, automation, notifier, opts.username, wanted)
	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info().Msg("Stopped")
	return nil
}

func applyFlags(config *Config, opts *options) {
	if opts.headless {
		config.Headless = true
	}
	if opts.dryRun {
		config.DryRun = true
	}
	if opts.debug {
		config.DebugMode = true
	}
}

func printBanner(config *Config, username string, wanted []WantedItem) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║               CSGOEmpire Auction Bidder                   ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Account: %s\n", username)
	fmt.Printf("Browser Profile: %s\n", config.BrowserProfilePath)
	if config.DryRun {
		fmt.Println("🧪 DRY RUN MODE - No offer will be placed")
	}
	if config.DebugMode {
		fmt.Println("🔍 DEBUG MODE - Detailed logging enabled")
	}
	if config.SlackWebhookURL == "" {
		fmt.Println("🔕 No Slack webhook configured, alerts go to the log only")
	}
	fmt.Println()
	fmt.Println(RenderWantedTable(wanted))
	fmt.Println()
}

var initUserDataDirError error

func init() {
	userDataDir := getUserDataDir()
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		initUserDataDirError = err
	}
}

func checkUserDataDirPermissions() {
	if initUserDataDirError == nil {
		return
	}
	userDataDir := getUserDataDir()
	if runtime.GOOS == "darwin" && strings.Contains(initUserDataDirError.Error(), "operation not permitted") {
		log.Warn().
			Str("path", userDataDir).
			Msg("macOS blocked access to the data directory. Grant your terminal Full Disk Access in System Settings > Privacy & Security, then restart it.")
	}
	log.Warn().Err(initUserDataDirError).Str("path", userDataDir).Msg("Could not create user data directory")
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./auctionbot-data"
	}
	return filepath.Join(home, ".auctionbot")
}
