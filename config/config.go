// Package config loads the cashierd process configuration, the way the
// teacher's root config.go loads lnd's: a struct tagged for
// github.com/jessevdk/go-flags, a default set, and a Load that
// merges flags over defaults and validates the result.
package config

import (
	"fmt"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// RateLimitRule is the {capacity, window} pair spec.md §4.1/§6 requires
// per rate-limited method.
type RateLimitRule struct {
	Capacity uint64        `long:"capacity" description:"max acquires per window"`
	Window   time.Duration `long:"window" description:"fixed window length"`
}

// defaultRateLimits implements spec.md §6's init-time defaults: 10 per
// 10 minutes for create_link, create_action, process_action, update_action.
func defaultRateLimits() map[string]RateLimitRule {
	rule := RateLimitRule{Capacity: 10, Window: 10 * time.Minute}
	return map[string]RateLimitRule{
		"create_link":    rule,
		"create_action":  rule,
		"process_action": rule,
		"update_action":  rule,
	}
}

// Config is the fully resolved process configuration.
type Config struct {
	DataDir string `long:"datadir" description:"directory holding the bbolt store"`
	Listen  string `long:"listen" description:"JSON/HTTP API listen address"`
	LogDir  string `long:"logdir" description:"directory for rotated logs"`
	LogLevel string `long:"loglevel" description:"debug|info|warn|error"`
	Profile string `long:"profile" description:"profiling port (parsed but not read; nothing starts net/http/pprof)"`

	TreasuryPrincipal string `long:"treasuryprincipal" description:"account that collects CREATE_LINK_FEE"`
	ServicePrincipal  string `long:"serviceprincipal" description:"this service's own ledger account; link sub-accounts are derived from it"`
	CreateLinkFee     uint64 `long:"createlinkfee" description:"fee charged on CreateLink, in base units"`
	LedgerFee         uint64 `long:"ledgerfee" description:"per-transfer ledger fee, uniform across assets in this port"`

	TxTimeout               time.Duration `long:"txtimeout" description:"Processing transaction timeout before Fail"`
	IcrcTransactionTimeWindow time.Duration `long:"icrctxwindow" description:"ledger dedup window (not read; the icrc112 builder uses its fixed TransactionTimeWindow)"`

	RateLimits map[string]RateLimitRule `no-flag:"true"`
}

// Default returns the configuration the teacher's loadConfig would
// produce with no flags supplied, used by tests and as the base that
// flags.Parse overlays onto.
func Default() *Config {
	return &Config{
		DataDir:                   "./data",
		Listen:                    "localhost:10100",
		LogDir:                    "./logs",
		LogLevel:                  "info",
		CreateLinkFee:             10_000,
		LedgerFee:                 10,
		TxTimeout:                 5 * time.Minute,
		IcrcTransactionTimeWindow: 24 * time.Hour,
		RateLimits:                defaultRateLimits(),
	}
}

// Load parses args (typically os.Args[1:]) over Default(), mirroring the
// teacher's loadConfig: flags override defaults, then the result is
// validated.
func Load(args []string) (*Config, error) {
	cfg := Default()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the orchestration core cannot safely
// start with.
func (c *Config) Validate() error {
	if c.TreasuryPrincipal == "" {
		return fmt.Errorf("treasuryprincipal must be set")
	}
	if c.ServicePrincipal == "" {
		return fmt.Errorf("serviceprincipal must be set")
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("txtimeout must be positive")
	}
	for method, rule := range c.RateLimits {
		if rule.Capacity == 0 || rule.Window <= 0 {
			return fmt.Errorf("invalid rate limit rule for %s", method)
		}
	}
	return nil
}
