package extract

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/collector"
	"github.com/fyrsmithlabs/browserlog/internal/config"
	"github.com/fyrsmithlabs/browserlog/internal/filter"
	"github.com/fyrsmithlabs/browserlog/internal/format"
	"github.com/fyrsmithlabs/browserlog/internal/retry"
)

// Options are the per-call settings of one extraction.
type Options struct {
	IncludeNetwork bool
	IncludeConsole bool
	IncludeLog     bool

	Collection collector.Config
	Filters    filter.Spec
	Format     format.Spec
}

// Domains returns the protocol domains the include flags require.
func (o Options) Domains() []cdp.Domain {
	var domains []cdp.Domain
	if o.IncludeNetwork {
		domains = append(domains, cdp.DomainNetwork)
	}
	if o.IncludeConsole {
		domains = append(domains, cdp.DomainConsole)
	}
	if o.IncludeLog {
		domains = append(domains, cdp.DomainLog)
	}
	return domains
}

// MaxWindow bounds the collection window a caller may request.
const MaxWindow = 5 * time.Minute

// Overrides are per-request changes to a base Options. Nil fields keep the
// base value.
type Overrides struct {
	Window         *time.Duration
	MaxEntries     *int
	IncludeNetwork *bool
	IncludeConsole *bool
	IncludeLog     *bool
	Filters        *filter.Spec
	Format         *format.Spec
}

// Apply returns base with o applied. The result must select at least one
// event source.
func (o Overrides) Apply(base Options) (Options, error) {
	opts := base
	if o.Window != nil {
		if *o.Window <= 0 || *o.Window > MaxWindow {
			return base, fmt.Errorf("window must be in (0, %s], got %s", MaxWindow, *o.Window)
		}
		opts.Collection.Window = *o.Window
	}
	if o.MaxEntries != nil {
		if *o.MaxEntries < 0 {
			return base, fmt.Errorf("max entries must be >= 0, got %d", *o.MaxEntries)
		}
		opts.Collection.MaxEntries = *o.MaxEntries
	}
	if o.IncludeNetwork != nil {
		opts.IncludeNetwork = *o.IncludeNetwork
	}
	if o.IncludeConsole != nil {
		opts.IncludeConsole = *o.IncludeConsole
	}
	if o.IncludeLog != nil {
		opts.IncludeLog = *o.IncludeLog
	}
	if o.Filters != nil {
		opts.Filters = *o.Filters
	}
	if o.Format != nil {
		opts.Format = *o.Format
	}
	if len(opts.Domains()) == 0 {
		return base, ErrNoSources
	}
	return opts, nil
}

// ParseWindow parses a duration string for Overrides.Window. An empty
// string yields nil.
func ParseWindow(s string) (*time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid window %q: %w", s, err)
	}
	return &d, nil
}

// ErrNoSources is returned when no event source is selected.
var ErrNoSources = errors.New("no event sources selected: enable network, console or log")

// OptionsFromConfig maps the collection, reconnect, filter and format
// sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IncludeNetwork: cfg.Collection.IncludeNetwork,
		IncludeConsole: cfg.Collection.IncludeConsole,
		IncludeLog:     cfg.Collection.IncludeLog,
		Collection: collector.Config{
			Window:           cfg.Collection.Window.Duration(),
			MaxEntries:       cfg.Collection.MaxEntries,
			ProgressInterval: cfg.Collection.ProgressInterval.Duration(),
			Reconnect: collector.ReconnectConfig{
				Enabled:     cfg.Reconnect.Enabled,
				MaxAttempts: cfg.Reconnect.MaxAttempts,
				Delay:       cfg.Reconnect.Delay.Duration(),
			},
		},
		Filters: cfg.Filters,
		Format: format.Spec{
			GroupBySource:     cfg.Format.GroupBySource,
			GroupByLevel:      cfg.Format.GroupByLevel,
			IncludeTimestamp:  cfg.Format.IncludeTimestamp,
			IncludeStackTrace: cfg.Format.IncludeStackTrace,
		},
	}
}

// ManagerConfigFromConfig maps the browser and retry sections of cfg.
func ManagerConfigFromConfig(cfg *config.Config) cdp.ManagerConfig {
	return cdp.ManagerConfig{
		Host:        cfg.Browser.Host,
		Port:        cfg.Browser.Port,
		CallTimeout: cfg.Browser.CallTimeout.Duration(),
		Retry: retry.Policy{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  cfg.Retry.InitialDelay.Duration(),
			MaxDelay:      cfg.Retry.MaxDelay.Duration(),
			BackoffFactor: cfg.Retry.BackoffFactor,
		},
	}
}
