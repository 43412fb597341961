package sand

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
)

// Default values, the refresh interval matches a polling loop that is cheap enough for most uses
const (
	defaultRefreshInterval = time.Second
	defaultWorkers         = 4
	defaultName            = "default"
)

// Options configures a sand clock
type Options struct {
	RefreshInterval time.Duration // How often the table is scanned for timed out keys (required)
	TimeoutDuration time.Duration // Inactivity after which a key times out (required)
	Workers         int           // Number of goroutines delivering events (0 = use default: 4)
	Name            string        // Name used in logs and as metrics label ("" = "default")
}

// DefaultOptions returns the default options.
// The timeout duration has no default and must be set by the caller.
func DefaultOptions() *Options {
	return &Options{
		RefreshInterval: defaultRefreshInterval,
		Workers:         defaultWorkers,
		Name:            defaultName,
	}
}

// validate checks the options and fills in defaults for optional fields.
// It returns a copy, the caller's options are never modified.
func (o *Options) validate() (Options, error) {
	if o == nil {
		return Options{}, clock.ErrNoTimeout
	}
	opts := *o

	if opts.TimeoutDuration <= 0 {
		if opts.TimeoutDuration < 0 {
			return opts, clock.NewError(clock.ErrCNoTimeout, fmt.Sprintf("timeout duration must be positive, got %s", opts.TimeoutDuration))
		}
		return opts, clock.ErrNoTimeout
	}
	if opts.RefreshInterval <= 0 {
		if opts.RefreshInterval < 0 {
			return opts, clock.NewError(clock.ErrCNoRefresh, fmt.Sprintf("refresh interval must be positive, got %s", opts.RefreshInterval))
		}
		return opts, clock.ErrNoRefresh
	}
	if opts.Workers < 0 {
		return opts, clock.NewError(clock.ErrCInvalidOption, fmt.Sprintf("workers must not be negative, got %d", opts.Workers))
	}
	if opts.Workers == 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Name == "" {
		opts.Name = defaultName
	}
	return opts, nil
}

// String returns a formatted string representation of the options
func (o *Options) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Sand Clock")
	addField("Name", o.Name)
	addField("Refresh Interval", o.RefreshInterval.String())
	addField("Timeout Duration", o.TimeoutDuration.String())
	addField("Detection Window", fmt.Sprintf("%s - %s", o.TimeoutDuration, o.TimeoutDuration+o.RefreshInterval))
	addField("Workers", fmt.Sprintf("%d", o.Workers))

	return sb.String()
}
