package simulate

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand"
	"github.com/ValentinKolb/sandclock/lib/clock/util"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("cli")

// Session is a composite key much larger than a machine word, events still carry it as a
// one word handle
type Session struct {
	Client uuid.UUID
	Device [32]byte
}

// Config of one simulation run
type Config struct {
	Clients        int           // Number of simulated clients
	SilentFraction float64       // Fraction of clients that stop touching half way through the run
	TouchInterval  time.Duration // Interval between two touches of one client
	Duration       time.Duration // Total run time
	KeyType        string        // uuid or session
	Seed           int64         // Seed for choosing the silent clients
}

// Report is the result of a simulation run
type Report struct {
	Clients        int        `json:"clients" yaml:"clients"`
	Silent         int        `json:"silent" yaml:"silent"`
	Detected       int        `json:"detected" yaml:"detected"`
	Missed         int        `json:"missed" yaml:"missed"`
	FalsePositives int        `json:"false_positives" yaml:"false_positives"`
	Duplicates     int64      `json:"duplicates" yaml:"duplicates"`
	Touches        int64      `json:"touches" yaml:"touches"`
	DelayMs        util.Stats `json:"detection_delay_ms" yaml:"detection_delay_ms"`
	Clock          clock.Info `json:"clock" yaml:"clock"`
}

// client is one simulated client
type client[K comparable] struct {
	key       K
	silent    bool
	lastTouch atomic.Int64 // unix nano, taken right before the last touch
}

// Run executes a simulation against a sand clock built from opts.
// If metricsOut is not nil, the metrics of the clock are written to it at the end.
func Run(ctx context.Context, cfg Config, opts *sand.Options, metricsOut io.Writer) (*Report, error) {
	switch cfg.KeyType {
	case "", "uuid":
		return runWithKeys(ctx, cfg, opts, metricsOut, func(*rand.Rand) uuid.UUID {
			return uuid.New()
		})
	case "session":
		return runWithKeys(ctx, cfg, opts, metricsOut, func(r *rand.Rand) Session {
			s := Session{Client: uuid.New()}
			r.Read(s.Device[:])
			return s
		})
	default:
		return nil, fmt.Errorf("unknown key type %q (must be one of uuid, session)", cfg.KeyType)
	}
}

func runWithKeys[K comparable](ctx context.Context, cfg Config, opts *sand.Options, metricsOut io.Writer, newKey func(*rand.Rand) K) (*Report, error) {
	if cfg.Clients <= 0 {
		return nil, fmt.Errorf("clients must be positive, got %d", cfg.Clients)
	}
	if cfg.TouchInterval <= 0 || cfg.TouchInterval >= opts.TimeoutDuration {
		return nil, fmt.Errorf("touch interval (%s) must be positive and shorter than the timeout (%s)", cfg.TouchInterval, opts.TimeoutDuration)
	}
	if cfg.Duration/2 < opts.TimeoutDuration+opts.RefreshInterval {
		log.Warningf("run duration %s is too short to detect every silent client (needs at least %s)",
			cfg.Duration, 2*(opts.TimeoutDuration+opts.RefreshInterval))
	}

	// create clients
	r := rand.New(rand.NewSource(cfg.Seed))
	clients := make([]*client[K], cfg.Clients)
	for i := range clients {
		clients[i] = &client[K]{
			key:    newKey(r),
			silent: r.Float64() < cfg.SilentFraction,
		}
	}

	// create clock
	detected := xsync.NewMapOf[K, time.Time]()
	var duplicates atomic.Int64
	handler := clock.HandlerFunc[K](func(key K, kind clock.EventKind) {
		if kind != clock.EventTimeout {
			return
		}
		if _, loaded := detected.LoadOrStore(key, time.Now()); loaded {
			duplicates.Add(1)
		}
	})

	clk, err := sand.New[K](opts, handler)
	if err != nil {
		return nil, err
	}

	// run clients
	var touches atomic.Int64
	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	start := time.Now()
	silentAt := cfg.Duration / 2
	g, gctx := errgroup.WithContext(runCtx)
	for _, c := range clients {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.TouchInterval)
			defer ticker.Stop()
			for {
				if c.silent && time.Since(start) >= silentAt {
					return nil
				}
				c.lastTouch.Store(time.Now().UnixNano())
				clk.Touch(c.key)
				touches.Add(1)

				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// active clients stopped touching just now, shut down before any of them times out
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := clk.Shutdown(shutdownCtx); err != nil {
		return nil, fmt.Errorf("failed to shut down clock: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// evaluate
	report := &Report{
		Clients:    cfg.Clients,
		Touches:    touches.Load(),
		Duplicates: duplicates.Load(),
	}
	var delays []float64
	for _, c := range clients {
		at, ok := detected.Load(c.key)
		switch {
		case c.silent && ok:
			report.Silent++
			report.Detected++
			delays = append(delays, float64(at.UnixNano()-c.lastTouch.Load())/float64(time.Millisecond))
		case c.silent:
			report.Silent++
			report.Missed++
		case ok:
			report.FalsePositives++
		}
	}
	report.DelayMs = util.NewStats(delays)
	report.Clock = clk.GetInfo()

	if metricsOut != nil {
		clk.WriteMetrics(metricsOut)
	}

	log.Infof("simulation finished: %d/%d silent clients detected", report.Detected, report.Silent)
	return report, nil
}
