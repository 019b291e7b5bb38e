package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quay-labs/rosterd/store"
)

// DefaultSweepSchedule runs the expired-session sweep twice an hour.
const DefaultSweepSchedule = "*/30 * * * *"

// Standard 5-field cron, minute resolution.
var sweepCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Store    store.Store
	Schedule string
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Sweeper periodically deletes expired session rows. It is housekeeping
// only: the verifier already treats expired sessions as nonexistent, so a
// stopped sweeper never affects correctness, just table size.
type Sweeper struct {
	store  store.Store
	clock  func() time.Time
	logger *slog.Logger
	cron   *cron.Cron
}

// NewSweeper validates the schedule and prepares the sweep job.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session sweeper: store is required")
	}

	expr := strings.TrimSpace(cfg.Schedule)
	if expr == "" {
		expr = DefaultSweepSchedule
	}
	schedule, err := parseSweepSchedule(expr)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		store:  cfg.Store,
		clock:  clock,
		logger: logger,
		cron:   cron.New(cron.WithParser(sweepCronParser), cron.WithLocation(time.UTC)),
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			s.logger.Error("session sweep failed", "error", err)
		}
	}))
	return s, nil
}

// Start begins running sweeps on the configured schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce deletes every session whose expiry has passed and reports the
// count.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.clock().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("swept expired sessions", "count", n)
	}
	return n, nil
}

func parseSweepSchedule(expr string) (cron.Schedule, error) {
	upper := strings.ToUpper(expr)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("sweep schedule must be UTC-only (timezone prefixes are not allowed)")
	}
	schedule, err := sweepCronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	return schedule, nil
}
