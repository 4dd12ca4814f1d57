package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

var sweepParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// IdleSweeper is implemented by the hub.
type IdleSweeper interface {
	SweepIdle(ctx context.Context) int
}

// Reaper runs the idle sweep, plus any housekeeping jobs, on a cron schedule.
type Reaper struct {
	cron *cron.Cron
	log  *slog.Logger
}

func NewReaper(spec string, sweeper IdleSweeper, log *slog.Logger, housekeeping ...func()) (*Reaper, error) {
	if log == nil {
		log = slog.Default()
	}
	schedule, err := parseSweepSpec(spec)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithParser(sweepParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		closed := sweeper.SweepIdle(context.Background())
		for _, job := range housekeeping {
			job()
		}
		if closed > 0 {
			log.Debug("idle sweep finished", slog.Int("closed", closed))
		}
	}))

	return &Reaper{cron: c, log: log}, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func parseSweepSpec(spec string) (cron.Schedule, error) {
	clean := strings.TrimSpace(spec)
	if clean == "" {
		return nil, fmt.Errorf("sweep schedule is required")
	}
	schedule, err := sweepParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	return schedule, nil
}
