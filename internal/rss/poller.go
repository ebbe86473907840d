package rss

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/feverd/internal/database"
	log "gopkg.in/inconshreveable/log15.v2"
)

// fetchTimeout bounds a single FetchAll round.
const fetchTimeout = 10 * time.Minute

// Poller runs continuous polling.
type Poller struct {
	fetcher *Fetcher
	db      database.Store
	logger  log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a background poller.
func NewPoller(db database.Store, fetcher *Fetcher, logger log.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		fetcher: fetcher,
		db:      db,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			interval := p.interval()
			p.logger.Info("fetching all feeds", "interval_minutes", interval)

			ctx, cancel := context.WithTimeout(p.ctx, fetchTimeout)
			results, err := p.fetcher.FetchAll(ctx)
			cancel()

			if err != nil {
				p.logger.Error("poll failed", "error", err)
			} else {
				total := 0
				for _, c := range results {
					total += c
				}
				p.logger.Info("poll finished", "new_items", total, "feeds", len(results))
			}

			select {
			case <-p.ctx.Done():
				return
			case <-time.After(time.Duration(interval) * time.Minute):
			}
		}
	}()
}

func (p *Poller) interval() int {
	interval, err := p.db.GetPollingInterval()
	if err != nil {
		p.logger.Warn("could not read polling interval", "error", err)
	}
	if interval < MinPollingIntervalMinutes {
		interval = MinPollingIntervalMinutes
	}
	return interval
}

// Stop cancels any fetch in progress and waits for the loop to exit.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}
