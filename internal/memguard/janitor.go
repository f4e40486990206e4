package memguard

import (
	"log"

	"github.com/robfig/cron/v3"
)

// Janitor periodically drains a pool's page cache on a cron schedule,
// supplementing the manual DrainCache call with a background scheduled
// job. It is opt-in: a ChunkAllocator used from a single goroutine never
// needs one, and running one means accepting cron firing the drain from
// its own goroutine concurrently with the driver thread.
type Janitor struct {
	cron *cron.Cron
	pool *Pool
}

// NewJanitor schedules pool.DrainCache() on the given cron expression
// (standard 5-field form, e.g. "*/5 * * * *"). Call Start to begin running
// it and Stop to shut it down.
func NewJanitor(pool *Pool, schedule string) (*Janitor, error) {
	c := cron.New()
	j := &Janitor{cron: c, pool: pool}
	_, err := c.AddFunc(schedule, func() {
		if err := pool.DrainCache(); err != nil {
			log.Printf("[secmem] janitor: drain_cache failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Start runs the janitor's cron loop in the background.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the janitor and waits for any in-flight drain to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }
