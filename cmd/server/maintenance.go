package main

import (
	"log"

	"github.com/robfig/cron/v3"
)

// startMaintenance schedules a periodic job that logs per-tenant pager cache
// statistics, grounded in tinySQL's own internal/storage/scheduler.go use of
// robfig/cron for catalog-driven jobs. Unlike that scheduler, this job is
// fixed (not catalog-defined): the pager has no SQL surface of its own to
// schedule jobs against.
func (s *server) startMaintenance(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(spec, func() {
		s.pagersMu.Lock()
		defer s.pagersMu.Unlock()
		for tenant, pgr := range s.pagers {
			log.Printf("pager[%s]: cache_size_bytes=%d hits=%d clears=%d evictions=%d",
				tenant, pgr.TotalCacheSizeBytes(), pgr.CacheHitCount, pgr.CacheClearCount, pgr.EvictCount)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
