package main

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relcache/pagedb/internal/pager"
)

// yamlConfig is the on-disk shape of the optional -config file. Every field
// is optional; an absent or zero field keeps pager.DefaultConfig's value.
type yamlConfig struct {
	Pager struct {
		SlowQueryThreshold                   string  `yaml:"slow_query_threshold"`
		PerQueryCacheLimitBytes              uint64  `yaml:"per_query_cache_limit_bytes"`
		CacheTimeLimitRelativeToQueriedRange float64 `yaml:"cache_time_limit_relative_to_queried_range"`
		CacheLimitBytes                      uint64  `yaml:"cache_limit_bytes"`
		MarginStart                          *uint64 `yaml:"margin_start"`
		MarginEnd                            uint64  `yaml:"margin_end"`
	} `yaml:"pager"`
	MaintenanceCron string `yaml:"maintenance_cron"`
}

// loadPagerConfig reads path (if non-empty) and overlays its pager section
// onto pager.DefaultConfig(). A missing path is not an error: the server
// runs with the built-in defaults (spec.md §6).
func loadPagerConfig(path string) (pager.Config, string, error) {
	cfg := pager.DefaultConfig()
	maintCron := "0 */5 * * * *" // every 5 minutes, cron.WithSeconds() form

	if strings.TrimSpace(path) == "" {
		return cfg, maintCron, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, maintCron, err
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return cfg, maintCron, err
	}

	if y.Pager.SlowQueryThreshold != "" {
		d, err := time.ParseDuration(y.Pager.SlowQueryThreshold)
		if err != nil {
			return cfg, maintCron, err
		}
		cfg.SlowQueryThreshold = d
	}
	if y.Pager.PerQueryCacheLimitBytes != 0 {
		cfg.PerQueryCacheLimitBytes = y.Pager.PerQueryCacheLimitBytes
	}
	if y.Pager.CacheTimeLimitRelativeToQueriedRange != 0 {
		cfg.CacheTimeLimitRelativeToQueriedRange = y.Pager.CacheTimeLimitRelativeToQueriedRange
	}
	if y.Pager.CacheLimitBytes != 0 {
		cfg.CacheLimitBytes = y.Pager.CacheLimitBytes
	}
	if y.Pager.MarginStart != nil {
		cfg.MarginStart = *y.Pager.MarginStart
	}
	if y.Pager.MarginEnd != 0 {
		cfg.MarginEnd = y.Pager.MarginEnd
	}
	if strings.TrimSpace(y.MaintenanceCron) != "" {
		maintCron = y.MaintenanceCron
	}
	return cfg, maintCron, nil
}
