package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the subset of Config that may be set from a TOML file.
// Zero values mean "keep the environment value".
type fileConfig struct {
	Env string `toml:"env"`

	Database struct {
		URL      string `toml:"url"`
		MaxConns int    `toml:"max_conns"`
		MinConns int    `toml:"min_conns"`
	} `toml:"database"`

	Crawler struct {
		RequestTimeout string `toml:"request_timeout"`
		HolidayURL     string `toml:"holiday_url"`
		TWSEBaseURL    string `toml:"twse_base_url"`
		TPExBaseURL    string `toml:"tpex_base_url"`
		MOPSBaseURL    string `toml:"mops_base_url"`
		TWSERetries    int    `toml:"twse_retries"`
		TPExRetries    int    `toml:"tpex_retries"`
		MOPSRetries    int    `toml:"mops_retries"`
	} `toml:"crawler"`

	Simulation struct {
		Principal  int64   `toml:"principal"`
		InitVolume int     `toml:"init_volume"`
		TopSize    int     `toml:"top_size"`
		LimitPrice float64 `toml:"limit_price"`
	} `toml:"simulation"`

	Selection struct {
		R1MaxPBR  float64 `toml:"r1_max_pbr"`
		R1MinLots float64 `toml:"r1_min_lots"`
	} `toml:"selection"`

	Scheduler struct {
		CrawlSchedule     string `toml:"crawl_schedule"`
		RecommendSchedule string `toml:"recommend_schedule"`
	} `toml:"scheduler"`

	API struct {
		Port string `toml:"port"`
	} `toml:"api"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

// applyFile overlays values from a TOML file onto cfg
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	setString(&cfg.Env, fc.Env)
	setString(&cfg.Database.URL, fc.Database.URL)
	setInt(&cfg.Database.MaxConns, fc.Database.MaxConns)
	setInt(&cfg.Database.MinConns, fc.Database.MinConns)

	if fc.Crawler.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.Crawler.RequestTimeout)
		if err != nil {
			return fmt.Errorf("crawler.request_timeout: %w", err)
		}
		cfg.Crawler.RequestTimeout = d
	}
	setString(&cfg.Crawler.HolidayURL, fc.Crawler.HolidayURL)
	setString(&cfg.Crawler.TWSEBaseURL, fc.Crawler.TWSEBaseURL)
	setString(&cfg.Crawler.TPExBaseURL, fc.Crawler.TPExBaseURL)
	setString(&cfg.Crawler.MOPSBaseURL, fc.Crawler.MOPSBaseURL)
	setInt(&cfg.Crawler.TWSERetries, fc.Crawler.TWSERetries)
	setInt(&cfg.Crawler.TPExRetries, fc.Crawler.TPExRetries)
	setInt(&cfg.Crawler.MOPSRetries, fc.Crawler.MOPSRetries)

	if fc.Simulation.Principal > 0 {
		cfg.Simulation.Principal = fc.Simulation.Principal
	}
	setInt(&cfg.Simulation.InitVolume, fc.Simulation.InitVolume)
	setInt(&cfg.Simulation.TopSize, fc.Simulation.TopSize)
	if fc.Simulation.LimitPrice > 0 {
		cfg.Simulation.LimitPrice = fc.Simulation.LimitPrice
	}

	if fc.Selection.R1MaxPBR > 0 {
		cfg.Selection.R1MaxPBR = fc.Selection.R1MaxPBR
	}
	if fc.Selection.R1MinLots > 0 {
		cfg.Selection.R1MinLots = fc.Selection.R1MinLots
	}

	setString(&cfg.Scheduler.CrawlSchedule, fc.Scheduler.CrawlSchedule)
	setString(&cfg.Scheduler.RecommendSchedule, fc.Scheduler.RecommendSchedule)
	setString(&cfg.API.Port, fc.API.Port)
	setString(&cfg.LogLevel, fc.Logging.Level)
	setString(&cfg.LogFormat, fc.Logging.Format)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
