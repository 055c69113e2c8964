package api

import (
	"github.com/lysyi3m/rss-digest/app/config"
	"github.com/lysyi3m/rss-digest/app/database"
)

const (
	defaultStatsLimit = 10
	maxStatsLimit     = 100
)

type Handler struct {
	history   database.History
	config    *config.Config
	outputDir string
	version   string
}

type runStats struct {
	database.DigestRunStat
	Feeds []database.FeedRunStat `json:"feeds"`
}

type feedInfo struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Category       string `json:"category"`
	Enabled        bool   `json:"enabled"`
	Timeout        string `json:"timeout"`
	ExtractContent bool   `json:"extract_content"`
	Filters        int    `json:"filters"`
}
