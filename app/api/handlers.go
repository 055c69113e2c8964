package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/config"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/render"
)

func NewHandler(history database.History, cfg *config.Config, outputDir, version string) *Handler {
	return &Handler{
		history:   history,
		config:    cfg,
		outputDir: outputDir,
		version:   version,
	}
}

func (h *Handler) GetLatest(c *gin.Context) {
	h.serveRendered(c, render.LatestFile, "")
}

func (h *Handler) GetFeed(c *gin.Context) {
	h.serveRendered(c, render.FeedFile, "application/rss+xml; charset=utf-8")
}

func (h *Handler) serveRendered(c *gin.Context, name, contentType string) {
	path := filepath.Join(h.outputDir, name)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No digest has been rendered yet"})
			return
		}
		slog.Error("Failed to stat rendered digest", "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.Header("Cache-Control", "no-cache")
	c.File(path)
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"feeds":     len(h.config.EnabledFeeds()),
	}

	if err := h.history.Ping(ctx); err != nil {
		slog.Error("Ledger health check failed", "error", err)
		health["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["status"] = "ok"

	if seen, err := h.history.SeenCount(ctx); err == nil {
		health["seen_urls"] = seen
	}

	if runs, err := h.history.RecentDigestRuns(ctx, 1); err == nil && len(runs) > 0 {
		health["last_run_at"] = runs[0].GeneratedAt.In(time.Local).Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	limit := defaultStatsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxStatsLimit)
	}

	ctx := c.Request.Context()

	runs, err := h.history.RecentDigestRuns(ctx, limit)
	if err != nil {
		slog.Error("Database error", "operation", "recent_digest_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]runStats, 0, len(runs))
	for _, run := range runs {
		feeds, err := h.history.FeedRunStats(ctx, run.RunID)
		if err != nil {
			slog.Error("Database error", "operation", "feed_run_stats", "run_id", run.RunID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		result = append(result, runStats{DigestRunStat: run, Feeds: feeds})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  result,
		"total": len(result),
	})
}

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds := make([]feedInfo, 0, len(h.config.Feeds))
	for _, f := range h.config.Feeds {
		feeds = append(feeds, feedInfo{
			Name:           f.Name,
			URL:            f.URL,
			Category:       f.Category,
			Enabled:        f.IsEnabled(),
			Timeout:        f.GetTimeout(h.config.Settings).String(),
			ExtractContent: f.ExtractContent,
			Filters:        len(f.Filters),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}
