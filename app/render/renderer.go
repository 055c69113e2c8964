// Package render writes a digest to disk as static HTML.
package render

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/config"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	LatestFile   = "index.html"
	ArchiveDir   = "archive"
	ArchiveIndex = "index.html"

	dateLayout  = "2006-01-02"
	dayItemsExt = ".json"
)

//go:embed templates/*.html
var templateFS embed.FS

var archiveFileName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.html$`)

// Digest is everything one page needs. Items are in selection order.
type Digest struct {
	Newsletter config.Newsletter
	Items      []feed.Item
	Stats      database.DigestRunStat
	Outcomes   []feed.FetchOutcome
}

type Renderer struct {
	outputDir string
	digest    *template.Template
	archive   *template.Template
	generator *Generator
}

func NewRenderer(outputDir string) (*Renderer, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.In(time.Local).Format("2006-01-02 15:04 MST")
		},
	}

	digest, err := template.New("digest.html").Funcs(funcs).
		ParseFS(templateFS, "templates/layout.html", "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}

	archive, err := template.New("archive.html").Funcs(funcs).
		ParseFS(templateFS, "templates/layout.html", "templates/archive.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive template: %w", err)
	}

	return &Renderer{
		outputDir: outputDir,
		digest:    digest,
		archive:   archive,
		generator: NewGenerator(cfg.GetVersion()),
	}, nil
}

func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// Render writes the latest page and its RSS feed, the dated archive page and
// the archive index. The latest page shows this run only. The dated page
// shows everything published that day, newest run first.
func (r *Renderer) Render(d Digest) error {
	archivePath := filepath.Join(r.outputDir, ArchiveDir)
	if err := os.MkdirAll(archivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	generatedAt := d.Stats.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	date := generatedAt.In(time.Local).Format(dateLayout)

	dayItems, err := publishedOn(archivePath, date, d.Items)
	if err != nil {
		return err
	}
	day := d
	day.Items = dayItems

	latest := newDigestView(d, generatedAt, date, "")
	if err := r.write(r.digest, filepath.Join(r.outputDir, LatestFile), latest); err != nil {
		return err
	}

	rss := r.generator.Run(d, generatedAt)
	if err := r.writeFile(filepath.Join(r.outputDir, FeedFile), func(w io.Writer) error {
		_, err := w.Write(rss)
		return err
	}); err != nil {
		return err
	}

	dayData, err := json.MarshalIndent(day.Items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode archive items: %w", err)
	}
	if err := r.writeFile(filepath.Join(archivePath, date+dayItemsExt), func(w io.Writer) error {
		_, err := w.Write(dayData)
		return err
	}); err != nil {
		return err
	}

	dated := newDigestView(day, generatedAt, date, "../")
	if err := r.write(r.digest, filepath.Join(archivePath, date+".html"), dated); err != nil {
		return err
	}

	entries, err := archiveEntries(archivePath)
	if err != nil {
		return err
	}

	index := archiveView{
		pageView: pageView{
			Title:       d.Newsletter.Title,
			Author:      d.Newsletter.Author,
			GeneratedAt: generatedAt,
			LatestHref:  "../" + LatestFile,
			ArchiveHref: ArchiveIndex,
			FeedHref:    "../" + FeedFile,
		},
		Entries: entries,
	}
	return r.write(r.archive, filepath.Join(archivePath, ArchiveIndex), index)
}

func (r *Renderer) write(tmpl *template.Template, path string, data any) error {
	return r.writeFile(path, func(w io.Writer) error {
		return tmpl.Execute(w, data)
	})
}

// writeFile fills a temporary file next to path and renames it into place.
func (r *Renderer) writeFile(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}

	return nil
}

type pageView struct {
	Title       string
	Author      string
	GeneratedAt time.Time
	LatestHref  string
	ArchiveHref string
	FeedHref    string
}

type digestView struct {
	pageView
	Description string
	Date        string
	Items       []feed.Item
	Sections    []section
	Sources     []sourceStatus
	Stats       database.DigestRunStat
}

type section struct {
	Category string
	Label    string
	Items    []feed.Item
}

type sourceStatus struct {
	Name        string
	URL         string
	Succeeded   bool
	Items       int
	ErrorDetail string
}

type archiveView struct {
	pageView
	Entries []archiveEntry
}

type archiveEntry struct {
	Date string
	Href string
}

func newDigestView(d Digest, generatedAt time.Time, date, base string) digestView {
	return digestView{
		pageView: pageView{
			Title:       d.Newsletter.Title,
			Author:      d.Newsletter.Author,
			GeneratedAt: generatedAt,
			LatestHref:  base + LatestFile,
			ArchiveHref: base + ArchiveDir + "/" + ArchiveIndex,
			FeedHref:    base + FeedFile,
		},
		Description: d.Newsletter.Description,
		Date:        date,
		Items:       d.Items,
		Sections:    groupByCategory(d.Items),
		Sources:     sourceStatuses(d.Outcomes),
		Stats:       d.Stats,
	}
}

// groupByCategory keeps categories in order of first appearance and items in
// their given order within each category.
func groupByCategory(items []feed.Item) []section {
	caser := cases.Title(language.English)

	categories := lo.Uniq(lo.Map(items, func(item feed.Item, _ int) string { return item.Category }))
	grouped := lo.GroupBy(items, func(item feed.Item) string { return item.Category })

	return lo.Map(categories, func(category string, _ int) section {
		label := strings.TrimSpace(category)
		if label == "" {
			label = config.DefaultCategory
		}
		return section{
			Category: category,
			Label:    caser.String(label),
			Items:    grouped[category],
		}
	})
}

func sourceStatuses(outcomes []feed.FetchOutcome) []sourceStatus {
	return lo.Map(outcomes, func(o feed.FetchOutcome, _ int) sourceStatus {
		return sourceStatus{
			Name:        o.SourceName,
			URL:         o.URL,
			Succeeded:   o.Succeeded,
			Items:       len(o.Items),
			ErrorDetail: o.ErrorDetail,
		}
	})
}

// publishedOn returns items followed by the items of earlier runs on date
// that items does not repeat.
func publishedOn(archivePath, date string, items []feed.Item) ([]feed.Item, error) {
	path := filepath.Join(archivePath, date+dayItemsExt)

	var earlier []feed.Item
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &earlier); err != nil {
			return nil, fmt.Errorf("failed to decode archive items for %s: %w", date, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read archive items for %s: %w", date, err)
	}

	current := lo.KeyBy(items, func(item feed.Item) string { return item.Link })
	earlier = lo.Reject(earlier, func(item feed.Item, _ int) bool {
		_, ok := current[item.Link]
		return ok
	})

	return slices.Concat(items, earlier), nil
}

// archiveEntries lists dated pages in dir, newest first.
func archiveEntries(dir string) ([]archiveEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	var names []string
	for _, f := range files {
		if !f.IsDir() && archiveFileName.MatchString(f.Name()) {
			names = append(names, f.Name())
		}
	}
	slices.Sort(names)
	slices.Reverse(names)

	return lo.Map(names, func(name string, _ int) archiveEntry {
		return archiveEntry{
			Date: strings.TrimSuffix(name, ".html"),
			Href: name,
		}
	}), nil
}
