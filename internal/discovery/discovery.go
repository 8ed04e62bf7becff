// Package discovery matches raw extract files to configured tables.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/config"
)

// stageFilePattern matches files written by the pipeline itself.
var stageFilePattern = regexp.MustCompile(`^s\d{2}_`)

// Options configures a Finder.
type Options struct {
	Root        string   // Raw data root folder
	PartPattern string   // Glob selecting part folders below Root
	Exclude     []string // Directories whose contents are never raw input
}

// Finder locates the raw files of each table.
type Finder struct {
	opts   Options
	logger *slog.Logger
}

// NewFinder creates a Finder. A nil logger discards output.
func NewFinder(opts Options, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Finder{opts: opts, logger: logger}
}

// OptionsFor builds discovery options from a pipeline configuration.
// Pipeline output folders are always excluded.
func OptionsFor(cfg *config.Config) Options {
	var exclude []string
	if cfg.ProcessedDataFolder != "" {
		exclude = append(exclude, cfg.ProcessedDataFolder)
	}
	return Options{
		Root:        cfg.RawData.RootFolder,
		PartPattern: cfg.RawData.Pattern,
		Exclude:     exclude,
	}
}

// Result contains the files found per table.
type Result struct {
	// Files maps table name to its matched files in lexicographic order.
	Files map[string][]string

	// Errors (non-fatal)
	Errors []TableError

	Duration time.Duration
}

// TableError is a non-fatal problem that caused a table to be skipped.
type TableError struct {
	Table string
	Err   error
}

// HasErrors returns true if any table was skipped.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	files := 0
	for _, f := range r.Files {
		files += len(f)
	}
	return fmt.Sprintf("Tables: %d matched, %d skipped | Files: %d | Duration: %s",
		len(r.Files), len(r.Errors), files, r.Duration.Round(time.Millisecond))
}

// FindAll discovers files for every table. Tables without files are
// recorded in Result.Errors and skipped; only invalid patterns abort.
func (f *Finder) FindAll(tables []*config.TableConfig) (*Result, error) {
	start := time.Now()
	result := &Result{Files: make(map[string][]string)}

	for _, table := range tables {
		files, err := f.Find(table)
		if err != nil {
			var nf *NoFilesFoundError
			if asNoFiles(err, &nf) {
				f.logger.Warn("skipping table without raw files",
					slog.String("table", table.Name),
					slog.String("pattern", nf.Pattern))
				result.Errors = append(result.Errors, TableError{Table: table.Name, Err: err})
				continue
			}
			return nil, err
		}
		result.Files[table.Name] = files
	}

	result.Duration = time.Since(start)
	f.logger.Info("discovery completed",
		"tables", len(result.Files),
		"skipped", len(result.Errors),
		"duration", result.Duration)
	return result, nil
}

// Find returns the raw files of one table sorted by path. A table with a
// file_path uses that single file, relative to the root folder.
func (f *Finder) Find(table *config.TableConfig) ([]string, error) {
	if table.FilePath != "" {
		return f.direct(table)
	}

	parts, err := f.partFolders()
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, part := range parts {
		pattern := filepath.Join(part, table.SubfolderPattern, table.FilePattern)
		found, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern for table %s: %w", table.Name, err)
		}
		f.logger.Debug("searched part folder",
			slog.String("table", table.Name),
			slog.String("pattern", pattern),
			slog.Int("matches", len(found)))
		matches = append(matches, found...)
	}

	files := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, path := range matches {
		if seen[path] || !f.isRawFile(path) {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &NoFilesFoundError{
			Table:   table.Name,
			Pattern: filepath.Join(f.opts.Root, f.opts.PartPattern, table.SubfolderPattern, table.FilePattern),
		}
	}

	f.logger.Debug("found table files", slog.String("table", table.Name), slog.Int("files", len(files)))
	return files, nil
}

func (f *Finder) direct(table *config.TableConfig) ([]string, error) {
	path := table.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.opts.Root, path)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, &NoFilesFoundError{Table: table.Name, Pattern: path}
	}
	f.logger.Debug("using direct file path", slog.String("table", table.Name), slog.String("path", path))
	return []string{path}, nil
}

// partFolders returns the part directories to search. The root itself is
// searched when no part folder matches.
func (f *Finder) partFolders() ([]string, error) {
	if f.opts.PartPattern == "" {
		return []string{f.opts.Root}, nil
	}
	found, err := filepath.Glob(filepath.Join(f.opts.Root, f.opts.PartPattern))
	if err != nil {
		return nil, fmt.Errorf("invalid part folder pattern %q: %w", f.opts.PartPattern, err)
	}

	var parts []string
	for _, p := range found {
		if info, err := os.Stat(p); err == nil && info.IsDir() && !isHidden(p) {
			parts = append(parts, p)
		}
	}
	sort.Strings(parts)

	if len(parts) == 0 {
		f.logger.Debug("no part folders found, searching root", slog.String("root", f.opts.Root))
		return []string{f.opts.Root}, nil
	}
	return parts, nil
}

// isRawFile rejects directories, hidden files and pipeline outputs.
func (f *Finder) isRawFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if isHidden(path) || stageFilePattern.MatchString(filepath.Base(path)) {
		return false
	}
	for _, dir := range f.opts.Exclude {
		if within(path, dir) {
			return false
		}
	}
	return true
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// within reports whether path lies inside dir.
func within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
