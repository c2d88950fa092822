package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// candidateExtensions enumerates file extensions the pipeline treats as
// convertible documents.
var candidateExtensions = map[string]bool{
	".html": true, ".htm": true, ".xml": true, ".xhtml": true, ".st": true,
}

// htmlPrefixPattern matches extensionless files whose content looks like
// HTML, the second half of the classification rule.
var htmlPrefixPattern = regexp.MustCompile(`(?is)^\s*(<!doctype html|<html)`)

// versionDirPattern matches a leaf directory name that looks like a
// vendor release version, e.g. "8.3.24.1624".
var versionDirPattern = regexp.MustCompile(`^\d+(\.\d+){1,3}$`)

// languageSuffixPattern extracts a language tag from an archive filename
// suffix, e.g. "1c_help_ru.hbk" -> "ru".
var languageSuffixPattern = regexp.MustCompile(`_([a-z]{2})\.hbk$`)

// Pipeline implements the archive-to-topics document pipeline (component A).
type Pipeline struct {
	extractor driven.ArchiveExtractor
	converter driven.HTMLConverter
	scratchRoot string
}

// NewPipeline constructs the document pipeline.
func NewPipeline(extractor driven.ArchiveExtractor, converter driven.HTMLConverter, scratchRoot string) *Pipeline {
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Pipeline{extractor: extractor, converter: converter, scratchRoot: scratchRoot}
}

// DeriveTags extracts (version, language) from an archive's path:
// version is the name of the nearest ancestor directory that matches
// the version pattern; language is the filename suffix, defaulting to
// "en" when absent.
func DeriveTags(archivePath string) (version, language string) {
	language = "en"
	if m := languageSuffixPattern.FindStringSubmatch(filepath.Base(archivePath)); len(m) == 2 {
		language = m[1]
	}
	dir := filepath.Dir(archivePath)
	for dir != "." && dir != string(filepath.Separator) {
		leaf := filepath.Base(dir)
		if versionDirPattern.MatchString(leaf) {
			return leaf, language
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", language
}

// Run extracts archivePath and emits one Topic per convertible file. It
// returns the topics successfully converted so far even when an error
// terminates the walk partway — the
// caller decides whether partial results are usable, but the archive is
// never marked indexed when err != nil.
func (p *Pipeline) Run(ctx context.Context, task domain.ArchiveTask) ([]domain.Topic, error) {
	scratchDir, err := os.MkdirTemp(p.scratchRoot, "hbk-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratchDir); rmErr != nil {
			logger.Warn("cleaning scratch directory %s: %v", scratchDir, rmErr)
		}
	}()

	if err := p.extractor.Extract(ctx, task.Path, scratchDir); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", task.Path, err)
	}

	var topics []domain.Topic
	walkErr := filepath.WalkDir(scratchDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !isCandidate(path) {
			return nil
		}
		topic, convErr := p.convertFile(path, scratchDir, task)
		if convErr != nil {
			logger.Warn("skipping %s: %v", path, convErr)
			return nil
		}
		topics = append(topics, topic)
		return nil
	})
	if walkErr != nil {
		return topics, fmt.Errorf("walking extracted archive %s: %w", task.Path, walkErr)
	}
	return topics, nil
}

func (p *Pipeline) convertFile(path, scratchDir string, task domain.ArchiveTask) (domain.Topic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("reading %s: %w", path, err)
	}
	markdown, err := p.converter.Convert(raw)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("converting %s: %w", path, err)
	}
	title := extractTitleFromMarkdown(markdown)
	if title == "" {
		title = filenameStem(path)
	}
	relPath, err := filepath.Rel(scratchDir, path)
	if err != nil {
		relPath = filepath.Base(path)
	}
	relPath = filepath.ToSlash(relPath)
	return domain.NewTopic(title, markdown, relPath, task.Version, task.Language), nil
}

func isCandidate(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if candidateExtensions[ext] {
		return true
	}
	if ext != "" {
		return false
	}
	head, err := peekFile(path, 512)
	if err != nil {
		return false
	}
	return htmlPrefixPattern.Match(head)
}

func peekFile(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}

var markdownHeadingPattern = regexp.MustCompile(`(?m)^#{1,2}\s+(.+)$`)

func extractTitleFromMarkdown(markdown string) string {
	if m := markdownHeadingPattern.FindStringSubmatch(markdown); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func filenameStem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
