// Package archive implements driven.ArchiveExtractor for the vendor .hbk
// help archive format, a zip-compatible container that some vendor
// releases corrupt with a leading junk prefix before the zip local-file
// signature. Strategies are tried in order: archive/zip first, then an
// offset-scan for a shifted zip signature, then archive/tar as a last
// resort for the rare tar-packaged release. The source file is never
// mutated.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// zipSignature is the local file header magic that archive/zip requires
// at the start of the stream; vendor archives occasionally prepend a
// junk header before it.
var zipSignature = []byte{0x50, 0x4b, 0x03, 0x04}

// maxOffsetScan bounds how far into the file we search for a shifted
// zip signature before giving up, so a non-archive file fails fast.
const maxOffsetScan = 1 << 20

// Extractor unpacks .hbk archives via a chain of fallback strategies.
type Extractor struct{}

// New constructs the archive extractor.
func New() *Extractor { return &Extractor{} }

// Extract unpacks archivePath into scratchDir, trying each strategy in
// turn until one succeeds. scratchDir is created if missing.
func (e *Extractor) Extract(ctx context.Context, archivePath, scratchDir string) error {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	if err := extractZip(ctx, data, scratchDir); err == nil {
		return nil
	} else {
		logger.Debug("archive %s: direct zip extraction failed: %v", archivePath, err)
	}

	if offset := findZipSignature(data); offset > 0 {
		if err := extractZip(ctx, data[offset:], scratchDir); err == nil {
			logger.Debug("archive %s: recovered via offset scan at byte %d", archivePath, offset)
			return nil
		} else {
			logger.Debug("archive %s: offset-scan zip extraction failed: %v", archivePath, err)
		}
	}

	if err := extractTar(ctx, data, scratchDir); err == nil {
		return nil
	} else {
		logger.Debug("archive %s: tar extraction failed: %v", archivePath, err)
	}

	return fmt.Errorf("archive %s: no extraction strategy succeeded", archivePath)
}

func extractZip(ctx context.Context, data []byte, scratchDir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range r.File {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := extractZipEntry(f, scratchDir); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, scratchDir string) error {
	target, err := safeJoin(scratchDir, f.Name)
	if err != nil {
		return err
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating extracted file %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying zip entry %s: %w", f.Name, err)
	}
	return nil
}

func findZipSignature(data []byte) int {
	limit := len(data)
	if limit > maxOffsetScan {
		limit = maxOffsetScan
	}
	idx := bytes.Index(data[:limit], zipSignature)
	return idx
}

func extractTar(ctx context.Context, data []byte, scratchDir string) error {
	reader := io.Reader(bytes.NewReader(data))
	if gz, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
		defer gz.Close()
		reader = gz
	}
	tr := tar.NewReader(reader)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}
		target, err := safeJoin(scratchDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			dst, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("creating extracted file %s: %w", target, err)
			}
			if _, err := io.Copy(dst, tr); err != nil {
				dst.Close()
				return fmt.Errorf("copying tar entry %s: %w", hdr.Name, err)
			}
			dst.Close()
		}
	}
}

// safeJoin joins scratchDir with an archive-relative name, rejecting any
// entry that would escape scratchDir via ".." path segments (zip-slip).
func safeJoin(scratchDir, name string) (string, error) {
	cleaned := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	joined := filepath.Join(scratchDir, cleaned)
	if !strings.HasPrefix(joined, filepath.Clean(scratchDir)+string(os.PathSeparator)) && joined != filepath.Clean(scratchDir) {
		return "", fmt.Errorf("archive entry %q escapes scratch directory", name)
	}
	return joined, nil
}
