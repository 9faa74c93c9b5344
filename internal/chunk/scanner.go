package chunk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/henryperkins/mcprag-sub001/pkg/config"
	"github.com/henryperkins/mcprag-sub001/pkg/ignore"
)

// ScanResult mirrors the reference implementation's scanner.go ScanResult,
// enumerating indexable files under a repository root.
type ScanResult struct {
	Files        []string
	TotalFiles   int
	SkippedFiles int
	Languages    map[string]int
	Errors       []error
}

// Scanner walks a repository and yields indexable file paths, per
// spec.md §4.4's traversal rules.
type Scanner struct {
	cfg           *config.IndexingConfig
	ignoreMatcher *ignore.Matcher
	langTable     *LanguageTable
	maxFileBytes  int64
}

func NewScanner(cfg *config.IndexingConfig, ignoreMatcher *ignore.Matcher, langTable *LanguageTable) *Scanner {
	return &Scanner{
		cfg:           cfg,
		ignoreMatcher: ignoreMatcher,
		langTable:     langTable,
		maxFileBytes:  int64(cfg.MaxFileSizeMB) * 1024 * 1024,
	}
}

// Scan walks repoPath, applying the exclude set / .gitignore (via
// ignoreMatcher) and the max-file-size limit, per spec.md §4.4.
func (s *Scanner) Scan(repoPath string) (*ScanResult, error) {
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat repo path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo path is not a directory: %s", repoPath)
	}

	result := &ScanResult{Languages: make(map[string]int)}

	err = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, walkErr))
			return nil
		}

		relPath, err := filepath.Rel(repoPath, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if s.shouldIgnoreDir(relPath, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if s.ignoreMatcher.ShouldIgnore(relPath) {
			result.SkippedFiles++
			return nil
		}

		result.TotalFiles++

		if !s.langTable.IsSupported(path) {
			result.SkippedFiles++
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to stat %s: %w", path, err))
			result.SkippedFiles++
			return nil
		}
		if s.maxFileBytes > 0 && fileInfo.Size() > s.maxFileBytes {
			result.SkippedFiles++
			return nil
		}

		result.Files = append(result.Files, path)
		if lang, ok := s.langTable.Detect(path); ok {
			result.Languages[lang.Name]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return result, nil
}

func (s *Scanner) shouldIgnoreDir(relPath, dirName string) bool {
	if strings.HasPrefix(dirName, ".") && dirName != "." {
		return true
	}
	return s.ignoreMatcher.ShouldIgnore(relPath)
}
