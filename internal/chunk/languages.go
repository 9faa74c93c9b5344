// Package chunk implements FileProcessor (spec.md §4.4): repository
// traversal, language dispatch, and chunk extraction. Grounded on the
// reference implementation's internal/indexer/{scanner,languages,ast_chunker,
// chunker,token_chunker}.go, retargeted to Python as the one AST-capable
// primary language (spec.md §4.4 "one AST-capable language in the
// reference"), following Aman-CERP-amanmcp's internal/chunk/languages.go for
// the python tree-sitter wiring.
package chunk

import (
	"path/filepath"
	"strings"
)

// Language names one of the file-extension families the scanner recognizes.
// Only PrimaryLanguage is AST-parsed; every other registered language still
// produces whole-file chunks so that language/extension facets on the
// uploaded document are populated (spec.md §3's `language` field), per
// spec.md §4.4 "Non-primary languages always produce one whole-file chunk".
type Language struct {
	Name       string
	Extensions []string
}

// PrimaryLanguage is the one AST-capable language this implementation
// parses with tree-sitter.
const PrimaryLanguage = "python"

// LanguageTable is the extension -> language registry, shared by
// internal/chunk's scanner/processor and automation.CLIAutomation (DESIGN.md
// Open Question decision 4, replacing the reference implementation's second,
// duplicate table in cli_manager.py).
type LanguageTable struct {
	languages map[string]Language
	extToLang map[string]string
}

// NewLanguageTable builds the default table: python as the AST-capable
// primary language, plus the reference implementation's other recognized
// languages (java, javascript, typescript, go) as whole-file-only.
func NewLanguageTable() *LanguageTable {
	languages := map[string]Language{
		"python":     {Name: "python", Extensions: []string{".py"}},
		"java":       {Name: "java", Extensions: []string{".java"}},
		"javascript": {Name: "javascript", Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}},
		"typescript": {Name: "typescript", Extensions: []string{".ts", ".tsx"}},
		"go":         {Name: "go", Extensions: []string{".go"}},
	}

	extToLang := make(map[string]string)
	for name, lang := range languages {
		for _, ext := range lang.Extensions {
			extToLang[ext] = name
		}
	}

	return &LanguageTable{languages: languages, extToLang: extToLang}
}

// Detect returns the language for a file path by its extension.
func (t *LanguageTable) Detect(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return Language{}, false
	}
	name, ok := t.extToLang[ext]
	if !ok {
		return Language{}, false
	}
	lang, ok := t.languages[name]
	return lang, ok
}

// IsSupported reports whether path has a recognized extension.
func (t *LanguageTable) IsSupported(path string) bool {
	_, ok := t.Detect(path)
	return ok
}

// Names returns every registered language name, for CLIAutomation's language
// listing/status surface.
func (t *LanguageTable) Names() []string {
	names := make([]string, 0, len(t.languages))
	for name := range t.languages {
		names = append(names, name)
	}
	return names
}
