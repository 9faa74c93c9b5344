package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Tree-sitter Python grammar node types. These are grammar-defined strings,
// not Go constants with a stability guarantee of their own; named here for
// readability, following the reference implementation's ast_chunker.go
// convention of naming node.Type() literals.
const (
	nodeFunctionDef  = "function_definition"
	nodeClassDef     = "class_definition"
	nodeDecoratedDef = "decorated_definition"
	nodeIdentifier   = "identifier"
	nodeString       = "string"
)

const (
	minChunkSizeBytes = 20
	// overlapLinesRatio/maxOverlapLines mirror the reference implementation's
	// splitLargeChunk tuning for oversized single nodes.
	overlapLinesRatio = 10
	maxOverlapLines   = 10
	minOverlapLines   = 1
)

// rawChunk is the pre-upload shape a language chunker produces: enough to
// build a search.Document once FileProcessor assigns the chunk index and
// repository/path context.
type rawChunk struct {
	ChunkType    string // "function", "class", or "file"
	FunctionName string
	ClassName    string
	Signature    string
	Docstring    string
	Content      string
	StartLine    int
	EndLine      int
	ParentChunkID string
}

// PythonChunker extracts function/class chunks from Python source using
// tree-sitter, grounded on the reference implementation's ASTChunker,
// retargeted from Java/JS/TS to Python per SPEC_FULL.md §B, following
// Aman-CERP-amanmcp's internal/chunk/languages.go registerPython node-type
// choices (function_definition, class_definition).
//
// Tree-sitter parsers are not thread-safe; all parses go through mu.
type PythonChunker struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func NewPythonChunker() *PythonChunker {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &PythonChunker{parser: parser}
}

// Chunk parses content and extracts function/class chunks. On any parse
// failure it returns an error so the caller falls back to one whole-file
// chunk, per spec.md §4.4.
func (c *PythonChunker) Chunk(ctx context.Context, content string, maxChunkSize int, hierarchical bool) ([]rawChunk, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	tree := c.parser.Parse(nil, []byte(content))
	c.mu.Unlock()
	if tree == nil {
		return nil, fmt.Errorf("parse produced no tree")
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, fmt.Errorf("parse tree contains errors")
	}

	if maxChunkSize <= 0 {
		maxChunkSize = 8000
	}

	var chunks []rawChunk
	c.walkModuleBody(root, content, func(node *sitter.Node) {
		nodeType, defNode := unwrapDecorated(node)
		switch nodeType {
		case nodeClassDef:
			if hierarchical && len(defNode.Content([]byte(content))) > maxChunkSize {
				chunks = append(chunks, c.hierarchicalClass(defNode, content)...)
			} else if rc := c.classChunk(defNode, content); rc != nil {
				chunks = append(chunks, *rc)
			}
		case nodeFunctionDef:
			if rc := c.functionChunk(defNode, content, ""); rc != nil {
				chunks = append(chunks, *rc)
			}
		}
	})

	return chunks, nil
}

// walkModuleBody visits only top-level statements (module-level functions
// and classes), matching spec.md §4.4's "for each top-level function/method/
// class a chunk is produced" — nested/local functions are left inside their
// enclosing chunk's content rather than extracted separately.
func (c *PythonChunker) walkModuleBody(root *sitter.Node, content string, visit func(*sitter.Node)) {
	count := int(root.ChildCount())
	for i := 0; i < count; i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		nodeType, _ := unwrapDecorated(child)
		if nodeType == nodeFunctionDef || nodeType == nodeClassDef {
			visit(child)
		}
	}
}

// unwrapDecorated sees through a decorated_definition wrapper to the
// underlying function_definition/class_definition, so `@app.route(...)`-style
// decorators don't hide the def from extraction.
func unwrapDecorated(node *sitter.Node) (string, *sitter.Node) {
	if node.Type() != nodeDecoratedDef {
		return node.Type(), node
	}
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == nodeFunctionDef || child.Type() == nodeClassDef {
			return child.Type(), child
		}
	}
	return node.Type(), node
}

func (c *PythonChunker) functionChunk(node *sitter.Node, content, parentChunkID string) *rawChunk {
	start, end := node.StartByte(), node.EndByte()
	if start >= end || int(end) > len(content) {
		return nil
	}
	text := content[start:end]
	if len(strings.TrimSpace(text)) < minChunkSizeBytes {
		return nil
	}

	name := c.extractName(node, content)
	return &rawChunk{
		ChunkType:     "function",
		FunctionName:  name,
		Signature:     extractSignature(text),
		Docstring:     extractDocstring(node, content),
		Content:       text,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		ParentChunkID: parentChunkID,
	}
}

func (c *PythonChunker) classChunk(node *sitter.Node, content string) *rawChunk {
	start, end := node.StartByte(), node.EndByte()
	if start >= end || int(end) > len(content) {
		return nil
	}
	text := content[start:end]
	if len(strings.TrimSpace(text)) < minChunkSizeBytes {
		return nil
	}

	return &rawChunk{
		ChunkType: "class",
		ClassName: c.extractName(node, content),
		Docstring: extractDocstring(node, content),
		Content:   text,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	}
}

// hierarchicalClass splits a large class into a summary chunk (the class
// header plus method signatures) and one chunk per method, grounded on the
// reference implementation's createHierarchicalChunks/createClassSummary.
// Method chunks are tagged chunk_type=function with ParentChunkID set to the
// summary chunk's synthetic id, per DESIGN.md Open Question decision 5 (the
// wire `chunk_type` enum stays the closed {function, class, file} set from
// spec.md §3).
func (c *PythonChunker) hierarchicalClass(node *sitter.Node, content string) []rawChunk {
	className := c.extractName(node, content)
	summary := rawChunk{
		ChunkType: "class",
		ClassName: className,
		Docstring: extractDocstring(node, content),
		Content:   c.classSummary(node, content, className),
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	}
	chunks := []rawChunk{summary}

	parentID := fmt.Sprintf("class:%s:%d", className, summary.StartLine)
	for _, m := range c.methodNodes(node) {
		if rc := c.functionChunk(m, content, parentID); rc != nil {
			chunks = append(chunks, *rc)
		}
	}
	return chunks
}

// classSummary renders the class header and each method's signature, so the
// class-level chunk stays small while still describing its full interface.
func (c *PythonChunker) classSummary(node *sitter.Node, content, className string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %s:\n", className)
	for _, m := range c.methodNodes(node) {
		start, end := m.StartByte(), m.EndByte()
		if start >= end || int(end) > len(content) {
			continue
		}
		sig := extractSignature(content[start:end])
		b.WriteString("    " + sig + "\n")
	}
	return b.String()
}

// methodNodes returns the function_definition children of a class body
// (class_definition -> block -> function_definition|decorated_definition).
func (c *PythonChunker) methodNodes(classNode *sitter.Node) []*sitter.Node {
	var methods []*sitter.Node
	count := int(classNode.ChildCount())
	for i := 0; i < count; i++ {
		child := classNode.Child(i)
		if child == nil || child.Type() != "block" {
			continue
		}
		bodyCount := int(child.ChildCount())
		for j := 0; j < bodyCount; j++ {
			stmt := child.Child(j)
			if stmt == nil {
				continue
			}
			nodeType, defNode := unwrapDecorated(stmt)
			if nodeType == nodeFunctionDef {
				methods = append(methods, defNode)
			}
		}
	}
	return methods
}

// extractName finds the identifier child naming a function/class def.
func (c *PythonChunker) extractName(node *sitter.Node, content string) string {
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(i)
		if child != nil && child.Type() == nodeIdentifier {
			start, end := child.StartByte(), child.EndByte()
			if int(start) < int(end) && int(end) <= len(content) {
				return content[start:end]
			}
		}
	}
	return ""
}

// extractSignature returns the def line (up to and including the trailing
// colon), trimmed of body indentation noise.
func extractSignature(defText string) string {
	idx := strings.IndexByte(defText, '\n')
	if idx < 0 {
		return strings.TrimSpace(defText)
	}
	first := strings.TrimSpace(defText[:idx])
	// Multi-line signatures: keep reading until a line ending in ':'.
	if !strings.HasSuffix(first, ":") {
		rest := defText[idx+1:]
		for {
			next := strings.IndexByte(rest, '\n')
			var line string
			if next < 0 {
				line = rest
			} else {
				line = rest[:next]
			}
			first += " " + strings.TrimSpace(line)
			if strings.HasSuffix(strings.TrimSpace(line), ":") || next < 0 {
				break
			}
			rest = rest[next+1:]
		}
	}
	return first
}

// extractDocstring returns the first statement of a def/class body if it is
// a bare string expression, matching Python's docstring convention.
func extractDocstring(node *sitter.Node, content string) string {
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(i)
		if child == nil || child.Type() != "block" {
			continue
		}
		if child.ChildCount() == 0 {
			return ""
		}
		first := child.Child(0)
		if first == nil {
			return ""
		}
		// An expression_statement wrapping a bare string is a docstring.
		if first.Type() == "expression_statement" && first.ChildCount() > 0 {
			inner := first.Child(0)
			if inner != nil && inner.Type() == nodeString {
				start, end := inner.StartByte(), inner.EndByte()
				if int(start) < int(end) && int(end) <= len(content) {
					return strings.Trim(content[start:end], "'\"\n\t ")
				}
			}
		}
	}
	return ""
}
