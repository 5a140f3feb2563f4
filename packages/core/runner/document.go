package runner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
)

// Document is one request file handed to the runner. Exactly one of
// Definition and Err is set.
type Document struct {
	Path       string
	Definition *parser.RequestDefinition
	Err        error
}

// Name is the display name of the document.
func (d Document) Name() string {
	if d.Definition != nil && d.Definition.Name != "" {
		return d.Definition.Name
	}
	return strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
}

// Dir is the directory relative resources such as schemas resolve from.
func (d Document) Dir() string {
	return filepath.Dir(d.Path)
}

// ParseDocument parses already-read content. A parse failure is kept on the
// document rather than returned so one bad file does not stop a run.
func ParseDocument(path string, content []byte) Document {
	def, err := parser.Parse(path, content)
	if err != nil {
		return Document{Path: path, Err: err}
	}
	return Document{Path: path, Definition: def}
}

// LoadDocuments reads and parses paths in order.
func LoadDocuments(paths []string) []Document {
	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			docs = append(docs, Document{Path: p, Err: &parser.ParseError{File: p, Message: "failed to read file: " + err.Error()}})
			continue
		}
		docs = append(docs, ParseDocument(p, content))
	}
	return docs
}

// HasParseErrors reports whether any document failed to parse.
func HasParseErrors(docs []Document) bool {
	for _, d := range docs {
		if d.Err != nil {
			return true
		}
	}
	return false
}
