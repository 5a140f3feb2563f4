package runner

import (
	"strings"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/templating"
)

// references returns the variable roots a request reads: every identifier in
// its URL, headers, query, body and templated assertions, cut at the first
// dot. Dynamic ($) identifiers never name captures and are left out.
func references(def *parser.RequestDefinition) []string {
	fields := []any{def.URL}
	for _, h := range def.Headers {
		fields = append(fields, h.Value)
	}
	for _, q := range def.QueryParams {
		fields = append(fields, q.Value)
	}
	if def.Body != nil {
		fields = append(fields, def.Body.Value)
	}
	for _, a := range def.Assertions {
		if a.Expected.Kind == parser.ExpectTemplate {
			fields = append(fields, a.Expected.Template)
		}
	}

	seen := make(map[string]bool)
	var roots []string
	for _, ref := range templating.References(fields) {
		if strings.HasPrefix(ref, "$") {
			continue
		}
		root, _, _ := strings.Cut(ref, ".")
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

// dependencies computes, for every document, the earlier documents it must
// wait for so that a bounded-parallel run observes the same capture values
// as a sequential one:
//   - a reader waits for the latest earlier writer of each name it reads
//   - a writer waits for earlier readers and writers of each name it writes
//
// Documents that failed to parse neither read nor write.
func dependencies(docs []Document) [][]int {
	deps := make([][]int, len(docs))
	lastWriter := make(map[string]int)
	readers := make(map[string][]int)

	for i, doc := range docs {
		if doc.Definition == nil {
			continue
		}
		set := make(map[int]bool)

		reads := references(doc.Definition)
		for _, name := range reads {
			if w, ok := lastWriter[name]; ok {
				set[w] = true
			}
		}
		for _, c := range doc.Definition.Captures {
			if w, ok := lastWriter[c.Name]; ok {
				set[w] = true
			}
			for _, r := range readers[c.Name] {
				if r != i {
					set[r] = true
				}
			}
		}

		for _, name := range reads {
			readers[name] = append(readers[name], i)
		}
		for _, c := range doc.Definition.Captures {
			lastWriter[c.Name] = i
		}

		for j := range set {
			deps[i] = append(deps[i], j)
		}
	}
	return deps
}
