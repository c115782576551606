// Package knowledge provides the read-only guideline and medication corpus.
// The index is built once at startup and is safe for concurrent reads; no
// mutation operation exists.
package knowledge

import (
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Category classifies a document.
type Category string

const (
	CategoryGuideline  Category = "guideline"
	CategoryMedication Category = "medication"
	CategoryLifestyle  Category = "lifestyle"
	CategoryEmergency  Category = "emergency"
	CategoryOther      Category = "other"
)

// Document is one immutable corpus entry.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category Category `json:"category"`
}

// Result is one ranked search hit.
type Result struct {
	Doc     Document `json:"doc"`
	Score   int      `json:"score"`
	Snippet string   `json:"snippet"`
}

// ErrEmptyCorpus signals a fatal startup misconfiguration.
var ErrEmptyCorpus = errors.New("knowledge: corpus is empty")

// Index is the searchable corpus.
type Index struct {
	docs []Document
}

// NewIndex builds an index over the given document set.
func NewIndex(docs []Document) (*Index, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}
	sorted := make([]Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Index{docs: sorted}, nil
}

// Len returns the corpus size.
func (ix *Index) Len() int { return len(ix.docs) }

// Search ranks documents by term frequency of the query terms over title and
// body. Ties break by document id so results are deterministic. Each call
// re-executes independently; there is no shared cursor.
func (ix *Index) Search(query string, limit int) []Result {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var hits []Result
	for _, doc := range ix.docs {
		text := strings.ToLower(doc.Title + "\n" + doc.Body)
		score := 0
		first := -1
		for _, term := range terms {
			n := strings.Count(text, term)
			score += n
			if n > 0 {
				if i := strings.Index(text, term); first < 0 || i < first {
					first = i
				}
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, Result{Doc: doc, Score: score, Snippet: snippet(doc.Title+"\n"+doc.Body, first)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc.ID < hits[j].Doc.ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// ByCategory returns all documents in a category, ordered by id.
func (ix *Index) ByCategory(cat Category) []Document {
	var out []Document
	for _, d := range ix.docs {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// Get returns a document by id.
func (ix *Index) Get(id string) (Document, bool) {
	i := sort.Search(len(ix.docs), func(i int) bool { return ix.docs[i].ID >= id })
	if i < len(ix.docs) && ix.docs[i].ID == id {
		return ix.docs[i], true
	}
	return Document{}, false
}

// ContraindicationFact returns the contraindication line from the medication
// document for a drug class, or a generic caution when the corpus has none.
func (ix *Index) ContraindicationFact(class string) string {
	doc, ok := ix.Get("med-" + class)
	if !ok {
		return "contraindicated per patient record"
	}
	for _, line := range strings.Split(doc.Body, "\n") {
		line = strings.TrimSpace(line)
		if rest, found := strings.CutPrefix(line, "Contraindications:"); found {
			return strings.TrimSpace(rest)
		}
	}
	return "contraindicated per patient record"
}

const snippetRadius = 80

func snippet(text string, pos int) string {
	if pos < 0 {
		pos = 0
	}
	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := pos + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	// The radius is in bytes; back both cuts onto rune boundaries so the
	// snippet stays valid UTF-8.
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	s := strings.TrimSpace(strings.ReplaceAll(text[start:end], "\n", " "))
	if start > 0 {
		s = "…" + s
	}
	if end < len(text) {
		s += "…"
	}
	return s
}

func tokenize(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
