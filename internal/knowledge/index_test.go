package knowledge

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewIndexRejectsEmptyCorpus(t *testing.T) {
	if _, err := NewIndex(nil); err != ErrEmptyCorpus {
		t.Fatalf("NewIndex(nil) error = %v, want ErrEmptyCorpus", err)
	}
}

func TestSearchRanking(t *testing.T) {
	ix, err := NewIndex([]Document{
		{ID: "a", Title: "Sodium intake", Body: "sodium sodium sodium", Category: CategoryLifestyle},
		{ID: "b", Title: "Potassium", Body: "sodium appears once", Category: CategoryLifestyle},
		{ID: "c", Title: "Exercise", Body: "no match here", Category: CategoryLifestyle},
	})
	if err != nil {
		t.Fatalf("NewIndex() error: %v", err)
	}

	hits := ix.Search("sodium", 10)
	if len(hits) != 2 {
		t.Fatalf("Search() returned %d hits, want 2", len(hits))
	}
	if hits[0].Doc.ID != "a" || hits[1].Doc.ID != "b" {
		t.Fatalf("ranking = [%s %s], want [a b]", hits[0].Doc.ID, hits[1].Doc.ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %d <= %d", hits[0].Score, hits[1].Score)
	}
	if hits[0].Snippet == "" {
		t.Fatal("hit has empty snippet")
	}
}

func TestSnippetStaysValidUTF8(t *testing.T) {
	// Multibyte runes on both sides of the match put the byte-radius cut
	// points inside a rune unless they are clamped to rune boundaries.
	body := strings.Repeat("é", 60) + " sodium " + strings.Repeat("µ", 60)
	ix, err := NewIndex([]Document{
		{ID: "a", Title: "Titré", Body: body, Category: CategoryLifestyle},
	})
	if err != nil {
		t.Fatalf("NewIndex() error: %v", err)
	}

	hits := ix.Search("sodium", 1)
	if len(hits) != 1 {
		t.Fatalf("Search() returned %d hits, want 1", len(hits))
	}
	if !utf8.ValidString(hits[0].Snippet) {
		t.Fatalf("snippet is not valid UTF-8: %q", hits[0].Snippet)
	}
	if !strings.Contains(hits[0].Snippet, "sodium") {
		t.Fatalf("snippet lost the match: %q", hits[0].Snippet)
	}
}

func TestSearchTieBreaksByID(t *testing.T) {
	ix, _ := NewIndex([]Document{
		{ID: "z-doc", Title: "salt", Body: "salt"},
		{ID: "a-doc", Title: "salt", Body: "salt"},
	})
	hits := ix.Search("salt", 10)
	if hits[0].Doc.ID != "a-doc" {
		t.Fatalf("tie broke to %s, want a-doc", hits[0].Doc.ID)
	}
}

func TestSearchDeterministicUnderShuffledInsertion(t *testing.T) {
	docs := DefaultCorpus()
	ix, err := NewIndex(docs)
	if err != nil {
		t.Fatalf("NewIndex() error: %v", err)
	}
	want := ix.Search("blood pressure medication", 5)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([]Document, len(docs))
		copy(shuffled, docs)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		ix2, err := NewIndex(shuffled)
		if err != nil {
			t.Fatalf("NewIndex() error: %v", err)
		}
		got := ix2.Search("blood pressure medication", 5)
		if len(got) != len(want) {
			t.Fatalf("shuffle %d: %d hits, want %d", i, len(got), len(want))
		}
		for j := range got {
			if got[j].Doc.ID != want[j].Doc.ID || got[j].Score != want[j].Score {
				t.Fatalf("shuffle %d diverged at %d: %s/%d vs %s/%d",
					i, j, got[j].Doc.ID, got[j].Score, want[j].Doc.ID, want[j].Score)
			}
		}
	}
}

func TestSearchLimitAndEmptyQuery(t *testing.T) {
	ix, _ := NewIndex(DefaultCorpus())
	if hits := ix.Search("blood pressure", 2); len(hits) > 2 {
		t.Fatalf("limit ignored: %d hits", len(hits))
	}
	if hits := ix.Search("", 5); hits != nil {
		t.Fatalf("empty query returned hits: %v", hits)
	}
	if hits := ix.Search("a", 5); hits != nil {
		t.Fatal("single-letter query should tokenize to nothing")
	}
}

func TestGet(t *testing.T) {
	ix, _ := NewIndex(DefaultCorpus())
	doc, ok := ix.Get("med-ace-inhibitor")
	if !ok {
		t.Fatal("Get(med-ace-inhibitor) not found")
	}
	if doc.Category != CategoryMedication {
		t.Fatalf("category = %v, want medication", doc.Category)
	}
	if _, ok := ix.Get("no-such-doc"); ok {
		t.Fatal("Get() found a nonexistent document")
	}
}

func TestByCategory(t *testing.T) {
	ix, _ := NewIndex(DefaultCorpus())
	meds := ix.ByCategory(CategoryMedication)
	if len(meds) != 5 {
		t.Fatalf("medication docs = %d, want 5", len(meds))
	}
	for i := 1; i < len(meds); i++ {
		if meds[i].ID < meds[i-1].ID {
			t.Fatal("ByCategory() not ordered by id")
		}
	}
}

func TestContraindicationFact(t *testing.T) {
	ix, _ := NewIndex(DefaultCorpus())

	fact := ix.ContraindicationFact("ace-inhibitor")
	if fact == "" || fact == "contraindicated per patient record" {
		t.Fatalf("ace-inhibitor fact = %q, want corpus text", fact)
	}
	if strings.Contains(fact, "Contraindications:") {
		t.Fatalf("fact retains prefix: %q", fact)
	}

	if got := ix.ContraindicationFact("unknown-class"); got != "contraindicated per patient record" {
		t.Fatalf("unknown class fact = %q", got)
	}
}

func TestDefaultCorpusShape(t *testing.T) {
	docs := DefaultCorpus()
	seen := map[string]bool{}
	for _, d := range docs {
		if d.ID == "" || d.Title == "" || d.Body == "" {
			t.Fatalf("incomplete document: %+v", d)
		}
		if seen[d.ID] {
			t.Fatalf("duplicate document id %s", d.ID)
		}
		seen[d.ID] = true
	}
	for _, class := range []string{"ace-inhibitor", "arb", "calcium-channel-blocker", "thiazide-diuretic", "beta-blocker"} {
		if !seen["med-"+class] {
			t.Fatalf("corpus missing med-%s", class)
		}
	}
}
