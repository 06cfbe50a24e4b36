package search

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/hyperjump/thesislens/internal/embedding"
	"github.com/hyperjump/thesislens/internal/indexer"
	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/snapshot"
	"github.com/hyperjump/thesislens/internal/storage"
	"github.com/hyperjump/thesislens/internal/vector"
)

// thesisStore is an in-memory DocumentStore that counts full listings.
type thesisStore struct {
	mu    sync.Mutex
	docs  []*models.ThesisDocument
	lists int
}

func (s *thesisStore) CountDocuments(ctx context.Context) (int64, error) {
	return int64(len(s.docs)), nil
}

func (s *thesisStore) ListDocuments(ctx context.Context, includeFullText bool) ([]*models.ThesisDocument, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	out := make([]*models.ThesisDocument, len(s.docs))
	for i, d := range s.docs {
		cp := *d
		out[i] = &cp
	}
	return out, nil
}

func (s *thesisStore) GetDocument(ctx context.Context, id string, includeFullText bool) (*models.ThesisDocument, error) {
	for _, d := range s.docs {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *thesisStore) ValidateID(id string) error {
	if id == "not-an-id!" {
		return storage.ErrInvalidID
	}
	return nil
}

func (s *thesisStore) Close() error { return nil }

func (s *thesisStore) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

var topics = map[string]int{
	"neural": 0, "networks": 0, "learning": 0, "machine": 0, "deep": 0,
	"cats": 1, "dogs": 1,
	"gardening": 2,
}

func corpus() *thesisStore {
	return &thesisStore{docs: []*models.ThesisDocument{
		{ID: "cats", Title: "Pets", Author: "A. Smith", Abstract: "cats and dogs"},
		{ID: "ml", Title: "ML", Author: "B. Jones", Abstract: "machine learning basics"},
		{ID: "dl", Title: "DL", Author: "C. Wu", Abstract: "deep learning networks"},
		{ID: "garden", Title: "Garden", Author: "D. Ede", Abstract: "gardening tips"},
	}}
}

func newEngine(t *testing.T, store storage.DocumentStore, emb embedding.Embedder, dir string) *Engine {
	t.Helper()
	var snaps *snapshot.Store
	if dir != "" {
		snaps = snapshot.NewStore(dir)
	}
	b := indexer.NewBuilder(store, emb, snaps, indexer.BuilderConfig{})
	e := NewEngine(store, emb, snaps, b)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func readyEngine(t *testing.T) *Engine {
	t.Helper()
	e := newEngine(t, corpus(), embedding.NewLexiconEmbedder(3, topics), t.TempDir())
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e
}

func TestEngine_notReady(t *testing.T) {
	ctx := context.Background()
	store := &thesisStore{}
	e := newEngine(t, store, embedding.NewLexiconEmbedder(3, topics), t.TempDir())

	if _, err := e.Search(ctx, "neural networks", 2); !errors.Is(err, ErrNotReady) {
		t.Errorf("Search before init: err = %v, want ErrNotReady", err)
	}
	if _, err := e.Recommend(ctx, "ml", 2); !errors.Is(err, ErrNotReady) {
		t.Errorf("Recommend before init: err = %v, want ErrNotReady", err)
	}

	err := e.Initialize(ctx)
	if !errors.Is(err, indexer.ErrNoDocuments) {
		t.Fatalf("Initialize on empty store: err = %v, want ErrNoDocuments", err)
	}
	if e.State() != StateUninitialized {
		t.Errorf("state = %v, want uninitialized", e.State())
	}
	if _, err := e.Search(ctx, "neural networks", 2); !errors.Is(err, ErrNotReady) {
		t.Errorf("Search after failed build: err = %v, want ErrNotReady", err)
	}
	st := e.Status()
	if st.State != "uninitialized" || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}

	// Documents appearing later do not trigger another attempt.
	store.docs = corpus().docs
	if err2 := e.Initialize(ctx); err2 != err {
		t.Errorf("second Initialize = %v, want first result %v", err2, err)
	}
	if e.State() != StateUninitialized {
		t.Error("engine should stay uninitialized for the process lifetime")
	}
}

func TestEngine_searchRanksRelatedAbstracts(t *testing.T) {
	e := readyEngine(t)
	hits, err := e.Search(context.Background(), "neural networks", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	got := map[string]bool{hits[0].ID: true, hits[1].ID: true}
	if !got["ml"] || !got["dl"] {
		t.Errorf("hits = %+v, want ml and dl", hits)
	}
	if hits[0].Title == "" || hits[0].Author == "" {
		t.Errorf("hit metadata missing: %+v", hits[0])
	}
}

func TestEngine_searchOrderAndBound(t *testing.T) {
	e := readyEngine(t)
	for _, k := range []int{0, 1, 3, 4, 10} {
		hits, err := e.Search(context.Background(), "cats learning", k)
		if err != nil {
			t.Fatal(err)
		}
		want := min(max(k, 0), 4)
		if len(hits) != want {
			t.Errorf("k=%d: got %d hits, want %d", k, len(hits), want)
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].RelevanceScore < hits[i-1].RelevanceScore {
				t.Errorf("k=%d: scores not ascending at %d: %+v", k, i, hits)
			}
		}
	}
}

func TestEngine_searchEmptyQuery(t *testing.T) {
	e := readyEngine(t)
	if _, err := e.Search(context.Background(), "  \n", 3); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

func TestEngine_recommendExample(t *testing.T) {
	e := readyEngine(t)
	recs, err := e.Recommend(context.Background(), "ml", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) > 3 {
		t.Fatalf("got %d recommendations, want at most 3", len(recs))
	}
	pos := map[string]int{}
	for i, r := range recs {
		if r.ID == "ml" {
			t.Fatal("target thesis must not be recommended")
		}
		pos[r.ID] = i
	}
	dl, okDL := pos["dl"]
	garden, okGarden := pos["garden"]
	if !okDL || !okGarden || dl > garden {
		t.Errorf("deep learning should rank above gardening: %+v", recs)
	}
	if recs[0].Abstract != "deep learning networks" {
		t.Errorf("abstract = %q", recs[0].Abstract)
	}
}

func TestEngine_recommendSelfExclusionAndBound(t *testing.T) {
	e := readyEngine(t)
	ctx := context.Background()
	for _, id := range []string{"cats", "ml", "dl", "garden"} {
		for _, k := range []int{1, 2, 3, 4, 8} {
			recs, err := e.Recommend(ctx, id, k)
			if err != nil {
				t.Fatalf("Recommend(%s, %d): %v", id, k, err)
			}
			if want := min(k, 3); len(recs) != want {
				t.Errorf("Recommend(%s, %d) returned %d, want %d", id, k, len(recs), want)
			}
			for i, r := range recs {
				if r.ID == id {
					t.Errorf("Recommend(%s, %d) includes the target", id, k)
				}
				if i > 0 && r.SimilarityScore < recs[i-1].SimilarityScore {
					t.Errorf("Recommend(%s, %d) not ascending: %+v", id, k, recs)
				}
			}
		}
	}
}

func TestEngine_recommendErrors(t *testing.T) {
	store := corpus()
	store.docs = append(store.docs, &models.ThesisDocument{ID: "blank", Title: "Blank"})
	e := newEngine(t, store, embedding.NewLexiconEmbedder(3, topics), "")
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		id   string
		want error
	}{
		{"empty id", " ", ErrEmptyInput},
		{"invalid id", "not-an-id!", storage.ErrInvalidID},
		{"not found", "missing", storage.ErrNotFound},
		{"no content", "blank", ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Recommend(context.Background(), tt.id, 3); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_recommendPrefersFullText(t *testing.T) {
	store := corpus()
	store.docs = append(store.docs, &models.ThesisDocument{ID: "mixed", Abstract: "machine learning", FullText: "gardening gardening"})
	e := newEngine(t, store, embedding.NewLexiconEmbedder(3, topics), "")
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	recs, err := e.Recommend(context.Background(), "mixed", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "garden" {
		t.Errorf("recs = %+v, want garden first", recs)
	}
}

func TestEngine_loadsPersistedSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewLexiconEmbedder(3, topics)

	first := newEngine(t, corpus(), emb, dir)
	if err := first.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	want, err := first.Search(ctx, "cats learning gardening", 4)
	if err != nil {
		t.Fatal(err)
	}

	store := corpus()
	second := newEngine(t, store, emb, dir)
	if err := second.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if store.listCount() != 0 {
		t.Error("a consistent snapshot should be loaded without rebuilding")
	}
	if second.Status().Version != first.Status().Version {
		t.Error("loaded version should match the saved one")
	}
	got, err := second.Search(ctx, "cats learning gardening", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d hits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hit %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEngine_rebuildsUnusableSnapshot(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		emb     embedding.Embedder
		corrupt func(t *testing.T, s *snapshot.Store, version string)
	}{
		{"stale model", embedding.NewHashingEmbedder(3), nil},
		{"missing metadata", embedding.NewLexiconEmbedder(3, topics), func(t *testing.T, s *snapshot.Store, v string) {
			if err := os.Remove(s.MetadataPath(v)); err != nil {
				t.Fatal(err)
			}
		}},
		{"truncated vectors", embedding.NewLexiconEmbedder(3, topics), func(t *testing.T, s *snapshot.Store, v string) {
			if err := os.WriteFile(s.VectorsPath(v), []byte("TLVX"), 0600); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			seed := newEngine(t, corpus(), embedding.NewLexiconEmbedder(3, topics), dir)
			if err := seed.Initialize(ctx); err != nil {
				t.Fatal(err)
			}
			if tt.corrupt != nil {
				tt.corrupt(t, snapshot.NewStore(dir), seed.Status().Version)
			}

			store := corpus()
			e := newEngine(t, store, tt.emb, dir)
			if err := e.Initialize(ctx); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if store.listCount() != 1 {
				t.Errorf("expected one rebuild, got %d listings", store.listCount())
			}
			if e.State() != StateReady {
				t.Error("engine should be ready after rebuild")
			}
		})
	}
}

func TestEngine_dimensionMismatchIsFatal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := newEngine(t, corpus(), embedding.NewLexiconEmbedder(3, topics), dir)
	if err := seed.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	store := corpus()
	e := newEngine(t, store, embedding.NewLexiconEmbedder(5, topics), dir)
	err := e.Initialize(ctx)
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	var dm *vector.DimensionMismatchError
	if !errors.As(err, &dm) || dm.Expected != 5 || dm.Actual != 3 {
		t.Errorf("mismatch detail = %+v", dm)
	}
	if store.listCount() != 0 {
		t.Error("a dimension mismatch must not trigger a rebuild")
	}
}

func TestEngine_rebuildAndStatus(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, corpus(), embedding.NewLexiconEmbedder(3, topics), t.TempDir())
	stats, err := e.Rebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 4 {
		t.Errorf("indexed = %d", stats.Indexed)
	}
	st := e.Status()
	if st.State != "ready" || st.Size != 4 || st.Model != "lexicon-3" || st.Dimensions != 3 || st.IndexType != string(vector.IndexTypeFlat) {
		t.Errorf("status = %+v", st)
	}
	if st.Version == "" || st.CreatedAt.IsZero() || st.LastError != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestEngine_concurrentQueries(t *testing.T) {
	e := readyEngine(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.Search(ctx, "deep learning", 2); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.Recommend(ctx, "cats", 2); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
