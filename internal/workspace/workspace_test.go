package workspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/opensuperagent/superagent/internal/presentation"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	body  map[string]map[string]any
}

func newWorkspace(t *testing.T) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{body: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		key := r.Method + " " + r.URL.Path
		rec.calls = append(rec.calls, key)
		rec.body[key] = body
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/documents"):
			_, _ = w.Write([]byte(`{"documentId":"doc-1","title":"Notes"}`))
		case strings.HasSuffix(r.URL.Path, "/presentations"):
			_, _ = w.Write([]byte(`{"presentationId":"deck-1","title":"Deck"}`))
		case strings.HasSuffix(r.URL.Path, "/permissions"):
			_, _ = w.Write([]byte(`{"id":"perm-1"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c, rec
}

func TestCreateDocument(t *testing.T) {
	c, rec := newWorkspace(t)
	c.ShareWith = []string{"team@example.com"}

	f, err := c.CreateDocument(context.Background(), "Notes", "hello world", []string{"me@example.com", "team@example.com"})
	require.NoError(t, err)
	require.Equal(t, "doc-1", f.ID)
	require.Equal(t, "https://docs.google.com/document/d/doc-1/edit", f.URL)
	require.Equal(t, []string{"team@example.com", "me@example.com"}, f.SharedTo)

	require.Len(t, rec.calls, 4)
	require.True(t, strings.HasSuffix(rec.calls[1], "documents/doc-1:batchUpdate"), rec.calls[1])
}

func TestCreateDocumentRequiresTitle(t *testing.T) {
	c, _ := newWorkspace(t)
	_, err := c.CreateDocument(context.Background(), " ", "", nil)
	require.EqualError(t, err, "document title is required")
}

func TestCreateDeck(t *testing.T) {
	c, rec := newWorkspace(t)
	o, err := presentation.Normalize(presentation.Outline{
		Title: "Deck",
		Slides: []presentation.Slide{
			{Title: "Deck", Subtitle: "intro"},
			{Title: "Points", Bullets: []string{"a", "b"}},
		},
	})
	require.NoError(t, err)

	f, err := c.CreateDeck(context.Background(), o, nil)
	require.NoError(t, err)
	require.Equal(t, "https://docs.google.com/presentation/d/deck-1/edit", f.URL)
	require.Len(t, rec.calls, 2)
}

func TestDeckRequests(t *testing.T) {
	reqs := deckRequests(presentation.Outline{Title: "t", Slides: []presentation.Slide{
		{Title: "Intro", Subtitle: "sub", Layout: presentation.LayoutTitle},
		{Title: "Body", Bullets: []string{"x", "y"}, Layout: presentation.LayoutTitleAndBody},
		{Title: "Break", Layout: presentation.LayoutSection},
	}})

	// create+title+subtitle, create+title+body, create+title, delete blank
	require.Len(t, reqs, 9)
	require.Equal(t, "TITLE", reqs[0].CreateSlide.SlideLayoutReference.PredefinedLayout)
	require.Equal(t, "sub", reqs[2].InsertText.Text)
	require.Equal(t, "x\ny", reqs[5].InsertText.Text)
	require.Equal(t, "SECTION_HEADER", reqs[6].CreateSlide.SlideLayoutReference.PredefinedLayout)
	require.Equal(t, "p", reqs[8].DeleteObject.ObjectId)
}
