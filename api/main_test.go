package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/pagemap-facets/internal/facets"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/search"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

type stubRunner struct {
	queries []string
	round   *search.Round
	err     error
}

func (s *stubRunner) Run(_ context.Context, raw string) (*search.Round, error) {
	s.queries = append(s.queries, raw)
	return s.round, s.err
}

type failingPinger struct {
	*store.Memory
}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.Insert(ctx, models.Item{
		URL:   "https://a.example/dune",
		Title: "Dune - Books Online",
		Properties: []models.Property{
			{Domain: "book", Range: "text", Name: "author", Label: "Author", Value: "Frank Herbert"},
			{Domain: "book", Range: "numeric", Name: "numberofpages", Label: "Pages", Value: 412.0},
		},
		TopicData: []models.TopicData{{"book": {"author": "Frank Herbert"}}},
	}))
	require.NoError(t, st.Insert(ctx, models.Item{
		URL:        "https://b.example/emma",
		Title:      "Emma",
		Properties: []models.Property{{Domain: "book", Range: "text", Name: "author", Label: "Author", Value: "Jane Austen"}},
		TopicData:  []models.TopicData{{"book": {"author": "Jane Austen"}}},
	}))
	require.NoError(t, st.Insert(ctx, models.Item{URL: "https://c.example/plain", Title: "Plain page"}))
	return st
}

func newTestServer(st store.Store, runner roundRunner) *server {
	return &server{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:  st,
		runner: runner,
	}
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeItems(t *testing.T, rec *httptest.ResponseRecorder) itemsResponse {
	t.Helper()
	var resp itemsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(store.NewMemory(), nil).routes(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","search":false}`, rec.Body.String())

	rec = do(t, newTestServer(failingPinger{store.NewMemory()}, nil).routes(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestItemsReturnsEverythingWithShortTitles(t *testing.T) {
	rec := do(t, newTestServer(seededStore(t), nil).routes(), http.MethodGet, "/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeItems(t, rec)
	require.Equal(t, 3, resp.Total)
	require.Equal(t, "Dune", resp.Items[0].ShortTitle)
	require.Equal(t, "Dune - Books Online", resp.Items[0].Title)
}

func TestItemsFilteredBySelector(t *testing.T) {
	h := newTestServer(seededStore(t), nil).routes()

	rec := do(t, h, http.MethodGet, "/items?facet=book:author:Jane%20Austen", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeItems(t, rec)
	require.Equal(t, 2, resp.Total)
	require.Equal(t, "https://b.example/emma", resp.Items[0].URL)
	require.Equal(t, "https://c.example/plain", resp.Items[1].URL)

	rec = do(t, h, http.MethodGet, "/items?facet=book:numberofpages:412", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://a.example/dune", decodeItems(t, rec).Items[0].URL)

	rec = do(t, h, http.MethodGet, "/items?facet=book:author", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/items?facet=book:author:Nobody", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilterUsesBodyFacetsWithOrSemantics(t *testing.T) {
	h := newTestServer(seededStore(t), nil).routes()

	body, err := json.Marshal(filterRequest{Facets: []models.Facet{
		{Domain: "book", Name: "author", Value: "Frank Herbert"},
		{Domain: "book", Name: "author", Value: "Jane Austen"},
	}})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/items/filter", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, decodeItems(t, rec).Total)

	body, err = json.Marshal(filterRequest{Facets: []models.Facet{{Domain: "book", Name: "numberofpages", Value: 412.0}}})
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/items/filter", body)
	resp := decodeItems(t, rec)
	require.Equal(t, 2, resp.Total)
	require.Equal(t, "https://a.example/dune", resp.Items[0].URL)

	rec = do(t, h, http.MethodPost, "/items/filter",
		[]byte(`{"facets":[{"domain":"book","name":"numberofpages","value":"412"}]}`))
	resp = decodeItems(t, rec)
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "https://c.example/plain", resp.Items[0].URL)

	rec = do(t, h, http.MethodPost, "/items/filter", []byte("{"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFacetsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(seededStore(t), nil).routes(), http.MethodGet, "/facets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Facets []models.Facet `json:"facets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Facets, 3)
	require.Equal(t, "Frank Herbert", facets.FormatValue(resp.Facets[0].Value))
	require.Equal(t, "412", facets.FormatValue(resp.Facets[1].Value))
}

func TestSearch(t *testing.T) {
	runner := &stubRunner{round: &search.Round{
		ID:      "round-1",
		Keyword: "dune",
		Topics:  []string{"book"},
		Items:   []models.Item{{URL: "https://a.example/dune", Title: "Dune: A Novel"}},
		Facets:  []models.Facet{},
	}}
	h := newTestServer(store.NewMemory(), runner).routes()

	rec := do(t, h, http.MethodPost, "/search?q=dune%20%23book", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"dune #book"}, runner.queries)

	var resp roundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "round-1", resp.ID)
	require.Equal(t, "Dune", resp.Items[0].ShortTitle)

	runner.err = errors.New("clear store: boom")
	rec = do(t, h, http.MethodPost, "/search?q=dune", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSearchDisabledWithoutRunner(t *testing.T) {
	rec := do(t, newTestServer(store.NewMemory(), nil).routes(), http.MethodPost, "/search?q=dune", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
