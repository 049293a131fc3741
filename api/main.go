package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/DeafMist/pagemap-facets/internal/config"
	"github.com/DeafMist/pagemap-facets/internal/facets"
	"github.com/DeafMist/pagemap-facets/internal/logger"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/search"
	"github.com/DeafMist/pagemap-facets/internal/store"
	"github.com/DeafMist/pagemap-facets/internal/wiring"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Error("load profile", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, closeStore, err := wiring.OpenStore(ctx, cfg.Common, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	srv := &server{log: log, store: st}
	runner, err := wiring.NewRunner(ctx, cfg.Search, profile, st, log)
	if err != nil {
		// Browsing a persistent store still works without search credentials.
		log.Warn("search disabled", slog.Any("err", err))
	} else {
		srv.runner = runner
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr), slog.String("store", cfg.StoreBackend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type roundRunner interface {
	Run(ctx context.Context, raw string) (*search.Round, error)
}

type server struct {
	log    *slog.Logger
	store  store.Store
	runner roundRunner

	// A round clears and repopulates the store, so rounds never overlap.
	roundMu sync.Mutex
}

type errorResponse struct {
	Error string `json:"error"`
}

// itemView is an item as presented to clients.
type itemView struct {
	models.Item
	ShortTitle string `json:"short_title"`
}

type itemsResponse struct {
	Total int        `json:"total"`
	Items []itemView `json:"items"`
}

type roundResponse struct {
	ID          string         `json:"id"`
	Keyword     string         `json:"keyword"`
	Topics      []string       `json:"topics"`
	FailedPages []int          `json:"failed_pages,omitempty"`
	Items       []itemView     `json:"items"`
	Facets      []models.Facet `json:"facets"`
}

type filterRequest struct {
	Facets []models.Facet `json:"facets"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/search", s.handleSearch)
	r.Get("/items", s.handleItems)
	r.Post("/items/filter", s.handleFilter)
	r.Get("/facets", s.handleFacets)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if p, ok := s.store.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "search": s.runner != nil})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search is not configured"})
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("q"))

	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	round, err := s.runner.Run(r.Context(), raw)
	if err != nil {
		s.log.Error("search round", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, roundResponse{
		ID:          round.ID,
		Keyword:     round.Keyword,
		Topics:      round.Topics,
		FailedPages: round.FailedPages,
		Items:       present(round.Items),
		Facets:      round.Facets,
	})
}

// handleItems returns the view for the selection given as repeated
// ?facet=domain:name:value parameters, or every item without any.
func (s *server) handleItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var selected []models.Facet
	if raws := r.URL.Query()["facet"]; len(raws) > 0 {
		sels := make([]facets.Selector, 0, len(raws))
		for _, raw := range raws {
			sel, err := facets.ParseSelector(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
				return
			}
			sels = append(sels, sel)
		}

		all, err := s.store.All(ctx)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		built := facets.Build(all)
		if err := facets.Apply(built, sels); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		selected = facets.Selected(built)
	}

	s.writeView(ctx, w, selected)
}

// handleFilter treats every facet in the body as selected.
func (s *server) handleFilter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req filterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}

	s.writeView(ctx, w, req.Facets)
}

func (s *server) handleFacets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, err := s.store.All(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facets": facets.Build(items)})
}

func (s *server) writeView(ctx context.Context, w http.ResponseWriter, selected []models.Facet) {
	items, err := facets.ComputeView(ctx, s.store, selected)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	views := present(items)
	writeJSON(w, http.StatusOK, itemsResponse{Total: len(views), Items: views})
}

func present(items []models.Item) []itemView {
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		out = append(out, itemView{Item: item, ShortTitle: processing.ShortTitle(item.Title)})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
