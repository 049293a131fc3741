// Package customsearch retrieves result pages from the Google Custom Search
// JSON API.
package customsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

// PageSize is the number of results the API returns per page.
const PageSize = 10

var (
	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("customsearch: rate limit exceeded")
	// ErrForbidden indicates a bad key, a disabled API or an exhausted quota.
	ErrForbidden = errors.New("customsearch: forbidden")
)

// Config holds credentials and limits for the client.
type Config struct {
	APIKey            string
	SearchEngineID    string
	Timeout           time.Duration
	RequestsPerSecond float64
	// Endpoint overrides the API base URL; used by tests.
	Endpoint string
}

// Client fetches pages through the customsearch service.
type Client struct {
	svc     *customsearch.Service
	cx      string
	timeout time.Duration
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a client authenticated with an API key.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.SearchEngineID == "" {
		return nil, errors.New("customsearch: api key and search engine id are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		svc:     svc,
		cx:      cfg.SearchEngineID,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		log:     logger,
	}, nil
}

// Search returns page (1-based) of results for keyword.
func (c *Client) Search(ctx context.Context, keyword string, page int) ([]models.RawResult, error) {
	if page < 1 {
		return nil, fmt.Errorf("customsearch: invalid page %d", page)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.svc.Cse.List().
		Cx(c.cx).
		Q(keyword).
		Start(StartIndex(page)).
		Num(PageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search page %d: %w", page, wrapError(err))
	}

	out := make([]models.RawResult, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil {
			continue
		}
		raw := models.RawResult{
			Link:    item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		}
		if len(item.Pagemap) > 0 {
			pm, err := DecodePagemap(item.Pagemap)
			if err != nil {
				c.log.Warn("ignore malformed pagemap", slog.String("url", item.Link), slog.Any("err", err))
			} else {
				raw.Pagemap = pm
			}
		}
		out = append(out, raw)
	}

	c.log.Debug("page fetched", slog.String("keyword", keyword), slog.Int("page", page), slog.Int("results", len(out)))
	return out, nil
}

// StartIndex is the 1-based index of the first result on page.
func StartIndex(page int) int64 {
	return int64((page-1)*PageSize + 1)
}

// DecodePagemap reads the topic -> variants object attached to a result.
func DecodePagemap(data []byte) (map[string][]models.Variant, error) {
	var pm map[string][]models.Variant
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("decode pagemap: %w", err)
	}
	return pm, nil
}

func wrapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, gerr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, gerr.Message)
	default:
		return err
	}
}
