// Package search runs a search round: fetch every result page, settle, and
// repopulate the result store.
package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

// Retriever fetches one page of raw results for keyword. Pages start at 1.
type Retriever interface {
	Search(ctx context.Context, keyword string, page int) ([]models.RawResult, error)
}

// PageResult is a page that was fetched successfully.
type PageResult struct {
	Page    int
	Results []models.RawResult
}

// PageFailure is a page whose request failed.
type PageFailure struct {
	Page int
	Err  error
}

// Batch is the settled outcome of a fan-out, both lists ordered by page.
type Batch struct {
	Succeeded []PageResult
	Failed    []PageFailure
}

// FetchAll requests pages 1..pages concurrently and waits for all of them.
// A failing page never cancels the others.
func FetchAll(ctx context.Context, r Retriever, keyword string, pages int) Batch {
	if pages <= 0 {
		return Batch{}
	}

	results := make([][]models.RawResult, pages)
	errs := make([]error, pages)

	var g errgroup.Group
	for i := 0; i < pages; i++ {
		g.Go(func() error {
			results[i], errs[i] = r.Search(ctx, keyword, i+1)
			return nil
		})
	}
	_ = g.Wait() // errors are captured per page

	var batch Batch
	for i := 0; i < pages; i++ {
		if errs[i] != nil {
			batch.Failed = append(batch.Failed, PageFailure{Page: i + 1, Err: errs[i]})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, PageResult{Page: i + 1, Results: results[i]})
	}
	return batch
}
