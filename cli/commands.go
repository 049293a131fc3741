package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/DeafMist/pagemap-facets/internal/facets"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/query"
	"github.com/DeafMist/pagemap-facets/internal/search"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

type roundRunner interface {
	Run(ctx context.Context, raw string) (*search.Round, error)
}

type publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// app carries the constructors commands use; tests swap them for stubs.
type app struct {
	profile   models.Profile
	pageLimit int

	openStore    func(ctx context.Context) (store.Store, func() error, error)
	newRunner    func(ctx context.Context, st store.Store) (roundRunner, error)
	newRetriever func(ctx context.Context) (search.Retriever, error)
	newPublisher func() (publisher, error)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "pagemap",
		Short:        "Search the web and facet results by their structured data",
		SilenceUsage: true,
	}
	root.AddCommand(newSearchCmd(a), newPublishCmd(a), newFacetsCmd(a))
	return root
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		selectors []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a search round and print the faceted view",
		Long: `Runs one search round: fetches every result page, rebuilds the store
and prints the items and facets. Topics are chosen with #Topic tags,
e.g. "cheesecake #recipe". Facets are selected with --facet domain:name:value.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sels, err := parseSelectors(selectors)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			runner, err := a.newRunner(ctx, st)
			if err != nil {
				return err
			}

			round, err := runner.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			all := round.Facets
			if err := facets.Apply(all, sels); err != nil {
				return err
			}
			items, err := facets.ComputeView(ctx, st, facets.Selected(all))
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"round":        round.ID,
					"keyword":      round.Keyword,
					"topics":       round.Topics,
					"failed_pages": round.FailedPages,
					"items":        items,
					"facets":       all,
				})
			}
			if round.Keyword == "" {
				cmd.Println("No keyword given; nothing searched.")
				return nil
			}
			if len(round.FailedPages) > 0 {
				cmd.Printf("Pages failed: %v\n", round.FailedPages)
			}
			printItems(cmd, items)
			printFacets(cmd, all)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&selectors, "facet", "f", nil, "select a facet as domain:name:value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <query>",
		Short: "Fetch result pages and publish raw results to Kafka for the worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			q, err := query.Parse(strings.Join(args, " "), a.profile.TopicNames())
			if errors.Is(err, query.ErrMissingKeyword) {
				cmd.Println("No keyword given; nothing published.")
				return nil
			}
			if err != nil {
				return err
			}

			retriever, err := a.newRetriever(ctx)
			if err != nil {
				return err
			}

			batch := search.FetchAll(ctx, retriever, q.Keyword, a.pageLimit)
			msgs, err := resultMessages(uuid.NewString(), q.Topics, batch)
			if err != nil {
				return err
			}

			// The worker only appends, so a new round starts from an empty store.
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := st.Clear(ctx); err != nil {
				return fmt.Errorf("clear store: %w", err)
			}

			w, err := a.newPublisher()
			if err != nil {
				return err
			}
			defer w.Close()

			if len(msgs) > 0 {
				if err := w.WriteMessages(ctx, msgs...); err != nil {
					return fmt.Errorf("publish results: %w", err)
				}
			}

			cmd.Printf("Published %d results from %d pages", len(msgs), len(batch.Succeeded))
			if len(batch.Failed) > 0 {
				failed := make([]int, 0, len(batch.Failed))
				for _, f := range batch.Failed {
					failed = append(failed, f.Page)
				}
				cmd.Printf(" (failed pages: %v)", failed)
			}
			cmd.Println()
			return nil
		},
	}
}

func newFacetsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "facets",
		Short: "List the facets of the stored items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			items, err := st.All(ctx)
			if err != nil {
				return err
			}
			all := facets.Build(items)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), all)
			}
			printFacets(cmd, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output facets as JSON")
	return cmd
}

func resultMessages(round string, topics []string, batch search.Batch) ([]kafka.Message, error) {
	var msgs []kafka.Message
	for _, page := range batch.Succeeded {
		for _, result := range page.Results {
			if strings.TrimSpace(result.Link) == "" {
				continue
			}
			data, err := json.Marshal(models.ResultMessage{
				Round:  round,
				Page:   page.Page,
				Topics: topics,
				Result: result,
			})
			if err != nil {
				return nil, fmt.Errorf("encode result: %w", err)
			}
			msgs = append(msgs, kafka.Message{Key: []byte(result.Link), Value: data})
		}
	}
	return msgs, nil
}

func parseSelectors(raw []string) ([]facets.Selector, error) {
	out := make([]facets.Selector, 0, len(raw))
	for _, r := range raw {
		sel, err := facets.ParseSelector(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

func printItems(cmd *cobra.Command, items []models.Item) {
	if len(items) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	for i, item := range items {
		title := processing.ShortTitle(item.Title)
		if title == "" {
			title = item.URL
		}
		cmd.Printf("  [%d] %s\n", i+1, color.New(color.Bold).Sprint(title))
		cmd.Printf("      %s\n", item.URL)
		for _, p := range item.Properties {
			cmd.Printf("      %s: %s\n", facets.Label(p.Label, p.Unit), facets.FormatValue(p.Value))
		}
	}
	cmd.Println()
}

func printFacets(cmd *cobra.Command, all []models.Facet) {
	if len(all) == 0 {
		cmd.Println("No facets.")
		return
	}

	selected := color.New(color.FgGreen, color.Bold).SprintFunc()
	cmd.Println("Facets:")
	for _, f := range all {
		name := f.Domain + ":" + f.Name + ":" + facets.FormatValue(f.Value)
		if f.Selected {
			cmd.Printf("  [x] %s  (%s)\n", selected(name), f.Label)
			continue
		}
		cmd.Printf("  [ ] %s  (%s)\n", name, f.Label)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
