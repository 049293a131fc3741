package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/pagemap-facets/internal/dedupe"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

type storedCall struct {
	result models.RawResult
	topics []string
}

type stubStorer struct {
	calls []storedCall
	err   error
}

func (s *stubStorer) StoreResult(_ context.Context, result models.RawResult, topics []string) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, storedCall{result: result, topics: topics})
	return nil
}

type stubWriter struct {
	failures int
	written  []kafka.Message
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encode(t *testing.T, payload models.ResultMessage) kafka.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessMessageStoresOnce(t *testing.T) {
	storer := &stubStorer{}
	cache := dedupe.NewCache(100, time.Hour)
	msg := encode(t, models.ResultMessage{
		Round:  "r1",
		Page:   1,
		Topics: []string{"book"},
		Result: models.RawResult{Link: " https://a.example/b ", Title: "Dune"},
	})

	require.NoError(t, processMessage(context.Background(), discardLogger(), storer, cache, []string{"recipe"}, msg))
	require.NoError(t, processMessage(context.Background(), discardLogger(), storer, cache, []string{"recipe"}, msg))

	require.Len(t, storer.calls, 1)
	require.Equal(t, "https://a.example/b", storer.calls[0].result.Link)
	require.Equal(t, []string{"book"}, storer.calls[0].topics)
}

func TestProcessMessageDefaultsTopics(t *testing.T) {
	storer := &stubStorer{}
	cache := dedupe.NewCache(100, time.Hour)
	msg := encode(t, models.ResultMessage{Round: "r1", Result: models.RawResult{Link: "https://a.example"}})

	require.NoError(t, processMessage(context.Background(), discardLogger(), storer, cache, []string{"recipe", "book"}, msg))
	require.Equal(t, []string{"recipe", "book"}, storer.calls[0].topics)
}

func TestProcessMessageNewRoundStoresAgain(t *testing.T) {
	storer := &stubStorer{}
	cache := dedupe.NewCache(100, time.Hour)
	result := models.RawResult{Link: "https://a.example"}

	require.NoError(t, processMessage(context.Background(), discardLogger(), storer, cache, nil, encode(t, models.ResultMessage{Round: "r1", Result: result})))
	require.NoError(t, processMessage(context.Background(), discardLogger(), storer, cache, nil, encode(t, models.ResultMessage{Round: "r2", Result: result})))
	require.Len(t, storer.calls, 2)
}

func TestProcessMessageRejectsBadPayloads(t *testing.T) {
	storer := &stubStorer{}
	cache := dedupe.NewCache(100, time.Hour)

	err := processMessage(context.Background(), discardLogger(), storer, cache, nil, kafka.Message{Value: []byte("{not json")})
	require.Error(t, err)

	err = processMessage(context.Background(), discardLogger(), storer, cache, nil, encode(t, models.ResultMessage{Round: "r1"}))
	require.Error(t, err)
	require.Empty(t, storer.calls)
}

func TestProcessMessageFailureReleasesKey(t *testing.T) {
	storer := &stubStorer{err: errors.New("store down")}
	cache := dedupe.NewCache(100, time.Hour)
	msg := encode(t, models.ResultMessage{Round: "r1", Result: models.RawResult{Link: "https://a.example"}})

	require.Error(t, processMessage(context.Background(), discardLogger(), storer, cache, nil, msg))

	storer.err = nil
	require.NoError(t, processMessage(context.Background(), discardLogger(), storer, cache, nil, msg))
	require.Len(t, storer.calls, 1)
}

func TestProcessMessageWithBuilder(t *testing.T) {
	profile := models.Profile{Topics: []models.Topic{{
		Name:   "book",
		Terms:  []string{"author"},
		Labels: []string{"Author"},
		Types:  []string{"text"},
	}}}
	st := store.NewMemory()
	builder := processing.NewBuilder(profile, processing.NewRefiner(nil, nil, nil), st, nil)
	cache := dedupe.NewCache(100, time.Hour)

	msg := encode(t, models.ResultMessage{
		Round: "r1",
		Result: models.RawResult{
			Link:    "https://a.example/dune",
			Title:   "Dune",
			Pagemap: map[string][]models.Variant{"book": {{"author": "Frank Herbert"}}},
		},
	})
	require.NoError(t, processMessage(context.Background(), discardLogger(), builder, cache, profile.TopicNames(), msg))

	items, err := st.All(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Frank Herbert", items[0].Properties[0].Value)
}

func TestSendToDLQRetries(t *testing.T) {
	w := &stubWriter{failures: 1}
	msg := kafka.Message{Partition: 2, Offset: 42, Value: []byte("payload")}

	ok := sendToDLQ(context.Background(), discardLogger(), w, msg, errors.New("boom"))
	require.True(t, ok)
	require.Len(t, w.written, 1)
	require.Equal(t, []byte("payload"), w.written[0].Value)
}

func TestSendToDLQStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := sendToDLQ(ctx, discardLogger(), &stubWriter{failures: 10}, kafka.Message{}, errors.New("boom"))
	require.False(t, ok)
}

func TestDLQMessageHeaders(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := kafka.Message{
		Partition: 3,
		Offset:    7,
		Key:       []byte("k"),
		Headers:   []kafka.Header{{Key: "trace", Value: []byte("t1")}},
	}

	out := dlqMessage(msg, errors.New("decode message: bad"), now)
	require.Equal(t, []byte("k"), out.Key)

	got := map[string]string{}
	for _, h := range out.Headers {
		got[h.Key] = string(h.Value)
	}
	require.Equal(t, map[string]string{
		"trace":              "t1",
		"original_partition": "3",
		"original_offset":    "7",
		"error":              "decode message: bad",
		"timestamp":          "2024-01-02T03:04:05Z",
	}, got)
	require.Len(t, msg.Headers, 1)
}
