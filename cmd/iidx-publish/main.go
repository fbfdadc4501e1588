// Command iidx-publish reads documents from stdin, one per line as
// "<doc_id>\t<text>", splits each into terms and publishes them as posting
// events to Kafka, or posts them straight to a daemon with -direct.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rowles/inverted-index/internal/ingest"
	"github.com/rowles/inverted-index/internal/ingest/tokenizer"
	"github.com/rowles/inverted-index/pkg/config"
	"github.com/rowles/inverted-index/pkg/kafka"
	"github.com/rowles/inverted-index/pkg/logger"
)

// sink delivers a batch of events.
type sink interface {
	Send(ctx context.Context, events []ingest.PostingEvent) error
	Close() error
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	direct := flag.String("direct", "", "daemon base URL; posts over HTTP instead of publishing to kafka")
	stem := flag.Bool("stem", false, "stem terms before publishing")
	batchSize := flag.Int("batch", 100, "events per kafka write")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out sink
	if *direct != "" {
		out = newHTTPSink(*direct)
	} else {
		out = &kafkaSink{producer: kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Postings)}
	}
	defer out.Close()

	tok := tokenizer.New(tokenizer.WithStemming(*stem))
	n, err := publish(ctx, os.Stdin, tok, out, *batchSize)
	if err != nil {
		slog.Error("publish failed", "published", n, "error", err)
		out.Close()
		os.Exit(1)
	}
	slog.Info("publish complete", "documents", n)
}

// publish reads documents from r and sends them in batches of batchSize. It
// returns the number of documents sent. Lines that do not parse are logged and
// skipped, as are documents with no terms.
func publish(ctx context.Context, r io.Reader, tok *tokenizer.Tokenizer, out sink, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	sent := 0
	batch := make([]ingest.PostingEvent, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := out.Send(ctx, batch); err != nil {
			return err
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc, body, err := parseLine(text)
		if err != nil {
			slog.Warn("skipping line", "line", line, "error", err)
			continue
		}
		terms := tok.Terms(body)
		if len(terms) == 0 {
			slog.Warn("skipping document without terms", "line", line, "doc_id", doc)
			continue
		}
		batch = append(batch, ingest.PostingEvent{
			DocID:      doc,
			Terms:      terms,
			IngestedAt: time.Now().UTC(),
		})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return sent, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return sent, fmt.Errorf("reading input: %w", err)
	}
	return sent, flush()
}

func parseLine(line string) (uint64, string, error) {
	id, body, ok := strings.Cut(line, "\t")
	if !ok {
		return 0, "", fmt.Errorf("missing tab after doc id")
	}
	doc, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid doc id %q: %w", id, err)
	}
	return doc, body, nil
}

type kafkaSink struct {
	producer *kafka.Producer
}

func (k *kafkaSink) Send(ctx context.Context, events []ingest.PostingEvent) error {
	batch := make([]kafka.Event, len(events))
	for i, ev := range events {
		batch[i] = kafka.Event{Key: ev.Key(), Value: ev}
	}
	return k.producer.PublishBatch(ctx, batch)
}

func (k *kafkaSink) Close() error {
	return k.producer.Close()
}

type httpSink struct {
	url    string
	client *http.Client
}

func newHTTPSink(baseURL string) *httpSink {
	return &httpSink{
		url:    strings.TrimRight(baseURL, "/") + "/api/v1/postings",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *httpSink) Send(ctx context.Context, events []ingest.PostingEvent) error {
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshaling doc %d: %w", ev.DocID, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("posting doc %d: %w", ev.DocID, err)
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("posting doc %d: %s: %s", ev.DocID, resp.Status, strings.TrimSpace(string(msg)))
		}
	}
	return nil
}

func (h *httpSink) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
