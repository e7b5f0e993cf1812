package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/covid-metrics-service/internal/config"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
)

// Feed names used in logs and metric labels.
const (
	FeedUS         = "us"
	FeedStates     = "states"
	FeedWorld      = "world"
	FeedPopulation = "population"
)

// Client fetches the CSV feeds over HTTP(S) or from file:// URLs.
type Client struct {
	sources    config.Sources
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client. file:// URLs are resolved against the root
// of the local filesystem.
func NewClient(sources config.Sources, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &Client{
		sources: sources,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Extract fetches every configured feed concurrently. The first failure cancels
// the remaining fetches. Without a world URL the world feed is empty; without a
// population URL the embedded reference table is used.
func (c *Client) Extract(ctx context.Context) (domain.Sources, error) {
	var src domain.Sources
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		src.US, err = fetchFeed(ctx, c, FeedUS, c.sources.USURL, ParseUS)
		return err
	})
	g.Go(func() (err error) {
		src.States, err = fetchFeed(ctx, c, FeedStates, c.sources.StatesURL, ParseStates)
		return err
	})
	if c.sources.WorldURL != "" {
		g.Go(func() (err error) {
			src.World, err = fetchFeed(ctx, c, FeedWorld, c.sources.WorldURL, ParseWorld)
			return err
		})
	}
	if c.sources.PopulationURL != "" {
		g.Go(func() (err error) {
			src.Population, err = fetchFeed(ctx, c, FeedPopulation, c.sources.PopulationURL, ParsePopulation)
			return err
		})
	} else {
		src.Population = DefaultPopulation()
	}

	if err := g.Wait(); err != nil {
		return domain.Sources{}, err
	}
	return src, nil
}

func fetchFeed[T any](ctx context.Context, c *Client, feed, url string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	start := time.Now()
	rows, err := readFeed(ctx, c, url, parse)
	c.metrics.SourceFetchDuration.WithLabelValues(feed).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceFetches.WithLabelValues(feed, "error").Inc()
		return nil, fmt.Errorf("fetch %s feed: %w", feed, err)
	}
	c.metrics.SourceFetches.WithLabelValues(feed, "success").Inc()
	c.metrics.SourceRows.WithLabelValues(feed).Set(float64(len(rows)))
	c.logger.Debug("feed fetched", "feed", feed, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

func readFeed[T any](ctx context.Context, c *Client, url string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	body, err := c.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	rows, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return rows, nil
}

func (c *Client) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source error: status %d: %s", resp.StatusCode, body)
	}
	return resp.Body, nil
}
