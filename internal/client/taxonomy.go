package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"heritage/taxonomy/internal/config"
	"heritage/taxonomy/internal/domain"
	"heritage/taxonomy/internal/metrics"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

var (
	ErrTooManyPages   = errors.New("pagination did not terminate")
	ErrMissingResults = errors.New("missing results")
)

type TaxonomyClient interface {
	GetPage(ctx context.Context, pageURL string) (*domain.SubcategoryPage, error)
	GetAll(ctx context.Context) ([]domain.Subcategory, error)
	Close() error
}

type taxonomyClient struct {
	rl         ratelimit.Limiter
	config     config.TaxonomyConfig
	httpClient *resty.Client
	metrics    *metrics.Metrics
}

func NewTaxonomyClient(cfg config.TaxonomyConfig, m *metrics.Metrics) TaxonomyClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	return &taxonomyClient{
		rl:         rl,
		config:     cfg,
		httpClient: client,
		metrics:    m,
	}
}

// GetPage fetches and decodes a single collection page. pageURL is relative to the base URL.
func (c *taxonomyClient) GetPage(ctx context.Context, pageURL string) (*domain.SubcategoryPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("request cancelled: %w", err)
	}

	c.rl.Take()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("HTTP error for %s: %d %s", pageURL, resp.StatusCode(), resp.Status())
	}

	page, err := decodePage([]byte(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page %s: %w", pageURL, err)
	}

	c.metrics.IncrementPagesFetched()
	return page, nil
}

// GetAll walks the next links from the first page and returns the complete
// collection in server order. Pages are requested one at a time and a
// failure on any page discards everything accumulated so far.
func (c *taxonomyClient) GetAll(ctx context.Context) ([]domain.Subcategory, error) {
	items := make([]domain.Subcategory, 0, c.config.PageSize)
	current := c.config.FirstPageURL()

	for pageNum := 1; ; pageNum++ {
		if c.config.MaxPages > 0 && pageNum > c.config.MaxPages {
			return nil, fmt.Errorf("%w after %d pages", ErrTooManyPages, c.config.MaxPages)
		}

		page, err := c.GetPage(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", pageNum, err)
		}

		items = append(items, page.Results...)
		log.Debugf("Fetched subcategory page %d with %d items", pageNum, len(page.Results))

		if !page.HasNext() {
			break
		}

		current, err = relativeNext(*page.Next)
		if err != nil {
			return nil, fmt.Errorf("invalid next link on page %d: %w", pageNum, err)
		}
	}

	return items, nil
}

func (c *taxonomyClient) Close() error {
	return c.httpClient.Close()
}

// decodePage requires a results array; a 200 body of null or {} is not an empty page
func decodePage(body []byte) (*domain.SubcategoryPage, error) {
	var raw struct {
		Results *[]domain.Subcategory `json:"results"`
		Next    *string               `json:"next"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	if raw.Results == nil {
		return nil, ErrMissingResults
	}

	return &domain.SubcategoryPage{
		Results: *raw.Results,
		Next:    raw.Next,
	}, nil
}

// relativeNext strips scheme and host from a next link so the follow-up
// request stays on the configured base URL.
func relativeNext(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", err
	}

	if u.Opaque != "" {
		return "", fmt.Errorf("unsupported next link %q", next)
	}

	return u.RequestURI(), nil
}
