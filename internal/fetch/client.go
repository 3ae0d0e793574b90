// Package fetch downloads and parses the university timetable feed: a
// single UTF-16 encoded XML document describing every group's schedule
// for the semester.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpix/uarand"

	domerrors "github.com/voenmeh-bot/timetable-go/internal/errors"
)

// DefaultFeedURL is the production feed location.
const DefaultFeedURL = "https://voenmeh.ru/wp-content/themes/Avada-Child-Theme-Voenmeh/_voenmeh_grafics/TimetableGroup50.xml"

// maxFeedBytes bounds the response body read. The real feed is a few MB;
// anything far larger is a broken upstream, not data.
const maxFeedBytes = 64 << 20

// Feed is one downloaded feed document, parsed and hashed.
type Feed struct {
	Hash      string // hex MD5 of the raw response bytes
	FetchedAt time.Time
	Result    *ParseResult
}

// Client downloads the timetable feed with retries and backoff.
type Client struct {
	httpClient *http.Client
	feedURL    string
	maxRetries int
}

// NewClient creates a feed client. An empty feedURL selects DefaultFeedURL.
func NewClient(feedURL string, timeout time.Duration, maxRetries int) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		feedURL:    feedURL,
		maxRetries: maxRetries,
	}
}

// Fetch downloads and parses the feed.
//
// knownHash, when non-empty, is the MD5 of the last ingested document:
// if the downloaded bytes hash to the same value Fetch returns
// ErrNotModified without parsing, which is how the change monitor skips
// rebuilds. Network and 5xx failures are retried with backoff and
// reported as SourceError wrapping ErrSourceUnavailable.
func (c *Client) Fetch(ctx context.Context, knownHash string) (*Feed, error) {
	var raw []byte

	err := retryWithBackoff(ctx, c.maxRetries, 2*time.Second, 30*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
		if err != nil {
			return Permanent(fmt.Errorf("create feed request: %w", err))
		}
		req.Header.Set("User-Agent", uarand.GetRandom())
		req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("feed request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("feed returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return Permanent(err)
			}
			return err
		}

		raw, err = io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return fmt.Errorf("read feed body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, &domerrors.SourceError{Source: "upstream", Err: err}
	}

	sum := md5.Sum(raw)
	hash := hex.EncodeToString(sum[:])
	if knownHash != "" && hash == knownHash {
		return nil, domerrors.ErrNotModified
	}

	result, err := Parse(raw)
	if err != nil {
		return nil, &domerrors.SourceError{Source: "upstream", Err: err}
	}

	return &Feed{Hash: hash, FetchedAt: time.Now().UTC(), Result: result}, nil
}
