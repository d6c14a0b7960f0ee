package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// minExtractChars is the minimum extracted length considered usable.
const minExtractChars = 100

// Extractor retrieves the full text of an article page, best effort.
type Extractor interface {
	Extract(ctx context.Context, articleURL string) (text, excerpt string, err error)
}

// ReadabilityExtractor fetches a page over HTTP and extracts its main
// content with go-readability.
type ReadabilityExtractor struct {
	client *http.Client
}

// NewReadabilityExtractor creates an extractor with the given timeout.
func NewReadabilityExtractor(timeout time.Duration) *ReadabilityExtractor {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ReadabilityExtractor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Extract downloads articleURL and returns its readable text and excerpt.
func (e *ReadabilityExtractor) Extract(ctx context.Context, articleURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "lectorio/1.0 (article curator)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("http %d for %s", resp.StatusCode, articleURL)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", "", err
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) <= minExtractChars {
		return "", "", nil
	}
	return text, strings.TrimSpace(article.Excerpt), nil
}
