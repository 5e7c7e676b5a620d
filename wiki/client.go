package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

const (
	// DefaultEndpoint is the MediaWiki action API of the English Wikipedia
	DefaultEndpoint = "https://en.wikipedia.org/w/api.php"

	defaultUserAgent = "biograph/1.0 (https://github.com/siherrmann/biograph)"
	initialBackoff   = 1 * time.Second

	// maxDocumentLinks caps the outbound links kept per article. Long
	// articles link to hundreds of pages, the frontier only ever needs the
	// first few dozen unattributed ones.
	maxDocumentLinks = 100
)

// FetchError reports a failed article fetch
type FetchError struct {
	Title      string
	StatusCode int
	Code       string // MediaWiki error code, eg. "missingtitle"
	Err        error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("fetch %v: %v (%v)", e.Title, e.Code, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %v: status %v: %v", e.Title, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("fetch %v: %v", e.Title, e.Err)
	}
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the article does not exist
func (e *FetchError) NotFound() bool {
	return e.Code == "missingtitle" || e.Code == "invalidtitle" || e.StatusCode == http.StatusNotFound
}

// Unreachable reports whether the wiki looks down rather than the request
// being at fault
func (e *FetchError) Unreachable() bool {
	if e.StatusCode >= 500 {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr)
}

// Client fetches and cleans encyclopedia articles through the MediaWiki
// action API
type Client struct {
	endpoint       string
	httpClient     *http.Client
	userAgent      string
	maxRetries     int
	initialBackoff time.Duration
	callTimeout    time.Duration
}

// NewClient creates a new article fetch client. An empty endpoint falls back
// to the English Wikipedia. Retries bounds transport retries per fetch and
// callTimeout limits every single attempt.
func NewClient(endpoint string, retries int, callTimeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:       endpoint,
		httpClient:     &http.Client{},
		userAgent:      defaultUserAgent,
		maxRetries:     retries,
		initialBackoff: initialBackoff,
		callTimeout:    callTimeout,
	}
}

type parsedLink struct {
	NS     int    `json:"ns"`
	Title  string `json:"title"`
	Exists bool   `json:"exists"`
}

type parseResponse struct {
	Parse *struct {
		Title  string       `json:"title"`
		PageID int64        `json:"pageid"`
		RevID  int64        `json:"revid"`
		Text   string       `json:"text"`
		Links  []parsedLink `json:"links"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// FetchArticle fetches an article by title, cleans the HTML to plain text and
// collects its outbound article links. Server errors and timeouts are retried
// with exponential backoff, a missing article is a terminal error.
func (c *Client) FetchArticle(ctx context.Context, title string) (*model.Document, error) {
	query := url.Values{}
	query.Set("action", "parse")
	query.Set("page", title)
	query.Set("prop", "text|links")
	query.Set("redirects", "1")
	query.Set("format", "json")
	query.Set("formatversion", "2")
	requestURL := c.endpoint + "?" + query.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		doc, err := c.fetchOnce(ctx, requestURL, title)
		if err == nil {
			return doc, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !retryableFetch(err) {
			return nil, err
		}
	}

	var fetchErr *FetchError
	if errors.As(lastErr, &fetchErr) {
		return nil, fetchErr
	}
	return nil, &FetchError{Title: title, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, requestURL string, title string) (*model.Document, error) {
	attemptCtx := ctx
	cancel := func() {}
	if c.callTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
	}
	defer cancel()

	request, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &FetchError{Title: title, Err: err}
	}
	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &FetchError{Title: title, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, &FetchError{Title: title, StatusCode: response.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var payload parseResponse
	err = json.NewDecoder(response.Body).Decode(&payload)
	if err != nil {
		return nil, &FetchError{Title: title, Err: helper.NewError("decode parse response", err)}
	}

	if payload.Error != nil {
		return nil, &FetchError{Title: title, Code: payload.Error.Code, Err: fmt.Errorf("%v", payload.Error.Info)}
	}
	if payload.Parse == nil {
		return nil, &FetchError{Title: title, Err: fmt.Errorf("response contains no parse payload")}
	}

	pageURL := c.pageURL(payload.Parse.Title)
	content := c.cleanContent(payload.Parse.Text, pageURL)
	if content == "" {
		return nil, &FetchError{Title: title, Err: fmt.Errorf("article has no readable content")}
	}

	links := make([]model.Link, 0, len(payload.Parse.Links))
	for _, link := range payload.Parse.Links {
		if link.NS != 0 || !link.Exists || strings.TrimSpace(link.Title) == "" {
			continue
		}
		links = append(links, model.Link{Target: link.Title})
		if len(links) >= maxDocumentLinks {
			break
		}
	}

	return &model.Document{
		RID:     uuid.New(),
		Title:   payload.Parse.Title,
		Source:  pageURL.String(),
		Content: content,
		Links:   links,
		Metadata: model.Metadata{
			"pageid": payload.Parse.PageID,
			"revid":  payload.Parse.RevID,
		},
	}, nil
}

func (c *Client) pageURL(title string) *url.URL {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return &url.URL{Scheme: "https", Host: "en.wikipedia.org", Path: "/wiki/" + strings.ReplaceAll(title, " ", "_")}
	}
	return &url.URL{
		Scheme: endpoint.Scheme,
		Host:   endpoint.Host,
		Path:   "/wiki/" + strings.ReplaceAll(title, " ", "_"),
	}
}

// cleanContent reduces article HTML to plain text. Readability handles the
// usual article layout, pages it refuses fall back to a plain tag strip.
func (c *Client) cleanContent(htmlText string, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(htmlText), pageURL)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if text != "" {
			return normalizeWhitespace(text)
		}
	}
	return stripTags(htmlText)
}

func retryableFetch(err error) bool {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	if fetchErr.StatusCode == http.StatusTooManyRequests || fetchErr.StatusCode >= 500 {
		return true
	}
	if fetchErr.Code != "" {
		return false
	}

	// A deadline here is the per attempt timeout, the parent context is
	// checked by the caller.
	if errors.Is(fetchErr.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(fetchErr.Err, &netErr)
}

// stripTags is a crude text extraction for pages readability refuses
func stripTags(content string) string {
	var out strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			out.WriteRune(' ')
		case !inTag:
			out.WriteRune(r)
		}
	}
	return normalizeWhitespace(out.String())
}

func normalizeWhitespace(content string) string {
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
