// Package reference turns a reference URL into plain text that seeds
// newsletter generation.
package reference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/ignite/newsletter-ai/internal/config"
	"github.com/ignite/newsletter-ai/internal/pkg/httpretry"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
)

const (
	maxPageBytes     = 4 << 20
	defaultMaxChars  = 12000
	minArticleChars  = 200
	defaultUserAgent = "newsletter-ai/1.0 (+reference fetcher)"
)

var (
	// ErrNoContent is returned when a page yields no readable text.
	ErrNoContent = errors.New("reference page has no readable text")
	// ErrInvalidURL is returned for URLs that are not absolute http(s).
	ErrInvalidURL = errors.New("reference URL must be an absolute http or https URL")
	// ErrBlockedTarget is returned for URLs that resolve to loopback,
	// private, link-local or unspecified addresses.
	ErrBlockedTarget = errors.New("reference URL points at a non-public address")
)

// Fetcher returns the reference text behind a URL.
type Fetcher interface {
	FetchReference(ctx context.Context, url string) (string, error)
}

// PageFetcher downloads the reference page itself. Feeds are summarized
// item by item; HTML goes through readability with a paragraph fallback.
type PageFetcher struct {
	httpClient   httpretry.HTTPDoer
	userAgent    string
	maxChars     int
	allowPrivate bool
	feeds        *gofeed.Parser
}

// NewPageFetcher creates a direct fetcher from config.
func NewPageFetcher(cfg config.ReferenceConfig) *PageFetcher {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivateTargets {
		// Checked per dial, so redirects and DNS answers are covered too.
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second, Control: publicOnly}
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
	}
	f := &PageFetcher{
		httpClient:   httpretry.NewRetryClient(&http.Client{Timeout: timeout, Transport: transport}, 2),
		userAgent:    cfg.UserAgent,
		maxChars:     cfg.MaxChars,
		allowPrivate: cfg.AllowPrivateTargets,
		feeds:        gofeed.NewParser(),
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.maxChars <= 0 {
		f.maxChars = defaultMaxChars
	}
	return f
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (f *PageFetcher) SetHTTPClient(client httpretry.HTTPDoer) {
	f.httpClient = client
}

// FetchReference implements workflow.ReferenceFetcher.
func (f *PageFetcher) FetchReference(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if ip := net.ParseIP(pageURL.Hostname()); ip != nil && !f.allowPrivate && !publicIP(ip) {
		return "", fmt.Errorf("%w: %s", ErrBlockedTarget, ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching %s: status %d", pageURL.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", pageURL.Host, err)
	}

	var text string
	if looksLikeFeed(resp.Header.Get("Content-Type"), body) {
		text, err = f.feedText(body)
	} else {
		text, err = articleText(body, pageURL)
	}
	if err != nil {
		return "", err
	}

	text = truncateRunes(text, f.maxChars)
	logger.Debug("reference: fetched", "host", pageURL.Host, "bytes", len(body), "chars", utf8.RuneCountInString(text))
	return text, nil
}

// publicOnly is a net.Dialer Control hook refusing non-public addresses.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, host)
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified())
}

func looksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		return true
	}
	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<rss")) || bytes.Contains(lower, []byte("<feed")) ||
		bytes.Contains(lower, []byte("<rdf:rdf"))
}

// feedText lists the feed's items as "title: summary" lines.
func (f *PageFetcher) feedText(body []byte) (string, error) {
	feed, err := f.feeds.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing feed: %w", err)
	}

	var lines []string
	if t := strings.TrimSpace(feed.Title); t != "" {
		lines = append(lines, t)
	}
	for _, item := range feed.Items {
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		summary = htmlText(summary)
		title := strings.TrimSpace(item.Title)
		switch {
		case title != "" && summary != "":
			lines = append(lines, title+": "+summary)
		case title != "":
			lines = append(lines, title)
		case summary != "":
			lines = append(lines, summary)
		}
	}
	if len(lines) == 0 {
		return "", ErrNoContent
	}
	return strings.Join(lines, "\n"), nil
}

// articleText extracts the main article. Pages where readability finds
// too little fall back to the document's headings and paragraphs.
func articleText(body []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		text := normalizeWhitespace(article.TextContent)
		if utf8.RuneCountInString(text) >= minArticleChars {
			return text, nil
		}
	}

	text, qerr := paragraphText(body)
	if qerr != nil {
		return "", fmt.Errorf("parsing html: %w", qerr)
	}
	if text == "" {
		if err == nil && article.TextContent != "" {
			return normalizeWhitespace(article.TextContent), nil
		}
		return "", ErrNoContent
	}
	return text, nil
}

func paragraphText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var paragraphs []string
	doc.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		if t := normalizeWhitespace(s.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	return strings.Join(paragraphs, "\n"), nil
}

// htmlText strips markup from a feed summary.
func htmlText(s string) string {
	if !strings.Contains(s, "<") {
		return normalizeWhitespace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normalizeWhitespace(s)
	}
	return normalizeWhitespace(doc.Text())
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
