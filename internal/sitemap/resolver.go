package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRedirects   = 5
	DefaultMaxURLs        = 500
	DefaultLargeThreshold = 200
)

// Result holds the page URLs extracted from one sitemap, deduplicated and in
// document order, plus any advisory warnings gathered along the way.
type Result struct {
	URLs     []string
	Warnings []string
}

// Resolver fetches and parses sitemap XML. It handles the standard <urlset>
// shape; a <sitemapindex> yields the index entries themselves with a warning,
// nested sitemaps are not fetched.
type Resolver struct {
	client         *http.Client
	maxURLs        int
	largeThreshold int
}

type Option func(*Resolver)

func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		r.client.Timeout = timeout
	}
}

func WithMaxURLs(n int) Option {
	return func(r *Resolver) {
		r.maxURLs = n
	}
}

func WithLargeThreshold(n int) Option {
	return func(r *Resolver) {
		r.largeThreshold = n
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= DefaultMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", DefaultMaxRedirects)
				}
				return nil
			},
		},
		maxURLs:        DefaultMaxURLs,
		largeThreshold: DefaultLargeThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Probe performs a cheap reachability check without downloading the body.
// Servers that reject HEAD get a second chance with a ranged GET.
func (r *Resolver) Probe(ctx context.Context, sitemapURL string) error {
	if err := validateScheme(sitemapURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sitemapURL, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err == nil && resp.StatusCode < 400 {
		resp.Body.Close()
		return nil
	}
	if resp != nil {
		resp.Body.Close()
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err = r.client.Do(req)
	if err != nil {
		return fmt.Errorf("sitemap URL is not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sitemap URL is not reachable: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Resolve fetches the sitemap and extracts its page URLs.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) (*Result, error) {
	if err := validateScheme(sitemapURL); err != nil {
		return nil, err
	}

	body, err := r.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	entries, isIndex, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sitemap XML: %w", err)
	}

	result := &Result{}
	if isIndex {
		result.Warnings = append(result.Warnings,
			"sitemap is a sitemap index; nested sitemaps are listed but not fetched")
	}

	seen := make(map[string]struct{}, len(entries))
	hosts := make(map[string]struct{})
	hasInsecure := false
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		parsed, err := url.Parse(entry)
		if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			zap.S().Named("sitemap").Debugf("skipping invalid sitemap entry: %q", entry)
			continue
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		result.URLs = append(result.URLs, entry)
		hosts[parsed.Host] = struct{}{}
		if parsed.Scheme == "http" {
			hasInsecure = true
		}
	}

	if len(result.URLs) == 0 {
		return nil, errors.New("sitemap contains no valid URLs")
	}
	if len(result.URLs) > r.maxURLs {
		return nil, fmt.Errorf("sitemap contains %d URLs, which exceeds the maximum of %d", len(result.URLs), r.maxURLs)
	}

	if len(result.URLs) >= r.largeThreshold {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("sitemap contains %d URLs; the scan will take a while", len(result.URLs)))
	}
	if len(hosts) > 1 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("sitemap mixes %d different hostnames", len(hosts)))
	}
	if hasInsecure {
		result.Warnings = append(result.Warnings,
			"sitemap contains http:// URLs; consider serving all pages over https")
	}

	return result, nil
}

func (r *Resolver) fetch(ctx context.Context, sitemapURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch sitemap: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("sitemap body is empty")
	}
	return body, nil
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// parse walks the XML token stream collecting <loc> values from <url> and
// <sitemap> elements. Both element kinds may not legally coexist, but a
// malformed mixed document still yields its entries rather than failing.
func parse(body []byte) (entries []string, isIndex bool, err error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))

	sawRoot := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "urlset", "sitemapindex":
			sawRoot = true
			if se.Name.Local == "sitemapindex" {
				isIndex = true
			}
		case "url", "sitemap":
			var entry locEntry
			if err := decoder.DecodeElement(&entry, &se); err != nil {
				continue
			}
			if entry.Loc != "" {
				entries = append(entries, entry.Loc)
			}
		}
	}

	if !sawRoot {
		return nil, false, errors.New("document has no <urlset> or <sitemapindex> root")
	}
	return entries, isIndex, nil
}

func validateScheme(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid sitemap URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid sitemap URL: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("invalid sitemap URL: missing host")
	}
	return nil
}
