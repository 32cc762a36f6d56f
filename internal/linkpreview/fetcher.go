// Package linkpreview resolves title, description and image metadata for URLs
// found in chat messages.
package linkpreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/noah-isme/gema-messenger/internal/dto"
)

const (
	maxBodyBytes    = 512 << 10
	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 6 * time.Hour
)

var errBlockedAddress = errors.New("linkpreview: destination address is not allowed")

// Options configures a Fetcher.
type Options struct {
	Timeout      time.Duration
	Cache        *redis.Client
	CacheBase    string
	CacheTTL     time.Duration
	AllowPrivate bool
}

// Fetcher downloads pages and extracts OpenGraph or HTML metadata. Results are
// cached in Redis when a client is configured.
type Fetcher struct {
	client   *http.Client
	cache    *redis.Client
	cacheKey string
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewFetcher constructs a Fetcher. Unless AllowPrivate is set, loopback,
// private and link-local destinations are refused at dial time.
func NewFetcher(opts Options, logger zerolog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	dialer := &net.Dialer{Timeout: opts.Timeout}
	if !opts.AllowPrivate {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				return errBlockedAddress
			}
			return nil
		}
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConns:          16,
		IdleConnTimeout:       time.Minute,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		cache:    opts.Cache,
		cacheKey: strings.TrimSuffix(opts.CacheBase, ":") + ":preview:",
		cacheTTL: opts.CacheTTL,
		logger:   logger.With().Str("component", "link_preview").Logger(),
	}
}

// Preview resolves each URL. URLs that fail or carry no metadata are skipped.
func (f *Fetcher) Preview(ctx context.Context, urls []string) ([]dto.LinkPreview, error) {
	previews := make([]dto.LinkPreview, 0, len(urls))
	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			return previews, err
		}
		preview, ok := f.cached(ctx, raw)
		if !ok {
			fetched, err := f.fetch(ctx, raw)
			if err != nil {
				f.logger.Debug().Err(err).Str("url", raw).Msg("link preview fetch failed")
				continue
			}
			preview = fetched
			f.store(ctx, raw, preview)
		}
		if preview.Title == "" && preview.Description == "" && preview.ImageURL == "" {
			continue
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

func (f *Fetcher) fetch(ctx context.Context, raw string) (dto.LinkPreview, error) {
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return dto.LinkPreview{}, fmt.Errorf("unsupported url %q", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return dto.LinkPreview{}, err
	}
	req.Header.Set("User-Agent", "gema-messenger-linkpreview/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return dto.LinkPreview{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dto.LinkPreview{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" {
		return dto.LinkPreview{}, fmt.Errorf("unsupported content type %q", mediaType)
	}

	preview := extract(io.LimitReader(resp.Body, maxBodyBytes))
	preview.URL = raw
	if preview.ImageURL != "" {
		if image, err := resp.Request.URL.Parse(preview.ImageURL); err == nil {
			preview.ImageURL = image.String()
		}
	}
	return preview, nil
}

// extract scans the document head for metadata. OpenGraph tags win over
// <title> and the plain description meta tag.
func extract(body io.Reader) dto.LinkPreview {
	var (
		preview     dto.LinkPreview
		title       string
		description string
		inTitle     bool
	)

	tokenizer := html.NewTokenizer(body)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return finalize(preview, title, description)
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "title":
				inTitle = true
			case "meta":
				key, content := metaPair(token)
				switch key {
				case "og:title":
					preview.Title = content
				case "og:description":
					preview.Description = content
				case "og:image":
					preview.ImageURL = content
				case "description":
					description = content
				}
			case "body":
				return finalize(preview, title, description)
			}
		case html.TextToken:
			if inTitle && title == "" {
				title = strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "title" {
				inTitle = false
			} else if string(name) == "head" {
				return finalize(preview, title, description)
			}
		}
	}
}

func finalize(preview dto.LinkPreview, title, description string) dto.LinkPreview {
	if preview.Title == "" {
		preview.Title = title
	}
	if preview.Description == "" {
		preview.Description = description
	}
	return preview
}

func metaPair(token html.Token) (string, string) {
	var key, content string
	for _, attr := range token.Attr {
		switch strings.ToLower(attr.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(attr.Val))
			}
		case "content":
			content = strings.TrimSpace(attr.Val)
		}
	}
	return key, content
}

func (f *Fetcher) cached(ctx context.Context, raw string) (dto.LinkPreview, bool) {
	if f.cache == nil {
		return dto.LinkPreview{}, false
	}
	data, err := f.cache.Get(ctx, f.cacheKey+raw).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			f.logger.Warn().Err(err).Msg("link preview cache read failed")
		}
		return dto.LinkPreview{}, false
	}
	var preview dto.LinkPreview
	if err := json.Unmarshal(data, &preview); err != nil {
		return dto.LinkPreview{}, false
	}
	return preview, true
}

func (f *Fetcher) store(ctx context.Context, raw string, preview dto.LinkPreview) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(preview)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, f.cacheKey+raw, data, f.cacheTTL).Err(); err != nil {
		f.logger.Warn().Err(err).Msg("link preview cache write failed")
	}
}
