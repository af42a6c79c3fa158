package wikimedia

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/citywalker/go-city-walker/internal/httpclient"
)

// Place is a Wikipedia article matched to a landmark query.
type Place struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	WikipediaURL string `json:"wikipedia_url"`
}

var _ Service = (*Client)(nil)

// Service looks up free imagery and article summaries for landmarks.
type Service interface {
	GetImageForLandmark(ctx context.Context, name, city string) string
	GetImagesForLandmark(ctx context.Context, name, city string, count int) []string
	SearchPlace(ctx context.Context, name, city string) (*Place, error)
}

// Client talks to the Wikipedia Action API and Wikimedia Commons, with
// the REST summary endpoint as a last resort.
type Client struct {
	logger     *slog.Logger
	http       *httpclient.Client
	actionURL  string
	restURL    string
	commonsURL string
}

type Options struct {
	ActionBaseURL  string
	RestBaseURL    string
	CommonsBaseURL string
	UserAgent      string
	Logger         *slog.Logger
}

func NewClient(opts Options) *Client {
	return &Client{
		logger:     opts.Logger,
		actionURL:  opts.ActionBaseURL,
		restURL:    opts.RestBaseURL,
		commonsURL: opts.CommonsBaseURL,
		http: httpclient.New(httpclient.Options{
			Timeout:     8 * time.Second,
			UserAgent:   opts.UserAgent,
			Concurrency: 3,
			Logger:      opts.Logger,
		}),
	}
}

type queryResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			Thumbnail *struct {
				Source string `json:"source"`
			} `json:"thumbnail"`
			ImageInfo []struct {
				URL      string `json:"url"`
				ThumbURL string `json:"thumburl"`
				Mime     string `json:"mime"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// searchArticleImages asks the Action API for page thumbnails via a
// generator search over article titles.
func (c *Client) searchArticleImages(ctx context.Context, query string, count int) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrlimit", fmt.Sprint(count))
	params.Set("prop", "pageimages")
	params.Set("piprop", "thumbnail")
	params.Set("pithumbsize", "800")

	var resp queryResponse
	if err := c.http.GetJSON(ctx, c.actionURL, params, &resp); err != nil {
		return nil, err
	}
	var urls []string
	for _, page := range resp.Query.Pages {
		if page.Thumbnail != nil && page.Thumbnail.Source != "" {
			urls = append(urls, page.Thumbnail.Source)
		}
	}
	return urls, nil
}

// searchCommonsImages searches Wikimedia Commons file pages directly,
// skipping SVGs since they render poorly as photos.
func (c *Client) searchCommonsImages(ctx context.Context, query string, count int) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", fmt.Sprint(count*2))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|mime")
	params.Set("iiurlwidth", "800")

	var resp queryResponse
	if err := c.http.GetJSON(ctx, c.commonsURL, params, &resp); err != nil {
		return nil, err
	}
	var urls []string
	for _, page := range resp.Query.Pages {
		for _, info := range page.ImageInfo {
			if !strings.HasPrefix(info.Mime, "image/") || info.Mime == "image/svg+xml" {
				continue
			}
			if info.ThumbURL != "" {
				urls = append(urls, info.ThumbURL)
			} else if info.URL != "" {
				urls = append(urls, info.URL)
			}
		}
	}
	if len(urls) > count {
		urls = urls[:count]
	}
	return urls, nil
}

type summaryResponse struct {
	Title     string `json:"title"`
	Extract   string `json:"extract"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	OriginalImage *struct {
		Source string `json:"source"`
	} `json:"originalimage"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (c *Client) summary(ctx context.Context, title string) (*summaryResponse, error) {
	endpoint := strings.TrimRight(c.restURL, "/") + "/page/summary/" + url.PathEscape(title)
	var resp summaryResponse
	if err := c.http.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Title == "" {
		return nil, fmt.Errorf("no summary for %q", title)
	}
	return &resp, nil
}

// titleVariants are tried against the REST summary endpoint in order.
func titleVariants(name, city string) []string {
	return []string{
		name,
		name + " (" + city + ")",
		name + ", " + city,
	}
}

// upscaleThumb rewrites a small Wikipedia thumbnail URL to an 800px one.
func upscaleThumb(src string) string {
	if strings.Contains(src, "/50px-") {
		return strings.Replace(src, "/50px-", "/800px-", 1)
	}
	return src
}

// restFallbackImage walks the summary endpoint over title variants until
// one yields a usable image.
func (c *Client) restFallbackImage(ctx context.Context, name, city string) string {
	for _, title := range titleVariants(name, city) {
		summary, err := c.summary(ctx, title)
		if err != nil {
			continue
		}
		if summary.OriginalImage != nil && summary.OriginalImage.Source != "" {
			return summary.OriginalImage.Source
		}
		if summary.Thumbnail != nil && summary.Thumbnail.Source != "" {
			return upscaleThumb(summary.Thumbnail.Source)
		}
	}
	return ""
}

// GetImagesForLandmark returns up to count image URLs for a landmark.
// The Action API and Commons are queried in parallel; failures degrade
// to the REST summary and finally to no images at all.
func (c *Client) GetImagesForLandmark(ctx context.Context, name, city string, count int) []string {
	ctx, span := otel.Tracer("WikimediaClient").Start(ctx, "GetImagesForLandmark", trace.WithAttributes(
		attribute.String("landmark", name),
		attribute.Int("count", count),
	))
	defer span.End()

	if count <= 0 {
		count = 1
	}
	query := name + " " + city

	var articleImages, commonsImages []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		articleImages, err = c.searchArticleImages(gctx, query, count)
		if err != nil {
			c.logger.DebugContext(gctx, "article image search failed", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		commonsImages, err = c.searchCommonsImages(gctx, query, count)
		if err != nil {
			c.logger.DebugContext(gctx, "commons image search failed", slog.Any("error", err))
		}
		return nil
	})
	_ = g.Wait()

	seen := make(map[string]struct{})
	var urls []string
	for _, u := range append(articleImages, commonsImages...) {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
		if len(urls) == count {
			break
		}
	}

	if len(urls) == 0 {
		if img := c.restFallbackImage(ctx, name, city); img != "" {
			urls = append(urls, img)
		}
	}
	span.SetAttributes(attribute.Int("images.count", len(urls)))
	span.SetStatus(codes.Ok, "Image lookup completed")
	return urls
}

func (c *Client) GetImageForLandmark(ctx context.Context, name, city string) string {
	urls := c.GetImagesForLandmark(ctx, name, city, 1)
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// SearchPlace resolves a landmark to its Wikipedia article summary.
func (c *Client) SearchPlace(ctx context.Context, name, city string) (*Place, error) {
	ctx, span := otel.Tracer("WikimediaClient").Start(ctx, "SearchPlace", trace.WithAttributes(
		attribute.String("landmark", name),
	))
	defer span.End()

	var lastErr error
	for _, title := range titleVariants(name, city) {
		summary, err := c.summary(ctx, title)
		if err != nil {
			lastErr = err
			continue
		}
		place := &Place{
			Title:        summary.Title,
			Description:  summary.Extract,
			WikipediaURL: summary.ContentURLs.Desktop.Page,
		}
		if summary.OriginalImage != nil {
			place.ImageURL = summary.OriginalImage.Source
		}
		if summary.Thumbnail != nil {
			place.ThumbnailURL = upscaleThumb(summary.Thumbnail.Source)
		}
		span.SetStatus(codes.Ok, "Place found")
		return place, nil
	}
	err := fmt.Errorf("no wikipedia article for %q in %s: %w", name, city, lastErr)
	span.RecordError(err)
	return nil, err
}
