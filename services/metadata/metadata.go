// Package metadata resolves a video's descriptive fields from YouTube. It
// tries the Data API first, then the oEmbed endpoint, then scrapes the watch
// page, and returns the first layer that yields a usable title.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ytcourse/config"
	apperrors "ytcourse/errors"
	"ytcourse/fallback"
	"ytcourse/models"
)

type Service interface {
	// Extract runs the layer chain for videoID. The observer receives one
	// callback per attempted layer, in order.
	Extract(ctx context.Context, videoID string, observe fallback.Observer) (*models.VideoInfo, int, error)
}

type service struct {
	cfg    config.YouTubeConfig
	client *http.Client
	log    zerolog.Logger
}

func NewService(cfg config.YouTubeConfig, log zerolog.Logger) Service {
	return &service{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("service", "metadata").Logger(),
	}
}

func (s *service) Extract(ctx context.Context, videoID string, observe fallback.Observer) (*models.VideoInfo, int, error) {
	const op = "MetadataService.Extract"

	attempts := []fallback.Attempt[*models.VideoInfo]{
		{Name: "youtube_api", Run: func(ctx context.Context) (*models.VideoInfo, error) {
			return s.fromDataAPI(ctx, videoID)
		}},
		{Name: "oembed", Run: func(ctx context.Context) (*models.VideoInfo, error) {
			return s.fromOEmbed(ctx, videoID)
		}},
		{Name: "scraper", Run: func(ctx context.Context) (*models.VideoInfo, error) {
			return s.fromScrape(ctx, videoID)
		}},
	}

	outcome, err := fallback.Run(ctx, attempts, observe)
	if err != nil {
		s.log.Error().Err(err).Str("video_id", videoID).Msg("all metadata sources failed")
		return nil, -1, apperrors.ExternalService(op, err, "all metadata sources failed")
	}

	info := outcome.Value
	info.ID = videoID
	info.URL = s.watchURL(videoID)
	if info.ThumbnailURL == "" {
		info.ThumbnailURL = fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
	}
	s.log.Info().Str("video_id", videoID).Str("source", outcome.Winner).Msg("metadata extracted")
	return info, outcome.Index, nil
}

type dataAPIResponse struct {
	Items []struct {
		Snippet struct {
			Title        string   `json:"title"`
			Description  string   `json:"description"`
			ChannelTitle string   `json:"channelTitle"`
			PublishedAt  string   `json:"publishedAt"`
			Tags         []string `json:"tags"`
			Thumbnails   struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (s *service) fromDataAPI(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	if s.cfg.APIKey == "" {
		return nil, errors.New("youtube api key not configured")
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("id", videoID)
	q.Set("key", s.cfg.APIKey)

	var resp dataAPIResponse
	if err := s.getJSON(ctx, s.cfg.APIBaseURL+"/videos?"+q.Encode(), &resp); err != nil {
		return nil, errors.Wrap(err, "data api request failed")
	}
	if len(resp.Items) == 0 {
		return nil, errors.New("data api returned no items")
	}

	item := resp.Items[0]
	if item.Snippet.Title == "" {
		return nil, errors.New("data api item has no title")
	}

	views, _ := strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
	return &models.VideoInfo{
		Title:        item.Snippet.Title,
		Author:       item.Snippet.ChannelTitle,
		Description:  item.Snippet.Description,
		Duration:     formatDuration(parseISO8601Duration(item.ContentDetails.Duration)),
		ViewCount:    views,
		PublishedAt:  item.Snippet.PublishedAt,
		ThumbnailURL: item.Snippet.Thumbnails.High.URL,
		Tags:         item.Snippet.Tags,
	}, nil
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (s *service) fromOEmbed(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	q := url.Values{}
	q.Set("url", s.watchURL(videoID))
	q.Set("format", "json")

	var resp oembedResponse
	if err := s.getJSON(ctx, s.cfg.OEmbedURL+"?"+q.Encode(), &resp); err != nil {
		return nil, errors.Wrap(err, "oembed request failed")
	}
	if resp.Title == "" {
		return nil, errors.New("oembed returned no title")
	}

	return &models.VideoInfo{
		Title:        resp.Title,
		Author:       resp.AuthorName,
		ThumbnailURL: resp.ThumbnailURL,
	}, nil
}

var ownerChannelRe = regexp.MustCompile(`"ownerChannelName":"((?:[^"\\]|\\.)*)"`)

func (s *service) fromScrape(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.watchURL(videoID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building scrape request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; course-builder/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching watch page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("watch page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "reading watch page")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, errors.Wrap(err, "parsing watch page")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	title = strings.TrimSuffix(title, " - YouTube")
	if title == "" {
		return nil, errors.New("watch page has no title")
	}

	author := ""
	if m := ownerChannelRe.FindStringSubmatch(string(body)); m != nil {
		author = unescapeJSONString(m[1])
	}

	return &models.VideoInfo{
		Title:       title,
		Author:      author,
		Description: visibleExcerpt(doc),
	}, nil
}

const descriptionExcerptLen = 500

// visibleExcerpt pulls a short description substitute out of a scraped watch
// page: the meta description when present, otherwise the page's visible body
// text with markup noise stripped.
func visibleExcerpt(doc *goquery.Document) string {
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			return truncateRunes(desc, descriptionExcerptLen)
		}
	}
	body := doc.Find("body").Clone()
	body.Find("script,style,noscript").Remove()
	text := strings.Join(strings.Fields(body.Text()), " ")
	return truncateRunes(text, descriptionExcerptLen)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (s *service) watchURL(videoID string) string {
	return s.cfg.WatchURL + "?v=" + url.QueryEscape(videoID)
}

func (s *service) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

var iso8601Re = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISO8601Duration converts the Data API's PT#H#M#S form to seconds.
// Unparseable input yields 0.
func parseISO8601Duration(d string) int {
	m := iso8601Re.FindStringSubmatch(d)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	return h*3600 + min*60 + sec
}

// formatDuration renders seconds as "H:MM:SS" or "M:SS". Zero renders as
// the empty string so unknown durations stay blank downstream.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
