// Package transcript pulls the spoken-word text for a video. Three sources
// are tried in order: the captions index (with language preference), a
// backup transcript service, and YouTube's raw timedtext endpoint.
package transcript

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ytcourse/config"
	apperrors "ytcourse/errors"
	"ytcourse/fallback"
)

// MinLength is the shortest transcript worth generating a course from.
// Shorter results are treated as a source failure so the chain continues.
const MinLength = 50

type Service interface {
	Extract(ctx context.Context, videoID string, observe fallback.Observer) (string, int, error)
}

type service struct {
	cfg    config.TranscriptConfig
	client *http.Client
	log    zerolog.Logger
}

func NewService(cfg config.TranscriptConfig, log zerolog.Logger) Service {
	return &service{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("service", "transcript").Logger(),
	}
}

func (s *service) Extract(ctx context.Context, videoID string, observe fallback.Observer) (string, int, error) {
	const op = "TranscriptService.Extract"

	attempts := []fallback.Attempt[string]{
		{Name: "captions_index", Run: func(ctx context.Context) (string, error) {
			return s.fromCaptionsIndex(ctx, videoID)
		}},
		{Name: "backup_source", Run: func(ctx context.Context) (string, error) {
			return s.fromBackup(ctx, videoID)
		}},
		{Name: "timedtext", Run: func(ctx context.Context) (string, error) {
			return s.fromTimedText(ctx, videoID)
		}},
	}

	outcome, err := fallback.Run(ctx, attempts, observe)
	if err != nil {
		s.log.Warn().Err(err).Str("video_id", videoID).Msg("all transcript sources failed")
		return "", -1, apperrors.ExternalService(op, err, "all transcript sources failed")
	}

	s.log.Info().
		Str("video_id", videoID).
		Str("source", outcome.Winner).
		Int("chars", len(outcome.Value)).
		Msg("transcript extracted")
	return outcome.Value, outcome.Index, nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
}

type captionsIndex struct {
	CaptionTracks []captionTrack `json:"captionTracks"`
}

// fromCaptionsIndex lists the video's caption tracks and fetches the best
// one by language preference. An empty preference entry matches any track.
func (s *service) fromCaptionsIndex(ctx context.Context, videoID string) (string, error) {
	var index captionsIndex
	if err := s.getJSON(ctx, s.cfg.IndexURL+"?v="+url.QueryEscape(videoID), &index); err != nil {
		return "", errors.Wrap(err, "captions index request failed")
	}
	if len(index.CaptionTracks) == 0 {
		return "", errors.New("no caption tracks available")
	}

	track := pickTrack(index.CaptionTracks, s.cfg.Languages)
	if track == nil {
		return "", errors.New("no caption track matches language preferences")
	}

	body, err := s.getBody(ctx, track.BaseURL)
	if err != nil {
		return "", errors.Wrap(err, "fetching caption track")
	}
	text, err := decodeTimedText(body)
	if err != nil {
		return "", errors.Wrap(err, "decoding caption track")
	}
	return checkLength(text)
}

func pickTrack(tracks []captionTrack, prefs []string) *captionTrack {
	for _, pref := range prefs {
		for i := range tracks {
			if pref == "" || strings.EqualFold(tracks[i].LanguageCode, pref) {
				return &tracks[i]
			}
		}
	}
	return nil
}

type backupResponse struct {
	Transcript string `json:"transcript"`
}

func (s *service) fromBackup(ctx context.Context, videoID string) (string, error) {
	var resp backupResponse
	if err := s.getJSON(ctx, s.cfg.BackupURL+"?v="+url.QueryEscape(videoID), &resp); err != nil {
		return "", errors.Wrap(err, "backup source request failed")
	}
	return checkLength(strings.TrimSpace(resp.Transcript))
}

func (s *service) fromTimedText(ctx context.Context, videoID string) (string, error) {
	q := url.Values{}
	q.Set("lang", "en")
	q.Set("v", videoID)

	body, err := s.getBody(ctx, s.cfg.TimedTextURL+"?"+q.Encode())
	if err != nil {
		return "", errors.Wrap(err, "timedtext request failed")
	}
	text, err := decodeTimedText(body)
	if err != nil {
		return "", errors.Wrap(err, "decoding timedtext")
	}
	return checkLength(text)
}

type timedTextDoc struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Body string `xml:",chardata"`
	} `xml:"text"`
}

// decodeTimedText flattens YouTube's timedtext XML into plain prose.
// Caption payloads are HTML-escaped inside the XML, so entities are
// unescaped a second time after decoding.
func decodeTimedText(raw []byte) (string, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		line := strings.TrimSpace(html.UnescapeString(t.Body))
		if line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("timedtext document has no text nodes")
	}
	return strings.Join(parts, " "), nil
}

func checkLength(text string) (string, error) {
	if len(text) < MinLength {
		return "", errors.Errorf("transcript too short: %d chars", len(text))
	}
	return text, nil
}

func (s *service) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	body, err := s.getBody(ctx, rawURL)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (s *service) getBody(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
