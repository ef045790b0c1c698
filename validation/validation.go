package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"ytcourse/config"
	"ytcourse/errors"
)

// Accepted YouTube URL shapes: standard watch, short-link, mobile and shorts.
var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	regexp.MustCompile(`^https?://m\.youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/shorts/[\w-]+`),
	regexp.MustCompile(`^https?://m\.youtube\.com/shorts/[\w-]+`),
}

type Validator struct {
	config *config.Config
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{config: cfg}
}

// ValidateURL is the precondition gate for the whole pipeline: it runs before
// any network call and its failure aborts the request with a client error.
func (v *Validator) ValidateURL(urlStr string) error {
	const op = "Validator.ValidateURL"

	if urlStr == "" {
		return errors.InvalidInput(op, nil, "URL is required")
	}

	parsedURL, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return errors.InvalidInput(op, err, "Invalid URL format")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.InvalidInput(op, nil, "URL must use HTTP or HTTPS")
	}

	if !IsYouTubeURL(urlStr) {
		return errors.InvalidInput(op, nil, "Only YouTube URLs are supported")
	}

	return nil
}

// IsYouTubeURL reports whether the string matches one of the accepted
// YouTube URL shapes. Pure function, no I/O.
func IsYouTubeURL(urlStr string) bool {
	if urlStr == "" {
		return false
	}
	urlStr = strings.TrimSpace(urlStr)
	for _, p := range youtubePatterns {
		if p.MatchString(urlStr) {
			return true
		}
	}
	return false
}

// ExtractVideoID deterministically pulls the 11-character-class video
// identifier out of any accepted URL shape. The second return is false for
// anything that is not a recognized YouTube URL.
func ExtractVideoID(urlStr string) (string, bool) {
	if !IsYouTubeURL(urlStr) {
		return "", false
	}

	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", false
	}

	host := parsed.Hostname()

	if strings.Contains(host, "youtu.be") {
		id := strings.TrimPrefix(parsed.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		if id == "" {
			return "", false
		}
		return id, true
	}

	if strings.Contains(host, "youtube.com") {
		if strings.Contains(parsed.Path, "/shorts/") {
			id := strings.SplitN(parsed.Path, "/shorts/", 2)[1]
			if i := strings.IndexByte(id, '/'); i >= 0 {
				id = id[:i]
			}
			if id == "" {
				return "", false
			}
			return id, true
		}

		if id := parsed.Query().Get("v"); id != "" {
			return id, true
		}
	}

	return "", false
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireJSON      bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	if opts.RequireJSON {
		if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "application/json") {
			return errors.InvalidInput(op, nil, "Content-Type must be application/json")
		}
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}
