// Package datasource fetches list pages from the REST API and classifies
// failures for the refresh coordinator.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
	apperrors "github.com/dthanhvu03/threadsauto-sub000/internal/errors"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://127.0.0.1:8080"
	// JobsPath is the list endpoint for jobs.
	JobsPath = "/api/jobs"

	// Query parameters of list endpoints besides the filter keys.
	ParamPage     = "page"
	ParamPageSize = "page_size"

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
)

// HTTPSource loads pages of T from a list endpoint. It does not retry;
// failures come back classified so the caller can decide.
type HTTPSource[T any] struct {
	baseURL    string
	path       string
	token      string
	httpClient *http.Client
	log        logging.Logger
}

// NewHTTPSource returns a source for baseURL+path. A nil httpClient gets a
// client with a 15s timeout.
func NewHTTPSource[T any](baseURL, path, token string, httpClient *http.Client, log logging.Logger) *HTTPSource[T] {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &HTTPSource[T]{
		baseURL:    baseURL,
		path:       path,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		log:        log.With("component", "datasource"),
	}
}

// NewJobsSource returns an HTTPSource for the jobs endpoint.
func NewJobsSource(baseURL, token string, httpClient *http.Client, log logging.Logger) *HTTPSource[domain.Job] {
	return NewHTTPSource[domain.Job](baseURL, JobsPath, token, httpClient, log)
}

// ListQuery encodes filters and the requested window as query parameters.
func ListQuery(filters domain.FilterState, p domain.Pagination) url.Values {
	q := url.Values{}
	for k, v := range filters.Values() {
		q.Set(k, v)
	}
	q.Set(ParamPage, strconv.Itoa(max(p.Page, 1)))
	if p.PageSize > 0 {
		q.Set(ParamPageSize, strconv.Itoa(p.PageSize))
	}
	return q
}

// FetchList performs GET path?filters&page&page_size.
func (s *HTTPSource[T]) FetchList(ctx context.Context, filters domain.FilterState, p domain.Pagination) (domain.Page[T], error) {
	var page domain.Page[T]
	target := s.baseURL + s.path + "?" + ListQuery(filters, p).Encode()
	if err := s.doJSON(ctx, http.MethodGet, target, &page); err != nil {
		return domain.Page[T]{}, err
	}
	return page, nil
}

func (s *HTTPSource[T]) doJSON(ctx context.Context, method, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	started := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &apperrors.TransientError{Err: err}
	}
	defer resp.Body.Close()
	s.log.Debug("list request", "method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("decode %s response: %w", s.path, err)
		}
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	httpErr := &apperrors.HTTPError{StatusCode: resp.StatusCode, Code: errPayload.Code, Message: errPayload.Message}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		msg := errPayload.Message
		if msg == "" {
			msg = "rate limited"
		}
		return &apperrors.RateLimitError{RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")), Message: msg}
	case resp.StatusCode >= 500:
		return &apperrors.TransientError{Err: httpErr}
	default:
		return httpErr
	}
}

// maxRetryAfter bounds parsed hints so the conversion cannot overflow.
const maxRetryAfter = 24 * time.Hour

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Unparsable or past values yield zero; huge values are clamped
// to a day.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil && seconds >= 0 {
		if seconds >= int64(maxRetryAfter/time.Second) {
			return maxRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}
	if len(strings.TrimLeft(header, "0123456789")) == 0 {
		// all digits but out of int64 range
		return maxRetryAfter
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return min(delta, maxRetryAfter)
		}
	}
	return 0
}
