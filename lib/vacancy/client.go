package vacancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"

	"seatwatch/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var (
	// ErrOutOfServiceHours means the upstream is outside its daily service
	// window; no network call was made.
	ErrOutOfServiceHours = errors.New("vacancy: source outside service hours")

	// ErrIndexNotFound means the course responded but carries no such index.
	ErrIndexNotFound = errors.New("vacancy: index not found for course")
)

// RequestError wraps a transport-level failure against the upstream source.
type RequestError struct {
	CourseCode string
	Timeout    bool
	Err        error
}

func (e *RequestError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("vacancy: fetch %s timed out: %v", e.CourseCode, e.Err)
	}
	return fmt.Sprintf("vacancy: fetch %s: %v", e.CourseCode, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client queries the upstream vacancy page. All calls share one cooldown: a
// fetch issued before the minimum spacing has elapsed since the previous
// fetch blocks until it has, whichever caller it came from.
type Client struct {
	log       *zap.Logger
	transport http.RoundTripper

	baseURL   string
	term      string
	timeout   time.Duration
	spacing   time.Duration
	openHour  int
	closeHour int
	location  *time.Location

	mu       sync.Mutex
	lastCall time.Time
	now      func() time.Time
}

func NewClient(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) (*Client, error) {
	loc, err := time.LoadLocation(cfg.Source.Timezone)
	if err != nil {
		return nil, fmt.Errorf("vacancy: load timezone %q: %w", cfg.Source.Timezone, err)
	}

	return &Client{
		log:       log,
		transport: transport,
		baseURL:   cfg.Source.BaseURL,
		term:      cfg.Source.AcademicTerm,
		timeout:   time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		spacing:   time.Duration(cfg.Source.CallSpacingSecs) * time.Second,
		openHour:  cfg.Source.ServiceOpenHour,
		closeHour: cfg.Source.ServiceCloseHour,
		location:  loc,
		now:       time.Now,
	}, nil
}

// FetchCourse queries the upstream once and returns every index of the
// course. Gated on service hours before any network activity.
func (c *Client) FetchCourse(ctx context.Context, courseCode string) ([]Record, error) {
	courseCode = NormalizeCourseCode(courseCode)

	if !c.withinServiceWindow(c.now().In(c.location)) {
		return nil, ErrOutOfServiceHours
	}
	if err := c.awaitCooldown(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var markup string
	err := requests.URL(c.baseURL).
		Method(http.MethodPost).
		Transport(c.transport).
		Header("User-Agent", userAgent).
		BodyForm(url.Values{
			"acadsem": []string{c.term},
			"subj":    []string{courseCode},
			"boption": []string{"Search"},
		}).
		ToString(&markup).
		Fetch(ctx)
	if err != nil {
		return nil, &RequestError{
			CourseCode: courseCode,
			Timeout:    errors.Is(err, context.DeadlineExceeded),
			Err:        err,
		}
	}

	return Parse(markup)
}

// FetchIndex queries the course and picks out one index.
func (c *Client) FetchIndex(ctx context.Context, courseCode, indexNumber string) (*Record, error) {
	records, err := c.FetchCourse(ctx, courseCode)
	if err != nil {
		return nil, err
	}

	indexNumber = NormalizeIndexNumber(indexNumber)
	for i := range records {
		if records[i].IndexNumber == indexNumber {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrIndexNotFound, NormalizeCourseCode(courseCode), indexNumber)
}

func (c *Client) withinServiceWindow(t time.Time) bool {
	h := t.Hour()
	return h >= c.openHour && h < c.closeHour
}

// awaitCooldown blocks until the shared spacing budget allows another call.
// The lock is held through the wait so concurrent callers queue up rather
// than race the budget. Interruptible by ctx cancellation only.
func (c *Client) awaitCooldown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.spacing - c.now().Sub(c.lastCall); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.lastCall = c.now()
	return nil
}
