// Package subscription keeps the filter lists current.  It downloads the
// remote subscriptions, maintains the user's custom list, and publishes the
// merged index to the matcher.
package subscription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/internal/ufhttp"
)

// DefaultMaxSize is the default maximum size of a downloaded filter list.
const DefaultMaxSize = 64 * datasize.MB

// UpdateHandler is called after a subscription has published a new rule list.
type UpdateHandler func(ctx context.Context, s *Subscription)

// DisabledFunc returns the texts of the rules disabled by the user.  The
// returned set must not be modified by the caller or by anyone else after it
// is returned.
type DisabledFunc func() (disabled *container.MapSet[string])

// Status is the information about a subscription for display.
type Status struct {
	// LastUpdated is the time of the last successful update.  It is zero if
	// the subscription has never been updated.
	LastUpdated time.Time

	// LastError is the error of the last update, if it failed.
	LastError error

	// Title is the title of the subscription.
	Title string

	// URL is the address of the list.  It is empty for the custom list.
	URL string

	// UID is the unique identifier of the subscription.
	UID uuid.UUID

	// RulesCount is the number of the loaded rules.
	RulesCount int

	// ParseErrors is the number of the malformed lines.
	ParseErrors int

	// Enabled is true if the rules of the subscription are used.
	Enabled bool

	// Custom is true for the user's custom list.
	Custom bool
}

// Config is the configuration structure for a remote subscription.
type Config struct {
	// Logger is used to log the refreshes.  It must not be nil.
	Logger *slog.Logger

	// HTTPClient is used to download the list.  It must not be nil.
	HTTPClient *ufhttp.Client

	// Clock is used to stamp the refreshes.  If nil, [timeutil.SystemClock] is
	// used.
	Clock timeutil.Clock

	// Metrics is used to collect the statistics.  If nil, [EmptyMetrics] is
	// used.
	Metrics Metrics

	// OnUpdate is called after a refresh publishes a new rule list.  It may be
	// nil.
	OnUpdate UpdateHandler

	// Disabled returns the texts of the rules that must be skipped.  It may be
	// nil.
	Disabled DisabledFunc

	// URL is the address of the list.  It must be an HTTP(S) URL.
	URL *url.URL

	// LastUpdated is the time of the last successful update, restored from
	// the saved state.
	LastUpdated time.Time

	// Title is the title of the subscription.
	Title string

	// CachePath is the path to the file containing the last downloaded list.
	// It must not be empty.
	CachePath string

	// ETag is the entity tag of the last downloaded list, restored from the
	// saved state.
	ETag string

	// UID is the unique identifier of the subscription.
	UID uuid.UUID

	// ID is the numeric identifier of the rule list.  It must be positive and
	// unique among all subscriptions.
	ID int

	// MaxSize is the maximum size of the downloaded list.  It must be
	// positive.
	MaxSize datasize.ByteSize

	// Enabled is true if the rules of the subscription are used.
	Enabled bool

	// LimitedEasyList, if true, makes the subscription skip the
	// "Third-party adverts" section of EasyList.
	LimitedEasyList bool
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", c.Logger),
		validate.NotNil("HTTPClient", c.HTTPClient),
		validate.NotNil("URL", c.URL),
		validate.NotEmpty("CachePath", c.CachePath),
		validate.Positive("ID", c.ID),
		validate.Positive("MaxSize", c.MaxSize),
	}

	if c.URL != nil && !urlutil.IsValidHTTPURLScheme(c.URL.Scheme) {
		errs = append(errs, fmt.Errorf("URL: bad scheme %q", c.URL.Scheme))
	}

	return errors.Join(errs...)
}

// Subscription is a remote filter list.  It keeps the last successfully
// downloaded version of the list both in memory and in a cache file.
type Subscription struct {
	logger   *slog.Logger
	http     *ufhttp.Client
	clock    timeutil.Clock
	metrics  Metrics
	onUpdate UpdateHandler
	disabled DisabledFunc
	url      *url.URL

	// mu protects the fields below.  It is also held while the cache file is
	// read or written, so that the cache always contains the published list.
	mu          *sync.Mutex
	list        *filterlist.RuleList
	index       *adblock.Index
	lastUpdated time.Time
	lastErr     error
	title       string
	etag        string
	enabled     bool

	cachePath       string
	uid             uuid.UUID
	id              int
	maxSize         datasize.ByteSize
	limitedEasyList bool
}

// New returns a new subscription without rules.  Use [Subscription.Load] to
// load the cached list.  c must be valid.
func New(c *Config) (s *Subscription, err error) {
	err = c.Validate()
	if err != nil {
		return nil, fmt.Errorf("subscription %q: config: %w", c.Title, err)
	}

	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	metrics := c.Metrics
	if metrics == nil {
		metrics = EmptyMetrics{}
	}

	return &Subscription{
		logger:          c.Logger,
		http:            c.HTTPClient,
		clock:           clock,
		metrics:         metrics,
		onUpdate:        c.OnUpdate,
		disabled:        c.Disabled,
		url:             c.URL,
		mu:              &sync.Mutex{},
		lastUpdated:     c.LastUpdated,
		title:           c.Title,
		etag:            c.ETag,
		enabled:         c.Enabled,
		cachePath:       c.CachePath,
		uid:             c.UID,
		id:              c.ID,
		maxSize:         c.MaxSize,
		limitedEasyList: c.LimitedEasyList,
	}, nil
}

// UID returns the unique identifier of the subscription.
func (s *Subscription) UID() (uid uuid.UUID) {
	return s.uid
}

// ID returns the numeric identifier of the rule list of the subscription.
func (s *Subscription) ID() (id int) {
	return s.id
}

// URL returns the address of the list.  The caller must not modify it.
func (s *Subscription) URL() (u *url.URL) {
	return s.url
}

// Title returns the title of the subscription.
func (s *Subscription) Title() (title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.title
}

// SetTitle sets the title of the subscription.
func (s *Subscription) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.title = title
}

// Enabled returns true if the rules of the subscription are used.
func (s *Subscription) Enabled() (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enabled
}

// SetEnabled enables or disables the subscription.
func (s *Subscription) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = enabled
}

// LastUpdated returns the time of the last successful update.
func (s *Subscription) LastUpdated() (t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastUpdated
}

// IsStale returns true if the subscription has never been updated or if the
// last update happened staleness or more before now.
func (s *Subscription) IsStale(now time.Time, staleness time.Duration) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list == nil || s.lastUpdated.IsZero() || !s.lastUpdated.Add(staleness).After(now)
}

// Index returns the index of the published rule list.  It is nil if no list
// has been loaded yet.
func (s *Subscription) Index() (idx *adblock.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index
}

// List returns the published rule list.  It is nil if no list has been loaded
// yet.
func (s *Subscription) List() (l *filterlist.RuleList) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list
}

// Status returns the current information about the subscription.
func (s *Subscription) Status() (st *Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st = &Status{
		LastUpdated: s.lastUpdated,
		LastError:   s.lastErr,
		Title:       s.title,
		URL:         s.url.String(),
		UID:         s.uid,
		Enabled:     s.enabled,
	}

	if s.list != nil {
		st.RulesCount = s.list.Len()
		st.ParseErrors = s.list.ParseErrors()
	}

	return st
}

// state returns the persistent state of the subscription.
func (s *Subscription) state() (st *subscriptionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &subscriptionState{
		LastUpdated: s.lastUpdated,
		Title:       s.title,
		URL:         s.url.String(),
		ETag:        s.etag,
		UID:         s.uid,
		ID:          s.id,
		Enabled:     s.enabled,
	}
}

// type check
var _ service.Refresher = (*Subscription)(nil)

// Refresh implements the [service.Refresher] interface for *Subscription.  It
// downloads the list and publishes it, unless a newer list has been published
// while it was downloading.  If the download fails, the previous list stays in
// effect and the returned error has the type *RefreshError.  Disabled
// subscriptions are not refreshed.
func (s *Subscription) Refresh(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "subscription %s: %w", s.uid) }()

	if !s.Enabled() {
		s.logger.DebugContext(ctx, "skipping disabled subscription")

		return nil
	}

	started := s.clock.Now()

	text, etag, notModified, err := s.fetch(ctx)
	if err != nil {
		s.setError(ctx, err)

		return err
	}

	if notModified {
		s.touch(ctx, started)

		return nil
	}

	list, idx := s.compile(text)
	published, err := s.publish(ctx, started, list, idx, etag, text)
	if published && s.onUpdate != nil {
		s.onUpdate(ctx, s)
	}

	return err
}

// fetch downloads the list.  notModified is true if the server reports that
// the list has not changed since the last download.  Any error returned has
// the type *RefreshError.
func (s *Subscription) fetch(ctx context.Context) (text, etag string, notModified bool, err error) {
	s.mu.Lock()
	prevETag := s.etag
	if s.list == nil {
		prevETag = ""
	}
	s.mu.Unlock()

	ru := urlutil.RedactUserinfo(s.url)
	s.logger.InfoContext(ctx, "refreshing from url", "url", ru)

	resp, err := s.http.Get(ctx, s.url, prevETag)
	if err != nil {
		return "", "", false, &RefreshError{
			Err:  fmt.Errorf("requesting %q: %w", ru, err),
			Kind: RefreshErrorKindNetwork,
		}
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	s.logger.InfoContext(
		ctx,
		"got data from url",
		"code", resp.StatusCode,
		"content-length", resp.ContentLength,
		"server", resp.Header.Get(httphdr.Server),
		"url", ru,
	)

	err = ufhttp.CheckStatus(resp, http.StatusOK, http.StatusNotModified)
	if err != nil {
		return "", "", false, &RefreshError{Err: err, Kind: RefreshErrorKindNetwork}
	}

	if resp.StatusCode == http.StatusNotModified {
		return "", prevETag, true, nil
	}

	b := &strings.Builder{}
	_, err = io.Copy(b, ioutil.LimitReader(resp.Body, s.maxSize.Bytes()))
	if err != nil {
		// A list over the size limit is not a network failure.
		kind := RefreshErrorKindNetwork
		limitErr := &ioutil.LimitError{}
		if errors.As(err, &limitErr) {
			kind = RefreshErrorKindUnreadable
		}

		return "", "", false, &RefreshError{
			Err:  ufhttp.WrapServerError(fmt.Errorf("reading body: %w", err), resp),
			Kind: kind,
		}
	}

	text = b.String()
	if text == "" {
		err = errEmptyText
	} else if !filterlist.IsAdblockHeader([]byte(text)) {
		err = errNoHeader
	}

	if err != nil {
		return "", "", false, &RefreshError{
			Err:  ufhttp.WrapServerError(err, resp),
			Kind: RefreshErrorKindUnreadable,
		}
	}

	return text, resp.Header.Get(ufhttp.HdrETag), false, nil
}

// compile parses text into a rule list and builds its index.
func (s *Subscription) compile(text string) (list *filterlist.RuleList, idx *adblock.Index) {
	if s.limitedEasyList && isEasyList(s.url) {
		text = cutThirdPartyAdverts(text)
	}

	conf := &filterlist.Config{}
	if s.disabled != nil {
		conf.Disabled = s.disabled()
	}

	list = filterlist.NewRuleList(s.id, text, conf)

	return list, adblock.Build(list)
}

// publish makes list and idx current unless a list downloaded after started
// has already been published, and writes text into the cache file.  err is
// the error of writing the cache, the list is published even if it is not
// nil.
func (s *Subscription) publish(
	ctx context.Context,
	started time.Time,
	list *filterlist.RuleList,
	idx *adblock.Index,
	etag string,
	text string,
) (published bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if started.Before(s.lastUpdated) {
		s.logger.InfoContext(
			ctx,
			"discarding outdated list",
			"started", started,
			"last_updated", s.lastUpdated,
		)

		return false, nil
	}

	s.list, s.index = list, idx
	s.etag = etag
	s.lastUpdated = started
	s.lastErr = nil

	s.logger.InfoContext(
		ctx,
		"published list",
		"rules", list.Len(),
		"parse_errors", list.ParseErrors(),
		"unsupported", list.Unsupported(),
	)

	s.metrics.SetRuleStats(ctx, s.uid.String(), list.Len(), list.ParseErrors())
	s.metrics.SetUpdateStatus(ctx, s.uid.String(), started, nil)

	err = writeFile(s.cachePath, []byte(text))
	if err != nil {
		return true, fmt.Errorf("writing cache: %w", err)
	}

	return true, nil
}

// touch records that the list has not changed on the server as of started.
func (s *Subscription) touch(ctx context.Context, started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.DebugContext(ctx, "list not modified")

	if started.After(s.lastUpdated) {
		s.lastUpdated = started
	}

	s.lastErr = nil
	s.metrics.SetUpdateStatus(ctx, s.uid.String(), s.lastUpdated, nil)
}

// setError records the error of the last refresh.
func (s *Subscription) setError(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	s.metrics.SetUpdateStatus(ctx, s.uid.String(), time.Time{}, err)
}

// Load parses the cached list without downloading it.  ok is false if there is
// no valid cache, in which case the subscription must be refreshed.  Load is
// also used to apply the changes of the disabled rules.
func (s *Subscription) Load(ctx context.Context) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- Assume that cachePath is always the data directory plus a
	// file name derived from a UUID.
	data, err := os.ReadFile(s.cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("subscription %s: reading cache: %w", s.uid, err)
	}

	if !filterlist.IsAdblockHeader(data) {
		s.logger.WarnContext(ctx, "invalid cache file", "path", s.cachePath)

		return false, nil
	}

	s.list, s.index = s.compile(string(data))
	s.metrics.SetRuleStats(ctx, s.uid.String(), s.list.Len(), s.list.ParseErrors())

	s.logger.DebugContext(ctx, "loaded cache", "path", s.cachePath, "rules", s.list.Len())

	return true, nil
}

// removeCache removes the cache file of the subscription.
func (s *Subscription) removeCache() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeFile(s.cachePath)
}

// newLogger returns the logger for the subscription with the given UID.
func newLogger(baseLogger *slog.Logger, uid uuid.UUID) (l *slog.Logger) {
	return baseLogger.With(slogutil.KeyPrefix, "subscription", "uid", uid.String())
}
