package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/contextutil"
	"github.com/AdguardTeam/golibs/errors"
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

// File and directory names inside the data directory.
const (
	cacheDirName   = "subscriptions"
	customFileName = "customlist.txt"
	stateFileName  = "state.yaml"
)

// customListID is the rule list ID of the custom list.  The remote
// subscriptions get the IDs following it.
const customListID = 1

// ManagerConfig is the configuration structure for a [Manager].
type ManagerConfig struct {
	// Logger is used as the base logger for the manager and the
	// subscriptions.  It must not be nil.
	Logger *slog.Logger

	// Matcher receives the merged index of the enabled subscriptions.  Its
	// overrides are restored from and persisted into the state file.  It must
	// not be nil.
	Matcher *adblock.Matcher

	// HTTPClient is used to download the subscriptions.  It must not be nil.
	HTTPClient *ufhttp.Client

	// Clock is used to stamp the refreshes.  If nil, [timeutil.SystemClock] is
	// used.
	Clock timeutil.Clock

	// Metrics is used to collect the statistics of the subscriptions.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// DataDir is the directory where the state, the custom list, and the
	// cached subscriptions are kept.  It must not be empty.
	DataDir string

	// Defaults are the subscriptions added when there is no saved state yet.
	Defaults []CatalogEntry

	// RefreshInterval is the interval between the refreshes of each
	// subscription.  It must be positive.
	RefreshInterval time.Duration

	// RefreshTimeout is the timeout of a single refresh.  It must be positive.
	RefreshTimeout time.Duration

	// MaxSize is the maximum size of a downloaded list.  It must be positive.
	MaxSize datasize.ByteSize

	// LimitedEasyList, if true, makes EasyList skip its "Third-party adverts"
	// section.
	LimitedEasyList bool
}

// type check
var _ validate.Interface = (*ManagerConfig)(nil)

// Validate implements the [validate.Interface] interface for *ManagerConfig.
func (c *ManagerConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", c.Logger),
		validate.NotNil("Matcher", c.Matcher),
		validate.NotNil("HTTPClient", c.HTTPClient),
		validate.NotEmpty("DataDir", c.DataDir),
		validate.Positive("RefreshInterval", c.RefreshInterval),
		validate.Positive("RefreshTimeout", c.RefreshTimeout),
		validate.Positive("MaxSize", c.MaxSize),
	}

	return errors.Join(errs...)
}

// Manager owns the subscriptions, refreshes them in the background, and
// publishes the merged index of the enabled ones to the matcher.  Manager is
// safe for concurrent use.
type Manager struct {
	logger     *slog.Logger
	baseLogger *slog.Logger
	matcher    *adblock.Matcher
	http       *ufhttp.Client
	clock      timeutil.Clock
	metrics    Metrics
	custom     *CustomList
	defaults   []CatalogEntry

	// mu protects the fields below.
	mu       *sync.Mutex
	subs     []*Subscription
	workers  map[uuid.UUID]*service.RefreshWorker
	disabled *container.MapSet[string]
	nextID   int
	started  bool

	// mergeMu serializes the merges of the indexes.
	mergeMu *sync.Mutex

	// stateMu serializes the writes of the state file.
	stateMu *sync.Mutex

	// wg tracks the background refreshes.
	wg *sync.WaitGroup

	cacheDir        string
	customPath      string
	statePath       string
	refreshIvl      time.Duration
	refreshTimeout  time.Duration
	maxSize         datasize.ByteSize
	limitedEasyList bool
}

// NewManager returns a new manager without subscriptions.  Use
// [Manager.Start] to restore the saved state.  c must be valid.
func NewManager(c *ManagerConfig) (m *Manager, err error) {
	err = c.Validate()
	if err != nil {
		return nil, fmt.Errorf("manager config: %w", err)
	}

	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	metrics := c.Metrics
	if metrics == nil {
		metrics = EmptyMetrics{}
	}

	return &Manager{
		logger:          c.Logger.With(slogutil.KeyPrefix, "subscription_manager"),
		baseLogger:      c.Logger,
		matcher:         c.Matcher,
		http:            c.HTTPClient,
		clock:           clock,
		metrics:         metrics,
		defaults:        c.Defaults,
		mu:              &sync.Mutex{},
		workers:         map[uuid.UUID]*service.RefreshWorker{},
		disabled:        container.NewMapSet[string](),
		nextID:          customListID + 1,
		mergeMu:         &sync.Mutex{},
		stateMu:         &sync.Mutex{},
		wg:              &sync.WaitGroup{},
		cacheDir:        filepath.Join(c.DataDir, cacheDirName),
		customPath:      filepath.Join(c.DataDir, customFileName),
		statePath:       filepath.Join(c.DataDir, stateFileName),
		refreshIvl:      c.RefreshInterval,
		refreshTimeout:  c.RefreshTimeout,
		maxSize:         c.MaxSize,
		limitedEasyList: c.LimitedEasyList,
	}, nil
}

// type check
var _ service.Interface = (*Manager)(nil)

// Start implements the [service.Interface] interface for *Manager.  It
// restores the saved state, loads the cached lists, publishes the merged
// index, and starts the background refreshes.  The subscriptions without a
// fresh cache are refreshed right away in the background.
func (m *Manager) Start(ctx context.Context) (err error) {
	err = os.MkdirAll(m.cacheDir, 0o755)
	if err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	st, err := readState(m.statePath)
	if err != nil {
		return err
	}

	firstRun := st == nil
	if firstRun {
		st = &state{}
	}

	m.matcher.Overrides().SetState(st.Overrides)

	m.mu.Lock()
	m.disabled = container.NewMapSet(st.DisabledRules...)
	m.mu.Unlock()

	err = m.initCustom(ctx, st.Custom)
	if err != nil {
		return err
	}

	unloaded := map[*Subscription]struct{}{}
	for _, ss := range st.Subscriptions {
		s, loaded, restoreErr := m.restore(ctx, ss)
		if restoreErr != nil {
			m.logger.WarnContext(ctx, "skipping subscription", "url", ss.URL, slogutil.KeyError, restoreErr)

			continue
		}

		if !loaded {
			unloaded[s] = struct{}{}
		}
	}

	if firstRun {
		for _, e := range m.defaults {
			_, err = m.add(ctx, e.URL, e.Title)
			if err != nil {
				m.logger.WarnContext(ctx, "adding default subscription", "url", e.URL, slogutil.KeyError, err)
			}
		}
	}

	err = m.Merge(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.started = true
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	now := m.clock.Now()
	for _, s := range subs {
		err = m.startWorker(ctx, s)
		if err != nil {
			return err
		}

		_, isUnloaded := unloaded[s]
		if s.Enabled() && (isUnloaded || s.IsStale(now, m.refreshIvl)) {
			m.refreshAsync(ctx, s)
		}
	}

	return m.saveState(ctx)
}

// initCustom creates the custom list and reads its rules.
func (m *Manager) initCustom(ctx context.Context, cs *customState) (err error) {
	if cs == nil {
		var uid uuid.UUID
		uid, err = uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating custom list uid: %w", err)
		}

		cs = &customState{
			UID:     uid,
			Enabled: true,
		}
	}

	m.custom = NewCustomList(&CustomListConfig{
		Logger:   newLogger(m.baseLogger, cs.UID),
		Clock:    m.clock,
		Metrics:  m.metrics,
		Disabled: m.disabledRules,
		Path:     m.customPath,
		UID:      cs.UID,
		ID:       customListID,
		Enabled:  cs.Enabled,
	})

	return m.custom.Refresh(ctx)
}

// restore creates a subscription from its saved state and loads its cache.
// loaded is false if there is no valid cache.
func (m *Manager) restore(ctx context.Context, ss *subscriptionState) (s *Subscription, loaded bool, err error) {
	u, err := parseURL(ss.URL)
	if err != nil {
		return nil, false, err
	}

	s, err = m.registerRestored(u, ss)
	if err != nil {
		return nil, false, err
	}

	// The subscription compiles its list with [Manager.disabledRules], so m.mu
	// must not be held here.
	loaded, err = s.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "loading cache", slogutil.KeyError, err)

		return s, false, nil
	}

	return s, loaded, nil
}

// registerRestored adds a subscription with the ID from the saved state to the
// manager.
func (m *Manager) registerRestored(u *url.URL, ss *subscriptionState) (s *Subscription, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ss.ID <= customListID || m.findByID(ss.ID) != nil {
		return nil, fmt.Errorf("list id %d: %w", ss.ID, errors.ErrDuplicated)
	}

	s, err = m.newSubscription(u, ss)
	if err != nil {
		return nil, err
	}

	m.subs = append(m.subs, s)
	m.nextID = max(m.nextID, ss.ID+1)

	return s, nil
}

// newSubscription returns a new subscription with the given state.  m.mu must
// be locked.
func (m *Manager) newSubscription(u *url.URL, ss *subscriptionState) (s *Subscription, err error) {
	return New(&Config{
		Logger:          newLogger(m.baseLogger, ss.UID),
		HTTPClient:      m.http,
		Clock:           m.clock,
		Metrics:         m.metrics,
		OnUpdate:        m.onUpdate,
		Disabled:        m.disabledRules,
		URL:             u,
		LastUpdated:     ss.LastUpdated,
		Title:           ss.Title,
		CachePath:       filepath.Join(m.cacheDir, ss.UID.String()+".txt"),
		ETag:            ss.ETag,
		UID:             ss.UID,
		ID:              ss.ID,
		MaxSize:         m.maxSize,
		Enabled:         ss.Enabled,
		LimitedEasyList: m.limitedEasyList,
	})
}

// startWorker starts the background refreshes of s.  It does nothing if the
// manager has not been started yet.
func (m *Manager) startWorker(ctx context.Context, s *Subscription) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	w := service.NewRefreshWorker(&service.RefreshWorkerConfig{
		ContextConstructor: contextutil.NewTimeoutConstructor(m.refreshTimeout),
		ErrorHandler: service.NewSlogErrorHandler(
			s.logger,
			slog.LevelError,
			"refreshing",
		),
		Refresher:         s,
		Schedule:          timeutil.NewConstSchedule(m.refreshIvl),
		RefreshOnShutdown: false,
	})

	err = w.Start(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("starting refresher for %s: %w", s.UID(), err)
	}

	m.workers[s.UID()] = w

	return nil
}

// refreshAsync refreshes s in a separate goroutine.
func (m *Manager) refreshAsync(ctx context.Context, s *Subscription) {
	ctx = context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer slogutil.RecoverAndLog(ctx, s.logger)

		refrCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()

		err := s.Refresh(refrCtx)
		if err != nil {
			s.logger.ErrorContext(ctx, "initial refresh", slogutil.KeyError, err)
		}
	}()
}

// onUpdate is the [UpdateHandler] of the subscriptions.
func (m *Manager) onUpdate(ctx context.Context, s *Subscription) {
	err := m.Merge(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "merging after refresh", slogutil.KeyError, err)
	}

	err = m.saveState(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "saving state after refresh", slogutil.KeyError, err)
	}
}

// Shutdown implements the [service.Interface] interface for *Manager.  It
// stops the background refreshes and saves the state.
func (m *Manager) Shutdown(ctx context.Context) (err error) {
	m.mu.Lock()
	workers := m.workers
	m.workers = map[uuid.UUID]*service.RefreshWorker{}
	m.started = false
	m.mu.Unlock()

	var errs []error
	for uid, w := range workers {
		err = w.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("stopping refresher for %s: %w", uid, err))
		}
	}

	m.wg.Wait()

	err = m.saveState(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Merge composes the indexes of the enabled subscriptions and publishes the
// result to the matcher.  Merges are serialized.
func (m *Manager) Merge(ctx context.Context) (err error) {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	var indexes []*adblock.Index
	if m.custom != nil && m.custom.Enabled() {
		indexes = append(indexes, m.custom.Index())
	}

	for _, s := range m.subscriptions() {
		if s.Enabled() {
			indexes = append(indexes, s.Index())
		}
	}

	idx, err := adblock.Merge(indexes...)
	if err != nil {
		return fmt.Errorf("merging indexes: %w", err)
	}

	m.matcher.SetIndex(ctx, idx)

	return nil
}

// subscriptions returns a copy of the remote subscriptions.
func (m *Manager) subscriptions() (subs []*Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.subs)
}

// Add adds a remote subscription with the given URL and title.  The cached
// list is used if there is one, otherwise the list is downloaded in the
// background.
func (m *Manager) Add(ctx context.Context, rawURL, title string) (s *Subscription, err error) {
	s, err = m.add(ctx, rawURL, title)
	if err != nil {
		return nil, err
	}

	err = m.startWorker(ctx, s)
	if err != nil {
		return nil, err
	}

	err = m.Merge(ctx)
	if err != nil {
		return nil, err
	}

	return s, m.saveState(ctx)
}

// add creates and registers a new subscription, loads its cache, and
// schedules a refresh if there is no cache and the manager is running.
func (m *Manager) add(ctx context.Context, rawURL, title string) (s *Subscription, err error) {
	defer func() { err = errors.Annotate(err, "adding subscription %q: %w", rawURL) }()

	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating uid: %w", err)
	}

	s, err = m.register(u, &subscriptionState{
		Title:   strings.TrimSpace(title),
		UID:     uid,
		Enabled: true,
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	// Before the start, the stale subscriptions are refreshed by
	// [Manager.Start].
	if !ok && started {
		m.refreshAsync(ctx, s)
	}

	return s, nil
}

// register creates a subscription with the next list ID and adds it to the
// manager.
func (m *Manager) register(u *url.URL, ss *subscriptionState) (s *Subscription, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.subs {
		if other.URL().String() == u.String() {
			return nil, ErrDuplicate
		}
	}

	if ss.Title == "" {
		ss.Title = u.Host
	}

	ss.ID = m.nextID
	s, err = m.newSubscription(u, ss)
	if err != nil {
		return nil, err
	}

	m.nextID++
	m.subs = append(m.subs, s)

	return s, nil
}

// parseURL parses and checks the URL of a subscription.
func parseURL(rawURL string) (u *url.URL, err error) {
	u, err = url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	if !urlutil.IsValidHTTPURLScheme(u.Scheme) {
		return nil, fmt.Errorf("url scheme %q: %w", u.Scheme, errors.ErrBadEnumValue)
	} else if u.Host == "" {
		return nil, fmt.Errorf("url host: %w", errors.ErrEmptyValue)
	}

	return u, nil
}

// Remove removes the subscription with the given UID together with its cached
// list.  The custom list cannot be removed.
func (m *Manager) Remove(ctx context.Context, uid uuid.UUID) (err error) {
	if m.custom != nil && uid == m.custom.UID() {
		return ErrCustomListImmutable
	}

	m.mu.Lock()
	i := slices.IndexFunc(m.subs, func(s *Subscription) (ok bool) { return s.UID() == uid })
	if i < 0 {
		m.mu.Unlock()

		return fmt.Errorf("removing %s: %w", uid, ErrNotFound)
	}

	s := m.subs[i]
	m.subs = slices.Delete(m.subs, i, i+1)
	w := m.workers[uid]
	delete(m.workers, uid)
	m.mu.Unlock()

	var errs []error
	if w != nil {
		err = w.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("stopping refresher: %w", err))
		}
	}

	err = s.removeCache()
	if err != nil {
		errs = append(errs, err)
	}

	err = m.Merge(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	err = m.saveState(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SetEnabled enables or disables the subscription with the given UID,
// including the custom list.  A remote subscription that has never been
// downloaded is refreshed in the background when enabled.
func (m *Manager) SetEnabled(ctx context.Context, uid uuid.UUID, enabled bool) (err error) {
	if m.custom != nil && uid == m.custom.UID() {
		m.custom.SetEnabled(enabled)
	} else {
		s, ok := m.Subscription(uid)
		if !ok {
			return fmt.Errorf("setting enabled for %s: %w", uid, ErrNotFound)
		}

		s.SetEnabled(enabled)
		if enabled && s.List() == nil {
			m.refreshAsync(ctx, s)
		}
	}

	err = m.Merge(ctx)
	if err != nil {
		return err
	}

	return m.saveState(ctx)
}

// Subscription returns the remote subscription with the given UID.
func (m *Manager) Subscription(uid uuid.UUID) (s *Subscription, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.subs, func(s *Subscription) (ok bool) { return s.UID() == uid })
	if i < 0 {
		return nil, false
	}

	return m.subs[i], true
}

// findByID returns the remote subscription with the given list ID or nil.
// m.mu must be locked.
func (m *Manager) findByID(id int) (s *Subscription) {
	for _, s = range m.subs {
		if s.ID() == id {
			return s
		}
	}

	return nil
}

// Custom returns the custom list.  It is nil until the manager is started.
func (m *Manager) Custom() (l *CustomList) {
	return m.custom
}

// Subscriptions returns the status of all subscriptions.  The custom list
// goes first and the remote subscriptions follow in the order of addition.
func (m *Manager) Subscriptions() (statuses []*Status) {
	if m.custom != nil {
		statuses = append(statuses, m.custom.Status())
	}

	for _, s := range m.subscriptions() {
		statuses = append(statuses, s.Status())
	}

	return statuses
}

// UpdateAll refreshes all enabled subscriptions concurrently and re-reads the
// custom list.  The errors of the individual refreshes are joined, and the
// status of each subscription is updated.
func (m *Manager) UpdateAll(ctx context.Context) (err error) {
	subs := m.subscriptions()
	errs := make([]error, len(subs)+1)

	wg := &sync.WaitGroup{}
	for i, s := range subs {
		if !s.Enabled() {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer slogutil.RecoverAndLog(ctx, s.logger)

			errs[i] = s.Refresh(ctx)
		}()
	}

	if m.custom != nil {
		errs[len(subs)] = m.custom.Refresh(ctx)
	}

	wg.Wait()

	// The subscriptions that have been updated have already been merged, but
	// the custom list and the not modified ones have not.
	mergeErr := m.Merge(ctx)
	if mergeErr != nil {
		errs = append(errs, mergeErr)
	}

	saveErr := m.saveState(ctx)
	if saveErr != nil {
		errs = append(errs, saveErr)
	}

	return errors.Join(errs...)
}

// AddCustomRule appends a rule to the custom list and publishes the new
// index.  Remote subscriptions are not refreshed.
func (m *Manager) AddCustomRule(ctx context.Context, text string) (err error) {
	_, err = m.custom.AddRule(ctx, text)
	if err != nil {
		return err
	}

	return m.Merge(ctx)
}

// RemoveCustomRule removes the rule with the given text from the custom list
// and publishes the new index.
func (m *Manager) RemoveCustomRule(ctx context.Context, text string) (err error) {
	err = m.custom.RemoveRuleText(ctx, text)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.disabled.Delete(strings.TrimSpace(text))
	m.mu.Unlock()

	return m.Merge(ctx)
}

// disabledRules is the [DisabledFunc] of the subscriptions.
func (m *Manager) disabledRules() (disabled *container.MapSet[string]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return container.NewMapSet(m.disabled.Values()...)
}

// DisableRule disables the rules with the given text in all subscriptions.
// The lists containing the rule are recompiled from their cached text.
func (m *Manager) DisableRule(ctx context.Context, text string) (err error) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	m.disabled.Add(text)
	m.mu.Unlock()

	return m.recompile(ctx, func(l *filterlist.RuleList) (ok bool) {
		return containsRule(l, text)
	})
}

// EnableRule enables the rules with the given text previously disabled by
// [Manager.DisableRule].
func (m *Manager) EnableRule(ctx context.Context, text string) (err error) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	found := m.disabled.Has(text)
	m.disabled.Delete(text)
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("enabling rule %q: %w", text, ErrRuleNotFound)
	}

	return m.recompile(ctx, func(l *filterlist.RuleList) (ok bool) {
		return l.Disabled() > 0
	})
}

// DisabledRules returns the sorted texts of the disabled rules.
func (m *Manager) DisabledRules() (texts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	texts = m.disabled.Values()
	slices.Sort(texts)

	return texts
}

// recompile recompiles the lists for which affected returns true, publishes
// the new index, and saves the state.
func (m *Manager) recompile(
	ctx context.Context,
	affected func(l *filterlist.RuleList) (ok bool),
) (err error) {
	var errs []error
	if l := m.custom.List(); l != nil && affected(l) {
		errs = append(errs, m.custom.Refresh(ctx))
	}

	for _, s := range m.subscriptions() {
		if l := s.List(); l != nil && affected(l) {
			_, loadErr := s.Load(ctx)
			errs = append(errs, loadErr)
		}
	}

	errs = append(errs, m.Merge(ctx), m.saveState(ctx))

	return errors.Join(errs...)
}

// containsRule returns true if l contains a rule with the given text.
func containsRule(l *filterlist.RuleList, text string) (ok bool) {
	for _, r := range l.Rules() {
		if r.Text() == text {
			return true
		}
	}

	return false
}

// SetGlobalEnabled enables or disables filtering everywhere.
func (m *Manager) SetGlobalEnabled(ctx context.Context, enabled bool) (err error) {
	m.matcher.Overrides().SetGlobalEnabled(enabled)

	return m.saveState(ctx)
}

// DisableDomain disables filtering on the pages of hostname and its
// subdomains.
func (m *Manager) DisableDomain(ctx context.Context, hostname string) (err error) {
	m.matcher.Overrides().DisableDomain(hostname)

	return m.saveState(ctx)
}

// EnableDomain re-enables filtering on the pages of hostname.
func (m *Manager) EnableDomain(ctx context.Context, hostname string) (err error) {
	m.matcher.Overrides().EnableDomain(hostname)

	return m.saveState(ctx)
}

// DisablePage disables filtering on the page with the given URL.
func (m *Manager) DisablePage(ctx context.Context, pageURL string) (err error) {
	m.matcher.Overrides().DisablePage(pageURL)

	return m.saveState(ctx)
}

// EnablePage re-enables filtering on the page with the given URL.
func (m *Manager) EnablePage(ctx context.Context, pageURL string) (err error) {
	m.matcher.Overrides().EnablePage(pageURL)

	return m.saveState(ctx)
}

// saveState writes the current state into the state file.
func (m *Manager) saveState(ctx context.Context) (err error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	st := &state{
		Overrides:     m.matcher.Overrides().State(),
		DisabledRules: m.DisabledRules(),
	}

	if m.custom != nil {
		st.Custom = m.custom.state()
	}

	for _, s := range m.subscriptions() {
		st.Subscriptions = append(st.Subscriptions, s.state())
	}

	err = writeState(m.statePath, st)
	if err != nil {
		return err
	}

	m.logger.DebugContext(ctx, "saved state", "subscriptions", len(st.Subscriptions))

	return nil
}
