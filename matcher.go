package adblock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/bluele/gcache"
	"github.com/quiterss/adblock/rules"
)

// Decision is the result of the classification of a request.
type Decision uint8

// Decision values.
const (
	DecisionAllow Decision = iota
	DecisionBlock
)

// String implements the [fmt.Stringer] interface for Decision.
func (d Decision) String() (s string) {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionBlock:
		return "block"
	default:
		return fmt.Sprintf("!bad_decision_%d", uint8(d))
	}
}

// FilterContext describes a request made by a page.
type FilterContext struct {
	// URL is the full URL of the request.
	URL string

	// DocumentDomain is the hostname of the page that issued the request.  It
	// may be empty.
	DocumentDomain string

	// DocumentURL is the URL of the page that issued the request.  It is only
	// used to check the disabled pages and may be empty.
	DocumentURL string

	// ResourceType is the type of the requested resource.
	ResourceType rules.RequestType
}

// Result is the detailed result of the classification of a request.
type Result struct {
	// BlockRule is the blocking rule that matched the request, if any.
	BlockRule *rules.NetworkRule

	// ExceptionRule is the exception that cancelled BlockRule, if any.
	ExceptionRule *rules.NetworkRule

	// Decision is the final decision.
	Decision Decision

	// Bypassed is true if the request was allowed by the overrides without
	// consulting the rules.
	Bypassed bool
}

// MatcherConfig is the configuration structure for a [Matcher].
type MatcherConfig struct {
	// Logger is used to log the index updates.  If nil, nothing is logged.
	Logger *slog.Logger

	// Overrides are the user's filtering switches.  If nil, filtering is
	// enabled everywhere.
	Overrides *Overrides

	// Metrics is used to collect the classification statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// CacheSize is the maximum number of results cached per index.  If it is
	// zero, the results are not cached.
	CacheSize int
}

// snapshot is an index published in the matcher together with the cache of
// the results computed with it.
type snapshot struct {
	index *Index

	// cache maps cacheKey to Result.  It is nil if caching is disabled.
	cache gcache.Cache
}

// cacheKey is the key of the result cache.
type cacheKey struct {
	url            string
	documentDomain string
	requestType    rules.RequestType
}

// Matcher classifies requests against the currently published index.  The
// index can be replaced at any time without blocking the classification.
// Matcher is safe for concurrent use.
type Matcher struct {
	logger    *slog.Logger
	overrides *Overrides
	metrics   Metrics

	// current is the published snapshot.  It is nil until the first index
	// is set.
	current atomic.Pointer[snapshot]

	cacheSize int
}

// NewMatcher returns a new matcher without an index.  Until an index is set,
// every request is allowed.  c must not be nil.
func NewMatcher(c *MatcherConfig) (m *Matcher) {
	overrides := c.Overrides
	if overrides == nil {
		overrides = NewOverrides(nil)
	}

	metrics := c.Metrics
	if metrics == nil {
		metrics = EmptyMetrics{}
	}

	logger := c.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	return &Matcher{
		logger:    logger,
		overrides: overrides,
		metrics:   metrics,
		cacheSize: c.CacheSize,
	}
}

// SetIndex publishes idx.  The classifications started before the call finish
// with the previous index.  The results cached for the previous index are
// discarded.
func (m *Matcher) SetIndex(ctx context.Context, idx *Index) {
	snap := &snapshot{
		index: idx,
	}

	if m.cacheSize > 0 {
		snap.cache = gcache.New(m.cacheSize).LRU().Build()
	}

	m.current.Store(snap)

	if idx != nil {
		m.logger.DebugContext(ctx, "index published", "rules", idx.RulesCount())
	}
}

// Index returns the currently published index or nil.
func (m *Matcher) Index() (idx *Index) {
	snap := m.current.Load()
	if snap == nil {
		return nil
	}

	return snap.index
}

// Overrides returns the overrides used by the matcher.
func (m *Matcher) Overrides() (o *Overrides) {
	return m.overrides
}

// Classify returns the decision for the request described by fc.
func (m *Matcher) Classify(ctx context.Context, fc *FilterContext) (d Decision) {
	return m.ClassifyResult(ctx, fc).Decision
}

// ClassifyResult is like [Matcher.Classify] but also returns the rules that
// lead to the decision.
func (m *Matcher) ClassifyResult(ctx context.Context, fc *FilterContext) (res Result) {
	defer func() { m.metrics.IncrementDecisions(ctx, res.Decision) }()

	if m.overrides.Bypass(fc) {
		return Result{
			Decision: DecisionAllow,
			Bypassed: true,
		}
	}

	snap := m.current.Load()
	if snap == nil || snap.index == nil {
		return Result{
			Decision: DecisionAllow,
		}
	}

	key := cacheKey{
		url:            fc.URL,
		documentDomain: fc.DocumentDomain,
		requestType:    fc.ResourceType,
	}

	if res, ok := m.cachedResult(ctx, snap, key); ok {
		return res
	}

	r := rules.NewRequest(fc.URL, fc.DocumentDomain, fc.ResourceType)
	res.BlockRule, res.ExceptionRule = snap.index.Match(r, r.SourceHostname)
	if res.BlockRule != nil && res.ExceptionRule == nil {
		res.Decision = DecisionBlock
	}

	if snap.cache != nil {
		setCached(snap.cache, key, res)
	}

	return res
}

// cachedResult returns the result cached in snap for key, if any.
func (m *Matcher) cachedResult(
	ctx context.Context,
	snap *snapshot,
	key cacheKey,
) (res Result, ok bool) {
	if snap.cache == nil {
		return Result{}, false
	}

	v, err := snap.cache.Get(key)
	if err != nil {
		if !errors.Is(err, gcache.KeyNotFoundError) {
			// Shouldn't happen, since we don't set a loader function.
			panic(fmt.Errorf("getting cached result: %w", err))
		}

		m.metrics.IncrementCacheLookups(ctx, false)

		return Result{}, false
	}

	m.metrics.IncrementCacheLookups(ctx, true)

	return v.(Result), true
}

// setCached puts res into c.
func setCached(c gcache.Cache, key cacheKey, res Result) {
	err := c.Set(key, res)
	if err != nil {
		// Shouldn't happen, since we don't set a serialization function.
		panic(fmt.Errorf("caching result: %w", err))
	}
}

// CosmeticSelectors returns the CSS selectors of the elements to hide on the
// page with the given hostname.  It returns nil if filtering is disabled on
// the page or a "$document" or "$elemhide" exception matches it.  Generic
// selectors are omitted if a "$generichide" exception matches the page.
func (m *Matcher) CosmeticSelectors(hostname string) (sels []string) {
	hostname = normalizeHostname(hostname)
	if !m.overrides.GlobalEnabled() || m.overrides.IsDomainDisabled(hostname) {
		return nil
	}

	idx := m.Index()
	if idx == nil {
		return nil
	}

	document, elemhide, generichide := idx.pageExceptions(hostname)
	if document || elemhide {
		return nil
	}

	return idx.cosmetic.Selectors(hostname, !generichide)
}

// selectorsPerBlock is the maximum number of selectors in a single CSS rule
// produced by [Matcher.ElementHidingCSS].
const selectorsPerBlock = 1000

// ElementHidingCSS returns the style sheet hiding the elements on the page
// with the given hostname.  The selectors are split into several rules, each
// on its own line.  It returns an empty string if there is nothing to hide.
func (m *Matcher) ElementHidingCSS(hostname string) (css string) {
	return ElementHidingCSS(m.CosmeticSelectors(hostname))
}

// ElementHidingCSS renders sels as a style sheet that hides the matching
// elements.
func ElementHidingCSS(sels []string) (css string) {
	b := &strings.Builder{}
	for start := 0; start < len(sels); start += selectorsPerBlock {
		end := min(start+selectorsPerBlock, len(sels))
		b.WriteString(strings.Join(sels[start:end], ", "))
		b.WriteString(" {display:none !important;}\n")
	}

	return b.String()
}

// LogResult writes the result of the classification of fc to the logger at
// debug level.
func (m *Matcher) LogResult(ctx context.Context, fc *FilterContext, res Result) {
	if !m.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	args := []any{
		"url", fc.URL,
		"document", fc.DocumentDomain,
		"type", fc.ResourceType,
		"decision", res.Decision,
	}

	if res.BlockRule != nil {
		args = append(args, "rule", res.BlockRule.Text())
	}

	if res.ExceptionRule != nil {
		args = append(args, "exception", res.ExceptionRule.Text())
	}

	m.logger.DebugContext(ctx, "classified", args...)
}
