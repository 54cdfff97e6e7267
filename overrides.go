package adblock

import (
	"slices"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/container"
	"github.com/quiterss/adblock/internal/ufnet"
	"github.com/quiterss/adblock/rules"
)

// OverridesState is the persisted form of [Overrides].
type OverridesState struct {
	// DisabledDomains are the hostnames of the sites where filtering is
	// disabled, including their subdomains.
	DisabledDomains []string `yaml:"disabled_domains"`

	// DisabledPages are the URLs of the pages where filtering is disabled.
	DisabledPages []string `yaml:"disabled_pages"`

	// GlobalEnabled is false if filtering is disabled everywhere.
	GlobalEnabled bool `yaml:"global_enabled"`
}

// Overrides are the user's switches that disable filtering regardless of the
// filter rules.  Overrides are safe for concurrent use, and a change is
// visible to the next classification.
type Overrides struct {
	// mu protects all fields below.
	mu *sync.RWMutex

	// domains is the set of disabled hostnames.
	domains *container.MapSet[string]

	// pages is the set of disabled page URLs without fragments.
	pages *container.MapSet[string]

	globalEnabled bool
}

// NewOverrides returns new overrides initialized from state.  If state is nil,
// filtering is enabled everywhere.
func NewOverrides(state *OverridesState) (o *Overrides) {
	o = &Overrides{
		mu:            &sync.RWMutex{},
		domains:       container.NewMapSet[string](),
		pages:         container.NewMapSet[string](),
		globalEnabled: true,
	}

	o.SetState(state)

	return o
}

// SetState replaces the current switches with the ones from state.  If state
// is nil, filtering is enabled everywhere.
func (o *Overrides) SetState(state *OverridesState) {
	domains := container.NewMapSet[string]()
	pages := container.NewMapSet[string]()
	globalEnabled := true

	if state != nil {
		globalEnabled = state.GlobalEnabled
		for _, d := range state.DisabledDomains {
			domains.Add(normalizeHostname(d))
		}

		for _, p := range state.DisabledPages {
			pages.Add(normalizePage(p))
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.domains, o.pages, o.globalEnabled = domains, pages, globalEnabled
}

// State returns the current state of o for persisting.  The slices are
// sorted.
func (o *Overrides) State() (state *OverridesState) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	domains := o.domains.Values()
	slices.Sort(domains)

	pages := o.pages.Values()
	slices.Sort(pages)

	return &OverridesState{
		DisabledDomains: domains,
		DisabledPages:   pages,
		GlobalEnabled:   o.globalEnabled,
	}
}

// GlobalEnabled returns true if filtering is enabled at all.
func (o *Overrides) GlobalEnabled() (ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.globalEnabled
}

// SetGlobalEnabled enables or disables filtering everywhere.
func (o *Overrides) SetGlobalEnabled(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.globalEnabled = enabled
}

// DisableDomain disables filtering on the pages of hostname and its
// subdomains.
func (o *Overrides) DisableDomain(hostname string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.domains.Add(normalizeHostname(hostname))
}

// EnableDomain removes hostname from the disabled domains.  Filtering may
// still be disabled on it if a parent domain is disabled.
func (o *Overrides) EnableDomain(hostname string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.domains.Delete(normalizeHostname(hostname))
}

// IsDomainDisabled returns true if filtering is disabled on hostname or any of
// its parent domains.
func (o *Overrides) IsDomainDisabled(hostname string) (ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.isDomainDisabled(normalizeHostname(hostname))
}

// isDomainDisabled is the lock-free version of IsDomainDisabled.  hostname
// must be normalized.
func (o *Overrides) isDomainDisabled(hostname string) (ok bool) {
	if hostname == "" {
		return false
	}

	for _, d := range rules.Subdomains(hostname) {
		if o.domains.Has(d) {
			return true
		}
	}

	return false
}

// DisablePage disables filtering on the page with the given URL.
func (o *Overrides) DisablePage(pageURL string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pages.Add(normalizePage(pageURL))
}

// EnablePage removes the page from the disabled pages.
func (o *Overrides) EnablePage(pageURL string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pages.Delete(normalizePage(pageURL))
}

// IsPageDisabled returns true if filtering is disabled on the page.
func (o *Overrides) IsPageDisabled(pageURL string) (ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return pageURL != "" && o.pages.Has(normalizePage(pageURL))
}

// Bypass returns true if fc must be allowed without consulting the filter
// rules.
func (o *Overrides) Bypass(fc *FilterContext) (ok bool) {
	docDomain := normalizeHostname(fc.DocumentDomain)
	page := ""
	if fc.DocumentURL != "" {
		page = normalizePage(fc.DocumentURL)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	return !o.globalEnabled ||
		o.isDomainDisabled(docDomain) ||
		(page != "" && o.pages.Has(page))
}

// normalizeHostname returns hostname in lower case without the trailing dot.
func normalizeHostname(hostname string) (norm string) {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(hostname), "."))
}

// normalizePage returns pageURL without the fragment and with the hostname in
// lower case.
func normalizePage(pageURL string) (norm string) {
	pageURL = strings.TrimSpace(pageURL)
	if i := strings.IndexByte(pageURL, '#'); i >= 0 {
		pageURL = pageURL[:i]
	}

	start, end := ufnet.HostnameBounds(pageURL)
	if start == end {
		return pageURL
	}

	return strings.ToLower(pageURL[:end]) + pageURL[end:]
}
