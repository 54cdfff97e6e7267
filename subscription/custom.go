package subscription

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/google/uuid"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/filterlist"
)

// CustomListTitle is the title of the custom list.
const CustomListTitle = "Custom Rules"

// customListHeader is the list header written into the custom list file.
const customListHeader = "[Adblock Plus 1.1.1]"

// defaultCustomRules are the rules that are always present in the custom
// list.  They can be disabled, and they are added back if removed.
var defaultCustomRules = []string{
	"@@||duckduckgo.com^$document",
	"duckduckgo.com#@#.has-ad",
}

// CustomListConfig is the configuration structure for a [CustomList].
type CustomListConfig struct {
	// Logger is used to log the changes.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to stamp the changes.  If nil, [timeutil.SystemClock] is
	// used.
	Clock timeutil.Clock

	// Metrics is used to collect the statistics.  If nil, [EmptyMetrics] is
	// used.
	Metrics Metrics

	// Disabled returns the texts of the rules that must be skipped.  It may be
	// nil.
	Disabled DisabledFunc

	// Path is the path to the file with the rules.  It must not be empty.
	Path string

	// UID is the unique identifier of the list.
	UID uuid.UUID

	// ID is the numeric identifier of the rule list.  It must be positive and
	// unique among all subscriptions.
	ID int

	// Enabled is true if the rules of the list are used.
	Enabled bool
}

// CustomList is the list of the rules written by the user.  It is stored in a
// local file and never downloaded.
type CustomList struct {
	logger   *slog.Logger
	clock    timeutil.Clock
	metrics  Metrics
	disabled DisabledFunc

	// mu protects the fields below and the file.
	mu          *sync.Mutex
	lines       []string
	list        *filterlist.RuleList
	index       *adblock.Index
	lastUpdated time.Time
	lastErr     error
	enabled     bool

	path string
	uid  uuid.UUID
	id   int
}

// NewCustomList returns a new custom list without rules.  Use
// [CustomList.Refresh] to read the rules from the file.  c must not be nil.
func NewCustomList(c *CustomListConfig) (l *CustomList) {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	metrics := c.Metrics
	if metrics == nil {
		metrics = EmptyMetrics{}
	}

	return &CustomList{
		logger:   c.Logger,
		clock:    clock,
		metrics:  metrics,
		disabled: c.Disabled,
		mu:       &sync.Mutex{},
		enabled:  c.Enabled,
		path:     c.Path,
		uid:      c.UID,
		id:       c.ID,
	}
}

// UID returns the unique identifier of the list.
func (l *CustomList) UID() (uid uuid.UUID) {
	return l.uid
}

// ID returns the numeric identifier of the rule list.
func (l *CustomList) ID() (id int) {
	return l.id
}

// Enabled returns true if the rules of the list are used.
func (l *CustomList) Enabled() (ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.enabled
}

// SetEnabled enables or disables the list.
func (l *CustomList) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.enabled = enabled
}

// Index returns the index of the rules.  It is nil until the list is
// refreshed.
func (l *CustomList) Index() (idx *adblock.Index) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.index
}

// List returns the compiled rules.  It is nil until the list is refreshed.
func (l *CustomList) List() (list *filterlist.RuleList) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.list
}

// Status returns the current information about the list.
func (l *CustomList) Status() (st *Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st = &Status{
		LastUpdated: l.lastUpdated,
		LastError:   l.lastErr,
		Title:       CustomListTitle,
		UID:         l.uid,
		Enabled:     l.enabled,
		Custom:      true,
	}

	if l.list != nil {
		st.RulesCount = l.list.Len()
		st.ParseErrors = l.list.ParseErrors()
	}

	return st
}

// state returns the persistent state of the list.
func (l *CustomList) state() (st *customState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &customState{
		UID:     l.uid,
		Enabled: l.enabled,
	}
}

// Refresh re-reads the rules from the file and compiles them.  If the file
// does not exist, it is created with the default rules.  The default rules are
// added back if they are missing.
func (l *CustomList) Refresh(ctx context.Context) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	defer func() {
		l.lastErr = err
		err = errors.Annotate(err, "custom list: %w")
	}()

	lines, err := readCustomLines(l.path)
	if err != nil {
		return err
	}

	missing := false
	for _, r := range defaultCustomRules {
		if !slices.Contains(lines, r) {
			lines = append(lines, r)
			missing = true
		}
	}

	l.lines = lines
	if missing {
		err = l.save()
		if err != nil {
			return err
		}
	}

	l.compile(ctx)

	return nil
}

// readCustomLines returns the rule lines of the custom list file at path
// without the header lines.  lines is empty if the file does not exist.
func readCustomLines(path string) (lines []string, err error) {
	// #nosec G304 -- Assume that path is always the data directory plus a
	// constant file name.
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), filterlist.MaxLineLength)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || isCustomHeaderLine(line) {
			continue
		}

		lines = append(lines, line)
	}

	err = s.Err()
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}

	return lines, nil
}

// isCustomHeaderLine returns true if line is one of the header lines written
// into the custom list file.
func isCustomHeaderLine(line string) (ok bool) {
	return strings.HasPrefix(line, "Title: ") ||
		line == "Url:" ||
		strings.HasPrefix(line, "Url: ") ||
		strings.HasPrefix(line, "[Adblock")
}

// save writes the rules into the file.  l.mu must be locked.
func (l *CustomList) save() (err error) {
	b := &strings.Builder{}
	_, _ = fmt.Fprintf(b, "Title: %s\nUrl: \n%s\n", CustomListTitle, customListHeader)
	for _, line := range l.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	err = writeFile(l.path, []byte(b.String()))
	if err != nil {
		return fmt.Errorf("saving: %w", err)
	}

	return nil
}

// compile rebuilds the rule list and the index from the lines.  l.mu must be
// locked.
func (l *CustomList) compile(ctx context.Context) {
	conf := &filterlist.Config{}
	if l.disabled != nil {
		conf.Disabled = l.disabled()
	}

	l.list = filterlist.NewRuleList(l.id, strings.Join(l.lines, "\n"), conf)
	l.index = adblock.Build(l.list)
	l.lastUpdated = l.clock.Now()

	id := l.uid.String()
	l.metrics.SetRuleStats(ctx, id, l.list.Len(), l.list.ParseErrors())
	l.metrics.SetUpdateStatus(ctx, id, l.lastUpdated, nil)

	l.logger.DebugContext(ctx, "compiled custom list", "rules", l.list.Len())
}

// commit saves and recompiles the list after an edit.  l.mu must be locked.
func (l *CustomList) commit(ctx context.Context) (err error) {
	err = l.save()
	if err != nil {
		l.lastErr = err

		return fmt.Errorf("custom list: %w", err)
	}

	l.lastErr = nil
	l.compile(ctx)

	return nil
}

// Rules returns the texts of the rules in the order they were added.
func (l *CustomList) Rules() (texts []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.lines)
}

// ContainsRule returns true if the list contains a rule with exactly the
// given text.
func (l *CustomList) ContainsRule(text string) (ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Contains(l.lines, strings.TrimSpace(text))
}

// AddRule appends a rule to the list and returns its offset.  Malformed rules
// are kept in the file and counted as parse errors.
func (l *CustomList) AddRule(ctx context.Context, text string) (offset int, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return -1, fmt.Errorf("custom list: rule: %w", errors.ErrEmptyValue)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, text)

	return len(l.lines) - 1, l.commit(ctx)
}

// RemoveRule removes the rule at offset.
func (l *CustomList) RemoveRule(ctx context.Context, offset int) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if offset < 0 || offset >= len(l.lines) {
		return fmt.Errorf("custom list: offset %d: %w", offset, errors.ErrOutOfRange)
	}

	l.lines = slices.Delete(l.lines, offset, offset+1)

	return l.commit(ctx)
}

// RemoveRuleText removes the first rule with exactly the given text.
func (l *CustomList) RemoveRuleText(ctx context.Context, text string) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.Index(l.lines, strings.TrimSpace(text))
	if i < 0 {
		return fmt.Errorf("custom list: %q: %w", text, ErrRuleNotFound)
	}

	l.lines = slices.Delete(l.lines, i, i+1)

	return l.commit(ctx)
}

// ReplaceRule replaces the rule at offset with text.
func (l *CustomList) ReplaceRule(ctx context.Context, offset int, text string) (err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("custom list: rule: %w", errors.ErrEmptyValue)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if offset < 0 || offset >= len(l.lines) {
		return fmt.Errorf("custom list: offset %d: %w", offset, errors.ErrOutOfRange)
	}

	l.lines[offset] = text

	return l.commit(ctx)
}
