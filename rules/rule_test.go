package rules_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/quiterss/adblock/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFilterListID is a test filter list ID.
const testFilterListID = 1

func TestNewRule(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in       string
		name     string
		wantKind rules.Kind
		wantNil  bool
	}{{
		in:      "",
		name:    "empty",
		wantNil: true,
	}, {
		in:      " ",
		name:    "space",
		wantNil: true,
	}, {
		in:      "! comment",
		name:    "comment",
		wantNil: true,
	}, {
		in:      "#",
		name:    "comment_hash",
		wantNil: true,
	}, {
		in:      "# comment",
		name:    "comment_hash_space",
		wantNil: true,
	}, {
		in:      "[Adblock Plus 2.0]",
		name:    "header",
		wantNil: true,
	}, {
		in:       "##banner",
		name:     "element_hiding",
		wantKind: rules.KindBlock,
		wantNil:  false,
	}, {
		in:       "example.test#@#.banner",
		name:     "element_hiding_exception",
		wantKind: rules.KindException,
		wantNil:  false,
	}, {
		in:       "||example.test^",
		name:     "network",
		wantKind: rules.KindBlock,
		wantNil:  false,
	}, {
		in:       "@@||example.test^$document",
		name:     "network_exception",
		wantKind: rules.KindException,
		wantNil:  false,
	}, {
		in:       "||example.test^$csp=a##b",
		name:     "marker_after_options",
		wantKind: rules.KindBlock,
		wantNil:  false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := rules.NewRule(tc.in, testFilterListID)
			require.NoError(t, err)

			if tc.wantNil {
				assert.Nil(t, r)

				return
			}

			require.NotNil(t, r)

			assert.Equal(t, testFilterListID, r.ListID())
			assert.Equal(t, tc.in, r.Text())
			assert.Equal(t, tc.wantKind, r.Kind())
		})
	}
}

func TestNewRule_trimSpace(t *testing.T) {
	t.Parallel()

	r, err := rules.NewRule("  ||example.test^\t", testFilterListID)
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, "||example.test^", r.Text())
}

func TestNewRule_malformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		name string
	}{{
		in:   "/[/",
		name: "bad_regex",
	}, {
		in:   "||example.org^$,script",
		name: "empty_option",
	}, {
		in:   "||example.org^$script,",
		name: "trailing_comma",
	}, {
		in:   "||example.org^$",
		name: "empty_options",
	}, {
		in:   "||example.org^$domain=",
		name: "empty_domain",
	}, {
		in:   "||example.org^$domain=exa mple.org",
		name: "invalid_domain",
	}, {
		in:   "||example.org^$script=x",
		name: "flag_with_value",
	}, {
		in:   "||example.org^$third-party=1",
		name: "option_flag_with_value",
	}, {
		in:   "||bad[regex/",
		name: "bad_domain_token",
	}, {
		in:   "||example.org^$elemhide",
		name: "exception_option_in_block",
	}, {
		in:   "@@",
		name: "exception_marker_only",
	}, {
		in:   "example.org##",
		name: "empty_selector",
	}, {
		in:   "#@#.banner",
		name: "cosmetic_exception_without_domains",
	}, {
		in:   "exa mple.org##.banner",
		name: "cosmetic_bad_domain",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := rules.NewRule(tc.in, testFilterListID)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, rules.ErrMalformed)

			synErr := &rules.RuleSyntaxError{}
			require.ErrorAs(t, err, &synErr)

			assert.Equal(t, tc.in, synErr.RuleText())
		})
	}
}

func TestNewRule_tooWide(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"*$script",
		"*",
		"||",
		"|",
		"@@*",
	} {
		r, err := rules.NewRule(in, testFilterListID)
		assert.Nil(t, r, in)
		assert.ErrorIs(t, err, rules.ErrTooWideRule, in)
		assert.ErrorIs(t, err, rules.ErrUnsupportedRule, in)
		assert.False(t, errors.Is(err, rules.ErrMalformed), in)
	}

	// Domain restrictions make it specific enough.
	r, err := rules.NewRule("*$domain=example.org", testFilterListID)
	require.NoError(t, err)

	assert.NotNil(t, r)
}

func TestNewRule_shortPattern(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		name    string
		matches string
	}{{
		in:      "ad",
		name:    "two_chars",
		matches: "http://example.org/load.js",
	}, {
		in:      "x",
		name:    "one_char",
		matches: "http://example.org/?x=1",
	}, {
		in:      "/a",
		name:    "slash",
		matches: "http://example.org/a/",
	}, {
		in:      "ad$third-party",
		name:    "with_options",
		matches: "http://ads.test/banner",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := rules.NewRule(tc.in, testFilterListID)
			require.NoError(t, err)

			nr := asNetworkRule(t, r)
			req := rules.NewRequest(tc.matches, "news.example", rules.TypeOther)
			assert.True(t, nr.Match(req))
		})
	}
}

func TestNewRule_unsupported(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"example.org#$#body { background: red; }",
		"example.org#%#window.adblock = false;",
		"example.org#?#div:has(> .ad)",
		"example.org$$script[data-src=\"ad\"]",
	} {
		r, err := rules.NewRule(in, testFilterListID)
		assert.Nil(t, r)
		assert.ErrorIs(t, err, rules.ErrUnsupportedRule, in)
		assert.False(t, errors.Is(err, rules.ErrMalformed), in)
	}
}

func TestNewRule_unknownOptions(t *testing.T) {
	t.Parallel()

	r, err := rules.NewRule("||example.org^$popup,script,~collapse", testFilterListID)
	require.NoError(t, err)

	nr := asNetworkRule(t, r)

	assert.Equal(t, []string{"popup", "~collapse"}, nr.UnknownOptions())

	permitted, _ := nr.RequestTypes()
	assert.Equal(t, rules.TypeScript, permitted)
}

func TestNewRule_determinism(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(nil)

	properties.Property("parsing the same text twice gives equal rules", prop.ForAll(
		func(label, suffix string, opts string) (ok bool) {
			text := "||" + label + ".example^" + suffix + opts

			first, firstErr := rules.NewRule(text, testFilterListID)
			second, secondErr := rules.NewRule(text, testFilterListID)
			if (firstErr == nil) != (secondErr == nil) {
				return false
			} else if firstErr != nil {
				return firstErr.Error() == secondErr.Error()
			}

			return fingerprint(first) == fingerprint(second)
		},
		gen.AlphaString().SuchThat(func(s string) (ok bool) { return s != "" }),
		gen.AlphaString(),
		gen.OneConstOf("", "$script", "$~third-party,image", "$domain=a.test|~b.test", "$match-case"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func FuzzNewRule(f *testing.F) {
	for _, seed := range []string{
		"",
		" ",
		"\n",
		"!",
		"#",
		"# comment",
		"##banner",
		"example.org#@#.banner",
		"0.0.0.0 example.test ## phishing",
		"||example.org^",
		"||example.org|",
		"|http://example.org",
		"/regex/",
		"/[/",
		"@@||example.org^$third-party",
		"||example.org^$domain=a.test|~b.test,script",
		"||bad[regex/",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, in string) {
		assert.NotPanics(t, func() {
			r, err := rules.NewRule(in, testFilterListID)
			if err == nil && r == nil {
				return
			}

			if err != nil {
				assert.Nil(t, r)
			}
		})
	})
}
