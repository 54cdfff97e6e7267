package filterlist_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/container"
	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testListID is the rule list ID for tests.
const testListID = 1

func TestNewRuleList(t *testing.T) {
	t.Parallel()

	const text = "\uFEFF[Adblock Plus 2.0]\r\n" +
		"! Title: Test List\r\n" +
		"! Version: 202601011200\r\n" +
		"! Expires: 4 days (update frequency)\r\n" +
		"! Homepage: https://example.org/\r\n" +
		"! just a comment\r\n" +
		"\r\n" +
		"||example.org^\r\n" +
		"@@||example.org/allowed^\n" +
		"example.org##.banner\n" +
		"example.org#$#body { color: red; }\n" +
		"*\n" +
		"ad\n" +
		"/[/\n"

	l := filterlist.NewRuleList(testListID, text, nil)
	require.NotNil(t, l)

	assert.Equal(t, testListID, l.ID())
	assert.Equal(t, filterlist.Metadata{
		Header:   "[Adblock Plus 2.0]",
		Title:    "Test List",
		Version:  "202601011200",
		Expires:  "4 days (update frequency)",
		Homepage: "https://example.org/",
	}, l.Metadata())

	require.Equal(t, 4, l.Len())

	texts := make([]string, 0, l.Len())
	for _, r := range l.Rules() {
		assert.Equal(t, testListID, r.ListID())
		texts = append(texts, r.Text())
	}

	assert.Equal(t, []string{
		"||example.org^",
		"@@||example.org/allowed^",
		"example.org##.banner",
		"ad",
	}, texts)

	assert.Equal(t, 1, l.ParseErrors())
	assert.Equal(t, 2, l.Unsupported())
	require.Len(t, l.Errors(), 1)
	assert.ErrorIs(t, l.Errors()[0], rules.ErrMalformed)

	r, err := l.Rule(1)
	require.NoError(t, err)

	assert.Equal(t, "@@||example.org/allowed^", r.Text())

	_, err = l.Rule(4)
	assert.Error(t, err)
}

func TestNewRuleList_malformedLine(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := range 100 {
		if i == 50 {
			sb.WriteString("||bad[regex/\n")

			continue
		}

		_, _ = fmt.Fprintf(&sb, "||ads%d.example^\n", i)
	}

	l := filterlist.NewRuleList(testListID, sb.String(), nil)

	assert.Equal(t, 99, l.Len())
	assert.Equal(t, 1, l.ParseErrors())
}

func TestNewRuleList_maxErrors(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("/[/\n", 10)
	l := filterlist.NewRuleList(testListID, text, &filterlist.Config{
		MaxErrors: 3,
	})

	assert.Zero(t, l.Len())
	assert.Equal(t, 10, l.ParseErrors())
	assert.Len(t, l.Errors(), 3)
}

func TestNewRuleList_disabled(t *testing.T) {
	t.Parallel()

	const text = "||a.example^\n||b.example^\n  ||c.example^  \n"

	l := filterlist.NewRuleList(testListID, text, &filterlist.Config{
		Disabled: container.NewMapSet("||b.example^", "||c.example^"),
	})

	require.Equal(t, 1, l.Len())

	assert.Equal(t, "||a.example^", l.Rules()[0].Text())
	assert.Equal(t, 2, l.Disabled())
}

func TestNewRuleList_empty(t *testing.T) {
	t.Parallel()

	l := filterlist.NewRuleList(testListID, "", nil)

	assert.Zero(t, l.Len())
	assert.Zero(t, l.ParseErrors())
	assert.Equal(t, filterlist.Metadata{}, l.Metadata())
}

func TestParseReader_longLine(t *testing.T) {
	t.Parallel()

	text := "||a.example^\n" + strings.Repeat("a", filterlist.MaxLineLength+1) + "\n"

	l, err := filterlist.ParseReader(testListID, strings.NewReader(text), nil)
	assert.Error(t, err)

	require.NotNil(t, l)
	assert.Equal(t, 1, l.Len())
}

func TestIsAdblockHeader(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want bool
	}{{
		name: "plain",
		in:   "[Adblock Plus 2.0]\n||a.example^",
		want: true,
	}, {
		name: "bom_and_blank_lines",
		in:   "\uFEFF\r\n\r\n[Adblock Plus 1.1]\n",
		want: true,
	}, {
		name: "html",
		in:   "<!DOCTYPE html><html></html>",
		want: false,
	}, {
		name: "empty",
		in:   "",
		want: false,
	}, {
		name: "rules_only",
		in:   "||a.example^\n",
		want: false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, filterlist.IsAdblockHeader([]byte(tc.in)))
		})
	}
}
