package rules

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// splitWithEscapeCharacter splits string by the specified separator if it is
// not escaped.  If preserveAllTokens is true, empty tokens are kept.
func splitWithEscapeCharacter(str string, sep, escapeCharacter byte, preserveAllTokens bool) (parts []string) {
	parts = make([]string, 0)

	if str == "" {
		return parts
	}

	var sb strings.Builder
	escaped := false
	for i := range len(str) {
		c := str[i]

		switch {
		case c == escapeCharacter:
			escaped = true
		case c == sep && escaped:
			sb.WriteByte(c)
			escaped = false
		case c == sep:
			if preserveAllTokens || sb.Len() > 0 {
				parts = append(parts, sb.String())
				sb.Reset()
			}
		default:
			if escaped {
				escaped = false
				sb.WriteByte(escapeCharacter)
			}
			sb.WriteByte(c)
		}
	}

	if preserveAllTokens || sb.Len() > 0 {
		parts = append(parts, sb.String())
	}

	return parts
}

// isDomainOrSubdomainOfAny checks if domain is a domain or a subdomain of any
// of the domains.
func isDomainOrSubdomainOfAny(domain string, domains []string) (ok bool) {
	for _, d := range domains {
		if withoutWildcard, isWildcard := strings.CutSuffix(d, "*"); isWildcard {
			// A pattern like "google.*" will match any "google.TLD" domain or
			// subdomain.
			if matchWildcardTLD(domain, withoutWildcard) {
				return true
			}
		} else if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}

	return false
}

// matchWildcardTLD returns true if domain is prefix followed by a public suffix,
// or a subdomain of such a domain.  prefix must end with a dot.
func matchWildcardTLD(domain, prefix string) (ok bool) {
	if !strings.HasPrefix(domain, prefix) && !strings.Contains(domain, "."+prefix) {
		return false
	}

	tld, icann := publicsuffix.PublicSuffix(domain)

	// Check that the domain's TLD is one of the public suffixes.
	return tld != "" && icann && strings.HasSuffix(domain, prefix+tld)
}

// Subdomains returns hostname itself and all its parent domains, from the
// longest to the shortest.  For "a.b.example" it returns "a.b.example",
// "b.example", and "example".
func Subdomains(hostname string) (subdomains []string) {
	for hostname != "" {
		subdomains = append(subdomains, hostname)

		i := strings.IndexByte(hostname, '.')
		if i == -1 {
			break
		}

		hostname = hostname[i+1:]
	}

	return subdomains
}
