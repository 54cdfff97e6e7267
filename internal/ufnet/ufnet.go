// Package ufnet contains utilities for domain and hostname parsing/validation.
package ufnet

import "strings"

// HostnameBounds returns the bounds of the hostname inside the hierarchical
// URL-like string u, so that u[start:end] is the hostname.  It returns zeroes
// if there is no hostname.  Userinfo and IPv6 literals are not supported.
func HostnameBounds(u string) (start, end int) {
	i := strings.Index(u, "//")
	if i == -1 {
		return 0, 0
	}

	start = i + len("//")
	next := strings.IndexAny(u[start:], "/:?#")
	if next == -1 {
		return start, len(u)
	}

	return start, start + next
}

// IsHostnameByte returns true if c may appear in the literal hostname part of
// a domain-anchored pattern.  Bytes outside of ASCII are allowed so that
// internationalized names in filter lists are accepted.
func IsHostnameByte(c byte) (ok bool) {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' ||
		c >= 0x80
}

// IsDomainLabel returns true if label is a non-empty sequence of ASCII letters,
// digits, and hyphens.
func IsDomainLabel(label string) (ok bool) {
	if label == "" || len(label) > 63 {
		return false
	}

	for i := range len(label) {
		c := label[i]
		if c == '.' || c == '_' || !IsHostnameByte(c) || c >= 0x80 {
			return false
		}
	}

	return true
}

// IsDomainName - check if input string is a valid domain name
// Syntax: [label.]... label.label
//
// Each label is 1 to 63 characters long, and may contain:
//
//	. ASCII letters a-z and A-Z
//	. digits 0-9
//	. hyphen ('-')
//
// . labels cannot start or end with hyphens (RFC 952)
// . max length of ascii hostname including dots is 253 characters
// . TLD is >=2 characters
// . TLD is [a-zA-Z]+ or "xn--[a-zA-Z0-9]+"
//
//nolint:gocyclo
func IsDomainName(name string) (ok bool) {
	if len(name) > 253 {
		return false
	}

	st := 0
	nLabel := 0
	nLevel := 1
	var prevChar byte
	charOnly := true
	xn := 0

	for _, c := range []byte(name) {
		switch st {
		case 0:
			fallthrough
		case 1:
			if !((c >= 'a' && c <= 'z') ||
				(c >= 'A' && c <= 'Z')) {
				charOnly = false

				if !(c >= '0' && c <= '9') {
					return false
				}
			} else if c == 'x' || c == 'X' {
				xn = 1
			}
			st = 2
			nLabel = 1

		case 2:
			if c == '.' {
				if prevChar == '-' {
					return false
				}

				nLevel++
				st = 0
				charOnly = true
				xn = 0

				continue
			}

			if nLabel == 63 {
				return false
			}

			if !((c >= 'a' && c <= 'z') ||
				(c >= 'A' && c <= 'Z')) {
				charOnly = false
				if !((c >= '0' && c <= '9') ||
					c == '-') {

					return false
				}
			}

			if xn > 0 {
				if xn < len("xn--") {
					if c == "xn--"[xn] {
						xn++
					} else {
						xn = 0
					}
				} else {
					xn++
				}
			}

			prevChar = c
			nLabel++
		}
	}

	if st != 2 ||
		nLabel == 1 ||
		(!charOnly && xn < len("xn--wwww")) {

		return false
	}

	return true
}
