package subscription

import (
	"net/url"
	"strings"
)

// EasyListURL is the URL of the main EasyList subscription.
const EasyListURL = "https://easylist-downloads.adblockplus.org/easylist.txt"

// Section markers of EasyList.
const (
	thirdPartyAdvertsMarker = "!-----------------------------Third-party adverts-----------------------------!"
	whitelistsMarker        = "!---------------------------------Whitelists----------------------------------!"
)

// isEasyList returns true if u is the URL of the main EasyList subscription.
func isEasyList(u *url.URL) (ok bool) {
	return u != nil && u.String() == EasyListURL
}

// cutThirdPartyAdverts removes the "Third-party adverts" section of EasyList
// from text, keeping the whitelists at the end of the list.  The section
// consists mostly of domain-anchored rules for third-party servers.
func cutThirdPartyAdverts(text string) (cut string) {
	start := strings.Index(text, thirdPartyAdvertsMarker)
	if start < 0 {
		return text
	}

	end := strings.Index(text[start:], whitelistsMarker)
	if end < 0 {
		return text[:start]
	}

	return text[:start] + text[start+end:]
}
