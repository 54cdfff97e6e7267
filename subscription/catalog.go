package subscription

// CatalogEntry is a well-known subscription offered to the user.
type CatalogEntry struct {
	// Title is the default title of the subscription.
	Title string

	// Language is the language of the sites the list is made for.  It is
	// empty for lists that are not language-specific.
	Language string

	// URL is the address of the list.
	URL string
}

// catalog is the list of the well-known subscriptions.  The first entry is
// the default one.
var catalog = []CatalogEntry{{
	Title:    "EasyList",
	Language: "English",
	URL:      EasyListURL,
}, {
	Title:    "Adversity",
	Language: "English",
	URL:      "https://raw.githubusercontent.com/Hubird-au/Adversity/master/Adversity.txt",
}, {
	Title:    "BSI Lista Polska",
	Language: "Polish",
	URL:      "http://www.bsi.info.pl/filtrABP.txt",
}, {
	Title:    "Czech List",
	Language: "Czech",
	URL:      "http://adblock.dajbych.net/adblock.txt",
}, {
	Title:    "dutchblock",
	Language: "Dutch",
	URL:      "http://groenewoudt.net/dutchblock/list.txt",
}, {
	Title:    "Filtros Nauscopicos",
	Language: "Spanish",
	URL:      "http://abp.mozilla-hispano.org/nauscopio/filtros.txt",
}, {
	Title:    "hufilter",
	Language: "Hungarian",
	URL:      "http://www.hufilter.hu/hufilter.txt",
}, {
	Title:    "IsraelList",
	Language: "Hebrew",
	URL:      "https://www.fanboy.co.nz/israelilist/IsraelList.txt",
}, {
	Title:    "Lista Basa",
	Language: "Polish",
	URL:      "https://plok.studentlive.pl/abp.txt",
}, {
	Title:    "NLBlock",
	Language: "Dutch",
	URL:      "http://www.verzijlbergh.com/adblock/nlblock.txt",
}, {
	Title:    "Peter Lowe's list",
	Language: "English",
	URL:      "http://pgl.yoyo.org/adservers/serverlist.php?hostformat=adblockplus&mimetype=plaintext",
}, {
	Title:    "PLgeneral",
	Language: "Polish",
	URL:      "http://www.niecko.pl/adblock/adblock.txt",
}, {
	Title:    "Schacks Adblock Plus liste",
	Language: "Danish",
	URL:      "https://adblock.schack.dk/block.txt",
}, {
	Title:    "Xfiles",
	Language: "Italian",
	URL:      "https://raw.githubusercontent.com/gioxx/xfiles/master/filtri.txt",
}, {
	Title:    "EasyPrivacy",
	Language: "English",
	URL:      "https://easylist-downloads.adblockplus.org/easyprivacy.txt",
}, {
	Title:    "Antisocial",
	Language: "English",
	URL:      "https://raw.githubusercontent.com/Hubird-au/Adversity/master/Antisocial.txt",
}, {
	Title:    "RuAdList+EasyList",
	Language: "Russian, Ukrainian",
	URL:      "https://easylist-downloads.adblockplus.org/ruadlist+easylist.txt",
}, {
	Title:    "RU AdList",
	Language: "Russian, Ukrainian",
	URL:      "https://easylist-downloads.adblockplus.org/advblock.txt",
}, {
	Title:    "ABPindo",
	Language: "Indonesian",
	URL:      "https://raw.githubusercontent.com/heradhis/indonesianadblockrules/master/subscriptions/abpindo.txt",
}, {
	Title:    "Easylist China",
	Language: "Chinese",
	URL:      "https://easylist-downloads.adblockplus.org/easylistchina.txt",
}, {
	Title: "Malware Domains",
	URL:   "https://easylist-downloads.adblockplus.org/malwaredomains_full.txt",
}}

// Catalog returns the well-known subscriptions.  The first entry is the
// default subscription.
func Catalog() (entries []CatalogEntry) {
	entries = make([]CatalogEntry, len(catalog))
	copy(entries, catalog)

	return entries
}
