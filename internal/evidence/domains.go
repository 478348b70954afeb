package evidence

import (
	"net/url"
	"strings"

	"github.com/verdictd/verdictd/internal/domain"
)

// trustedNewsDomains are outlets whose reporting we weight as reliable
// evidence. Matching is suffix-aware so subdomains count.
var trustedNewsDomains = []string{
	"reuters.com",
	"apnews.com",
	"bbc.com",
	"bbc.co.uk",
	"bloomberg.com",
	"wsj.com",
	"nytimes.com",
	"theguardian.com",
	"ft.com",
	"cnbc.com",
	"coindesk.com",
	"cointelegraph.com",
	"espn.com",
	"nature.com",
	"science.org",
}

// socialDomains identify user-generated platforms: usable as mentions, not
// as authoritative sources.
var socialDomains = []string{
	"twitter.com",
	"x.com",
	"reddit.com",
	"facebook.com",
	"instagram.com",
	"tiktok.com",
	"t.me",
	"discord.com",
	"medium.com",
	"substack.com",
}

// blacklistedDomains force the bundle's effective trust to zero regardless
// of every other signal.
var blacklistedDomains = []string{
	"theonion.com",
	"babylonbee.com",
	"infowars.com",
	"naturalnews.com",
	"beforeitsnews.com",
	"worldnewsdailyreport.com",
	"clickhole.com",
	"example.com",
	"bit.ly",
	"tinyurl.com",
}

// officialDomains maps a market category to its allowlist of authoritative
// domains for the official-source search.
var officialDomains = map[domain.MarketCategory][]string{
	domain.CategoryCrypto: {
		"sec.gov", "cftc.gov", "coinmarketcap.com", "coingecko.com", "federalreserve.gov",
	},
	domain.CategorySports: {
		"espn.com", "fifa.com", "nba.com", "nfl.com", "mlb.com", "olympics.com", "uefa.com",
	},
	domain.CategoryPolitics: {
		"congress.gov", "whitehouse.gov", "fec.gov", "senate.gov", "house.gov", "europa.eu",
	},
	domain.CategoryEconomy: {
		"bls.gov", "bea.gov", "federalreserve.gov", "imf.org", "worldbank.org", "treasury.gov",
	},
	domain.CategoryScience: {
		"nasa.gov", "noaa.gov", "nih.gov", "who.int", "nature.com", "science.org",
	},
	domain.CategoryEntertainment: {
		"oscars.org", "grammy.com", "emmys.com", "boxofficemojo.com", "billboard.com",
	},
	domain.CategoryOther: {
		"wikipedia.org", "britannica.com",
	},
}

// DomainClass summarizes how a source URL's host is categorized.
type DomainClass struct {
	Host        string
	TrustedNews bool
	Social      bool
	Blacklisted bool
}

// ClassifyURL parses rawURL and matches its hostname against the trusted,
// social, and blacklist sets.
func ClassifyURL(rawURL string) DomainClass {
	host := hostOf(rawURL)
	if host == "" {
		return DomainClass{}
	}
	return DomainClass{
		Host:        host,
		TrustedNews: matchesAny(host, trustedNewsDomains),
		Social:      matchesAny(host, socialDomains),
		Blacklisted: matchesAny(host, blacklistedDomains),
	}
}

// OfficialDomainsFor returns the authoritative-domain allowlist for a
// category. Unknown categories fall back to the "other" list.
func OfficialDomainsFor(category domain.MarketCategory) []string {
	if domains, ok := officialDomains[category]; ok {
		return domains
	}
	return officialDomains[domain.CategoryOther]
}

// IsOfficialURL reports whether rawURL belongs to the category's allowlist.
func IsOfficialURL(rawURL string, category domain.MarketCategory) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	return matchesAny(host, OfficialDomainsFor(category))
}

// hostOf extracts a lowercase hostname, stripping any www. prefix. URLs
// without a scheme are retried with https:// prepended.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil || u.Host == "" {
			return ""
		}
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// matchesAny reports whether host equals or is a subdomain of any entry.
func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
