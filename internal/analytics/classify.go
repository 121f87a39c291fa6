// Package analytics turns raw click events into report-ready statistics.
// Everything here is pure: no I/O, no clocks, no shared state.
package analytics

import (
	"net/url"
	"strings"
)

// Device buckets.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceOther   = "other"
)

const (
	PlatformDirect = "Direct"
	CountryUnknown = "Unknown"
	fallbackLabel  = "Other"
)

// Browsers is the fixed browser vocabulary in report order.
var Browsers = []string{"Chrome", "Safari", "Firefox", "Edge", "Opera", fallbackLabel}

// OperatingSystems is the fixed OS vocabulary in report order.
var OperatingSystems = []string{"Windows", "macOS", "iOS", "Android", "Linux", fallbackLabel}

// DetectDevice buckets a user agent into desktop, mobile, tablet or other.
func DetectDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case containsAny(ua, "mobile", "iphone", "android"):
		if containsAny(ua, "tablet", "ipad") {
			return DeviceTablet
		}
		return DeviceMobile
	case containsAny(ua, "windows", "mac", "linux"):
		return DeviceDesktop
	default:
		return DeviceOther
	}
}

// DetectBrowser returns one of Browsers.
func DetectBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return fallbackLabel
	case containsAny(ua, "edg/", "edge/"):
		return "Edge"
	case containsAny(ua, "opr/", "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome") && !strings.Contains(ua, "edg"):
		return "Chrome"
	case strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome"):
		return "Safari"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	default:
		return fallbackLabel
	}
}

// DetectOS returns one of OperatingSystems.
func DetectOS(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return fallbackLabel
	case containsAny(ua, "iphone", "ipad"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case containsAny(ua, "mac os x", "macos"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return fallbackLabel
	}
}

// platformRule matches a referrer host either by registered domain
// (host equals it or is a subdomain of it) or by a run of labels that
// may appear under any public suffix, e.g. "google" in google.co.jp.
type platformRule struct {
	name    string
	domains []string
	labels  []string
}

var platformRules = []platformRule{
	{name: "LINE", domains: []string{"line.me"}, labels: []string{"line.naver"}},
	{name: "Twitter/X", domains: []string{"twitter.com", "x.com", "t.co"}},
	{name: "Facebook", domains: []string{"facebook.com", "fb.com", "fb.me", "fbcdn.net"}},
	{name: "Instagram", domains: []string{"instagram.com"}},
	{name: "LinkedIn", domains: []string{"linkedin.com", "lnkd.in"}},
	{name: "Reddit", domains: []string{"reddit.com", "redd.it"}},
	{name: "Discord", domains: []string{"discord.com", "discord.gg", "discordapp.com"}},
	{name: "Telegram", domains: []string{"telegram.org", "t.me"}},
	{name: "WhatsApp", domains: []string{"whatsapp.com", "wa.me"}},
	{name: "TikTok", domains: []string{"tiktok.com"}},
	{name: "YouTube", domains: []string{"youtube.com", "youtu.be"}},
	{name: "Threads", domains: []string{"threads.net", "threads.com"}},
	{name: "Google", labels: []string{"google"}},
	{name: "Bing", domains: []string{"bing.com"}},
	{name: "Yahoo", labels: []string{"yahoo"}},
	{name: "DuckDuckGo", domains: []string{"duckduckgo.com"}},
	{name: "Slack", domains: []string{"slack.com"}},
	{name: "Teams", labels: []string{"teams.microsoft"}},
}

// DetectPlatform names the site a referrer URL came from. Unknown sites are
// reported by bare hostname; an empty or unparseable referrer is Direct.
func DetectPlatform(referrer string) string {
	host := referrerHost(referrer)
	if host == "" {
		return PlatformDirect
	}
	for _, r := range platformRules {
		if r.matches(host) {
			return r.name
		}
	}
	return strings.TrimPrefix(host, "www.")
}

// ReferrerSource is the hostname of a referrer without a leading "www.",
// or Direct when there is none.
func ReferrerSource(referrer string) string {
	host := referrerHost(referrer)
	if host == "" {
		return PlatformDirect
	}
	return strings.TrimPrefix(host, "www.")
}

func (r platformRule) matches(host string) bool {
	for _, d := range r.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	dotted := "." + host
	for _, l := range r.labels {
		// The labels must be followed by at least one more label (the suffix).
		if strings.Contains(dotted, "."+l+".") {
			return true
		}
	}
	return false
}

func referrerHost(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

var countryNames = map[string]string{
	"TW": "Taiwan",
	"US": "United States",
	"JP": "Japan",
	"CN": "China",
	"HK": "Hong Kong",
	"KR": "South Korea",
	"SG": "Singapore",
	"MY": "Malaysia",
	"TH": "Thailand",
	"VN": "Vietnam",
	"PH": "Philippines",
	"ID": "Indonesia",
	"AU": "Australia",
	"GB": "United Kingdom",
	"DE": "Germany",
	"FR": "France",
	"CA": "Canada",
	"IN": "India",
}

// CountryName maps an ISO 3166 alpha-2 code to a display name. Codes
// without a known name pass through unchanged.
func CountryName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return CountryUnknown
	}
	if name, ok := countryNames[strings.ToUpper(code)]; ok {
		return name
	}
	return code
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
