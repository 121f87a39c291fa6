package analytics

import (
	"sort"
	"time"
)

const (
	// WindowDays is the length of the trailing report window, today included.
	WindowDays = 7

	dateLayout    = "2006-01-02"
	topLinksLimit = 5
	recentLimit   = 10
	personalTopN  = 6
	perLinkTopN   = 5
	hoursInDay    = 24
)

// Event is a single recorded click as the aggregator sees it.
type Event struct {
	Timestamp time.Time
	Referrer  string
	UserAgent string
	Country   string
}

// LinkTotal carries a link's all-time counter for batch reports.
type LinkTotal struct {
	ShortCode string
	Clicks    int64
	CreatedAt time.Time
}

type DayCount struct {
	Date   string `json:"date"`
	Clicks int    `json:"clicks"`
}

type HourCount struct {
	Hour   int `json:"hour"`
	Clicks int `json:"clicks"`
}

type PlatformCount struct {
	Platform string `json:"platform"`
	Count    int    `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

type BrowserCount struct {
	Browser string `json:"browser"`
	Count   int    `json:"count"`
}

type OSCount struct {
	OS    string `json:"os"`
	Count int    `json:"count"`
}

type ReferrerCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type Devices struct {
	Desktop int `json:"desktop"`
	Mobile  int `json:"mobile"`
	Tablet  int `json:"tablet"`
	Other   int `json:"other"`
}

// Total is the number of events counted across all buckets.
func (d Devices) Total() int { return d.Desktop + d.Mobile + d.Tablet + d.Other }

type TopLink struct {
	ShortCode string    `json:"shortCode"`
	Clicks    int64     `json:"clicks"`
	CreatedAt time.Time `json:"createdAt"`
}

type RecentClick struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	Country   string    `json:"country"`
}

// Breakdown holds the per-window statistics shared by both report kinds.
type Breakdown struct {
	ClickTrend       []DayCount      `json:"clickTrend"`
	ClicksByHour     []HourCount     `json:"clicksByHour"`
	Platforms        []PlatformCount `json:"platforms"`
	Countries        []CountryCount  `json:"countries"`
	Browsers         []BrowserCount  `json:"browsers"`
	OperatingSystems []OSCount       `json:"operatingSystems"`
	Devices          Devices         `json:"devices"`
}

// PersonalReport summarizes a batch of links.
type PersonalReport struct {
	TotalLinks  int   `json:"totalLinks"`
	TotalClicks int64 `json:"totalClicks"`
	Breakdown
	TopLinks []TopLink `json:"topLinks"`
}

// LinkReport summarizes a single link.
type LinkReport struct {
	Breakdown
	TopReferrers []ReferrerCount `json:"topReferrers"`
	RecentClicks []RecentClick   `json:"recentClicks"`
}

// WindowStart returns midnight, in loc, of the first day of the window
// ending today. Stores should fetch events at or after this instant.
func WindowStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()-(WindowDays-1), 0, 0, 0, 0, loc)
}

// Personal builds the batch report. Events outside the window are ignored.
func Personal(links []LinkTotal, events []Event, now time.Time, loc *time.Location) PersonalReport {
	rep := PersonalReport{
		TotalLinks: len(links),
		Breakdown:  breakdown(inWindow(events, now, loc), now, loc, personalTopN),
		TopLinks:   topLinks(links),
	}
	for _, l := range links {
		rep.TotalClicks += l.Clicks
	}
	return rep
}

// PerLink builds the single-link report. Events outside the window are ignored.
func PerLink(events []Event, now time.Time, loc *time.Location) LinkReport {
	window := inWindow(events, now, loc)

	refs := newCounter()
	for _, e := range window {
		refs.add(ReferrerSource(e.Referrer))
	}
	top := refs.top(perLinkTopN)
	referrers := make([]ReferrerCount, 0, len(top))
	for _, kv := range top {
		referrers = append(referrers, ReferrerCount{Source: kv.key, Count: kv.n})
	}

	return LinkReport{
		Breakdown:    breakdown(window, now, loc, perLinkTopN),
		TopReferrers: referrers,
		RecentClicks: recentClicks(window, loc),
	}
}

func breakdown(events []Event, now time.Time, loc *time.Location, topN int) Breakdown {
	if loc == nil {
		loc = time.UTC
	}
	start := WindowStart(now, loc)

	trend := make([]DayCount, WindowDays)
	dayIndex := make(map[string]int, WindowDays)
	for i := range trend {
		d := start.AddDate(0, 0, i).Format(dateLayout)
		trend[i] = DayCount{Date: d}
		dayIndex[d] = i
	}
	hours := make([]HourCount, hoursInDay)
	for i := range hours {
		hours[i].Hour = i
	}

	platforms := newCounter()
	countries := newCounter()
	browsers := make(map[string]int, len(Browsers))
	systems := make(map[string]int, len(OperatingSystems))
	var devices Devices

	for _, e := range events {
		t := e.Timestamp.In(loc)
		if i, ok := dayIndex[t.Format(dateLayout)]; ok {
			trend[i].Clicks++
		}
		hours[t.Hour()].Clicks++

		platforms.add(DetectPlatform(e.Referrer))
		countries.add(CountryName(e.Country))
		browsers[DetectBrowser(e.UserAgent)]++
		systems[DetectOS(e.UserAgent)]++

		switch DetectDevice(e.UserAgent) {
		case DeviceDesktop:
			devices.Desktop++
		case DeviceMobile:
			devices.Mobile++
		case DeviceTablet:
			devices.Tablet++
		default:
			devices.Other++
		}
	}

	b := Breakdown{
		ClickTrend:       trend,
		ClicksByHour:     hours,
		Platforms:        []PlatformCount{},
		Countries:        []CountryCount{},
		Browsers:         make([]BrowserCount, 0, len(Browsers)),
		OperatingSystems: make([]OSCount, 0, len(OperatingSystems)),
		Devices:          devices,
	}
	for _, kv := range platforms.top(topN) {
		b.Platforms = append(b.Platforms, PlatformCount{Platform: kv.key, Count: kv.n})
	}
	for _, kv := range countries.top(topN) {
		b.Countries = append(b.Countries, CountryCount{Country: kv.key, Count: kv.n})
	}
	for _, name := range Browsers {
		b.Browsers = append(b.Browsers, BrowserCount{Browser: name, Count: browsers[name]})
	}
	for _, name := range OperatingSystems {
		b.OperatingSystems = append(b.OperatingSystems, OSCount{OS: name, Count: systems[name]})
	}
	return b
}

// inWindow keeps events from WindowStart up to the end of today.
func inWindow(events []Event, now time.Time, loc *time.Location) []Event {
	start := WindowStart(now, loc)
	end := start.AddDate(0, 0, WindowDays)
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func topLinks(links []LinkTotal) []TopLink {
	sorted := make([]LinkTotal, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Clicks > sorted[j].Clicks })
	if len(sorted) > topLinksLimit {
		sorted = sorted[:topLinksLimit]
	}
	out := make([]TopLink, 0, len(sorted))
	for _, l := range sorted {
		out = append(out, TopLink{ShortCode: l.ShortCode, Clicks: l.Clicks, CreatedAt: l.CreatedAt})
	}
	return out
}

func recentClicks(events []Event, loc *time.Location) []RecentClick {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })
	if len(sorted) > recentLimit {
		sorted = sorted[:recentLimit]
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]RecentClick, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, RecentClick{
			Timestamp: e.Timestamp.In(loc),
			Source:    ReferrerSource(e.Referrer),
			Device:    DetectDevice(e.UserAgent),
			Browser:   DetectBrowser(e.UserAgent),
			OS:        DetectOS(e.UserAgent),
			Country:   CountryName(e.Country),
		})
	}
	return out
}

// counter tallies labels and remembers the order they were first seen in.
type counter struct {
	order  []string
	counts map[string]int
}

type keyCount struct {
	key string
	n   int
}

func newCounter() *counter { return &counter{counts: make(map[string]int)} }

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top returns at most n entries by descending count; ties keep first-seen order.
func (c *counter) top(n int) []keyCount {
	out := make([]keyCount, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, keyCount{key: k, n: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].n > out[j].n })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
