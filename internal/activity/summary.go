package activity

import (
	"fmt"
	"sort"
	"strings"
)

// App-name allowlists for coarse category flags in working summaries.
var (
	developmentApps = map[string]bool{
		"Xcode": true, "Visual Studio Code": true, "Code": true,
		"GoLand": true, "IntelliJ IDEA": true, "PyCharm": true,
		"Terminal": true, "iTerm2": true, "Warp": true, "Zed": true,
		"Cursor": true,
	}
	browsingApps = map[string]bool{
		"Safari": true, "Google Chrome": true, "Firefox": true,
		"Arc": true, "Microsoft Edge": true, "Brave Browser": true,
	}
	communicationApps = map[string]bool{
		"Slack": true, "Mail": true, "Messages": true, "Discord": true,
		"zoom.us": true, "Microsoft Teams": true, "Telegram": true,
	}
)

// MinutesFromSeconds converts accumulated seconds to minutes, rounding up so
// recorded time never truncates to zero.
func MinutesFromSeconds(sec int) int {
	if sec <= 0 {
		return 0
	}
	return (sec + 59) / 60
}

// SummarizeHour converts a detached hour snapshot into its summary document.
// Output ordering is deterministic: ties break alphabetically.
func SummarizeHour(snap *HourBucket) *HourlySummary {
	appMinutes := make(map[string]int, len(snap.AppSeconds))
	for app, sec := range snap.AppSeconds {
		appMinutes[app] = MinutesFromSeconds(sec)
	}

	domains := make(map[string]int, len(snap.Domains))
	for d, n := range snap.Domains {
		domains[d] = n
	}
	// URLs seen this hour count toward their domain even when the capture
	// path recorded no explicit visit.
	for u := range snap.URLs {
		if d := Domain(u); d != "" && domains[d] == 0 {
			domains[d] = 1
		}
	}

	return &HourlySummary{
		Date:       snap.Date,
		Hour:       snap.Hour,
		AppMinutes: appMinutes,
		Domains:    domains,
		Timeline:   snap.Timeline,
		Summary:    workingSummary(appMinutes, snap.Topics, domains),
	}
}

// workingSummary assembles the short natural-language line for an hour: top
// apps by time, coarse category flags, top topics, top domains.
func workingSummary(appMinutes map[string]int, topics map[string]bool, domains map[string]int) string {
	var parts []string

	topApps := topKeys(appMinutes, 3)
	if len(topApps) > 0 {
		parts = append(parts, "Mostly in "+strings.Join(topApps, ", "))
	}

	var categories []string
	for app := range appMinutes {
		switch {
		case developmentApps[app]:
			categories = appendUnique(categories, "development")
		case browsingApps[app]:
			categories = appendUnique(categories, "browsing")
		case communicationApps[app]:
			categories = appendUnique(categories, "communication")
		}
	}
	sort.Strings(categories)
	if len(categories) > 0 {
		parts = append(parts, strings.Join(categories, "/"))
	}

	topicList := setToSorted(topics)
	if len(topicList) > 3 {
		topicList = topicList[:3]
	}
	if len(topicList) > 0 {
		parts = append(parts, "topics: "+strings.Join(topicList, ", "))
	}

	topDomains := topKeys(domains, 3)
	if len(topDomains) > 0 {
		parts = append(parts, "visited "+strings.Join(topDomains, ", "))
	}

	if len(parts) == 0 {
		return "No activity recorded."
	}
	return strings.Join(parts, ". ") + "."
}

// SummarizeDay converts a finished day bucket into its journal document.
func SummarizeDay(day *DayBucket) *DailyJournal {
	totalSec := 0
	appMinutes := make(map[string]int, len(day.AppSeconds))
	for app, sec := range day.AppSeconds {
		totalSec += sec
		appMinutes[app] = MinutesFromSeconds(sec)
	}

	projects := setToSorted(day.Projects)

	journal := &DailyJournal{
		Date:        day.Date,
		ActiveHours: totalSec / 3600,
		ActiveMins:  (totalSec % 3600) / 60,
		AppMinutes:  appMinutes,
		Projects:    projects,
		Domains:     day.Domains,
		KeyMoments:  day.KeyMoments,
		Timeline:    day.Timeline,
	}
	journal.Summary = daySummary(journal, day)
	return journal
}

// daySummary assembles the narrative line for a day.
func daySummary(j *DailyJournal, day *DayBucket) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Active %dh %dm", j.ActiveHours, j.ActiveMins))

	topApps := topKeys(j.AppMinutes, 3)
	if len(topApps) > 0 {
		parts = append(parts, "mostly in "+strings.Join(topApps, ", "))
	}

	if len(j.Projects) > 0 {
		ranked := j.Projects
		if len(ranked) > 3 {
			ranked = ranked[:3]
		}
		parts = append(parts, "projects: "+strings.Join(ranked, ", "))
	}

	topDomains := topKeys(day.Domains, 3)
	if len(topDomains) > 0 {
		parts = append(parts, "visited "+strings.Join(topDomains, ", "))
	}

	moments := j.KeyMoments
	if len(moments) > 2 {
		moments = moments[:2]
	}
	parts = append(parts, moments...)

	return strings.Join(parts, ". ") + "."
}

// topKeys returns up to n map keys ordered by descending value, ties broken
// alphabetically for stable output.
func topKeys(m map[string]int, n int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// setToSorted flattens a string set into a sorted slice.
func setToSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
