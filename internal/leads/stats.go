package leads

import (
	"sort"
	"strconv"
	"time"
)

type Period string

const (
	PeriodToday  Period = "today"
	Period7Days  Period = "7days"
	Period30Days Period = "30days"
	PeriodAll    Period = "all"
)

var Periods = []Period{PeriodToday, Period7Days, Period30Days, PeriodAll}

func ParsePeriod(raw string) Period {
	for _, p := range Periods {
		if string(p) == raw {
			return p
		}
	}
	return Period7Days
}

func (p Period) Label() string {
	switch p {
	case PeriodToday:
		return "Today"
	case Period7Days:
		return "Last 7 Days"
	case Period30Days:
		return "Last 30 Days"
	default:
		return "All Time"
	}
}

// Cutoff is the earliest creation time included in the period.
func (p Period) Cutoff(now time.Time) time.Time {
	switch p {
	case PeriodToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case Period7Days:
		return now.Add(-7 * 24 * time.Hour)
	case Period30Days:
		return now.Add(-30 * 24 * time.Hour)
	default:
		return time.Time{}
	}
}

type CampaignStats struct {
	Campaign string
	Total    int
	Sold     int
	Nurture  int
}

type Summary struct {
	Period         Period
	Counts         Counts
	ConversionRate string
	Campaigns      []CampaignStats
}

// Summarize counts leads created on or after the period cutoff. Leads with no
// parseable creation time only count towards PeriodAll.
func Summarize(all []Lead, period Period, now time.Time) Summary {
	cutoff := period.Cutoff(now)
	byCampaign := map[string]*CampaignStats{}
	var included []Lead
	for _, lead := range all {
		if period != PeriodAll && (lead.CreatedTime.IsZero() || lead.CreatedTime.Before(cutoff)) {
			continue
		}
		included = append(included, lead)
		stats, ok := byCampaign[lead.Campaign]
		if !ok {
			stats = &CampaignStats{Campaign: lead.Campaign}
			byCampaign[lead.Campaign] = stats
		}
		stats.Total++
		if lead.Status == StatusSold {
			stats.Sold++
		} else {
			stats.Nurture++
		}
	}

	summary := Summary{Period: period, Counts: Count(included), ConversionRate: "0"}
	if summary.Counts.Total > 0 {
		rate := float64(summary.Counts.Sold) / float64(summary.Counts.Total) * 100
		summary.ConversionRate = strconv.FormatFloat(rate, 'f', 1, 64)
	}
	for _, stats := range byCampaign {
		summary.Campaigns = append(summary.Campaigns, *stats)
	}
	sort.Slice(summary.Campaigns, func(i, j int) bool {
		return summary.Campaigns[i].Campaign < summary.Campaigns[j].Campaign
	})
	return summary
}

// Share is the campaign's percentage of the period total, one decimal.
func (s Summary) Share(c CampaignStats) string {
	if s.Counts.Total == 0 {
		return "0.0"
	}
	return strconv.FormatFloat(float64(c.Total)/float64(s.Counts.Total)*100, 'f', 1, 64)
}
