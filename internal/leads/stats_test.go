package leads

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	if ParsePeriod("30days") != Period30Days || ParsePeriod("") != Period7Days || ParsePeriod("year") != Period7Days {
		t.Fatalf("unexpected period parsing")
	}
	if PeriodAll.Label() != "All Time" || PeriodToday.Label() != "Today" {
		t.Fatalf("unexpected labels")
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)
	all := []Lead{
		{Campaign: "asda", Status: StatusSold, CreatedTime: now.Add(-1 * time.Hour)},
		{Campaign: "asda", Status: StatusNurture, CreatedTime: now.Add(-2 * 24 * time.Hour)},
		{Campaign: "pcp", Status: StatusNurture, CreatedTime: now.Add(-20 * 24 * time.Hour)},
		{Campaign: "bolt", Status: StatusSold},
	}

	today := Summarize(all, PeriodToday, now)
	if today.Counts.Total != 1 || today.ConversionRate != "100.0" {
		t.Fatalf("unexpected today summary: %+v", today)
	}

	week := Summarize(all, Period7Days, now)
	if week.Counts.Total != 2 || week.Counts.Sold != 1 || week.ConversionRate != "50.0" {
		t.Fatalf("unexpected week summary: %+v", week)
	}
	if len(week.Campaigns) != 1 || week.Campaigns[0].Campaign != "asda" || week.Share(week.Campaigns[0]) != "100.0" {
		t.Fatalf("unexpected week campaigns: %+v", week.Campaigns)
	}

	month := Summarize(all, Period30Days, now)
	if month.Counts.Total != 3 {
		t.Fatalf("expected 3 leads in 30 days, got %d", month.Counts.Total)
	}

	overall := Summarize(all, PeriodAll, now)
	if overall.Counts.Total != 4 || overall.ConversionRate != "50.0" {
		t.Fatalf("unexpected all-time summary: %+v", overall)
	}
	names := []string{overall.Campaigns[0].Campaign, overall.Campaigns[1].Campaign, overall.Campaigns[2].Campaign}
	if names[0] != "asda" || names[1] != "bolt" || names[2] != "pcp" {
		t.Fatalf("expected campaigns sorted, got %v", names)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil, PeriodAll, time.Now())
	if summary.ConversionRate != "0" || summary.Counts.Total != 0 || len(summary.Campaigns) != 0 {
		t.Fatalf("unexpected empty summary: %+v", summary)
	}
}
