package leads

import (
	"strings"
)

const (
	StatusAll       = "all"
	SubCampaignAll  = "all"
	DefaultPageSize = 10
)

var PageSizes = []int{5, 10, 25, 50}

// Filter holds the table controls. Zero values mean "no filtering".
type Filter struct {
	Group       string
	SubCampaign string
	Status      string
	Search      string
}

// Apply narrows leads in the fixed order group, sub-campaign, status, search.
// The input slice is never modified.
func (f Filter) Apply(all []Lead, groups Groups) []Lead {
	out := make([]Lead, 0, len(all))
	for _, lead := range all {
		if f.matches(lead, groups) {
			out = append(out, lead)
		}
	}
	return out
}

func (f Filter) matches(lead Lead, groups Groups) bool {
	if allowed, known := groups.Allows(f.Group, lead.Campaign); known && !allowed {
		return false
	}
	if f.Group == GroupFairPay && f.SubCampaign != "" && f.SubCampaign != SubCampaignAll {
		if lead.Campaign != f.SubCampaign {
			return false
		}
	}
	if status := f.normalizedStatus(); status != "" && string(lead.Status) != status {
		return false
	}
	return MatchesSearch(lead, f.Search)
}

func (f Filter) normalizedStatus() string {
	switch f.Status {
	case string(StatusSold), string(StatusNurture):
		return f.Status
	default:
		return ""
	}
}

// MatchesSearch is a case-insensitive substring match on name, email and
// lead id, and a plain substring match on phone.
func MatchesSearch(lead Lead, search string) bool {
	if search == "" {
		return true
	}
	term := strings.ToLower(search)
	return strings.Contains(strings.ToLower(lead.Name), term) ||
		strings.Contains(strings.ToLower(lead.Email), term) ||
		strings.Contains(lead.Phone, term) ||
		strings.Contains(strings.ToLower(lead.LeadID), term)
}

// NormalizePageSize returns size when it is one of PageSizes, else the default.
func NormalizePageSize(size int) int {
	for _, allowed := range PageSizes {
		if size == allowed {
			return size
		}
	}
	return DefaultPageSize
}

type Page struct {
	Items      []Lead
	Number     int
	Size       int
	TotalPages int
	TotalItems int
	StartIndex int
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.TotalPages }
func (p Page) PrevPage() int { return max(1, p.Number-1) }
func (p Page) NextPage() int { return min(p.TotalPages, p.Number+1) }

// Paginate slices filtered into the requested page, clamping the page number
// to [1, TotalPages]. An empty list still reports one (empty) page.
func Paginate(filtered []Lead, number, size int) Page {
	size = NormalizePageSize(size)
	total := len(filtered)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if number < 1 {
		number = 1
	}
	if number > totalPages {
		number = totalPages
	}
	start := (number - 1) * size
	end := min(start+size, total)
	if start > total {
		start = total
	}
	return Page{
		Items:      filtered[start:end],
		Number:     number,
		Size:       size,
		TotalPages: totalPages,
		TotalItems: total,
		StartIndex: start,
	}
}

type Counts struct {
	Total   int
	Sold    int
	Nurture int
}

func Count(filtered []Lead) Counts {
	c := Counts{Total: len(filtered)}
	for _, lead := range filtered {
		switch lead.Status {
		case StatusSold:
			c.Sold++
		case StatusNurture:
			c.Nurture++
		}
	}
	return c
}
