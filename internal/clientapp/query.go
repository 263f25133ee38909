package clientapp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/phillip-england/leadsdash/internal/leads"
)

// listQuery is the table state carried in the /admin query string.
type listQuery struct {
	Filter  leads.Filter
	Page    int
	PerPage int
}

func parseListQuery(values url.Values) listQuery {
	return listQuery{
		Filter: leads.Filter{
			Group:       strings.ToLower(strings.TrimSpace(values.Get("group"))),
			SubCampaign: strings.ToLower(strings.TrimSpace(values.Get("campaign"))),
			Status:      strings.ToLower(strings.TrimSpace(values.Get("status"))),
			Search:      strings.TrimSpace(values.Get("q")),
		},
		Page:    parsePositiveInt(values.Get("page"), 1),
		PerPage: leads.NormalizePageSize(parsePositiveInt(values.Get("per_page"), leads.DefaultPageSize)),
	}
}

func (q listQuery) values() url.Values {
	v := url.Values{}
	if q.Filter.Group != "" {
		v.Set("group", q.Filter.Group)
	}
	if q.Filter.Group == leads.GroupFairPay && q.Filter.SubCampaign != "" && q.Filter.SubCampaign != leads.SubCampaignAll {
		v.Set("campaign", q.Filter.SubCampaign)
	}
	if q.Filter.Status != "" && q.Filter.Status != leads.StatusAll {
		v.Set("status", q.Filter.Status)
	}
	if q.Filter.Search != "" {
		v.Set("q", q.Filter.Search)
	}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage != 0 && q.PerPage != leads.DefaultPageSize {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

func (q listQuery) url(base string) string {
	if encoded := q.values().Encode(); encoded != "" {
		return base + "?" + encoded
	}
	return base
}

func (q listQuery) withPage(page int) listQuery {
	q.Page = page
	return q
}

// Changing any filter returns to the first page.
func (q listQuery) withGroup(group string) listQuery {
	q.Filter.Group = group
	q.Filter.SubCampaign = ""
	q.Page = 1
	return q
}

func (q listQuery) withSubCampaign(campaign string) listQuery {
	q.Filter.SubCampaign = campaign
	q.Page = 1
	return q
}

func (q listQuery) withStatus(status string) listQuery {
	q.Filter.Status = status
	q.Page = 1
	return q
}

func (q listQuery) withPerPage(size int) listQuery {
	q.PerPage = size
	q.Page = 1
	return q
}

// hidden lists the fields the search form resubmits alongside q.
func (q listQuery) hidden() []hiddenField {
	values := q.withPage(1).values()
	values.Del("q")
	var out []hiddenField
	for _, name := range []string{"group", "campaign", "status", "per_page"} {
		if v := values.Get(name); v != "" {
			out = append(out, hiddenField{Name: name, Value: v})
		}
	}
	return out
}

var groupLabels = map[string]string{
	leads.GroupFairPay: "Fair Pay",
	leads.GroupPCP:     "PCP",
	leads.GroupDPF:     "DPF",
	leads.GroupDiesel:  "Diesel",
}

var groupOrder = []string{leads.GroupFairPay, leads.GroupPCP, leads.GroupDPF, leads.GroupDiesel}

func (s *server) groupLinks(q listQuery) []navLink {
	links := []navLink{{Label: "All", URL: q.withGroup("").url("/admin"), Active: q.Filter.Group == ""}}
	seen := map[string]bool{}
	keys := make([]string, 0, len(s.groups))
	for _, key := range groupOrder {
		if _, ok := s.groups[key]; ok {
			keys = append(keys, key)
			seen[key] = true
		}
	}
	for _, key := range s.groups.Keys() {
		if !seen[key] {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		label, ok := groupLabels[key]
		if !ok {
			label = key
		}
		links = append(links, navLink{Label: label, URL: q.withGroup(key).url("/admin"), Active: q.Filter.Group == key})
	}
	return links
}

// subCampaignLinks is only offered inside the Fair Pay group.
func (s *server) subCampaignLinks(q listQuery) []navLink {
	if q.Filter.Group != leads.GroupFairPay {
		return nil
	}
	current := q.Filter.SubCampaign
	if current == "" {
		current = leads.SubCampaignAll
	}
	links := []navLink{{Label: "All", URL: q.withSubCampaign("").url("/admin"), Active: current == leads.SubCampaignAll}}
	for _, campaign := range s.groups[leads.GroupFairPay] {
		links = append(links, navLink{
			Label:  campaign,
			URL:    q.withSubCampaign(campaign).url("/admin"),
			Active: current == campaign,
		})
	}
	return links
}

func statusLinks(q listQuery) []navLink {
	current := q.Filter.Status
	if current != string(leads.StatusSold) && current != string(leads.StatusNurture) {
		current = leads.StatusAll
	}
	var links []navLink
	for _, status := range []struct{ key, label string }{
		{leads.StatusAll, "All"},
		{string(leads.StatusSold), "Sold"},
		{string(leads.StatusNurture), "Nurture"},
	} {
		links = append(links, navLink{
			Label:  status.label,
			URL:    q.withStatus(status.key).url("/admin"),
			Active: current == status.key,
		})
	}
	return links
}

func pageSizeLinks(q listQuery) []navLink {
	var links []navLink
	for _, size := range leads.PageSizes {
		links = append(links, navLink{
			Label:  strconv.Itoa(size),
			URL:    q.withPerPage(size).url("/admin"),
			Active: q.PerPage == size,
		})
	}
	return links
}
