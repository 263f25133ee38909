package leads

import "sort"

const (
	GroupFairPay = "fairpay"
	GroupPCP     = "pcp"
	GroupDPF     = "dpf"
	GroupDiesel  = "diesel"
)

// Groups maps a navigation group key to the campaign tags it shows.
type Groups map[string][]string

func DefaultGroups() Groups {
	return Groups{
		GroupFairPay: {
			CampaignMorrisons,
			CampaignAsda,
			CampaignSainsburys,
			CampaignCoop,
			CampaignJustEat,
			CampaignBolt,
			CampaignNext,
		},
		GroupPCP:    {CampaignPCP},
		GroupDiesel: {CampaignDiesel},
		GroupDPF:    {CampaignDPF},
	}
}

// Allows reports whether campaign belongs to group. ok is false when the group
// is unknown, in which case no group filtering applies.
func (g Groups) Allows(group, campaign string) (allowed, ok bool) {
	campaigns, ok := g[group]
	if !ok {
		return false, false
	}
	for _, c := range campaigns {
		if c == campaign {
			return true, true
		}
	}
	return false, true
}

func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
