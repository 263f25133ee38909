// Package detailview composes the lead detail page from the list row, and for
// PCP leads, the separately fetched detail record.
package detailview

import (
	"sort"
	"strconv"

	"github.com/phillip-england/leadsdash/internal/leads"
)

type State int

const (
	Closed State = iota
	// CoreLoaded means only the list row is available. For PCP leads the
	// detail record is still outstanding.
	CoreLoaded
	DetailLoaded
	DetailFailed
)

func (s State) String() string {
	switch s {
	case CoreLoaded:
		return "core-loaded"
	case DetailLoaded:
		return "detail-loaded"
	case DetailFailed:
		return "detail-failed"
	default:
		return "closed"
	}
}

const (
	TabCore       = "core"
	TabMilestones = "milestones"
	TabMarketing  = "marketing"
	TabCampaign   = "campaign"
	TabClaims     = "claims"
	TabSignature  = "signature"
	TabWorkflow   = "workflow"
)

// StatusCheckSignature is the PCP workflow status that unlocks the signature
// actions.
const StatusCheckSignature = "check_signature"

// StatusSignatureVerified is written back when an admin confirms the LOA
// signature.
const StatusSignatureVerified = "signature_verified"

type Tab struct {
	Key   string
	Label string
}

var (
	genericTabs = []Tab{
		{Key: TabCore, Label: "Core Information"},
		{Key: TabMarketing, Label: "Marketing"},
		{Key: TabCampaign, Label: "Campaign Data"},
	}
	pcpTabs = []Tab{
		{Key: TabCore, Label: "Core Information"},
		{Key: TabMilestones, Label: "Milestones"},
		{Key: TabMarketing, Label: "Marketing"},
		{Key: TabClaims, Label: "Claim Data"},
		{Key: TabSignature, Label: "Signature / LOA"},
		{Key: TabWorkflow, Label: "Workflow"},
	}
)

var MilestoneNames = []string{
	"Lead Captured",
	"Phone Verified",
	"Details Submitted",
	"Credit Check",
	"Agreements Found",
	"Claims Selected",
	"LOA Signed",
	"Claim Submitted",
}

type Field struct {
	Label string
	Value string
}

type Section struct {
	Title  string
	Fields []Field
}

type Milestone struct {
	Number   int
	Name     string
	Complete bool
}

type Workflow struct {
	LeadStatus         string
	SignatureTimestamp string
	CanNotify          bool
	CanVerify          bool
}

type View struct {
	State  State
	Lead   leads.Lead
	Detail *leads.PCPDetail
	Error  string

	Tabs      []Tab
	ActiveTab string

	// Sections holds the field groups of the active tab.
	Sections   []Section
	Milestones []Milestone
	Claims     []leads.Claim
	Workflow   Workflow
	HasImage   bool
}

func (v View) IsPCP() bool { return v.Lead.IsPCP() }

// Awaiting reports whether a PCP tab that needs the detail record has
// nothing to show yet and no error to explain why.
func (v View) Awaiting() bool {
	return v.IsPCP() && v.Detail == nil && v.State != DetailFailed && v.ActiveTab != TabCore
}

// Compose builds the view for lead. detail and detailErr are the outcome of
// the PCP detail fetch and are ignored for other sources. An unknown tab
// falls back to the core tab.
func Compose(lead *leads.Lead, detail *leads.PCPDetail, detailErr error, tab string) View {
	if lead == nil {
		return View{State: Closed}
	}
	view := View{State: CoreLoaded, Lead: *lead, Tabs: genericTabs}
	if lead.IsPCP() {
		view.Tabs = pcpTabs
		switch {
		case detailErr != nil:
			view.State = DetailFailed
			view.Error = detailErr.Error()
		case detail != nil:
			view.State = DetailLoaded
			view.Detail = detail
		}
	}
	view.ActiveTab = TabCore
	for _, t := range view.Tabs {
		if t.Key == tab {
			view.ActiveTab = tab
		}
	}

	if view.IsPCP() {
		view.composePCP()
	} else {
		view.composeGeneric()
	}
	return view
}

func (v *View) composeGeneric() {
	lead := v.Lead
	fp := lead.FairPay
	if fp == nil {
		fp = &leads.FairPayFields{}
	}
	switch v.ActiveTab {
	case TabCore:
		v.Sections = []Section{{Title: "Core Information", Fields: []Field{
			{"Lead ID", lead.LeadID},
			{"Name", lead.Name},
			{"Campaign", lead.Campaign},
			{"Status", string(lead.Status)},
			{"Created", lead.CreatedAt},
			{"Sold At", lead.SoldAt},
			{"Email", lead.Email},
			{"Phone", lead.Phone},
			{"Date of Birth", fp.DOB},
			{"Address", fp.Address},
			{"Step", lead.Step},
		}}}
	case TabMarketing:
		v.Sections = []Section{{Title: "Marketing", Fields: []Field{
			{"Marketing Opt-in", fp.Marketing},
			{"Privacy Policy", fp.PrivacyPolicy},
		}}}
	case TabCampaign:
		v.Sections = []Section{{Title: "Campaign Specific Data", Fields: campaignFields(lead)}}
	}
}

// campaignFields lists every variant field not already shown on the core and
// marketing tabs, followed by unrecognised backend keys in name order.
func campaignFields(lead leads.Lead) []Field {
	var fields []Field
	switch {
	case lead.FairPay != nil:
		fp := lead.FairPay
		fields = []Field{
			{"Still Works In Store", fp.StillWorksInStore},
			{"Date Left", fp.DateLeft},
			{"Store Location", fp.StoreLocation},
			{"NI Number", fp.NINumber},
			{"Employee Number", fp.EmployeeNumber},
			{"Accepted DBA", fp.AcceptedDBA},
			{"Timestamp", fp.Timestamp},
		}
	case lead.DPF != nil:
		dpf := lead.DPF
		fields = []Field{
			{"Token ID", dpf.TokenID},
			{"Lead Status", dpf.LeadStatus},
			{"Completed Steps", strconv.Itoa(dpf.CompletedSteps)},
			{"Vehicle Registration", dpf.VehicleRegistration},
			{"Vehicle Make", dpf.VehicleMake},
			{"Vehicle Model", dpf.VehicleModel},
			{"Lease Purchase Date", dpf.LeasePurchaseDate},
			{"Accepted DBA", dpf.AcceptedDBA},
			{"Timestamp", dpf.Timestamp},
		}
	}
	keys := make([]string, 0, len(lead.Extra))
	for key := range lead.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, Field{key, lead.Extra[key]})
	}
	return fields
}

func (v *View) composePCP() {
	steps := 0
	if v.Lead.PCP != nil {
		steps = v.Lead.PCP.CompletedSteps
	}
	if v.Detail != nil {
		steps = v.Detail.CompletedSteps
	}
	v.Milestones = Milestones(steps)
	v.Workflow = workflowFor(v.Lead, v.Detail)

	lead := v.Lead
	d := v.Detail
	switch v.ActiveTab {
	case TabCore:
		fields := []Field{
			{"Lead ID", lead.LeadID},
			{"Name", lead.Name},
			{"Email", lead.Email},
			{"Phone", lead.Phone},
			{"Status", string(lead.Status)},
			{"Created", lead.CreatedAt},
			{"Step", lead.Step},
		}
		if d != nil {
			fields = append(fields,
				Field{"Intellio ID", d.IntellioID},
				Field{"Token ID", d.TokenID},
				Field{"Lead Address", d.Address},
				Field{"Lead Campaign", d.LeadCampaign},
				Field{"Lead Status", d.LeadStatus},
				Field{"Claim Status", d.ClaimStatus},
				Field{"Lead Source", d.LeadSource},
				Field{"Sold Timestamp", d.SoldTimestamp},
				Field{"Created At", d.CreatedAtRaw},
				Field{"Updated At", d.UpdatedAtRaw},
			)
		}
		v.Sections = []Section{{Title: "Core Information", Fields: fields}}
	case TabMarketing:
		if d == nil {
			return
		}
		m := d.Marketing
		v.Sections = []Section{
			{Title: "Marketing & Meta", Fields: []Field{
				{"Meta ID", m.MetaID},
				{"IP Address", m.IPAddress},
				{"Browser Spec", m.BrowserSpec},
				{"Referer", m.Referer},
				{"Phone Verified At", m.PhoneVerifiedAt},
				{"Campaign User ID", m.CampaignUserID},
				{"Marketing Opt-in", m.OptIn},
				{"Privacy Policy", m.PrivacyPolicy},
			}},
			{Title: "UTM Tracking", Fields: []Field{
				{"UTM Source", m.UTMSource},
				{"UTM Campaign", m.UTMCampaign},
				{"UTM Medium", m.UTMMedium},
				{"UTM Content", m.UTMContent},
				{"UTM Term", m.UTMTerm},
				{"UTM Device", m.UTMDevice},
			}},
		}
	case TabClaims:
		if d == nil {
			return
		}
		credit := []Field{
			{"Last Credit Check", d.CreditCheck.LastCheckedAt},
			{"KYC Decision", d.KYC.Decision},
			{"KYC Notes", d.KYC.Text},
		}
		for _, reason := range d.KYC.Reasons {
			credit = append(credit, Field{"KYC Reason", reason})
		}
		keys := make([]string, 0, len(d.CreditCheck.Results))
		for key := range d.CreditCheck.Results {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			credit = append(credit, Field{"Credit " + key, d.CreditCheck.Results[key]})
		}
		v.Sections = []Section{{Title: "Credit Check", Fields: credit}}
		v.Claims = SortClaims(d.Claims)
	case TabSignature:
		if d == nil {
			return
		}
		s := d.Signature
		v.Sections = []Section{{Title: "Signature Details", Fields: []Field{
			{"Signature IP Address", s.IPAddress},
			{"Signature Timestamp", s.Timestamp},
			{"Signature Device", s.Device},
			{"Document Hash", s.DocumentHash},
		}}}
		v.HasImage = s.ImageRef != ""
	case TabWorkflow:
		if d == nil || len(d.Calls) == 0 {
			return
		}
		calls := make([]Field, 0, len(d.Calls))
		for _, call := range d.Calls {
			calls = append(calls, Field{call.Endpoint, call.Timestamp + " (" + strconv.Itoa(call.Status) + ")"})
		}
		v.Sections = []Section{{Title: "API Call History", Fields: calls}}
	}
}

// Milestones marks step i complete when completedSteps >= i.
func Milestones(completedSteps int) []Milestone {
	out := make([]Milestone, len(MilestoneNames))
	for i, name := range MilestoneNames {
		out[i] = Milestone{Number: i + 1, Name: name, Complete: completedSteps >= i+1}
	}
	return out
}

// SortClaims returns a copy with valid claims first, keeping the original
// order within each group.
func SortClaims(claims []leads.Claim) []leads.Claim {
	out := make([]leads.Claim, len(claims))
	copy(out, claims)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Status == leads.ClaimValid && out[j].Status != leads.ClaimValid
	})
	return out
}

func workflowFor(lead leads.Lead, detail *leads.PCPDetail) Workflow {
	var wf Workflow
	if lead.PCP != nil {
		wf.LeadStatus = lead.PCP.LeadStatus
	}
	if detail != nil {
		if detail.LeadStatus != "" {
			wf.LeadStatus = detail.LeadStatus
		}
		wf.SignatureTimestamp = detail.Signature.Timestamp
	}
	wf.CanNotify = wf.LeadStatus == StatusCheckSignature
	wf.CanVerify = wf.CanNotify && wf.SignatureTimestamp != ""
	return wf
}
