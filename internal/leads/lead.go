// Package leads normalizes backend lead payloads into display rows and
// provides the filtering, pagination, export and summary helpers used by the
// admin dashboard.
package leads

import "time"

type Status string

const (
	StatusSold    Status = "sold"
	StatusNurture Status = "nurture"
)

// Source identifies which list fetch produced a row.
type Source string

const (
	SourceFairPay Source = "fairpay"
	SourcePCP     Source = "pcp"
	SourceDPF     Source = "dpf"
)

var Sources = []Source{SourceFairPay, SourcePCP, SourceDPF}

func ParseSource(raw string) (Source, bool) {
	switch Source(raw) {
	case SourceFairPay, SourcePCP, SourceDPF:
		return Source(raw), true
	}
	return "", false
}

const (
	CampaignMorrisons  = "morrisons"
	CampaignAsda       = "asda"
	CampaignSainsburys = "sainsburys"
	CampaignCoop       = "coop"
	CampaignJustEat    = "justeat"
	CampaignBolt       = "bolt"
	CampaignNext       = "next"
	CampaignPCP        = "pcp"
	CampaignDPF        = "dpf"
	CampaignDiesel     = "diesel"
)

// Lead is one table row. Exactly one of FairPay, PCP or DPF is set, matching
// Source. Extra only holds backend keys no variant knows about.
type Lead struct {
	ID          string
	LeadID      string
	Campaign    string
	Source      Source
	Status      Status
	Name        string
	Email       string
	Phone       string
	CreatedAt   string
	CreatedTime time.Time
	SoldAt      string
	Step        string

	FairPay *FairPayFields
	PCP     *PCPFields
	DPF     *DPFFields
	Extra   map[string]string
}

type FairPayFields struct {
	DOB               string
	Address           string
	Marketing         string
	PrivacyPolicy     string
	StillWorksInStore string
	DateLeft          string
	StoreLocation     string
	NINumber          string
	EmployeeNumber    string
	AcceptedDBA       string
	Timestamp         string
}

type PCPFields struct {
	TokenID          string
	LeadStatus       string
	CompletedSteps   int
	SoldTimestampRaw string
	CreatedAtRaw     string
}

type DPFFields struct {
	TokenID             string
	LeadStatus          string
	CompletedSteps      int
	VehicleRegistration string
	VehicleMake         string
	VehicleModel        string
	LeasePurchaseDate   string
	AcceptedDBA         string
	Timestamp           string
}

func (l Lead) IsPCP() bool {
	return l.Campaign == CampaignPCP
}

type ClaimStatus string

const (
	ClaimValid   ClaimStatus = "valid"
	ClaimInvalid ClaimStatus = "invalid"
)

type Claim struct {
	ID                  string
	Lender              string
	AgreementDate       string
	AgreementNumber     string
	VehicleRegistration string
	IDSubmitted         string
	SignedLOA           string
	Status              ClaimStatus
}

type CreditCheck struct {
	LastCheckedAt string
	Results       map[string]string
}

type KYCDecision struct {
	Decision string
	Text     string
	Reasons  []string
}

type Marketing struct {
	MetaID          string
	IPAddress       string
	BrowserSpec     string
	Referer         string
	PhoneVerifiedAt string
	CampaignUserID  string
	OptIn           string
	PrivacyPolicy   string
	UTMSource       string
	UTMCampaign     string
	UTMMedium       string
	UTMContent      string
	UTMTerm         string
	UTMDevice       string
}

type Signature struct {
	Timestamp    string
	IPAddress    string
	Device       string
	DocumentHash string
	ImageRef     string
}

type APICall struct {
	Timestamp string
	Endpoint  string
	Status    int
}

// PCPDetail is the full record behind a PCP row, fetched on demand.
type PCPDetail struct {
	Lead

	IntellioID     string
	TokenID        string
	Address        string
	LeadCampaign   string
	LeadStatus     string
	ClaimStatus    string
	LeadSource     string
	SoldTimestamp  string
	CreatedAtRaw   string
	UpdatedAtRaw   string
	CompletedSteps int

	CreditCheck CreditCheck
	KYC         KYCDecision
	Claims      []Claim
	Marketing   Marketing
	Signature   Signature
	Calls       []APICall
}
