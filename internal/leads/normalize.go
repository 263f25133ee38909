package leads

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const DisplayLayout = "2 Jan 2006 15:04"

var (
	ErrMalformedEnvelope = errors.New("malformed lead envelope")
	ErrUnsuccessful      = errors.New("backend reported failure")
)

// Envelope key variants accepted per source.
var (
	fairPayListKeys = []string{"fairPayLeads", "fairpayleads"}
	pcpListKeys     = []string{"pcpLeads", "pcpleads"}
	dpfListKeys     = []string{"dpfLeads", "dpfleads"}
	pcpDetailKeys   = []string{"pcpLead", "pcplead"}
)

// Normalizer converts backend payloads into Lead rows. Dates without an
// explicit zone are read, and all dates displayed, in Location (UTC if nil).
type Normalizer struct {
	Location *time.Location
}

type envelope struct {
	Success bool                       `json:"success"`
	Data    map[string]json.RawMessage `json:"data"`
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

func decodeEnvelope(body []byte, keys []string) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !env.Success {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = strings.TrimSpace(env.Error)
		}
		if msg == "" {
			return nil, ErrUnsuccessful
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, msg)
	}
	for _, key := range keys {
		if raw, ok := env.Data[key]; ok {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%w: data has none of %s", ErrMalformedEnvelope, strings.Join(keys, ", "))
}

// Leads dispatches to the normalizer for source.
func (n Normalizer) Leads(source Source, body []byte) ([]Lead, error) {
	switch source {
	case SourceFairPay:
		return n.FairPayLeads(body)
	case SourcePCP:
		return n.PCPLeads(body)
	case SourceDPF:
		return n.DPFLeads(body)
	default:
		return nil, fmt.Errorf("unknown lead source %q", source)
	}
}

var fairPayKnownKeys = keySet(
	"id", "lead_id", "email", "phone", "campaign", "status", "name",
	"createdAt", "soldAt", "step", "dob", "address", "marketing",
	"privacyPolicy", "stillWorksInStore", "dateLeft", "storeLocation",
	"niNumber", "employeeNumber", "acceptedDBA", "timestamp",
)

func (n Normalizer) FairPayLeads(body []byte) ([]Lead, error) {
	raw, err := decodeEnvelope(body, fairPayListKeys)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: fair pay leads: %v", ErrMalformedEnvelope, err)
	}
	out := make([]Lead, 0, len(records))
	for _, rec := range records {
		out = append(out, n.fairPayRow(rec))
	}
	return out, nil
}

func (n Normalizer) fairPayRow(rec record) Lead {
	id := rec.str("id")
	created := rec.str("createdAt")
	lead := Lead{
		ID:        id,
		LeadID:    displayLeadID(rec.str("lead_id"), id),
		Campaign:  strings.ToLower(rec.str("campaign")),
		Source:    SourceFairPay,
		Status:    parseStatus(rec.str("status"), ""),
		Name:      rec.str("name"),
		Email:     rec.str("email"),
		Phone:     rec.str("phone"),
		CreatedAt: n.FormatDate(created),
		SoldAt:    n.FormatDate(rec.str("soldAt")),
		Step:      rec.str("step"),
		FairPay: &FairPayFields{
			DOB:               rec.str("dob"),
			Address:           rec.str("address"),
			Marketing:         rec.str("marketing"),
			PrivacyPolicy:     rec.str("privacyPolicy"),
			StillWorksInStore: rec.str("stillWorksInStore"),
			DateLeft:          rec.str("dateLeft"),
			StoreLocation:     rec.str("storeLocation"),
			NINumber:          rec.str("niNumber"),
			EmployeeNumber:    rec.str("employeeNumber"),
			AcceptedDBA:       rec.str("acceptedDBA"),
			Timestamp:         rec.str("timestamp"),
		},
		Extra: rec.extras(fairPayKnownKeys),
	}
	if parsed, ok := n.ParseDate(created); ok {
		lead.CreatedTime = parsed
	}
	return lead
}

var pcpKnownKeys = keySet(
	"id", "lead_id", "token_id", "lead_status", "createdAt",
	"lead_sold_timestamp", "completed_steps", "campaignUser",
)

func (n Normalizer) PCPLeads(body []byte) ([]Lead, error) {
	raw, err := decodeEnvelope(body, pcpListKeys)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: pcp leads: %v", ErrMalformedEnvelope, err)
	}
	out := make([]Lead, 0, len(records))
	for _, rec := range records {
		lead := n.claimRow(rec, CampaignPCP, SourcePCP)
		lead.PCP = &PCPFields{
			TokenID:          rec.str("token_id"),
			LeadStatus:       rec.str("lead_status"),
			CompletedSteps:   rec.integer("completed_steps"),
			SoldTimestampRaw: rec.str("lead_sold_timestamp"),
			CreatedAtRaw:     rec.str("createdAt", "lead_created_at"),
		}
		lead.Extra = rec.extras(pcpKnownKeys)
		out = append(out, lead)
	}
	return out, nil
}

var dpfKnownKeys = keySet(
	"id", "lead_id", "token_id", "lead_status", "createdAt",
	"lead_sold_timestamp", "completed_steps", "campaignUser",
	"vehicleRegistration", "vehicleMake", "vehicleModel",
	"leasePurchaseDate", "acceptedDBA", "timestamp",
)

func (n Normalizer) DPFLeads(body []byte) ([]Lead, error) {
	raw, err := decodeEnvelope(body, dpfListKeys)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dpf leads: %v", ErrMalformedEnvelope, err)
	}
	out := make([]Lead, 0, len(records))
	for _, rec := range records {
		lead := n.claimRow(rec, CampaignDPF, SourceDPF)
		lead.DPF = &DPFFields{
			TokenID:             rec.str("token_id"),
			LeadStatus:          rec.str("lead_status"),
			CompletedSteps:      rec.integer("completed_steps"),
			VehicleRegistration: rec.str("vehicleRegistration"),
			VehicleMake:         rec.str("vehicleMake"),
			VehicleModel:        rec.str("vehicleModel"),
			LeasePurchaseDate:   rec.str("leasePurchaseDate"),
			AcceptedDBA:         rec.str("acceptedDBA"),
			Timestamp:           rec.str("timestamp"),
		}
		lead.Extra = rec.extras(dpfKnownKeys)
		out = append(out, lead)
	}
	return out, nil
}

// claimRow maps the shared PCP/DPF list shape onto the display fields.
func (n Normalizer) claimRow(rec record, campaign string, source Source) Lead {
	id := rec.str("id")
	user := rec.sub("campaignUser")
	form := rec.sub("formData")
	created := rec.str("createdAt", "lead_created_at")
	soldRaw := rec.str("lead_sold_timestamp")

	name := user.str("name")
	if name == "" {
		name = strings.TrimSpace(form.str("firstName") + " " + form.str("lastName"))
	}
	if name == "" {
		name = "Unknown"
	}

	lead := Lead{
		ID:        id,
		LeadID:    displayLeadID(rec.str("lead_id"), id),
		Campaign:  campaign,
		Source:    source,
		Status:    parseStatus(rec.str("lead_status"), soldRaw),
		Name:      name,
		Email:     firstNonEmpty(user.str("email"), form.str("email")),
		Phone:     firstNonEmpty(user.str("phoneNumber", "phone"), form.str("phone")),
		CreatedAt: n.FormatDate(created),
		SoldAt:    n.FormatDate(soldRaw),
	}
	if steps := rec.integer("completed_steps"); steps > 0 {
		lead.Step = "Step " + strconv.Itoa(steps)
	}
	if parsed, ok := n.ParseDate(created); ok {
		lead.CreatedTime = parsed
	}
	return lead
}

// PCPDetail decodes the single-lead envelope into the full detail record.
func (n Normalizer) PCPDetail(body []byte) (*PCPDetail, error) {
	raw, err := decodeEnvelope(body, pcpDetailKeys)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, fmt.Errorf("%w: lead record missing", ErrMalformedEnvelope)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: pcp lead: %v", ErrMalformedEnvelope, err)
	}

	lead := n.claimRow(rec, CampaignPCP, SourcePCP)
	form := rec.sub("formData")
	kyc := rec.sub("kycDecision")
	marketing := rec.sub("marketingData")
	signature := rec.sub("jsonData")

	detail := &PCPDetail{
		Lead:           lead,
		IntellioID:     rec.str("intellio_id"),
		TokenID:        rec.str("token_id"),
		Address:        firstNonEmpty(rec.str("lead_address"), form.str("address")),
		LeadCampaign:   firstNonEmpty(rec.str("lead_campaign"), CampaignPCP),
		LeadStatus:     rec.str("lead_status"),
		ClaimStatus:    rec.str("claim_status"),
		LeadSource:     rec.str("lead_source"),
		SoldTimestamp:  firstNonEmpty(rec.str("lead_sold_timestamp_txt"), n.FormatDate(rec.str("lead_sold_timestamp"))),
		CreatedAtRaw:   rec.str("lead_created_at", "createdAt"),
		UpdatedAtRaw:   rec.str("lead_updated_at", "updatedAt"),
		CompletedSteps: rec.integer("completed_steps"),
		CreditCheck: CreditCheck{
			LastCheckedAt: rec.str("last_credit_check"),
			Results:       rec.sub("credit_check_data").flat(),
		},
		KYC: KYCDecision{
			Decision: firstNonEmpty(kyc.str("decision"), rec.str("kyc_decision")),
			Text:     kyc.str("decisionText"),
			Reasons:  kyc.strings("decisionReasons"),
		},
		Claims: buildClaims(rec),
		Marketing: Marketing{
			MetaID:          rec.str("lead_meta_id"),
			IPAddress:       rec.str("lead_meta_ip_address"),
			BrowserSpec:     rec.str("lead_meta_browser_spec"),
			Referer:         rec.str("lead_meta_referer"),
			PhoneVerifiedAt: rec.str("phoneVerifiedAt"),
			CampaignUserID:  rec.str("campaignUserId"),
			OptIn:           marketing.str("optIn"),
			PrivacyPolicy:   marketing.str("privacyPolicy"),
			UTMSource:       marketing.str("utmSource"),
			UTMCampaign:     marketing.str("utmCampaign"),
			UTMMedium:       marketing.str("utmMedium"),
			UTMContent:      marketing.str("utmContent"),
			UTMTerm:         marketing.str("utmTerm"),
			UTMDevice:       marketing.str("utmDevice"),
		},
		Signature: Signature{
			Timestamp:    signature.str("signatureTimestamp"),
			IPAddress:    signature.str("signatureIpAddress"),
			Device:       signature.str("signatureDevice", "signatureUserAgent"),
			DocumentHash: signature.str("documentHash", "signatureDocumentHash"),
			ImageRef:     signature.str("signatureImagePng", "signatureImage"),
		},
	}
	detail.Lead.PCP = &PCPFields{
		TokenID:          detail.TokenID,
		LeadStatus:       detail.LeadStatus,
		CompletedSteps:   detail.CompletedSteps,
		SoldTimestampRaw: rec.str("lead_sold_timestamp"),
		CreatedAtRaw:     detail.CreatedAtRaw,
	}

	calls, _ := rec.list("apiCallsHistory")
	for _, call := range calls {
		detail.Calls = append(detail.Calls, APICall{
			Timestamp: call.str("timestamp"),
			Endpoint:  call.str("endpoint"),
			Status:    call.integer("status"),
		})
	}
	return detail, nil
}

// buildClaims prefers the raw credit-check accounts, validated against the
// filtered agreements; without them the filtered agreements are the claims.
func buildClaims(rec record) []Claim {
	agreements, _ := rec.list("filteredAgreements")
	if accounts, ok := rec.list("creditCheckRaw"); ok {
		filtered := make(map[string]struct{}, len(agreements))
		for _, agreement := range agreements {
			if number := accountKey(agreementNumber(agreement)); number != "" {
				filtered[number] = struct{}{}
			}
		}
		claims := make([]Claim, 0, len(accounts))
		for i, account := range accounts {
			claim := claimFrom(account, i)
			claim.Status = ClaimInvalid
			if _, ok := filtered[accountKey(claim.AgreementNumber)]; ok && claim.AgreementNumber != "" {
				claim.Status = ClaimValid
			}
			claims = append(claims, claim)
		}
		return claims
	}
	if rec.has("filteredAgreements") {
		claims := make([]Claim, 0, len(agreements))
		for i, agreement := range agreements {
			claim := claimFrom(agreement, i)
			claim.Status = ClaimValid
			claims = append(claims, claim)
		}
		return claims
	}
	legacy, _ := rec.list("claims")
	claims := make([]Claim, 0, len(legacy))
	for i, item := range legacy {
		claim := claimFrom(item, i)
		claim.Status = ClaimStatus(strings.ToLower(item.str("status")))
		claims = append(claims, claim)
	}
	return claims
}

func agreementNumber(rec record) string {
	return rec.str("accountNumber", "account_number", "agreement_number", "agreementNumber")
}

func accountKey(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

func claimFrom(rec record, index int) Claim {
	number := agreementNumber(rec)
	id := rec.str("id")
	if id == "" {
		id = number
	}
	if id == "" {
		id = fmt.Sprintf("CLM-%03d", index+1)
	}
	return Claim{
		ID:                  id,
		Lender:              rec.str("lenderName", "lender", "lender_name"),
		AgreementDate:       rec.str("startDate", "agreement_date", "agreementDate"),
		AgreementNumber:     number,
		VehicleRegistration: rec.str("vehicleRegistration", "vehicle_registration"),
		IDSubmitted:         yesNo(rec.str("idSubmitted", "id_submitted")),
		SignedLOA:           yesNo(rec.str("signedLoa", "signed_loa")),
	}
}

func displayLeadID(explicit, id string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if runes := []rune(id); len(runes) > 8 {
		id = string(runes[:8])
	}
	return strings.ToUpper(id)
}

func parseStatus(raw, soldTimestamp string) Status {
	if strings.EqualFold(strings.TrimSpace(raw), string(StatusSold)) || strings.TrimSpace(soldTimestamp) != "" {
		return StatusSold
	}
	return StatusNurture
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate reads the backend timestamp layouts, including spreadsheet
// serial numbers.
func (n Normalizer) ParseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	loc := n.location()
	for _, layout := range zonedLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, loc); err == nil {
			return parsed, true
		}
	}
	if serial, err := strconv.ParseFloat(trimmed, 64); err == nil && serial >= 20000 && serial <= 80000 {
		if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, loc), true
		}
	}
	return time.Time{}, false
}

// FormatDate renders raw in DisplayLayout, or returns it unchanged when it
// cannot be parsed.
func (n Normalizer) FormatDate(raw string) string {
	parsed, ok := n.ParseDate(raw)
	if !ok {
		return raw
	}
	return parsed.Format(DisplayLayout)
}
