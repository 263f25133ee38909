// Package fixtures holds the stub lead payloads served while the Fair Pay
// and DPF backend endpoints are not configured.
package fixtures

import (
	"embed"
	"fmt"
)

//go:embed data/*.json
var dataFS embed.FS

const (
	FairPayLeads  = "fair_pay_leads.json"
	DPFLeads      = "dpf_leads.json"
	PCPLeads      = "pcp_leads.json"
	PCPLeadDetail = "pcp_lead_detail.json"
)

// Load returns the raw envelope bytes for name.
func Load(name string) ([]byte, error) {
	data, err := dataFS.ReadFile("data/" + name)
	if err != nil {
		return nil, fmt.Errorf("load fixture %s: %w", name, err)
	}
	return data, nil
}

// MustLoad is Load for names fixed at compile time. It panics on a missing
// fixture and is meant for tests that seed fake backends.
func MustLoad(name string) []byte {
	data, err := Load(name)
	if err != nil {
		panic(err)
	}
	return data
}
