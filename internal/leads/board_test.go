package leads

import "testing"

func TestBoardReplaceKeepsOtherSources(t *testing.T) {
	var board Board
	board.Replace(SourceFairPay, []Lead{{ID: "1", Source: SourceFairPay}, {ID: "2", Source: SourceFairPay}})
	board.Replace(SourcePCP, []Lead{{ID: "p1", Source: SourcePCP}})
	board.Replace(SourceFairPay, []Lead{{ID: "3", Source: SourceFairPay}})

	rows := board.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "p1" || rows[1].ID != "3" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if _, ok := board.Find(SourceFairPay, "1"); ok {
		t.Fatalf("expected replaced row to be gone")
	}
	if lead, ok := board.Find(SourcePCP, "p1"); !ok || lead.ID != "p1" {
		t.Fatalf("expected pcp row to be found")
	}
	if _, ok := board.Find(SourceDPF, "p1"); ok {
		t.Fatalf("find must match source")
	}
}

func TestBoardRowsIsACopy(t *testing.T) {
	var board Board
	board.Replace(SourceDPF, []Lead{{ID: "d1", Source: SourceDPF}})
	rows := board.Rows()
	rows[0].ID = "changed"
	if _, ok := board.Find(SourceDPF, "d1"); !ok {
		t.Fatalf("mutating Rows result changed the board")
	}
}

func TestParseSource(t *testing.T) {
	if source, ok := ParseSource("pcp"); !ok || source != SourcePCP {
		t.Fatalf("expected pcp source")
	}
	if _, ok := ParseSource("diesel"); ok {
		t.Fatalf("diesel is not a fetched source")
	}
}

func TestGroupsAllows(t *testing.T) {
	groups := DefaultGroups()
	if allowed, ok := groups.Allows(GroupFairPay, CampaignBolt); !ok || !allowed {
		t.Fatalf("expected bolt in fair pay")
	}
	if allowed, ok := groups.Allows(GroupFairPay, CampaignPCP); !ok || allowed {
		t.Fatalf("expected pcp outside fair pay")
	}
	if _, ok := groups.Allows("nope", CampaignPCP); ok {
		t.Fatalf("expected unknown group")
	}
	if keys := groups.Keys(); len(keys) != 4 || keys[0] != GroupDiesel {
		t.Fatalf("unexpected keys %v", keys)
	}
}
