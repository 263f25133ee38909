package leads

// Board is the dashboard's working list of leads across all sources.
type Board struct {
	rows []Lead
}

// Replace drops every row that came from source and appends rows in its place.
func (b *Board) Replace(source Source, rows []Lead) {
	kept := b.rows[:0:0]
	for _, row := range b.rows {
		if row.Source != source {
			kept = append(kept, row)
		}
	}
	b.rows = append(kept, rows...)
}

func (b *Board) Rows() []Lead {
	out := make([]Lead, len(b.rows))
	copy(out, b.rows)
	return out
}

func (b *Board) Find(source Source, id string) (Lead, bool) {
	for _, row := range b.rows {
		if row.Source == source && row.ID == id {
			return row, true
		}
	}
	return Lead{}, false
}
