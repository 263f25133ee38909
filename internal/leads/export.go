package leads

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var ExportHeader = []string{
	"Lead ID",
	"Campaign",
	"Status",
	"Name",
	"Email",
	"Phone",
	"Created At",
	"Sold At",
	"Step",
}

func exportRow(lead Lead) []string {
	return []string{
		lead.LeadID,
		lead.Campaign,
		string(lead.Status),
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.CreatedAt,
		lead.SoldAt,
		lead.Step,
	}
}

// CSV renders the header and one line per lead, every field quoted. Lines are
// joined with \n and there is no trailing newline.
func CSV(rows []Lead) string {
	var b strings.Builder
	b.WriteString(strings.Join(ExportHeader, ","))
	for _, lead := range rows {
		b.WriteString("\n")
		for i, field := range exportRow(lead) {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`"`)
			b.WriteString(strings.ReplaceAll(field, `"`, `""`))
			b.WriteString(`"`)
		}
	}
	return b.String()
}

func ExportFilename(now time.Time, ext string) string {
	return "leads_export_" + now.UTC().Format("2006-01-02") + "." + ext
}

const xlsxSheet = "Leads"

// WriteXLSX writes the same columns as CSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []Lead) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, lead := range rows {
		fields := exportRow(lead)
		values := make([]any, len(fields))
		for j, field := range fields {
			values[j] = field
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
