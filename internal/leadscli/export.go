package leadscli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/phillip-england/leadsdash/internal/backend"
	"github.com/phillip-england/leadsdash/internal/config"
	"github.com/phillip-england/leadsdash/internal/envutil"
	"github.com/phillip-england/leadsdash/internal/leads"
	"github.com/sirupsen/logrus"
)

var exportPaths = map[leads.Source]string{
	leads.SourceFairPay: "/leads/fair-pay",
	leads.SourcePCP:     "/leads/pcp",
	leads.SourceDPF:     "/leads/dpf",
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "csv", "csv or xlsx")
	outPath := fs.String("out", "", "output file, - for stdout (default leads_export_<date>.<format>)")
	apiURL := fs.String("api", "", "api base URL (default API_BASE_URL)")
	bearer := fs.String("token", "", "admin bearer token forwarded to the api")
	group := fs.String("group", "", "campaign group")
	campaign := fs.String("campaign", "", "fair pay sub-campaign")
	status := fs.String("status", "", "sold or nurture")
	search := fs.String("q", "", "search term")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "csv" && *format != "xlsx" {
		return fmt.Errorf("%w: --format must be csv or xlsx", ErrUsage)
	}

	if err := envutil.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	file, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger, err := file.Logger(os.Stderr)
	if err != nil {
		return err
	}
	if *apiURL == "" {
		*apiURL = envutil.String("API_BASE_URL", "http://localhost:8080")
	}

	client := backend.New(*apiURL, file.BackendTimeout(), logger)
	rows, err := fetchAll(context.Background(), client, leads.Normalizer{Location: file.Location()}, *bearer)
	if err != nil {
		return err
	}
	filter := leads.Filter{
		Group:       strings.ToLower(*group),
		SubCampaign: strings.ToLower(*campaign),
		Status:      strings.ToLower(*status),
		Search:      *search,
	}
	rows = filter.Apply(rows, file.LeadGroups())

	target := *outPath
	if target == "" {
		target = leads.ExportFilename(time.Now(), *format)
	}
	if err := writeExport(target, *format, rows, out); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"rows": len(rows), "format": *format, "out": target}).Info("leads exported")
	return nil
}

// writeExport writes rows to target, or to out when target is "-". A file
// that fails to close is reported as a failed export.
func writeExport(target, format string, rows []leads.Lead, out io.Writer) error {
	if target == "-" {
		return encodeExport(out, format, rows)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if err := encodeExport(f, format, rows); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

func encodeExport(w io.Writer, format string, rows []leads.Lead) error {
	var err error
	if format == "xlsx" {
		err = leads.WriteXLSX(w, rows)
	} else {
		_, err = io.WriteString(w, leads.CSV(rows))
	}
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// fetchAll loads every source in merge order. Unlike the dashboard, any
// failing source fails the export.
func fetchAll(ctx context.Context, client *backend.Client, normalizer leads.Normalizer, bearer string) ([]leads.Lead, error) {
	var board leads.Board
	for _, source := range leads.Sources {
		body, err := client.Fetch(ctx, http.MethodGet, exportPaths[source], nil, bearer)
		if err != nil {
			return nil, fmt.Errorf("fetch %s leads: %w", source, err)
		}
		rows, err := normalizer.Leads(source, body)
		if err != nil {
			return nil, fmt.Errorf("decode %s leads: %w", source, err)
		}
		board.Replace(source, rows)
	}
	return board.Rows(), nil
}
