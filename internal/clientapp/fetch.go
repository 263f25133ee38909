package clientapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/phillip-england/leadsdash/internal/backend"
	"github.com/phillip-england/leadsdash/internal/detailview"
	"github.com/phillip-england/leadsdash/internal/leads"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type sourceRoute struct {
	source leads.Source
	path   string
	label  string
}

// sourceRoutes is also the merge order of the board.
var sourceRoutes = []sourceRoute{
	{source: leads.SourceFairPay, path: "/leads/fair-pay", label: "Fair Pay"},
	{source: leads.SourcePCP, path: "/leads/pcp", label: "PCP"},
	{source: leads.SourceDPF, path: "/leads/dpf", label: "DPF"},
}

func routeFor(source leads.Source) sourceRoute {
	for _, route := range sourceRoutes {
		if route.source == source {
			return route
		}
	}
	return sourceRoute{source: source, path: "/leads/" + string(source), label: string(source)}
}

type boardLoad struct {
	Board  leads.Board
	Errors []string
}

type sourceResult struct {
	rows []leads.Lead
	err  error
}

// loadBoard fetches every source concurrently. A failing source is reported
// in Errors and leaves the others intact; a rejected token fails the load.
func (s *server) loadBoard(ctx context.Context, bearer string) (*boardLoad, error) {
	results := make([]sourceResult, len(sourceRoutes))
	var g errgroup.Group
	for i, route := range sourceRoutes {
		g.Go(func() error {
			rows, err := s.loadSource(ctx, route.source, bearer)
			results[i] = sourceResult{rows: rows, err: err}
			return nil
		})
	}
	_ = g.Wait()

	load := &boardLoad{}
	for i, route := range sourceRoutes {
		res := results[i]
		if res.err != nil {
			if errors.Is(res.err, backend.ErrUnauthorized) {
				return nil, res.err
			}
			s.logger.WithError(res.err).WithField("source", route.source).Warn("lead source unavailable")
			load.Errors = append(load.Errors, fmt.Sprintf("Failed to load %s leads: %s", route.label, errorText(res.err)))
			continue
		}
		load.Board.Replace(route.source, res.rows)
	}
	return load, nil
}

func (s *server) loadSource(ctx context.Context, source leads.Source, bearer string) ([]leads.Lead, error) {
	route := routeFor(source)
	body, err := s.api.Fetch(ctx, http.MethodGet, route.path, nil, bearer)
	if err != nil {
		return nil, fmt.Errorf("fetch %s leads: %w", source, err)
	}
	rows, err := s.normalizer.Leads(source, body)
	if err != nil {
		return nil, fmt.Errorf("decode %s leads: %w", source, err)
	}
	return rows, nil
}

func (s *server) fetchDetail(ctx context.Context, id, bearer string) (*leads.PCPDetail, error) {
	body, err := s.api.Fetch(ctx, http.MethodGet, "/leads/pcp/"+url.PathEscape(id), nil, bearer)
	if err != nil {
		return nil, fmt.Errorf("fetch pcp lead %s: %w", id, err)
	}
	detail, err := s.normalizer.PCPDetail(body)
	if err != nil {
		return nil, fmt.Errorf("decode pcp lead %s: %w", id, err)
	}
	return detail, nil
}

type leadLoad struct {
	Lead      leads.Lead
	Found     bool
	Detail    *leads.PCPDetail
	DetailErr error
}

// loadLead finds the row in its source list and, for PCP, fetches the detail
// record alongside it. A detail failure is kept for display, not returned.
func (s *server) loadLead(ctx context.Context, source leads.Source, id, bearer string) (*leadLoad, error) {
	var (
		rows    []leads.Lead
		listErr error
		load    leadLoad
	)
	var g errgroup.Group
	g.Go(func() error {
		rows, listErr = s.loadSource(ctx, source, bearer)
		return nil
	})
	if source == leads.SourcePCP {
		g.Go(func() error {
			load.Detail, load.DetailErr = s.fetchDetail(ctx, id, bearer)
			return nil
		})
	}
	_ = g.Wait()

	if listErr != nil {
		return nil, listErr
	}
	if errors.Is(load.DetailErr, backend.ErrUnauthorized) {
		return nil, load.DetailErr
	}
	if load.DetailErr != nil {
		s.logger.WithError(load.DetailErr).WithFields(logrus.Fields{"lead": id}).Warn("lead detail unavailable")
	}

	var board leads.Board
	board.Replace(source, rows)
	load.Lead, load.Found = board.Find(source, id)
	return &load, nil
}

// workflow reads the current PCP record so workflow actions are checked
// against the backend state rather than the form that was posted.
func (s *server) workflow(ctx context.Context, id, bearer string) (detailview.Workflow, error) {
	detail, err := s.fetchDetail(ctx, id, bearer)
	if err != nil {
		return detailview.Workflow{}, err
	}
	return detailview.Compose(&detail.Lead, detail, nil, detailview.TabWorkflow).Workflow, nil
}

func errorText(err error) string {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	if errors.Is(err, leads.ErrMalformedEnvelope) || errors.Is(err, leads.ErrUnsuccessful) {
		return err.Error()
	}
	return "lead service unavailable"
}
