package minio

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

const (
	reportsRoot = "runs"

	ReportNPV       = "npv.csv"
	ReportCashflows = "cashflows.csv"
	ReportPlan      = "plan.json"

	contentTypeCSV  = "text/csv"
	contentTypeJSON = "application/json"

	// Money columns are written with two decimals.
	moneyPlaces = 2
)

// ReportLink is a downloadable report of a run.
type ReportLink struct {
	Name string    `json:"name"`
	Key  string    `json:"key"`
	Size int64     `json:"size"`
	URL  string    `json:"url"`
	At   time.Time `json:"last_modified"`
}

// ReportExporter writes the reports of completed runs under
// runs/<run id>/ in the report bucket.
type ReportExporter struct {
	repo   ObjectStorageRepository
	expiry time.Duration
	logger logging.Logger
}

func NewReportExporter(repo ObjectStorageRepository, presignExpiry time.Duration, logger logging.Logger) *ReportExporter {
	return &ReportExporter{repo: repo, expiry: presignExpiry, logger: logger.Named("report_exporter")}
}

// ReportPrefix is the object prefix of a run's reports.
func ReportPrefix(runID string) string {
	return path.Join(reportsRoot, runID) + "/"
}

// Export uploads the NPV table, the portfolio cash flows and the build plan,
// and returns the object keys written.
func (e *ReportExporter) Export(ctx context.Context, run *simulation.Run) ([]string, error) {
	if run == nil || run.Result == nil {
		return nil, errors.InvalidParam("run has no result to export")
	}
	res := run.Result

	var reports []struct {
		name, contentType string
		data              []byte
	}
	add := func(name, contentType string, data []byte) {
		reports = append(reports, struct {
			name, contentType string
			data              []byte
		}{name, contentType, data})
	}

	if res.NPV != nil {
		data, err := npvCSV(res.NPV)
		if err != nil {
			return nil, err
		}
		add(ReportNPV, contentTypeCSV, data)
	}
	if res.Portfolio != nil {
		data, err := cashflowCSV(res.Portfolio)
		if err != nil {
			return nil, err
		}
		add(ReportCashflows, contentTypeCSV, data)
	}
	plan, err := planJSON(run)
	if err != nil {
		return nil, err
	}
	add(ReportPlan, contentTypeJSON, plan)

	keys := make([]string, 0, len(reports))
	for _, r := range reports {
		key := ReportPrefix(run.ID) + r.name
		_, err := e.repo.Upload(ctx, &UploadRequest{
			ObjectKey:   key,
			Data:        r.data,
			ContentType: r.contentType,
			Metadata:    map[string]string{"run-id": run.ID, "fingerprint": run.Fingerprint},
		})
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	e.logger.Info("Reports exported", logging.String(logging.FieldRunID, run.ID), logging.Int("count", len(keys)))
	return keys, nil
}

// Links lists a run's reports with presigned download URLs.
func (e *ReportExporter) Links(ctx context.Context, runID string) ([]ReportLink, error) {
	objs, err := e.repo.List(ctx, ReportPrefix(runID))
	if err != nil {
		return nil, err
	}
	links := make([]ReportLink, 0, len(objs))
	for _, o := range objs {
		u, err := e.repo.GetPresignedDownloadURL(ctx, o.ObjectKey, e.expiry)
		if err != nil {
			return nil, err
		}
		links = append(links, ReportLink{
			Name: path.Base(o.ObjectKey),
			Key:  o.ObjectKey,
			Size: o.Size,
			URL:  u,
			At:   o.LastModified,
		})
	}
	return links, nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(moneyPlaces).StringFixed(moneyPlaces)
}

func npvCSV(t *finance.NPVTable) ([]byte, error) {
	rows := [][]string{{"year", "capex", "opex", "revenue", "pv", "cum_pv"}}
	for _, r := range t.Rows {
		rows = append(rows, []string{
			strconv.Itoa(r.Year), money(r.Capex), money(r.Opex), money(r.Revenue), money(r.PV), money(r.CumPV),
		})
	}
	rows = append(rows, []string{"npv", "", "", "", "", money(t.NPV)})
	return writeCSV(rows)
}

func cashflowCSV(p *finance.Portfolio) ([]byte, error) {
	rows := [][]string{{"year", "capex", "maintenance", "insurance", "energy", "labour", "demurrage", "revenue"}}
	line := func(label string, r finance.Row) []string {
		return []string{
			label, money(r.Capex), money(r.Maintenance), money(r.Insurance),
			money(r.Energy), money(r.Labour), money(r.Demurrage), money(r.Revenue),
		}
	}
	for _, r := range p.Rows {
		rows = append(rows, line(strconv.Itoa(r.Year), r))
	}
	rows = append(rows, line("total", p.Totals()))
	return writeCSV(rows)
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv report")
	}
	return buf.Bytes(), nil
}

type planElement struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	YearOnline int    `json:"year_online"`
	Capex      string `json:"capex"`
}

type planDocument struct {
	RunID       string                   `json:"run_id"`
	Name        string                   `json:"name"`
	Fingerprint string                   `json:"fingerprint"`
	Horizon     finance.Horizon          `json:"horizon"`
	NPV         string                   `json:"npv,omitempty"`
	Elements    []planElement            `json:"elements"`
	Years       []simulation.YearSummary `json:"years"`
}

func planJSON(run *simulation.Run) ([]byte, error) {
	res := run.Result
	doc := planDocument{
		RunID:       run.ID,
		Name:        run.Name,
		Fingerprint: run.Fingerprint,
		Horizon:     res.Horizon,
		Elements:    make([]planElement, 0, len(res.Elements)),
		Years:       res.Years,
	}
	if res.NPV != nil {
		doc.NPV = money(res.NPV.NPV)
	}
	for _, el := range res.Elements {
		doc.Elements = append(doc.Elements, planElement{
			ID:         el.ID,
			Name:       el.Name,
			Kind:       string(el.Kind),
			YearOnline: el.YearOnline,
			Capex:      money(el.Capex),
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode build plan")
	}
	return data, nil
}
