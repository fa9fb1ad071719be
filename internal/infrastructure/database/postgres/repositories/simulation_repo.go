package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/database/postgres"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// storedResult is the part of a result kept in simulation_runs.result. The
// build plan and the NPV table live in their own tables.
type storedResult struct {
	Horizon   finance.Horizon          `json:"horizon"`
	Years     []simulation.YearSummary `json:"years"`
	Portfolio *finance.Portfolio       `json:"portfolio"`
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

type postgresSimulationRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresSimulationRepo returns a RunRepository backed by PostgreSQL.
// List leaves Result.Elements empty; use Elements for the build plan.
func NewPostgresSimulationRepo(conn *postgres.Connection, log logging.Logger) simulation.RunRepository {
	return &postgresSimulationRepo{conn: conn, log: log}
}

const runColumns = `
	r.id, r.name, r.fingerprint, r.status, r.scenario, r.result, r.error, r.created_at, r.completed_at,
	n.wacc_nominal, n.wacc_real, n.years, n.capex, n.opex, n.revenue, n.pv, n.cum_pv, n.npv`

const runFrom = `FROM simulation_runs r LEFT JOIN simulation_npv n ON n.run_id = r.id`

func (r *postgresSimulationRepo) Save(ctx context.Context, run *simulation.Run) error {
	if run == nil || run.ID == "" {
		return errors.InvalidParam("run id is required")
	}
	var (
		result []byte
		npv    sql.NullFloat64
	)
	if run.Result != nil {
		var err error
		result, err = json.Marshal(storedResult{
			Horizon:   run.Result.Horizon,
			Years:     run.Result.Years,
			Portfolio: run.Result.Portfolio,
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode simulation result")
		}
	}
	if v, ok := run.NPV(); ok {
		npv = sql.NullFloat64{Float64: v, Valid: true}
	}

	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO simulation_runs (
				id, name, fingerprint, status, scenario, result, error, npv, created_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				result = EXCLUDED.result,
				error = EXCLUDED.error,
				npv = EXCLUDED.npv,
				completed_at = EXCLUDED.completed_at,
				updated_at = NOW()`,
			run.ID, run.Name, run.Fingerprint, string(run.Status), jsonb(run.Scenario), jsonb(result), run.Error, npv,
			run.CreatedAt, run.CompletedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save simulation run").WithDetail(run.ID)
		}
		if run.Result == nil {
			return nil
		}
		if err := r.saveElements(ctx, tx, run.ID, run.Result.Elements); err != nil {
			return err
		}
		if run.Result.NPV != nil {
			return r.saveNPV(ctx, tx, run.ID, run.Result.NPV)
		}
		return nil
	})
}

func (r *postgresSimulationRepo) saveElements(ctx context.Context, tx querier, runID string, elements []terminal.Element) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM simulation_elements WHERE run_id = $1`, runID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear simulation elements")
	}
	for i := range elements {
		e := &elements[i]
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode element").WithDetail(e.Name)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO simulation_elements (run_id, seq, element_id, name, kind, year_online, capex, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, i, e.ID, e.Name, string(e.Kind), e.YearOnline, e.Capex, payload,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save element").WithDetail(e.Name)
		}
	}
	return nil
}

func (r *postgresSimulationRepo) saveNPV(ctx context.Context, tx querier, runID string, t *finance.NPVTable) error {
	n := len(t.Rows)
	years := make([]int64, n)
	capex := make([]float64, n)
	opex := make([]float64, n)
	revenue := make([]float64, n)
	pv := make([]float64, n)
	cum := make([]float64, n)
	for i, row := range t.Rows {
		years[i] = int64(row.Year)
		capex[i] = row.Capex
		opex[i] = row.Opex
		revenue[i] = row.Revenue
		pv[i] = row.PV
		cum[i] = row.CumPV
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO simulation_npv (run_id, wacc_nominal, wacc_real, years, capex, opex, revenue, pv, cum_pv, npv)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			wacc_nominal = EXCLUDED.wacc_nominal,
			wacc_real = EXCLUDED.wacc_real,
			years = EXCLUDED.years,
			capex = EXCLUDED.capex,
			opex = EXCLUDED.opex,
			revenue = EXCLUDED.revenue,
			pv = EXCLUDED.pv,
			cum_pv = EXCLUDED.cum_pv,
			npv = EXCLUDED.npv`,
		runID, t.WACCNominal, t.WACCReal, pq.Array(years), pq.Array(capex), pq.Array(opex),
		pq.Array(revenue), pq.Array(pv), pq.Array(cum), t.NPV,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save npv table").WithDetail(runID)
	}
	return nil
}

func (r *postgresSimulationRepo) FindByID(ctx context.Context, id string) (*simulation.Run, error) {
	db := r.conn.DB()
	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` `+runFrom+` WHERE r.id = $1`, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeSimulationNotFound, "simulation run not found").WithDetail(id)
		}
		return nil, err
	}
	if run.Result != nil {
		elements, err := r.queryElements(ctx, db, id, "")
		if err != nil {
			return nil, err
		}
		run.Result.Elements = elements
	}
	return run, nil
}

func (r *postgresSimulationRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*simulation.Run, error) {
	var id string
	err := r.conn.DB().QueryRowContext(ctx, `
		SELECT id FROM simulation_runs
		WHERE fingerprint = $1 AND status = 'completed'
		ORDER BY created_at DESC, id LIMIT 1`, fingerprint).Scan(&id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeSimulationNotFound, "no completed run for fingerprint").WithDetail(fingerprint)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to find run by fingerprint")
	}
	return r.FindByID(ctx, id)
}

func (r *postgresSimulationRepo) List(ctx context.Context, opts ...simulation.QueryOption) ([]*simulation.Run, error) {
	o := simulation.ApplyOptions(opts...)
	query := `SELECT ` + runColumns + ` ` + runFrom
	var args []interface{}
	if o.Status != "" {
		query += ` WHERE r.status = $1`
		args = append(args, string(o.Status))
	}
	query += fmt.Sprintf(" ORDER BY r.created_at DESC, r.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, o.Limit, o.Offset)

	rows, err := r.conn.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list simulation runs")
	}
	defer rows.Close()

	runs := []*simulation.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list simulation runs")
	}
	return runs, nil
}

func (r *postgresSimulationRepo) Elements(ctx context.Context, runID string, kind terminal.Kind) ([]terminal.Element, error) {
	db := r.conn.DB()
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM simulation_runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to look up simulation run")
	}
	if !exists {
		return nil, errors.New(errors.ErrCodeSimulationNotFound, "simulation run not found").WithDetail(runID)
	}
	return r.queryElements(ctx, db, runID, kind)
}

func (r *postgresSimulationRepo) queryElements(ctx context.Context, q querier, runID string, kind terminal.Kind) ([]terminal.Element, error) {
	query := `SELECT payload FROM simulation_elements WHERE run_id = $1`
	args := []interface{}{runID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, string(kind))
	}
	query += ` ORDER BY seq`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query simulation elements")
	}
	defer rows.Close()

	out := []terminal.Element{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan element")
		}
		var e terminal.Element
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode element")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query simulation elements")
	}
	return out, nil
}

// jsonb maps an empty document to NULL.
func jsonb(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanRun(row rowScanner) (*simulation.Run, error) {
	var (
		run                   simulation.Run
		status                string
		scenario, result      []byte
		completedAt           sql.NullTime
		waccNominal, waccReal sql.NullFloat64
		npv                   sql.NullFloat64
		years                 pq.Int64Array
		capex, opex, revenue  pq.Float64Array
		pv, cum               pq.Float64Array
	)
	err := row.Scan(
		&run.ID, &run.Name, &run.Fingerprint, &status, &scenario, &result, &run.Error, &run.CreatedAt, &completedAt,
		&waccNominal, &waccReal, &years, &capex, &opex, &revenue, &pv, &cum, &npv,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan simulation run")
	}

	run.Status = simulation.RunStatus(status)
	run.CreatedAt = run.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		run.CompletedAt = &t
	}
	if len(scenario) > 0 {
		run.Scenario = json.RawMessage(scenario)
	}
	if len(result) > 0 {
		var sr storedResult
		if err := json.Unmarshal(result, &sr); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode simulation result").WithDetail(run.ID)
		}
		run.Result = &simulation.Result{Horizon: sr.Horizon, Years: sr.Years, Portfolio: sr.Portfolio}
		if npv.Valid {
			table, err := npvTable(waccNominal.Float64, waccReal.Float64, npv.Float64, years, capex, opex, revenue, pv, cum)
			if err != nil {
				return nil, err
			}
			run.Result.NPV = table
		}
	}
	return &run, nil
}

func npvTable(nominal, realRate, npv float64, years pq.Int64Array, capex, opex, revenue, pv, cum pq.Float64Array) (*finance.NPVTable, error) {
	n := len(years)
	for _, col := range [][]float64{capex, opex, revenue, pv, cum} {
		if len(col) != n {
			return nil, errors.New(errors.ErrCodeDatabaseError, "npv columns have different lengths")
		}
	}
	t := &finance.NPVTable{WACCNominal: nominal, WACCReal: realRate, NPV: npv, Rows: make([]finance.NPVRow, n)}
	for i := range t.Rows {
		t.Rows[i] = finance.NPVRow{
			Year:    int(years[i]),
			Capex:   capex[i],
			Opex:    opex[i],
			Revenue: revenue[i],
			PV:      pv[i],
			CumPV:   cum[i],
		}
	}
	return t, nil
}
