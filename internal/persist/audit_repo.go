package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/jackc/pgx/v5"
)

// AuditRunRow is one stored audit pass.
type AuditRunRow struct {
	ID                       int64
	StartedAt                time.Time
	Duration                 time.Duration
	Holders                  int
	ObjectTableErrors        int
	VisibleObjectTableErrors int
	VoyeurTableErrors        int
	RetaliateTargetErrors    int
	DestructionQueueErrors   int
}

func (r AuditRunRow) Total() int {
	return r.ObjectTableErrors + r.VisibleObjectTableErrors + r.VoyeurTableErrors +
		r.RetaliateTargetErrors + r.DestructionQueueErrors
}

type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// SaveReport writes a run and its repairs in one transaction.
func (r *AuditRepo) SaveReport(ctx context.Context, rep *audit.Report) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var runID int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO audit_runs (started_at, duration_ms, holders,
		        object_table_errors, visible_object_table_errors, voyeur_table_errors,
		        retaliate_target_errors, destruction_queue_errors)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		rep.Started, rep.Duration.Milliseconds(), rep.Holders,
		rep.ObjectTableErrors, rep.VisibleObjectTableErrors, rep.VoyeurTableErrors,
		rep.RetaliateTargetErrors, rep.DestructionQueueErrors,
	).Scan(&runID); err != nil {
		return fmt.Errorf("audit insert run: %w", err)
	}

	if len(rep.Repairs) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"audit_repairs"},
			repairColumns,
			pgx.CopyFromRows(repairRows(runID, rep.Repairs)),
		); err != nil {
			return fmt.Errorf("audit insert repairs: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Recent returns the newest runs first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]AuditRunRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, started_at, duration_ms, holders,
		        object_table_errors, visible_object_table_errors, voyeur_table_errors,
		        retaliate_target_errors, destruction_queue_errors
		 FROM audit_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit recent: %w", err)
	}
	defer rows.Close()

	var out []AuditRunRow
	for rows.Next() {
		var row AuditRunRow
		var ms int64
		if err := rows.Scan(&row.ID, &row.StartedAt, &ms, &row.Holders,
			&row.ObjectTableErrors, &row.VisibleObjectTableErrors, &row.VoyeurTableErrors,
			&row.RetaliateTargetErrors, &row.DestructionQueueErrors); err != nil {
			return nil, err
		}
		row.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, row)
	}
	return out, rows.Err()
}

var repairColumns = []string{
	"run_id", "tbl",
	"holder_guid", "holder_name", "holder_position",
	"stale_guid", "stale_name", "stale_position", "stale_destroyed",
}

func repairRows(runID int64, repairs []audit.Repair) [][]any {
	out := make([][]any, 0, len(repairs))
	for _, r := range repairs {
		var holderPos, stalePos *string
		if r.HolderHasPos {
			s := r.HolderPos.String()
			holderPos = &s
		}
		if r.StaleHasPos {
			s := r.StalePos.String()
			stalePos = &s
		}
		out = append(out, []any{
			runID, r.Category.String(),
			int64(r.HolderGuid), r.HolderName, holderPos,
			int64(r.StaleGuid), r.StaleName, stalePos, r.StaleDestroyed,
		})
	}
	return out
}
