package repository

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
)

func (r *PostgresRepository) GetRRset(ctx context.Context, domainID uuid.UUID, subname, rrType string) (*domain.RRset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, subname, type, ttl, touched FROM rrsets
		 WHERE domain_id = $1 AND subname = $2 AND type = $3`,
		domainID, subname, rrType)
	var rs domain.RRset
	if err := row.Scan(&rs.ID, &rs.DomainID, &rs.Subname, &rs.Type, &rs.TTL, &rs.Touched); err != nil {
		return nil, mapDBError(err, "rrset not found")
	}
	records, err := r.recordsFor(ctx, r.db, rs.ID)
	if err != nil {
		return nil, err
	}
	rs.Records = records
	return &rs, nil
}

func (r *PostgresRepository) ListRRsets(ctx context.Context, domainID uuid.UUID, filter ports.RRsetFilter) ([]domain.RRset, error) {
	return r.listRRsetsWith(ctx, r.db, domainID, filter)
}

func (r *PostgresRepository) listRRsetsWith(ctx context.Context, q querier, domainID uuid.UUID, filter ports.RRsetFilter) ([]domain.RRset, error) {
	query := `SELECT id, domain_id, subname, type, ttl, touched FROM rrsets WHERE domain_id = $1`
	args := []any{domainID}
	if filter.Subname != nil {
		args = append(args, *filter.Subname)
		query += ` AND subname = $2`
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += ` AND type = $` + itoa(len(args))
	}
	if filter.Cursor != uuid.Nil {
		args = append(args, filter.Cursor)
		query += ` AND id > $` + itoa(len(args))
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []domain.RRset
	for rows.Next() {
		var rs domain.RRset
		if err := rows.Scan(&rs.ID, &rs.DomainID, &rs.Subname, &rs.Type, &rs.TTL, &rs.Touched); err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "")
	}
	for i := range out {
		records, err := r.recordsFor(ctx, q, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Records = records
	}
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *PostgresRepository) recordsFor(ctx context.Context, q querier, rrsetID uuid.UUID) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT content FROM rrs WHERE rrset_id = $1 ORDER BY content`, rrsetID)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	records := []string{}
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, mapDBError(err, "")
		}
		records = append(records, content)
	}
	return records, mapDBError(rows.Err(), "")
}

// ApplyRRsetChanges commits the change set in one transaction, serialized
// per domain via a row lock. The diff itself is derived by build from the
// rows read under that lock. A uniqueness race gets one transparent retry,
// which re-reads and rebuilds.
func (r *PostgresRepository) ApplyRRsetChanges(ctx context.Context, domainID uuid.UUID, build ports.DiffBuilder) (*domain.ZoneDiff, error) {
	diff, err := r.applyOnce(ctx, domainID, build)
	if err != nil && domain.IsKind(err, domain.KindConflict) {
		diff, err = r.applyOnce(ctx, domainID, build)
	}
	return diff, err
}

func (r *PostgresRepository) applyOnce(ctx context.Context, domainID uuid.UUID, build ports.DiffBuilder) (*domain.ZoneDiff, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer tx.Rollback()

	var domainName string
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM domains WHERE id = $1 FOR UPDATE`, domainID).Scan(&domainName)
	if err != nil {
		return nil, mapDBError(err, "domain not found")
	}

	current, err := r.listRRsetsWith(ctx, tx, domainID, ports.RRsetFilter{})
	if err != nil {
		return nil, err
	}
	diff, err := build(current)
	if err != nil {
		return nil, err
	}
	changes := *diff
	changes.DomainName = domainName
	if changes.Empty() {
		return &changes, nil
	}

	for i := range changes.Created {
		rs := &changes.Created[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rrsets (id, domain_id, subname, type, ttl, touched)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rs.ID, domainID, rs.Subname, rs.Type, rs.TTL, rs.Touched); err != nil {
			return nil, mapDBError(err, "")
		}
		if err := insertRecords(ctx, tx, rs.ID, rs.Records); err != nil {
			return nil, err
		}
	}
	for i := range changes.Updated {
		rs := &changes.Updated[i]
		if _, err := tx.ExecContext(ctx,
			`UPDATE rrsets SET ttl = $2, touched = $3 WHERE id = $1`,
			rs.ID, rs.TTL, rs.Touched); err != nil {
			return nil, mapDBError(err, "")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rrs WHERE rrset_id = $1`, rs.ID); err != nil {
			return nil, mapDBError(err, "")
		}
		if err := insertRecords(ctx, tx, rs.ID, rs.Records); err != nil {
			return nil, err
		}
	}
	for _, key := range changes.Deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rrsets WHERE domain_id = $1 AND subname = $2 AND type = $3`,
			domainID, key.Subname, key.Type); err != nil {
			return nil, mapDBError(err, "")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapDBError(err, "")
	}
	return &changes, nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, rrsetID uuid.UUID, records []string) error {
	for _, content := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rrs (rrset_id, content) VALUES ($1, $2)`, rrsetID, content); err != nil {
			return mapDBError(err, "")
		}
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
