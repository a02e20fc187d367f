// Package repository implements the persistence port on PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// PostgresRepository implements ports.Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Open connects and verifies the database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func mapDBError(err error, notFoundDetail string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.E(domain.KindNotFound, notFoundDetail)
	case isUniqueViolation(err):
		return domain.Wrap(domain.KindConflict, "conflicting row exists", err)
	default:
		return domain.Wrap(domain.KindStorageGone, "database error", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- users ---

const userColumns = `id, email, email_norm, created, credentials_changed, throttle_daily_rate, limit_domains`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var throttle, limit sql.NullInt64
	err := row.Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Created, &u.CredentialsChanged, &throttle, &limit)
	if err != nil {
		return nil, err
	}
	if throttle.Valid {
		v := int(throttle.Int64)
		u.ThrottleDailyRate = &v
	}
	if limit.Valid {
		v := int(limit.Int64)
		u.LimitDomains = &v
	}
	return &u, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	return u, mapDBError(err, "user not found")
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, emailNorm string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email_norm = $1`, emailNorm)
	u, err := scanUser(row)
	return u, mapDBError(err, "user not found")
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, email_norm, created, credentials_changed, throttle_daily_rate, limit_domains)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.EmailNorm, u.Created, u.CredentialsChanged,
		nullInt(u.ThrottleDailyRate), nullInt(u.LimitDomains))
	return mapDBError(err, "")
}

func (r *PostgresRepository) CountDomains(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM domains WHERE owner_id = $1`, ownerID).Scan(&n)
	return n, mapDBError(err, "")
}

// --- tokens ---

const tokenColumns = `id, user_id, created, name, key_hash, key_prefix,
	perm_manage_tokens, perm_create_domain, perm_delete_domain, auto_policy,
	allowed_subnets::text, max_age_secs, max_unused_secs, mfa, last_used`

func scanToken(row interface{ Scan(...any) error }) (*domain.Token, error) {
	var t domain.Token
	var subnets string
	var maxAge, maxUnused sql.NullInt64
	var lastUsed sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Created, &t.Name, &t.KeyHash, &t.KeyPrefix,
		&t.PermManageTokens, &t.PermCreateDomain, &t.PermDeleteDomain, &t.AutoPolicy,
		&subnets, &maxAge, &maxUnused, &t.MFA, &lastUsed)
	if err != nil {
		return nil, err
	}
	t.AllowedSubnets, err = parseCIDRArray(subnets)
	if err != nil {
		return nil, err
	}
	if maxAge.Valid {
		d := time.Duration(maxAge.Int64) * time.Second
		t.MaxAge = &d
	}
	if maxUnused.Valid {
		d := time.Duration(maxUnused.Int64) * time.Second
		t.MaxUnusedPeriod = &d
	}
	if lastUsed.Valid {
		t.LastUsed = &lastUsed.Time
	}
	return &t, nil
}

func (r *PostgresRepository) GetTokenByPrefix(ctx context.Context, prefix string) ([]domain.Token, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, *t)
	}
	return out, mapDBError(rows.Err(), "")
}

func (r *PostgresRepository) GetToken(ctx context.Context, userID, tokenID uuid.UUID) (*domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE id = $1 AND user_id = $2`, tokenID, userID)
	t, err := scanToken(row)
	return t, mapDBError(err, "token not found")
}

func (r *PostgresRepository) ListTokens(ctx context.Context, userID uuid.UUID) ([]domain.Token, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1 ORDER BY created`, userID)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, *t)
	}
	return out, mapDBError(rows.Err(), "")
}

func (r *PostgresRepository) CreateToken(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, created, name, key_hash, key_prefix,
			perm_manage_tokens, perm_create_domain, perm_delete_domain, auto_policy,
			allowed_subnets, max_age_secs, max_unused_secs, mfa)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::cidr[], $12, $13, $14)`,
		t.ID, t.UserID, t.Created, t.Name, t.KeyHash, t.KeyPrefix,
		t.PermManageTokens, t.PermCreateDomain, t.PermDeleteDomain, t.AutoPolicy,
		formatCIDRArray(t.AllowedSubnets), nullSeconds(t.MaxAge), nullSeconds(t.MaxUnusedPeriod), t.MFA)
	return mapDBError(err, "")
}

func (r *PostgresRepository) UpdateToken(ctx context.Context, t *domain.Token) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET name = $3, perm_manage_tokens = $4, perm_create_domain = $5,
			perm_delete_domain = $6, auto_policy = $7, allowed_subnets = $8::cidr[],
			max_age_secs = $9, max_unused_secs = $10, mfa = $11
		 WHERE id = $1 AND user_id = $2`,
		t.ID, t.UserID, t.Name, t.PermManageTokens, t.PermCreateDomain,
		t.PermDeleteDomain, t.AutoPolicy, formatCIDRArray(t.AllowedSubnets),
		nullSeconds(t.MaxAge), nullSeconds(t.MaxUnusedPeriod), t.MFA)
	if err != nil {
		return mapDBError(err, "")
	}
	return requireRow(res, "token not found")
}

func (r *PostgresRepository) DeleteToken(ctx context.Context, userID, tokenID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE id = $1 AND user_id = $2`, tokenID, userID)
	if err != nil {
		return mapDBError(err, "")
	}
	return requireRow(res, "token not found")
}

func (r *PostgresRepository) TouchToken(ctx context.Context, tokenID uuid.UUID, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET last_used = $2 WHERE id = $1`, tokenID, usedAt)
	return mapDBError(err, "")
}

// --- policies ---

const policyColumns = `id, token_id, domain, subname, type, perm_write`

func scanPolicy(row interface{ Scan(...any) error }) (*domain.TokenPolicy, error) {
	var p domain.TokenPolicy
	var d, s, t sql.NullString
	if err := row.Scan(&p.ID, &p.TokenID, &d, &s, &t, &p.PermWrite); err != nil {
		return nil, err
	}
	if d.Valid {
		p.Domain = &d.String
	}
	if s.Valid {
		p.Subname = &s.String
	}
	if t.Valid {
		p.Type = &t.String
	}
	return &p, nil
}

func (r *PostgresRepository) ListPolicies(ctx context.Context, tokenID uuid.UUID) ([]domain.TokenPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM token_policies WHERE token_id = $1`, tokenID)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []domain.TokenPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, *p)
	}
	return out, mapDBError(rows.Err(), "")
}

func (r *PostgresRepository) CreatePolicy(ctx context.Context, p *domain.TokenPolicy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO token_policies (id, token_id, domain, subname, type, perm_write)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.TokenID, nullStr(p.Domain), nullStr(p.Subname), nullStr(p.Type), p.PermWrite)
	return mapDBError(err, "")
}

func (r *PostgresRepository) UpdatePolicy(ctx context.Context, p *domain.TokenPolicy) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE token_policies SET perm_write = $3 WHERE id = $1 AND token_id = $2`,
		p.ID, p.TokenID, p.PermWrite)
	if err != nil {
		return mapDBError(err, "")
	}
	return requireRow(res, "policy not found")
}

func (r *PostgresRepository) DeletePolicy(ctx context.Context, tokenID, policyID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM token_policies WHERE id = $1 AND token_id = $2`, policyID, tokenID)
	if err != nil {
		return mapDBError(err, "")
	}
	return requireRow(res, "policy not found")
}

// --- domains ---

const domainColumns = `id, owner_id, name, created, minimum_ttl, delegation_checked,
	is_registered, has_all_nameservers, is_delegated, is_secured`

func scanDomain(row interface{ Scan(...any) error }) (*domain.Domain, error) {
	var d domain.Domain
	var checked sql.NullTime
	var reg, all, del, sec sql.NullBool
	err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Created, &d.MinimumTTL,
		&checked, &reg, &all, &del, &sec)
	if err != nil {
		return nil, err
	}
	if checked.Valid {
		d.DelegationChecked = &checked.Time
	}
	d.IsRegistered = nullBoolPtr(reg)
	d.HasAllNameservers = nullBoolPtr(all)
	d.IsDelegated = nullBoolPtr(del)
	d.IsSecured = nullBoolPtr(sec)
	return &d, nil
}

func (r *PostgresRepository) GetDomain(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Domain, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE owner_id = $1 AND name = $2`, ownerID, name)
	d, err := scanDomain(row)
	return d, mapDBError(err, "domain not found")
}

func (r *PostgresRepository) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE name = $1`, name)
	d, err := scanDomain(row)
	return d, mapDBError(err, "domain not found")
}

func (r *PostgresRepository) ListDomains(ctx context.Context, ownerID uuid.UUID) ([]domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, *d)
	}
	return out, mapDBError(rows.Err(), "")
}

func (r *PostgresRepository) ListDomainNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM domains ORDER BY name`)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, name)
	}
	return out, mapDBError(rows.Err(), "")
}

// FindCoveringDomains matches the name itself, its ancestors, and its
// descendants.
func (r *PostgresRepository) FindCoveringDomains(ctx context.Context, name string) ([]domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM domains
		 WHERE name = $1 OR $1 LIKE '%.' || name OR name LIKE '%.' || $1`, name)
	if err != nil {
		return nil, mapDBError(err, "")
	}
	defer rows.Close()
	var out []domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, mapDBError(err, "")
		}
		out = append(out, *d)
	}
	return out, mapDBError(rows.Err(), "")
}

func (r *PostgresRepository) CreateDomain(ctx context.Context, d *domain.Domain) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO domains (id, owner_id, name, created, minimum_ttl)
		 VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.OwnerID, d.Name, d.Created, d.MinimumTTL)
	return mapDBError(err, "")
}

func (r *PostgresRepository) DeleteDomain(ctx context.Context, ownerID uuid.UUID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM domains WHERE owner_id = $1 AND name = $2`, ownerID, name)
	if err != nil {
		return mapDBError(err, "")
	}
	return requireRow(res, "domain not found")
}

func (r *PostgresRepository) UpdateDelegationStatus(ctx context.Context, domainID uuid.UUID, d *domain.Domain) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE domains SET delegation_checked = $2, is_registered = $3,
			has_all_nameservers = $4, is_delegated = $5, is_secured = $6
		 WHERE id = $1`,
		domainID, nullTime(d.DelegationChecked), nullBool(d.IsRegistered),
		nullBool(d.HasAllNameservers), nullBool(d.IsDelegated), nullBool(d.IsSecured))
	if err != nil {
		return mapDBError(err, "")
	}
	return requireRow(res, "domain not found")
}

// --- helpers ---

func requireRow(res sql.Result, notFoundDetail string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapDBError(err, "")
	}
	if n == 0 {
		return domain.E(domain.KindNotFound, notFoundDetail)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullSeconds(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d.Seconds()), Valid: true}
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullBoolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

// formatCIDRArray renders prefixes as a Postgres array literal.
func formatCIDRArray(prefixes []netip.Prefix) string {
	if len(prefixes) == 0 {
		return "{}"
	}
	parts := make([]string, len(prefixes))
	for i, p := range prefixes {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// parseCIDRArray reads the ::text form of a cidr[] column.
func parseCIDRArray(s string) ([]netip.Prefix, error) {
	s = strings.Trim(s, "{}")
	if s == "" {
		return nil, nil
	}
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		p, err := netip.ParsePrefix(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q in allowed_subnets: %w", part, err)
		}
		out = append(out, p)
	}
	return out, nil
}
