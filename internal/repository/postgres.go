package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ddanshin/shortguard/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Println("PostgreSQL store initialized successfully")

	return &PostgresStore{
		pool: pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver,
	)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	log.Println("Migrations applied successfully")
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (p *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.IntervalMinutes <= 0 {
		tenant.IntervalMinutes = 5
	}

	query, args, err := p.sb.
		Insert("tenants").
		Columns("name", "notifications_enabled", "telegram_chat_id", "interval_minutes").
		Values(tenant.Name, tenant.NotificationsEnabled, tenant.TelegramChatID, tenant.IntervalMinutes).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := p.pool.QueryRow(ctx, query, args...).Scan(&tenant.ID); err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	query, args, err := p.sb.
		Select("id", "name", "notifications_enabled", "telegram_chat_id", "interval_minutes", "last_notified_at").
		From("tenants").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var tenant models.Tenant
	err = p.pool.QueryRow(ctx, query, args...).Scan(
		&tenant.ID, &tenant.Name, &tenant.NotificationsEnabled,
		&tenant.TelegramChatID, &tenant.IntervalMinutes, &tenant.LastNotifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return &tenant, nil
}

func (p *PostgresStore) ListNotifiableTenants(ctx context.Context) ([]models.Tenant, error) {
	query, args, err := p.sb.
		Select("id", "name", "notifications_enabled", "telegram_chat_id", "interval_minutes", "last_notified_at").
		From("tenants").
		Where(squirrel.Eq{"notifications_enabled": true}).
		Where(squirrel.NotEq{"telegram_chat_id": ""}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		var tenant models.Tenant
		if err := rows.Scan(
			&tenant.ID, &tenant.Name, &tenant.NotificationsEnabled,
			&tenant.TelegramChatID, &tenant.IntervalMinutes, &tenant.LastNotifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateTenantNotificationSettings(ctx context.Context, id int64, enabled bool, chatID string, intervalMinutes int) error {
	query, args, err := p.sb.
		Update("tenants").
		Set("notifications_enabled", enabled).
		Set("telegram_chat_id", chatID).
		Set("interval_minutes", intervalMinutes).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	cmdTag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SetTenantLastNotified(ctx context.Context, id int64, at time.Time) error {
	query, args, err := p.sb.
		Update("tenants").
		Set("last_notified_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	cmdTag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CreateAlias(ctx context.Context, alias *models.Alias) error {
	query, args, err := p.sb.
		Insert("aliases").
		Columns("custom_domain", "fallback_url").
		Values(alias.CustomDomain, alias.FallbackURL).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := p.pool.QueryRow(ctx, query, args...).Scan(&alias.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("execute query: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetAlias(ctx context.Context, id int64) (*models.Alias, error) {
	query, args, err := p.sb.
		Select("id", "custom_domain", "fallback_url").
		From("aliases").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var alias models.Alias
	err = p.pool.QueryRow(ctx, query, args...).Scan(&alias.ID, &alias.CustomDomain, &alias.FallbackURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return &alias, nil
}

func (p *PostgresStore) GetAliasByHost(ctx context.Context, host string) (*models.Alias, error) {
	query, args, err := p.sb.
		Select("id", "custom_domain", "fallback_url").
		From("aliases").
		Where(squirrel.Eq{"custom_domain": []string{host, "http://" + host, "https://" + host}}).
		OrderBy("id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var alias models.Alias
	err = p.pool.QueryRow(ctx, query, args...).Scan(&alias.ID, &alias.CustomDomain, &alias.FallbackURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return &alias, nil
}

func (p *PostgresStore) CreateShortlink(ctx context.Context, link *models.Shortlink) error {
	query, args, err := p.sb.
		Insert("shortlinks").
		Columns("tenant_id", "short_code", "alias_id", "legacy_url").
		Values(link.TenantID, link.ShortCode, link.AliasID, link.LegacyURL).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := p.pool.QueryRow(ctx, query, args...).Scan(&link.ID, &link.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("execute query: %w", err)
	}
	return nil
}

func (p *PostgresStore) scanShortlink(row pgx.Row) (*models.Shortlink, error) {
	var link models.Shortlink
	err := row.Scan(&link.ID, &link.TenantID, &link.ShortCode, &link.AliasID, &link.LegacyURL, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return &link, nil
}

func (p *PostgresStore) GetShortlink(ctx context.Context, id int64) (*models.Shortlink, error) {
	query, args, err := p.sb.
		Select("id", "tenant_id", "short_code", "alias_id", "legacy_url", "created_at").
		From("shortlinks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return p.scanShortlink(p.pool.QueryRow(ctx, query, args...))
}

func (p *PostgresStore) GetShortlinkByCode(ctx context.Context, shortCode string) (*models.Shortlink, error) {
	query, args, err := p.sb.
		Select("id", "tenant_id", "short_code", "alias_id", "legacy_url", "created_at").
		From("shortlinks").
		Where(squirrel.Eq{"short_code": shortCode}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return p.scanShortlink(p.pool.QueryRow(ctx, query, args...))
}

func (p *PostgresStore) ListShortlinksByTenant(ctx context.Context, tenantID int64) ([]models.Shortlink, error) {
	query, args, err := p.sb.
		Select("id", "tenant_id", "short_code", "alias_id", "legacy_url", "created_at").
		From("shortlinks").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []models.Shortlink
	for rows.Next() {
		var link models.Shortlink
		if err := rows.Scan(&link.ID, &link.TenantID, &link.ShortCode, &link.AliasID, &link.LegacyURL, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteShortlink(ctx context.Context, id int64) error {
	query, args, err := p.sb.
		Delete("shortlinks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	cmdTag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CreateTarget(ctx context.Context, target *models.Target, demoteSiblings bool) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if demoteSiblings {
		query, args, err := p.sb.
			Update("targets").
			Set("is_primary", false).
			Where(squirrel.Eq{"shortlink_id": target.ShortlinkID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("demote siblings: %w", err)
		}
	}

	query, args, err := p.sb.
		Insert("targets").
		Columns("shortlink_id", "url", "blocked", "is_primary").
		Values(target.ShortlinkID, target.URL, target.Blocked, target.Primary).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&target.ID, &target.CreatedAt); err != nil {
		return fmt.Errorf("execute query: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) GetTarget(ctx context.Context, id int64) (*models.Target, error) {
	query, args, err := p.sb.
		Select("id", "shortlink_id", "url", "blocked", "is_primary", "created_at").
		From("targets").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var target models.Target
	err = p.pool.QueryRow(ctx, query, args...).Scan(
		&target.ID, &target.ShortlinkID, &target.URL, &target.Blocked, &target.Primary, &target.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return &target, nil
}

func (p *PostgresStore) ListTargets(ctx context.Context, shortlinkID int64) ([]models.Target, error) {
	query, args, err := p.sb.
		Select("id", "shortlink_id", "url", "blocked", "is_primary", "created_at").
		From("targets").
		Where(squirrel.Eq{"shortlink_id": shortlinkID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []models.Target
	for rows.Next() {
		var target models.Target
		if err := rows.Scan(&target.ID, &target.ShortlinkID, &target.URL, &target.Blocked, &target.Primary, &target.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, target)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ApplyTargetUpdate(ctx context.Context, update TargetUpdate) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if update.ElectPrimary != nil {
		// Lock the shortlink's target rows before any mutation so
		// concurrent elections on the same shortlink serialize without
		// deadlocking on each other's flag updates.
		if err := lockShortlinkTargets(ctx, tx, p.sb, *update.ElectPrimary); err != nil {
			return err
		}
	}

	if update.SetBlocked != nil {
		query, args, err := p.sb.
			Update("targets").
			Set("blocked", update.SetBlocked.Blocked).
			Where(squirrel.Eq{"id": update.SetBlocked.TargetID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		cmdTag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("set blocked: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	if update.ClearPrimary != nil {
		query, args, err := p.sb.
			Update("targets").
			Set("is_primary", false).
			Where(squirrel.Eq{"shortlink_id": *update.ClearPrimary}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("clear primary: %w", err)
		}
	}

	if update.SetPrimary != nil {
		query, args, err := p.sb.
			Update("targets").
			Set("is_primary", true).
			Where(squirrel.Eq{"id": *update.SetPrimary}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		cmdTag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("set primary: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	if update.Delete != nil {
		query, args, err := p.sb.
			Delete("targets").
			Where(squirrel.Eq{"id": *update.Delete}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		cmdTag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete target: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	if update.ElectPrimary != nil {
		if err := electPrimaryTx(ctx, tx, p.sb, *update.ElectPrimary); err != nil {
			return err
		}
	}

	if update.Journal != nil {
		if err := insertStatusChange(ctx, tx, p.sb, update.Journal); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func lockShortlinkTargets(ctx context.Context, tx pgx.Tx, sb squirrel.StatementBuilderType, shortlinkID int64) error {
	query, args, err := sb.
		Select("id").
		From("targets").
		Where(squirrel.Eq{"shortlink_id": shortlinkID}).
		OrderBy("id ASC").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("lock targets: %w", err)
	}
	rows.Close()
	return rows.Err()
}

// electPrimaryTx re-reads the shortlink's targets inside the transaction
// (after the flag mutations) and moves is_primary off a blocked primary.
func electPrimaryTx(ctx context.Context, tx pgx.Tx, sb squirrel.StatementBuilderType, shortlinkID int64) error {
	query, args, err := sb.
		Select("id", "shortlink_id", "blocked", "is_primary").
		From("targets").
		Where(squirrel.Eq{"shortlink_id": shortlinkID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read targets: %w", err)
	}
	defer rows.Close()

	var targets []models.Target
	for rows.Next() {
		var target models.Target
		if err := rows.Scan(&target.ID, &target.ShortlinkID, &target.Blocked, &target.Primary); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read targets: %w", err)
	}
	rows.Close()

	successor, needed, err := electPrimary(targets)
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}

	query, args, err = sb.
		Update("targets").
		Set("is_primary", false).
		Where(squirrel.Eq{"shortlink_id": shortlinkID, "is_primary": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("demote primary: %w", err)
	}

	if successor == nil {
		return nil
	}
	query, args, err = sb.
		Update("targets").
		Set("is_primary", true).
		Where(squirrel.Eq{"id": *successor}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("promote successor: %w", err)
	}
	return nil
}

func insertStatusChange(ctx context.Context, tx pgx.Tx, sb squirrel.StatementBuilderType, change *models.StatusChange) error {
	query, args, err := sb.
		Insert("status_changes").
		Columns("tenant_id", "kind", "shortlink_id", "target_id", "domain_check_id",
			"domain", "url", "previous_blocked", "new_blocked", "delivered").
		Values(change.TenantID, string(change.Kind), change.ShortlinkID, change.TargetID, change.DomainCheckID,
			change.Domain, change.URL, change.PreviousBlocked, change.NewBlocked, false).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&change.ID, &change.CreatedAt); err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

func (p *PostgresStore) CreateDomainCheck(ctx context.Context, check *models.DomainCheck) error {
	query, args, err := p.sb.
		Insert("domain_checks").
		Columns("tenant_id", "domain", "blocked").
		Values(check.TenantID, check.Domain, check.Blocked).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := p.pool.QueryRow(ctx, query, args...).Scan(&check.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("execute query: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetDomainCheck(ctx context.Context, id int64) (*models.DomainCheck, error) {
	query, args, err := p.sb.
		Select("id", "tenant_id", "domain", "blocked").
		From("domain_checks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var check models.DomainCheck
	err = p.pool.QueryRow(ctx, query, args...).Scan(&check.ID, &check.TenantID, &check.Domain, &check.Blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return &check, nil
}

func (p *PostgresStore) ListDomainChecks(ctx context.Context, tenantID int64) ([]models.DomainCheck, error) {
	query, args, err := p.sb.
		Select("id", "tenant_id", "domain", "blocked").
		From("domain_checks").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("domain ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []models.DomainCheck
	for rows.Next() {
		var check models.DomainCheck
		if err := rows.Scan(&check.ID, &check.TenantID, &check.Domain, &check.Blocked); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, check)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetDomainCheckBlocked(ctx context.Context, id int64, blocked bool, journal *models.StatusChange) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := p.sb.
		Update("domain_checks").
		Set("blocked", blocked).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	cmdTag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if journal != nil {
		if err := insertStatusChange(ctx, tx, p.sb, journal); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) ListUndelivered(ctx context.Context, tenantID int64) ([]models.StatusChange, error) {
	query, args, err := p.sb.
		Select("id", "tenant_id", "kind", "shortlink_id", "target_id", "domain_check_id",
			"domain", "url", "previous_blocked", "new_blocked", "delivered", "created_at").
		From("status_changes").
		Where(squirrel.Eq{"tenant_id": tenantID, "delivered": false}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []models.StatusChange
	for rows.Next() {
		var change models.StatusChange
		var kind string
		if err := rows.Scan(
			&change.ID, &change.TenantID, &kind, &change.ShortlinkID, &change.TargetID, &change.DomainCheckID,
			&change.Domain, &change.URL, &change.PreviousBlocked, &change.NewBlocked, &change.Delivered, &change.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		change.Kind = models.ChangeKind(kind)
		out = append(out, change)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := p.sb.
		Update("status_changes").
		Set("delivered", true).
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	return nil
}

func (p *PostgresStore) InsertRedirectLog(ctx context.Context, entry *models.RedirectLog) error {
	query, args, err := p.sb.
		Insert("redirect_logs").
		Columns("shortlink_id", "ip", "country", "referrer", "browser", "browser_version",
			"platform", "platform_version", "device_type").
		Values(entry.ShortlinkID, entry.IP, entry.Country, entry.Referrer, entry.Browser, entry.BrowserVersion,
			entry.Platform, entry.PlatformVersion, entry.DeviceType).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := p.pool.QueryRow(ctx, query, args...).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListRedirectLogs(ctx context.Context, shortlinkID int64) ([]models.RedirectLog, error) {
	query, args, err := p.sb.
		Select("id", "shortlink_id", "ip", "country", "referrer", "browser", "browser_version",
			"platform", "platform_version", "device_type", "created_at").
		From("redirect_logs").
		Where(squirrel.Eq{"shortlink_id": shortlinkID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var out []models.RedirectLog
	for rows.Next() {
		var entry models.RedirectLog
		if err := rows.Scan(
			&entry.ID, &entry.ShortlinkID, &entry.IP, &entry.Country, &entry.Referrer, &entry.Browser,
			&entry.BrowserVersion, &entry.Platform, &entry.PlatformVersion, &entry.DeviceType, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
