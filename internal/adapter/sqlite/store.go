package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/claravin/vinflow/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time checks: Store implements every persistence port.
var (
	_ domain.EntityStore      = (*Store)(nil)
	_ domain.Ledger           = (*Store)(nil)
	_ domain.IntegrityChecker = (*Store)(nil)
	_ domain.MilestoneStore   = (*Store)(nil)
	_ domain.QueueReader      = (*Store)(nil)
	_ domain.ComplianceReader = (*Store)(nil)
	_ domain.CaseLineStore    = (*Store)(nil)
	_ domain.RoleStore        = (*Store)(nil)
	_ domain.Authorizer       = (*Store)(nil)
)

// Store implements the engine's persistence ports using SQLite. The entity
// status update and the ledger append always commit in the same
// transaction, and the ledger carries append-only triggers so history
// cannot be rewritten even below the application layer.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready store. Use this when the *sql.DB has been pre-configured
// (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Timestamps are stored as fixed-width text: nanosecond precision for
// milestone monotonicity, and zero-padded fractional seconds so that
// lexicographic comparison matches chronological order. RFC3339Nano strips
// trailing zeros and therefore does not sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// parseTime accepts any RFC 3339 fractional width, not only the padded
// form this store writes.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}

// --- EntityStore ---

func (s *Store) CreateEntity(ctx context.Context, e domain.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("create entity", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (id, tenant_id, entity_type, status, version, linked_registration_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, string(e.Type), string(e.Status), e.Version,
		nullString(e.LinkedRegistrationID),
		e.CreatedAt.Format(timeFormat),
		e.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return storageErr("create entity", err)
	}

	// Mediated requests carry a milestone row from birth so milestone
	// reads never race entity creation.
	if e.Type == domain.TypeMediatedRequest {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO request_milestones (entity_id) VALUES (?)`, e.ID,
		); err != nil {
			return storageErr("create milestone row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("create entity", err)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, entity_type, status, version, linked_registration_id, created_at, updated_at
		 FROM entities WHERE id = ?`, id,
	)

	var e domain.Entity
	var entityType, status, createdAt, updatedAt string
	var linked sql.NullString

	err := row.Scan(&e.ID, &e.TenantID, &entityType, &status, &e.Version, &linked, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Entity{}, domain.ErrEntityNotFound
		}
		return domain.Entity{}, storageErr("get entity", err)
	}

	e.Type = domain.EntityType(entityType)
	e.Status = domain.Status(status)
	e.LinkedRegistrationID = linked.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)

	return e, nil
}

// ApplyTransition updates the entity's status conditioned on the snapshot's
// version and appends exactly one ledger event, both in one transaction.
// Losing the version race returns ErrStaleState with nothing written.
func (s *Store) ApplyTransition(ctx context.Context, snapshot domain.Entity, event domain.TransitionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("apply transition", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE entities SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(event.ToStatus), event.CreatedAt.Format(timeFormat),
		snapshot.ID, snapshot.Version,
	)
	if err != nil {
		return storageErr("update entity status", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("update entity status", err)
	}
	if rows == 0 {
		// Either the entity vanished or another writer bumped the version
		// first. Distinguish the two without leaving the transaction.
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, snapshot.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return domain.ErrEntityNotFound
		}
		if err != nil {
			return storageErr("check entity", err)
		}
		return domain.ErrStaleState
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transition_events (id, tenant_id, entity_id, entity_type, from_status, to_status, actor_id, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.TenantID, event.EntityID, string(event.EntityType),
		string(event.FromStatus), string(event.ToStatus), event.ActorID,
		nullString(event.Note), event.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return storageErr("append transition event", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("apply transition", err)
	}
	return nil
}

// --- Ledger ---

func (s *Store) History(ctx context.Context, entityID string) ([]domain.TransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, tenant_id, entity_id, entity_type, from_status, to_status, actor_id, note, created_at
		 FROM transition_events
		 WHERE entity_id = ?
		 ORDER BY created_at ASC, seq ASC`, entityID,
	)
	if err != nil {
		return nil, storageErr("read history", err)
	}
	defer rows.Close()

	var events []domain.TransitionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read history", err)
	}
	return events, nil
}

// DetectOrphans scans a tenant's ledger for events whose entity no longer
// exists or whose tenant differs from its entity's. Used by the periodic
// consistency sweep, not on the request path.
func (s *Store) DetectOrphans(ctx context.Context, tenantID string) ([]domain.OrphanEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.seq, e.id, e.tenant_id, e.entity_id, e.entity_type, e.from_status, e.to_status, e.actor_id, e.note, e.created_at,
		        CASE WHEN en.id IS NULL THEN ? ELSE ? END
		 FROM transition_events e
		 LEFT JOIN entities en ON en.id = e.entity_id
		 WHERE e.tenant_id = ? AND (en.id IS NULL OR en.tenant_id <> e.tenant_id)
		 ORDER BY e.seq ASC`,
		domain.OrphanMissingEntity, domain.OrphanTenantMismatch, tenantID,
	)
	if err != nil {
		return nil, storageErr("detect orphans", err)
	}
	defer rows.Close()

	var orphans []domain.OrphanEvent
	for rows.Next() {
		var e domain.TransitionEvent
		var entityType, createdAt, reason string
		var note sql.NullString

		err := rows.Scan(&e.Seq, &e.ID, &e.TenantID, &e.EntityID, &entityType,
			&e.FromStatus, &e.ToStatus, &e.ActorID, &note, &createdAt, &reason)
		if err != nil {
			return nil, storageErr("scan orphan", err)
		}

		e.EntityType = domain.EntityType(entityType)
		e.Note = note.String
		e.CreatedAt = parseTime(createdAt)

		orphans = append(orphans, domain.OrphanEvent{Event: e, Reason: reason})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("detect orphans", err)
	}
	return orphans, nil
}

// DetectBrokenChains replays each of the tenant's entity histories against
// its machine's initial state. Like orphans, a broken chain cannot be
// produced through ApplyTransition; findings point at rows written below
// the application layer.
func (s *Store) DetectBrokenChains(ctx context.Context, tenantID string) ([]domain.ChainViolation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type FROM entities WHERE tenant_id = ? ORDER BY id ASC`, tenantID,
	)
	if err != nil {
		return nil, storageErr("detect broken chains", err)
	}
	defer rows.Close()

	type candidate struct {
		id         string
		entityType domain.EntityType
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var entityType string
		if err := rows.Scan(&c.id, &entityType); err != nil {
			return nil, storageErr("scan entity", err)
		}
		c.entityType = domain.EntityType(entityType)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("detect broken chains", err)
	}

	var violations []domain.ChainViolation
	for _, c := range candidates {
		machine, err := domain.MachineFor(c.entityType)
		if err != nil {
			violations = append(violations, domain.ChainViolation{EntityID: c.id, Detail: err.Error()})
			continue
		}
		events, err := s.History(ctx, c.id)
		if err != nil {
			return nil, err
		}
		if err := domain.VerifyChain(machine.Initial, events); err != nil {
			violations = append(violations, domain.ChainViolation{EntityID: c.id, Detail: err.Error()})
		}
	}
	return violations, nil
}

// TenantIDs returns every tenant with entities or ledger rows, for the
// periodic sweep.
func (s *Store) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM entities
		 UNION
		 SELECT DISTINCT tenant_id FROM transition_events`,
	)
	if err != nil {
		return nil, storageErr("list tenants", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan tenant", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// --- MilestoneStore ---

var milestoneColumns = map[domain.Milestone]string{
	domain.MilestoneForwarded:        "forwarded_at",
	domain.MilestoneResponded:        "responded_at",
	domain.MilestoneConsumerNotified: "consumer_notified_at",
	domain.MilestoneOrderConfirmed:   "order_confirmed_at",
}

func (s *Store) Milestones(ctx context.Context, entityID string) (domain.Milestones, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT entity_id, forwarded_at, responded_at, consumer_notified_at, order_confirmed_at
		 FROM request_milestones WHERE entity_id = ?`, entityID,
	)

	var m domain.Milestones
	var forwarded, responded, notified, confirmed sql.NullString

	err := row.Scan(&m.EntityID, &forwarded, &responded, &notified, &confirmed)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Milestones{}, domain.ErrEntityNotFound
		}
		return domain.Milestones{}, storageErr("read milestones", err)
	}

	m.ForwardedAt = parseNullTime(forwarded)
	m.RespondedAt = parseNullTime(responded)
	m.ConsumerNotifiedAt = parseNullTime(notified)
	m.OrderConfirmedAt = parseNullTime(confirmed)

	return m, nil
}

// SetMilestone stamps a milestone conditioned on the column being unset and
// on the timestamp not regressing behind any milestone already stamped. The
// second predicate matters for racing writers: a caller that validated
// ordering against a snapshot could otherwise commit a timestamp earlier
// than a milestone stamped in between. Timestamps are fixed-width UTC text,
// so the comparison in SQL is chronological.
func (s *Store) SetMilestone(ctx context.Context, entityID string, m domain.Milestone, at time.Time) error {
	column, ok := milestoneColumns[m]
	if !ok {
		return &domain.MilestoneOrderError{Milestone: m, Reason: "unknown milestone"}
	}

	ts := at.Format(timeFormat)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE request_milestones SET %s = ?
		 WHERE entity_id = ? AND %s IS NULL
		   AND ? >= COALESCE(forwarded_at, '')
		   AND ? >= COALESCE(responded_at, '')
		   AND ? >= COALESCE(consumer_notified_at, '')
		   AND ? >= COALESCE(order_confirmed_at, '')`, column, column),
		ts, entityID, ts, ts, ts, ts,
	)
	if err != nil {
		return storageErr("set milestone", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("set milestone", err)
	}
	if rows == 0 {
		var current sql.NullString
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM request_milestones WHERE entity_id = ?`, column), entityID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return domain.ErrEntityNotFound
		}
		if err != nil {
			return storageErr("check milestone row", err)
		}
		if current.Valid {
			return domain.ErrStaleState
		}
		return &domain.MilestoneOrderError{Milestone: m, Reason: "timestamp precedes an already recorded milestone"}
	}
	return nil
}

// --- QueueReader ---

// OpenRequests loads a tenant's mediated requests that still carry operator
// work. Fully confirmed requests drop out; notified-but-unconfirmed ones
// stay so the scheduler can park them in its lowest bucket.
func (s *Store) OpenRequests(ctx context.Context, tenantID string) ([]domain.RequestSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.tenant_id, e.status, m.forwarded_at, m.responded_at, m.consumer_notified_at, e.created_at
		 FROM entities e
		 JOIN request_milestones m ON m.entity_id = e.id
		 WHERE e.tenant_id = ? AND e.entity_type = ? AND m.order_confirmed_at IS NULL`,
		tenantID, string(domain.TypeMediatedRequest),
	)
	if err != nil {
		return nil, storageErr("read open requests", err)
	}
	defer rows.Close()

	var out []domain.RequestSnapshot
	for rows.Next() {
		var r domain.RequestSnapshot
		var status, createdAt string
		var forwarded, responded, notified sql.NullString

		err := rows.Scan(&r.ID, &r.TenantID, &status, &forwarded, &responded, &notified, &createdAt)
		if err != nil {
			return nil, storageErr("scan open request", err)
		}

		r.Status = domain.Status(status)
		r.ForwardedAt = parseNullTime(forwarded)
		r.RespondedAt = parseNullTime(responded)
		r.ConsumerNotifiedAt = parseNullTime(notified)
		r.CreatedAt = parseTime(createdAt)

		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read open requests", err)
	}
	return out, nil
}

// --- ComplianceReader / CaseLineStore ---

func (s *Store) LinesMissingIdentifiers(ctx context.Context, caseID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM case_lines
		 WHERE case_id = ?
		   AND (product_code IS NULL OR product_code = ''
		     OR abv_percent IS NULL OR abv_percent <= 0
		     OR fill_volume_ml IS NULL OR fill_volume_ml <= 0
		     OR country_of_origin IS NULL OR country_of_origin = '')`,
		caseID,
	).Scan(&count)
	if err != nil {
		return 0, storageErr("count incomplete lines", err)
	}
	return count, nil
}

func (s *Store) CreateCaseLine(ctx context.Context, line domain.CaseLine) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO case_lines (id, case_id, tenant_id, product_code, abv_percent, fill_volume_ml, country_of_origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.CaseID, line.TenantID,
		nullString(line.ProductCode), nullFloat(line.ABVPercent), nullInt(line.FillVolumeML),
		nullString(line.CountryOfOrigin), line.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return storageErr("create case line", err)
	}
	return nil
}

// --- RoleStore / Authorizer ---

func (s *Store) GrantRole(ctx context.Context, tenantID, actorID string, role domain.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO actor_roles (actor_id, tenant_id, role) VALUES (?, ?, ?)`,
		actorID, tenantID, string(role),
	)
	if err != nil {
		return storageErr("grant role", err)
	}
	return nil
}

func (s *Store) HasAnyRole(ctx context.Context, tenantID, actorID string, roles []domain.Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	placeholders := strings.Repeat("?,", len(roles))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{actorID, tenantID}
	for _, r := range roles {
		args = append(args, string(r))
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actor_roles WHERE actor_id = ? AND tenant_id = ? AND role IN (`+placeholders+`)`,
		args...,
	).Scan(&count)
	if err != nil {
		return false, storageErr("check roles", err)
	}
	return count > 0, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.TransitionEvent, error) {
	var e domain.TransitionEvent
	var entityType, fromStatus, toStatus, createdAt string
	var note sql.NullString

	err := row.Scan(&e.Seq, &e.ID, &e.TenantID, &e.EntityID, &entityType,
		&fromStatus, &toStatus, &e.ActorID, &note, &createdAt)
	if err != nil {
		return domain.TransitionEvent{}, storageErr("scan event", err)
	}

	e.EntityType = domain.EntityType(entityType)
	e.FromStatus = domain.Status(fromStatus)
	e.ToStatus = domain.Status(toStatus)
	e.Note = note.String
	e.CreatedAt = parseTime(createdAt)

	return e, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
