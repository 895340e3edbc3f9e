package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrAlertNotFound is returned when no alert has the given id.
	ErrAlertNotFound = errors.New("storage: alert not found")
	// ErrDuplicateAlert is returned when the route already has an active alert.
	ErrDuplicateAlert = errors.New("storage: route already has an active alert")
)

const uniqueViolation = "23505"

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS price_alerts (
        id           UUID PRIMARY KEY,
        origin       CHAR(3) NOT NULL,
        destination  CHAR(3) NOT NULL,
        threshold    NUMERIC(14,2) NOT NULL,
        currency     CHAR(3) NOT NULL DEFAULT 'EUR',
        is_active    BOOLEAN NOT NULL DEFAULT TRUE,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        triggered_at TIMESTAMPTZ
    );
    CREATE UNIQUE INDEX IF NOT EXISTS price_alerts_active_route
        ON price_alerts (origin, destination) WHERE is_active;
    CREATE TABLE IF NOT EXISTS price_snapshots (
        id             BIGSERIAL PRIMARY KEY,
        alert_id       UUID REFERENCES price_alerts (id) ON DELETE SET NULL,
        origin         CHAR(3) NOT NULL,
        destination    CHAR(3) NOT NULL,
        departure_date TEXT NOT NULL,
        price          NUMERIC(14,2) NOT NULL,
        currency       CHAR(3) NOT NULL,
        provenance     TEXT NOT NULL,
        triggered      BOOLEAN NOT NULL DEFAULT FALSE,
        observed_at    TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS price_snapshots_observed_at
        ON price_snapshots (observed_at DESC);`

	insertAlertSQL = `INSERT INTO price_alerts (
        id,
        origin,
        destination,
        threshold,
        currency,
        is_active,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,TRUE,$6
    );`

	selectAlertColumns = `SELECT
        id::text,
        origin,
        destination,
        threshold::text,
        currency,
        is_active,
        created_at,
        triggered_at
    FROM price_alerts`

	getAlertSQL = selectAlertColumns + `
    WHERE id = $1;`

	listAlertsSQL = selectAlertColumns + `
    WHERE ($1 = FALSE OR is_active)
    ORDER BY created_at;`

	deactivateAlertSQL = `UPDATE price_alerts
    SET is_active = FALSE, triggered_at = COALESCE($2, triggered_at)
    WHERE id = $1;`

	insertSnapshotSQL = `INSERT INTO price_snapshots (
        alert_id,
        origin,
        destination,
        departure_date,
        price,
        currency,
        provenance,
        triggered,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id;`

	listRecentSnapshotsSQL = `SELECT
        id,
        alert_id::text,
        origin,
        destination,
        departure_date,
        price::text,
        currency,
        provenance,
        triggered,
        observed_at
    FROM price_snapshots
    ORDER BY observed_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore manages the alert registry.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (PriceAlert, error)
	ListAlerts(ctx context.Context, activeOnly bool) ([]PriceAlert, error)
	DeactivateAlert(ctx context.Context, id uuid.UUID, triggeredAt *time.Time) error
}

// SnapshotStore records observed prices.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snapshot PriceSnapshot) (PriceSnapshot, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository is everything the service needs from storage.
type Repository interface {
	AlertStore
	SnapshotStore
	AdvisoryLocker
	Close()
}

// Store is the PostgreSQL implementation of Repository.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// CreateAlert registers an active alert and assigns its id.
func (s *Store) CreateAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceAlert{}, err
	}

	alert = prepareAlert(alert, s.now())
	_, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		alert.Origin,
		alert.Destination,
		alert.Threshold.String(),
		alert.Currency,
		alert.CreatedAt,
	)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolation {
			return PriceAlert{}, ErrDuplicateAlert
		}
		return PriceAlert{}, fmt.Errorf("insert alert: %w", execErr)
	}
	return alert, nil
}

// GetAlert loads one alert.
func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceAlert{}, err
	}

	rows, queryErr := pool.Query(ctx, getAlertSQL, id)
	if queryErr != nil {
		return PriceAlert{}, fmt.Errorf("get alert: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return PriceAlert{}, fmt.Errorf("get alert: %w", rows.Err())
		}
		return PriceAlert{}, ErrAlertNotFound
	}
	return scanAlert(rows)
}

// ListAlerts lists alerts in creation order.
func (s *Store) ListAlerts(ctx context.Context, activeOnly bool) ([]PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsSQL, activeOnly)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]PriceAlert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeactivateAlert switches an alert off. triggeredAt is recorded when set.
func (s *Store) DeactivateAlert(ctx context.Context, id uuid.UUID, triggeredAt *time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateAlertSQL, id, triggeredAt)
	if execErr != nil {
		return fmt.Errorf("deactivate alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// InsertSnapshot persists an observed price.
func (s *Store) InsertSnapshot(ctx context.Context, snapshot PriceSnapshot) (PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSnapshot{}, err
	}

	var alertID any
	if snapshot.AlertID != nil {
		alertID = *snapshot.AlertID
	}
	if snapshot.ObservedAt.IsZero() {
		snapshot.ObservedAt = s.now().UTC()
	}

	row := pool.QueryRow(ctx, insertSnapshotSQL,
		alertID,
		snapshot.Origin,
		snapshot.Destination,
		snapshot.DepartureDate,
		snapshot.Price.String(),
		snapshot.Currency,
		snapshot.Provenance,
		snapshot.Triggered,
		snapshot.ObservedAt,
	)
	if scanErr := row.Scan(&snapshot.ID); scanErr != nil {
		return PriceSnapshot{}, fmt.Errorf("insert snapshot: %w", scanErr)
	}
	return snapshot, nil
}

// ListRecentSnapshots lists the newest snapshots first.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]PriceSnapshot, 0, limit)
	for rows.Next() {
		var (
			snap     PriceSnapshot
			alertID  *string
			priceStr string
		)
		if err := rows.Scan(
			&snap.ID,
			&alertID,
			&snap.Origin,
			&snap.Destination,
			&snap.DepartureDate,
			&priceStr,
			&snap.Currency,
			&snap.Provenance,
			&snap.Triggered,
			&snap.ObservedAt,
		); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse snapshot price: %w", convErr)
		}
		snap.Price = price
		if alertID != nil {
			id, parseErr := uuid.Parse(*alertID)
			if parseErr != nil {
				return nil, fmt.Errorf("parse snapshot alert id: %w", parseErr)
			}
			snap.AlertID = &id
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanAlert(rows pgx.Rows) (PriceAlert, error) {
	var (
		idStr        string
		thresholdStr string
		alert        PriceAlert
	)
	if err := rows.Scan(
		&idStr,
		&alert.Origin,
		&alert.Destination,
		&thresholdStr,
		&alert.Currency,
		&alert.IsActive,
		&alert.CreatedAt,
		&alert.TriggeredAt,
	); err != nil {
		return PriceAlert{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return PriceAlert{}, fmt.Errorf("parse alert id: %w", err)
	}
	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return PriceAlert{}, fmt.Errorf("parse threshold: %w", err)
	}
	alert.ID = id
	alert.Threshold = threshold
	return alert, nil
}

// prepareAlert fills the id, timestamps and defaults of a new alert.
func prepareAlert(alert PriceAlert, now time.Time) PriceAlert {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Currency == "" {
		alert.Currency = "EUR"
	}
	alert.IsActive = true
	alert.CreatedAt = now.UTC()
	alert.TriggeredAt = nil
	return alert
}

var _ Repository = (*Store)(nil)
