package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/menu-cli/internal/db"
	"github.com/sells-group/menu-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path status operations.
var preparedStatements = map[string]string{
	"get_restaurant":     `SELECT ` + restaurantColumns + ` FROM restaurants WHERE place_id = $1`,
	"list_photos":        `SELECT photos FROM restaurants WHERE place_id = $1`,
	"batch_statuses":     `SELECT place_id, status FROM restaurants WHERE place_id = ANY($1)`,
	"claim_restaurant":   `UPDATE restaurants SET status = $1, status_error = '', updated_at = $2 WHERE place_id = $3 AND status NOT IN ($4, $5)`,
	"update_status":      `UPDATE restaurants SET status = $1, status_error = $2, processed_at = COALESCE($3, processed_at), updated_at = $4 WHERE place_id = $5`,
	"update_queue_entry": `UPDATE processing_queue SET status = $1, phase = $2, last_error = $3, updated_at = $4 WHERE restaurant_id = $5 AND task_type = $6`,
	"list_menu_items":    `SELECT ` + menuItemColumns + ` FROM menu_items WHERE restaurant_id = $1 ORDER BY position`,
	"count_by_status":    `SELECT status, COUNT(*) FROM restaurants GROUP BY status`,
}

const restaurantColumns = `id, place_id, name, address, latitude, longitude, photos, status, status_error, processed_at, created_at, updated_at`

const menuItemColumns = `id, restaurant_id, name, description, price, category, calories, serving_size, protein, carbs, fat, dietary_tags, allergens, spice_level, confidence_score, availability, source_photos, created_at`

var menuItemCopyColumns = []string{
	"id", "restaurant_id", "position", "name", "description", "price", "category",
	"calories", "serving_size", "protein", "carbs", "fat", "dietary_tags", "allergens",
	"spice_level", "confidence_score", "availability", "source_photos", "created_at",
}

var processingLogColumns = []string{
	"id", "restaurant_id", "place_id", "photo_url", "stage", "status", "model",
	"input_tokens", "output_tokens", "cost", "item_count", "is_menu", "duration_ms",
	"error", "created_at",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Tables may not exist before the first migrate; skip preparing then.
		var ready bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('public.processing_queue') IS NOT NULL`).Scan(&ready); err != nil || !ready {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	place_id     TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	address      TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	photos       TEXT[] NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL DEFAULT 'new',
	status_error TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(status);
CREATE INDEX IF NOT EXISTS idx_restaurants_status_updated ON restaurants(status, updated_at);

CREATE TABLE IF NOT EXISTS menu_items (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	restaurant_id    TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL DEFAULT 0,
	name             TEXT NOT NULL,
	description      TEXT,
	price            NUMERIC(10,2),
	category         TEXT,
	calories         INTEGER,
	serving_size     TEXT,
	protein          DOUBLE PRECISION,
	carbs            DOUBLE PRECISION,
	fat              DOUBLE PRECISION,
	dietary_tags     TEXT[] NOT NULL DEFAULT '{}',
	allergens        TEXT[] NOT NULL DEFAULT '{}',
	spice_level      TEXT,
	confidence_score DOUBLE PRECISION,
	availability     TEXT,
	source_photos    TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant ON menu_items(restaurant_id, position);

CREATE TABLE IF NOT EXISTS processing_logs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	restaurant_id TEXT NOT NULL,
	place_id      TEXT NOT NULL,
	photo_url     TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL,
	status        TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost          NUMERIC(14,6) NOT NULL DEFAULT 0,
	item_count    INTEGER NOT NULL DEFAULT 0,
	is_menu       BOOLEAN,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_processing_logs_restaurant ON processing_logs(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_processing_logs_created ON processing_logs(created_at);

CREATE TABLE IF NOT EXISTS processing_queue (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	restaurant_id TEXT NOT NULL,
	task_type     TEXT NOT NULL,
	status        TEXT NOT NULL,
	phase         TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (restaurant_id, task_type)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetRestaurant(ctx context.Context, placeID string) (*model.Restaurant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE place_id = $1`, placeID)
	r, err := scanPgRestaurant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "restaurant %s", placeID)
		}
		return nil, eris.Wrapf(err, "postgres: get restaurant %s", placeID)
	}
	return r, nil
}

func (s *PostgresStore) CreateRestaurant(ctx context.Context, r model.Restaurant) (*model.Restaurant, error) {
	now := time.Now().UTC()
	if r.Status == "" {
		r.Status = model.StatusNew
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO restaurants (id, place_id, name, address, latitude, longitude, photos, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (place_id) DO NOTHING`,
		uuid.New().String(), r.PlaceID, r.Name, r.Address, r.Latitude, r.Longitude,
		nonNilStrings(r.Photos), string(r.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert restaurant %s", r.PlaceID)
	}
	return s.GetRestaurant(ctx, r.PlaceID)
}

// UpsertRestaurants merges scanned places. Existing rows keep their status.
func (s *PostgresStore) UpsertRestaurants(ctx context.Context, rs []model.Restaurant) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(rs))
	for _, r := range rs {
		status := r.Status
		if status == "" {
			status = model.StatusNew
		}
		rows = append(rows, []any{
			uuid.New().String(), r.PlaceID, r.Name, r.Address, r.Latitude, r.Longitude,
			nonNilStrings(r.Photos), string(status), now, now,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "restaurants",
		Columns:      []string{"id", "place_id", "name", "address", "latitude", "longitude", "photos", "status", "created_at", "updated_at"},
		ConflictKeys: []string{"place_id"},
		UpdateCols:   []string{"name", "address", "latitude", "longitude", "photos", "updated_at"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert restaurants")
}

func (s *PostgresStore) ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]model.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list restaurants")
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanPgRestaurant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan restaurant")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list restaurants iterate")
}

func (s *PostgresStore) ListPhotos(ctx context.Context, placeID string) ([]string, error) {
	var photos []string
	err := s.pool.QueryRow(ctx, `SELECT photos FROM restaurants WHERE place_id = $1`, placeID).Scan(&photos)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "restaurant %s", placeID)
		}
		return nil, eris.Wrapf(err, "postgres: list photos %s", placeID)
	}
	return photos, nil
}

func (s *PostgresStore) BatchStatuses(ctx context.Context, placeIDs []string) (map[string]model.RestaurantStatus, error) {
	out := make(map[string]model.RestaurantStatus, len(placeIDs))
	if len(placeIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT place_id, status FROM restaurants WHERE place_id = ANY($1)`, placeIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: batch statuses")
	}
	defer rows.Close()

	for rows.Next() {
		var placeID, status string
		if err := rows.Scan(&placeID, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status")
		}
		out[placeID] = model.RestaurantStatus(status)
	}
	return out, eris.Wrap(rows.Err(), "postgres: batch statuses iterate")
}

// ClaimForProcessing moves a restaurant to processing unless it is already
// processing or finished. It reports whether this caller won the claim.
func (s *PostgresStore) ClaimForProcessing(ctx context.Context, placeID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET status = $1, status_error = '', updated_at = $2
		 WHERE place_id = $3 AND status NOT IN ($4, $5)`,
		string(model.StatusProcessing), time.Now().UTC(), placeID,
		string(model.StatusProcessing), string(model.StatusFinished),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim restaurant %s", placeID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, placeID string, status model.RestaurantStatus, errMsg string) error {
	now := time.Now().UTC()
	var processedAt *time.Time
	if status == model.StatusFinished {
		processedAt = &now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET status = $1, status_error = $2, processed_at = COALESCE($3, processed_at), updated_at = $4
		 WHERE place_id = $5`,
		string(status), errMsg, processedAt, now, placeID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", placeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "restaurant %s", placeID)
	}
	return nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.RestaurantStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM restaurants GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	out := make(map[model.RestaurantStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		out[model.RestaurantStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: count by status iterate")
}

// TouchProcessing refreshes updated_at on restaurants still in processing.
// Runs call it as a liveness signal so the stale sweep skips them.
func (s *PostgresStore) TouchProcessing(ctx context.Context, placeIDs []string) (int64, error) {
	if len(placeIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET updated_at = $1 WHERE status = $2 AND place_id = ANY($3)`,
		time.Now().UTC(), string(model.StatusProcessing), placeIDs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: touch processing")
	}
	return tag.RowsAffected(), nil
}

// ResetStale returns restaurants whose processing claim has not been touched
// for olderThan to pending so they become claimable again.
func (s *PostgresStore) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET status = $1, status_error = $2, updated_at = $3
		 WHERE status = $4 AND updated_at < $5`,
		string(model.StatusPending), staleError, now,
		string(model.StatusProcessing), now.Add(-olderThan),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset stale")
	}
	return tag.RowsAffected(), nil
}

// ReplaceMenuItems deletes the restaurant's items and writes the new set
// in one transaction.
func (s *PostgresStore) ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace menu items: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM menu_items WHERE restaurant_id = $1`, restaurantID); err != nil {
		return eris.Wrapf(err, "postgres: delete menu items %s", restaurantID)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(items))
	for i, it := range items {
		id := it.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, restaurantID, i, it.Name, it.Description, toNumeric(it.Price), it.Category,
			it.Calories, it.ServingSize, it.Protein, it.Carbs, it.Fat,
			nonNilStrings(it.DietaryTags), nonNilStrings(it.Allergens),
			it.SpiceLevel, it.ConfidenceScore, it.Availability, nonNilStrings(it.SourcePhotos), now,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "menu_items", menuItemCopyColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert menu items %s", restaurantID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: replace menu items: commit")
}

func (s *PostgresStore) ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items WHERE restaurant_id = $1 ORDER BY position`, restaurantID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list menu items %s", restaurantID)
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		var price pgtype.Numeric
		if err := rows.Scan(
			&it.ID, &it.RestaurantID, &it.Name, &it.Description, &price, &it.Category,
			&it.Calories, &it.ServingSize, &it.Protein, &it.Carbs, &it.Fat,
			&it.DietaryTags, &it.Allergens, &it.SpiceLevel, &it.ConfidenceScore,
			&it.Availability, &it.SourcePhotos, &it.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan menu item")
		}
		it.Price = fromNumeric(price)
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list menu items iterate")
}

func (s *PostgresStore) InsertProcessingLogs(ctx context.Context, entries []model.ProcessingLogEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		rows = append(rows, []any{
			id, e.RestaurantID, e.PlaceID, e.PhotoURL, string(e.Stage), e.Status, e.Model,
			e.InputTokens, e.OutputTokens, toNumeric(&e.Cost), e.ItemCount, e.IsMenu,
			e.DurationMs, e.Error, created,
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "processing_logs", processingLogColumns, rows)
	return eris.Wrap(err, "postgres: insert processing logs")
}

// BeginQueueEntry creates or restarts the restaurant's queue entry for
// taskType and bumps its attempt counter.
func (s *PostgresStore) BeginQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO processing_queue (id, restaurant_id, task_type, status, phase, attempts, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 1, '', $6, $6)
		 ON CONFLICT (restaurant_id, task_type) DO UPDATE SET
			status = EXCLUDED.status, phase = EXCLUDED.phase, attempts = processing_queue.attempts + 1,
			last_error = '', updated_at = EXCLUDED.updated_at
		 RETURNING `+queueColumns,
		uuid.New().String(), restaurantID, taskType,
		string(model.StatusProcessing), string(model.PhaseFetching), now,
	)
	e, err := scanQueueEntry(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: begin queue entry %s", restaurantID)
	}
	return e, nil
}

func (s *PostgresStore) UpdateQueueEntry(ctx context.Context, e model.QueueEntry) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_queue SET status = $1, phase = $2, last_error = $3, updated_at = $4
		 WHERE restaurant_id = $5 AND task_type = $6`,
		string(e.Status), string(e.Phase), e.LastError, time.Now().UTC(), e.RestaurantID, e.TaskType,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update queue entry %s", e.RestaurantID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "queue entry %s/%s", e.RestaurantID, e.TaskType)
	}
	return nil
}

func (s *PostgresStore) GetQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM processing_queue WHERE restaurant_id = $1 AND task_type = $2`,
		restaurantID, taskType)
	e, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "queue entry %s/%s", restaurantID, taskType)
		}
		return nil, eris.Wrapf(err, "postgres: get queue entry %s", restaurantID)
	}
	return e, nil
}

func (s *PostgresStore) CostSummary(ctx context.Context, filter CostFilter) ([]model.CostSummary, error) {
	query := `SELECT stage, COUNT(*), COUNT(*) FILTER (WHERE status = 'failed'),
		COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost), 0)
		FROM processing_logs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RestaurantID != "" {
		query += fmt.Sprintf(` AND restaurant_id = $%d`, argIdx)
		args = append(args, filter.RestaurantID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
	}
	query += ` GROUP BY stage ORDER BY stage`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cost summary")
	}
	defer rows.Close()

	var out []model.CostSummary
	for rows.Next() {
		var cs model.CostSummary
		var stage string
		var cost pgtype.Numeric
		if err := rows.Scan(&stage, &cs.Calls, &cs.Failures, &cs.InputTokens, &cs.OutputTokens, &cost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost summary")
		}
		cs.Stage = model.Stage(stage)
		if d := fromNumeric(cost); d != nil {
			cs.Cost = *d
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: cost summary iterate")
}

const queueColumns = `id, restaurant_id, task_type, status, phase, attempts, last_error, created_at, updated_at`

const staleError = "processing claim expired"

type scannable interface {
	Scan(dest ...any) error
}

func scanPgRestaurant(row scannable) (*model.Restaurant, error) {
	var r model.Restaurant
	var status string
	if err := row.Scan(
		&r.ID, &r.PlaceID, &r.Name, &r.Address, &r.Latitude, &r.Longitude, &r.Photos,
		&status, &r.StatusError, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.RestaurantStatus(status)
	return &r, nil
}

func scanQueueEntry(row scannable) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var status, phase string
	if err := row.Scan(
		&e.ID, &e.RestaurantID, &e.TaskType, &status, &phase,
		&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = model.RestaurantStatus(status)
	e.Phase = model.Phase(phase)
	return &e, nil
}

// toNumeric converts an optional decimal into a pgtype.Numeric without
// passing through float64.
func toNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
