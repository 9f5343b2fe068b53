package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/menu-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers so conditional claims stay atomic.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id           TEXT PRIMARY KEY,
	place_id     TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	address      TEXT NOT NULL DEFAULT '',
	latitude     REAL NOT NULL DEFAULT 0,
	longitude    REAL NOT NULL DEFAULT 0,
	photos       TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'new',
	status_error TEXT NOT NULL DEFAULT '',
	processed_at DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(status);

CREATE TABLE IF NOT EXISTS menu_items (
	id               TEXT PRIMARY KEY,
	restaurant_id    TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL DEFAULT 0,
	name             TEXT NOT NULL,
	description      TEXT,
	price            TEXT,
	category         TEXT,
	calories         INTEGER,
	serving_size     TEXT,
	protein          REAL,
	carbs            REAL,
	fat              REAL,
	dietary_tags     TEXT NOT NULL DEFAULT '[]',
	allergens        TEXT NOT NULL DEFAULT '[]',
	spice_level      TEXT,
	confidence_score REAL,
	availability     TEXT,
	source_photos    TEXT NOT NULL DEFAULT '[]',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant ON menu_items(restaurant_id, position);

CREATE TABLE IF NOT EXISTS processing_logs (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	place_id      TEXT NOT NULL,
	photo_url     TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL,
	status        TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          TEXT NOT NULL DEFAULT '0',
	item_count    INTEGER NOT NULL DEFAULT 0,
	is_menu       BOOLEAN,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_processing_logs_restaurant ON processing_logs(restaurant_id);

CREATE TABLE IF NOT EXISTS processing_queue (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	task_type     TEXT NOT NULL,
	status        TEXT NOT NULL,
	phase         TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (restaurant_id, task_type)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRestaurant(ctx context.Context, placeID string) (*model.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE place_id = ?`, placeID)
	r, err := scanSQLiteRestaurant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "restaurant %s", placeID)
		}
		return nil, eris.Wrapf(err, "sqlite: get restaurant %s", placeID)
	}
	return r, nil
}

func (s *SQLiteStore) CreateRestaurant(ctx context.Context, r model.Restaurant) (*model.Restaurant, error) {
	now := time.Now().UTC()
	if r.Status == "" {
		r.Status = model.StatusNew
	}
	photos, err := marshalStrings(r.Photos)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO restaurants (id, place_id, name, address, latitude, longitude, photos, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (place_id) DO NOTHING`,
		uuid.New().String(), r.PlaceID, r.Name, r.Address, r.Latitude, r.Longitude,
		photos, string(r.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert restaurant %s", r.PlaceID)
	}
	return s.GetRestaurant(ctx, r.PlaceID)
}

// UpsertRestaurants merges scanned places. Existing rows keep their status.
func (s *SQLiteStore) UpsertRestaurants(ctx context.Context, rs []model.Restaurant) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert restaurants: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO restaurants (id, place_id, name, address, latitude, longitude, photos, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (place_id) DO UPDATE SET
			name = excluded.name, address = excluded.address, latitude = excluded.latitude,
			longitude = excluded.longitude, photos = excluded.photos, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert restaurants")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var total int64
	for _, r := range rs {
		status := r.Status
		if status == "" {
			status = model.StatusNew
		}
		photos, err := marshalStrings(r.Photos)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), r.PlaceID, r.Name, r.Address, r.Latitude, r.Longitude,
			photos, string(status), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert restaurant %s", r.PlaceID)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert restaurants: commit")
	}
	return total, nil
}

func (s *SQLiteStore) ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]model.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list restaurants")
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanSQLiteRestaurant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan restaurant")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list restaurants iterate")
}

func (s *SQLiteStore) ListPhotos(ctx context.Context, placeID string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT photos FROM restaurants WHERE place_id = ?`, placeID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "restaurant %s", placeID)
		}
		return nil, eris.Wrapf(err, "sqlite: list photos %s", placeID)
	}
	return unmarshalStrings(raw)
}

func (s *SQLiteStore) BatchStatuses(ctx context.Context, placeIDs []string) (map[string]model.RestaurantStatus, error) {
	out := make(map[string]model.RestaurantStatus, len(placeIDs))
	if len(placeIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(placeIDs))
	for i, id := range placeIDs {
		args[i] = id
	}
	query := `SELECT place_id, status FROM restaurants WHERE place_id IN (` + placeholders(len(placeIDs)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: batch statuses")
	}
	defer rows.Close()

	for rows.Next() {
		var placeID, status string
		if err := rows.Scan(&placeID, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status")
		}
		out[placeID] = model.RestaurantStatus(status)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: batch statuses iterate")
}

func (s *SQLiteStore) ClaimForProcessing(ctx context.Context, placeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET status = ?, status_error = '', updated_at = ?
		 WHERE place_id = ? AND status NOT IN (?, ?)`,
		string(model.StatusProcessing), time.Now().UTC(), placeID,
		string(model.StatusProcessing), string(model.StatusFinished),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim restaurant %s", placeID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, placeID string, status model.RestaurantStatus, errMsg string) error {
	now := time.Now().UTC()
	var processedAt *time.Time
	if status == model.StatusFinished {
		processedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET status = ?, status_error = ?, processed_at = COALESCE(?, processed_at), updated_at = ?
		 WHERE place_id = ?`,
		string(status), errMsg, processedAt, now, placeID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", placeID)
	}
	return checkRowsAffected(res, "restaurant", placeID)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.RestaurantStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM restaurants GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	out := make(map[model.RestaurantStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		out[model.RestaurantStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count by status iterate")
}

func (s *SQLiteStore) TouchProcessing(ctx context.Context, placeIDs []string) (int64, error) {
	if len(placeIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(placeIDs)+2)
	args = append(args, time.Now().UTC(), string(model.StatusProcessing))
	for _, id := range placeIDs {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET updated_at = ?
		 WHERE status = ? AND place_id IN (`+placeholders(len(placeIDs))+`)`,
		args...,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: touch processing")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: touch processing rows affected")
}

func (s *SQLiteStore) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET status = ?, status_error = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		string(model.StatusPending), staleError, now,
		string(model.StatusProcessing), now.Add(-olderThan),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset stale")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: reset stale rows affected")
}

func (s *SQLiteStore) ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace menu items: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM menu_items WHERE restaurant_id = ?`, restaurantID); err != nil {
		return eris.Wrapf(err, "sqlite: delete menu items %s", restaurantID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO menu_items (`+strings.Join(menuItemCopyColumns, ", ")+`)
		 VALUES (`+placeholders(len(menuItemCopyColumns))+`)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare menu item insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, it := range items {
		id := it.ID
		if id == "" {
			id = uuid.New().String()
		}
		tags, err := marshalStrings(it.DietaryTags)
		if err != nil {
			return err
		}
		allergens, err := marshalStrings(it.Allergens)
		if err != nil {
			return err
		}
		photos, err := marshalStrings(it.SourcePhotos)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			id, restaurantID, i, it.Name, it.Description, decimalText(it.Price), it.Category,
			it.Calories, it.ServingSize, it.Protein, it.Carbs, it.Fat, tags, allergens,
			it.SpiceLevel, it.ConfidenceScore, it.Availability, photos, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert menu item %q", it.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: replace menu items: commit")
}

func (s *SQLiteStore) ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items WHERE restaurant_id = ? ORDER BY position`, restaurantID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list menu items %s", restaurantID)
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		var price decimal.NullDecimal
		var tags, allergens, photos string
		if err := rows.Scan(
			&it.ID, &it.RestaurantID, &it.Name, &it.Description, &price, &it.Category,
			&it.Calories, &it.ServingSize, &it.Protein, &it.Carbs, &it.Fat,
			&tags, &allergens, &it.SpiceLevel, &it.ConfidenceScore,
			&it.Availability, &photos, &it.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan menu item")
		}
		if price.Valid {
			p := price.Decimal
			it.Price = &p
		}
		if it.DietaryTags, err = unmarshalStrings(tags); err != nil {
			return nil, err
		}
		if it.Allergens, err = unmarshalStrings(allergens); err != nil {
			return nil, err
		}
		if it.SourcePhotos, err = unmarshalStrings(photos); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list menu items iterate")
}

func (s *SQLiteStore) InsertProcessingLogs(ctx context.Context, entries []model.ProcessingLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert processing logs: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO processing_logs (`+strings.Join(processingLogColumns, ", ")+`)
		 VALUES (`+placeholders(len(processingLogColumns))+`)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare processing log insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			id, e.RestaurantID, e.PlaceID, e.PhotoURL, string(e.Stage), e.Status, e.Model,
			e.InputTokens, e.OutputTokens, e.Cost.String(), e.ItemCount, e.IsMenu,
			e.DurationMs, e.Error, created,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert processing log")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: insert processing logs: commit")
}

func (s *SQLiteStore) BeginQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO processing_queue (id, restaurant_id, task_type, status, phase, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, '', ?, ?)
		 ON CONFLICT (restaurant_id, task_type) DO UPDATE SET
			status = excluded.status, phase = excluded.phase, attempts = processing_queue.attempts + 1,
			last_error = '', updated_at = excluded.updated_at
		 RETURNING `+queueColumns,
		uuid.New().String(), restaurantID, taskType,
		string(model.StatusProcessing), string(model.PhaseFetching), now, now,
	)
	e, err := scanQueueEntry(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: begin queue entry %s", restaurantID)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateQueueEntry(ctx context.Context, e model.QueueEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_queue SET status = ?, phase = ?, last_error = ?, updated_at = ?
		 WHERE restaurant_id = ? AND task_type = ?`,
		string(e.Status), string(e.Phase), e.LastError, time.Now().UTC(), e.RestaurantID, e.TaskType,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update queue entry %s", e.RestaurantID)
	}
	return checkRowsAffected(res, "queue entry", e.RestaurantID+"/"+e.TaskType)
}

func (s *SQLiteStore) GetQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM processing_queue WHERE restaurant_id = ? AND task_type = ?`,
		restaurantID, taskType)
	e, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "queue entry %s/%s", restaurantID, taskType)
		}
		return nil, eris.Wrapf(err, "sqlite: get queue entry %s", restaurantID)
	}
	return e, nil
}

// CostSummary folds matching log rows in Go so costs stay exact decimals.
func (s *SQLiteStore) CostSummary(ctx context.Context, filter CostFilter) ([]model.CostSummary, error) {
	query := `SELECT stage, status, input_tokens, output_tokens, cost FROM processing_logs WHERE 1=1`
	args := []any{}
	if filter.RestaurantID != "" {
		query += ` AND restaurant_id = ?`
		args = append(args, filter.RestaurantID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cost summary")
	}
	defer rows.Close()

	byStage := make(map[model.Stage]*model.CostSummary)
	var order []model.Stage
	for rows.Next() {
		var stage, status, cost string
		var in, out int64
		if err := rows.Scan(&stage, &status, &in, &out, &cost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost row")
		}
		cs, ok := byStage[model.Stage(stage)]
		if !ok {
			cs = &model.CostSummary{Stage: model.Stage(stage)}
			byStage[cs.Stage] = cs
			order = append(order, cs.Stage)
		}
		cs.Calls++
		if status == model.LogStatusFailed {
			cs.Failures++
		}
		cs.InputTokens += in
		cs.OutputTokens += out
		if d, err := decimal.NewFromString(cost); err == nil {
			cs.Cost = cs.Cost.Add(d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: cost summary iterate")
	}

	slices.Sort(order)
	result := make([]model.CostSummary, 0, len(order))
	for _, st := range order {
		result = append(result, *byStage[st])
	}
	return result, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteRestaurant(row scannable) (*model.Restaurant, error) {
	var r model.Restaurant
	var status, photos string
	if err := row.Scan(
		&r.ID, &r.PlaceID, &r.Name, &r.Address, &r.Latitude, &r.Longitude, &photos,
		&status, &r.StatusError, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.RestaurantStatus(status)
	var err error
	if r.Photos, err = unmarshalStrings(photos); err != nil {
		return nil, err
	}
	return &r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func marshalStrings(s []string) (string, error) {
	b, err := json.Marshal(nonNilStrings(s))
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal string list")
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal string list")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func decimalText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
