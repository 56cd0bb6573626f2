package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/gallery"
	"github.com/your-org/facegate/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, name, staffCode, department string) (*models.Identity, error) {
	id := &models.Identity{
		ID:         uuid.New(),
		Name:       name,
		StaffCode:  staffCode,
		Department: department,
		Active:     true,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, staff_code, department, active)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		id.ID, id.Name, id.StaffCode, id.Department, id.Active,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, staff_code, department, active, created_at, updated_at
		 FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.StaffCode, &ident.Department,
		&ident.Active, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, staff_code, department, active, created_at, updated_at
		 FROM identities ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var ident models.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.StaffCode, &ident.Department,
			&ident.Active, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	return identities, nil
}

// --- Face records ---

func (s *PostgresStore) AddFaceRecord(ctx context.Context, identityID uuid.UUID, embedding []float32, sourceKey string) (*models.FaceRecord, error) {
	fr := &models.FaceRecord{
		ID:         uuid.New(),
		IdentityID: identityID,
		Embedding:  embedding,
		SourceKey:  sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_records (id, identity_id, embedding, source_key)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		fr.ID, fr.IdentityID, vec, fr.SourceKey,
	).Scan(&fr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add face record: %w", err)
	}
	return fr, nil
}

func (s *PostgresStore) ListFaceRecords(ctx context.Context, identityID uuid.UUID) ([]models.FaceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, source_key, created_at
		 FROM face_records WHERE identity_id = $1 ORDER BY created_at DESC`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list face records: %w", err)
	}
	defer rows.Close()

	var records []models.FaceRecord
	for rows.Next() {
		var fr models.FaceRecord
		if err := rows.Scan(&fr.ID, &fr.IdentityID, &fr.SourceKey, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face record: %w", err)
		}
		records = append(records, fr)
	}
	return records, nil
}

func (s *PostgresStore) CountFaceRecords(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_records WHERE identity_id = $1`, identityID,
	).Scan(&count)
	return count, err
}

func (s *PostgresStore) DeleteFaceRecord(ctx context.Context, identityID, faceID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM face_records WHERE id = $1 AND identity_id = $2`, faceID, identityID)
	if err != nil {
		return fmt.Errorf("delete face record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("face record not found")
	}
	return nil
}

// ListGalleryEntries returns every enrolled embedding joined with its
// identity label, in enrollment order. Inactive identities are excluded so
// departed staff stop matching without their history being deleted.
func (s *PostgresStore) ListGalleryEntries(ctx context.Context) ([]gallery.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fr.id, fr.identity_id, i.name, fr.embedding
		 FROM face_records fr
		 JOIN identities i ON i.id = fr.identity_id
		 WHERE i.active
		 ORDER BY fr.created_at, fr.id`)
	if err != nil {
		return nil, fmt.Errorf("list gallery entries: %w", err)
	}
	defer rows.Close()

	var entries []gallery.Entry
	for rows.Next() {
		var e gallery.Entry
		var vec pgvector.Vector
		if err := rows.Scan(&e.RecordID, &e.IdentityID, &e.Label, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		entries = append(entries, e)
	}
	return entries, nil
}

// SearchFaces finds the closest enrolled identities for an embedding using
// pgvector L2 distance. Used by the operator search endpoint; the scanner
// matches against its in-memory gallery snapshot instead.
func (s *PostgresStore) SearchFaces(ctx context.Context, embedding []float32, maxDistance float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT fr.identity_id, i.name, fr.embedding <-> $1 AS distance
		 FROM face_records fr
		 JOIN identities i ON i.id = fr.identity_id
		 WHERE i.active AND fr.embedding <-> $1 <= $2
		 ORDER BY fr.embedding <-> $1
		 LIMIT $3`,
		vec, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.IdentityID, &m.Name, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

type SearchMatch struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	Distance   float32   `json:"distance"`
}

// --- Attendance ---

// TryCheckIn inserts the day's record if none exists. The UNIQUE
// (identity_id, day) index makes two concurrent first matches race safely:
// exactly one insert wins, the loser observes created=false.
func (s *PostgresStore) TryCheckIn(ctx context.Context, rec *models.AttendanceRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_records (id, identity_id, day, check_in_time, station_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (identity_id, day) DO NOTHING`,
		rec.ID, rec.IdentityID, rec.Day, rec.CheckInTime, rec.StationID)
	if err != nil {
		return false, fmt.Errorf("insert check-in: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TryCheckOut completes an open cycle. The update is conditional on the
// record still being open and the check-in being at least minPresence old,
// so it can never produce check_out_time < check_in_time or double-apply.
func (s *PostgresStore) TryCheckOut(ctx context.Context, identityID uuid.UUID, day time.Time, ts time.Time, minPresence time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attendance_records
		 SET check_out_time = $1
		 WHERE identity_id = $2 AND day = $3
		   AND check_out_time IS NULL
		   AND check_in_time + $4 <= $1`,
		ts, identityID, day, minPresence)
	if err != nil {
		return false, fmt.Errorf("update check-out: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetForDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceRecord, error) {
	rec := &models.AttendanceRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, identity_id, day, check_in_time, check_out_time, station_id, created_at
		 FROM attendance_records WHERE identity_id = $1 AND day = $2`,
		identityID, day,
	).Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.CheckInTime,
		&rec.CheckOutTime, &rec.StationID, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return rec, nil
}

// QueryAttendance lists attendance records, newest first, optionally
// filtered by identity and/or day range. Day bounds are inclusive.
func (s *PostgresStore) QueryAttendance(ctx context.Context, identityID *uuid.UUID, fromDay, toDay *time.Time, limit, offset int) ([]models.AttendanceRecord, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	where := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if identityID != nil {
		where += fmt.Sprintf(" AND identity_id = $%d", argIdx)
		args = append(args, *identityID)
		argIdx++
	}
	if fromDay != nil {
		where += fmt.Sprintf(" AND day >= $%d", argIdx)
		args = append(args, *fromDay)
		argIdx++
	}
	if toDay != nil {
		where += fmt.Sprintf(" AND day <= $%d", argIdx)
		args = append(args, *toDay)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM attendance_records " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, identity_id, day, check_in_time, check_out_time, station_id, created_at
		 FROM attendance_records %s ORDER BY day DESC, check_in_time DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		var rec models.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.CheckInTime,
			&rec.CheckOutTime, &rec.StationID, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// CompletedHistory returns an identity's completed cycles, oldest first,
// for the checkout predictor.
func (s *PostgresStore) CompletedHistory(ctx context.Context, identityID uuid.UUID, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 90
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, day, check_in_time, check_out_time, station_id, created_at
		 FROM attendance_records
		 WHERE identity_id = $1 AND check_out_time IS NOT NULL
		 ORDER BY day DESC LIMIT $2`,
		identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("load attendance history: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		var rec models.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.CheckInTime,
			&rec.CheckOutTime, &rec.StationID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// --- Stations ---

func (s *PostgresStore) CreateStation(ctx context.Context, st *models.Station) error {
	st.ID = uuid.New()
	st.Status = models.StationStatusStopped
	return s.pool.QueryRow(ctx,
		`INSERT INTO stations (id, name, camera_url, status)
		 VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		st.ID, st.Name, st.CameraURL, st.Status,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
}

func (s *PostgresStore) GetStation(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	st := &models.Station{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, camera_url, status, error_message, created_at, updated_at
		 FROM stations WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.CameraURL, &st.Status,
		&st.ErrorMessage, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get station: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, camera_url, status, error_message, created_at, updated_at
		 FROM stations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.CameraURL, &st.Status,
			&st.ErrorMessage, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, st)
	}
	return stations, nil
}

func (s *PostgresStore) UpdateStationStatus(ctx context.Context, id uuid.UUID, status models.StationStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE stations SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		status, errMsg, id)
	return err
}

func (s *PostgresStore) DeleteStation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("station not found")
	}
	return nil
}
