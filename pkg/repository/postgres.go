package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// OpenPostgres opens the domain database and verifies the connection.
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewPostgresStore builds a Store backed by Postgres.
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		BloodPressure: &postgresBloodPressure{db: db},
		Medications:   &postgresMedications{db: db},
		Symptoms:      &postgresSymptoms{db: db},
		HealthEvents:  &postgresHealthEvents{db: db},
		Users:         &postgresUsers{db: db},
	}
}

// ----------------------------------------------------------------------------
// Blood pressure

type postgresBloodPressure struct {
	db *sql.DB
}

func (r *postgresBloodPressure) Create(ctx context.Context, record *BloodPressureRecord) error {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	return r.db.QueryRowContext(ctx, `
		INSERT INTO blood_pressure_records
			(user_id, systolic, diastolic, heart_rate, notes, record_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		record.UserID, record.Systolic, record.Diastolic, record.HeartRate,
		nullableString(record.Notes), record.RecordTime, record.CreatedAt, record.UpdatedAt,
	).Scan(&record.ID)
}

func (r *postgresBloodPressure) GetByID(ctx context.Context, id int64) (*BloodPressureRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, systolic, diastolic, heart_rate, COALESCE(notes, ''), record_time, created_at, updated_at
		FROM blood_pressure_records WHERE id = $1`, id)
	return scanBloodPressure(row)
}

func (r *postgresBloodPressure) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*BloodPressureRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, systolic, diastolic, heart_rate, COALESCE(notes, ''), record_time, created_at, updated_at
		FROM blood_pressure_records
		WHERE user_id = $1 AND record_time >= $2 AND record_time <= $3
		ORDER BY record_time DESC`,
		userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*BloodPressureRecord
	for rows.Next() {
		record, err := scanBloodPressure(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *postgresBloodPressure) GetLatest(ctx context.Context, userID string) (*BloodPressureRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, systolic, diastolic, heart_rate, COALESCE(notes, ''), record_time, created_at, updated_at
		FROM blood_pressure_records
		WHERE user_id = $1
		ORDER BY record_time DESC, created_at DESC
		LIMIT 1`, userID)
	return scanBloodPressure(row)
}

func (r *postgresBloodPressure) Update(ctx context.Context, record *BloodPressureRecord) error {
	record.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE blood_pressure_records
		SET systolic = $1, diastolic = $2, heart_rate = $3, notes = $4, record_time = $5, updated_at = $6
		WHERE id = $7`,
		record.Systolic, record.Diastolic, record.HeartRate,
		nullableString(record.Notes), record.RecordTime, record.UpdatedAt, record.ID)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *postgresBloodPressure) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM blood_pressure_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBloodPressure(row rowScanner) (*BloodPressureRecord, error) {
	record := &BloodPressureRecord{}
	var heartRate sql.NullInt64
	err := row.Scan(&record.ID, &record.UserID, &record.Systolic, &record.Diastolic,
		&heartRate, &record.Notes, &record.RecordTime, &record.CreatedAt, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if heartRate.Valid {
		hr := int(heartRate.Int64)
		record.HeartRate = &hr
	}
	return record, nil
}

// ----------------------------------------------------------------------------
// Medications

type postgresMedications struct {
	db *sql.DB
}

func (r *postgresMedications) Create(ctx context.Context, record *MedicationRecord) error {
	record.CreatedAt = time.Now()
	return r.db.QueryRowContext(ctx, `
		INSERT INTO medication_records
			(user_id, medication_name, dosage, dosage_unit, medication_time, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		record.UserID, record.MedicationName, record.Dosage, record.DosageUnit,
		record.MedicationTime, nullableString(record.Notes), record.CreatedAt,
	).Scan(&record.ID)
}

func (r *postgresMedications) GetByID(ctx context.Context, id int64) (*MedicationRecord, error) {
	record := &MedicationRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, medication_name, dosage, dosage_unit, medication_time, COALESCE(notes, ''), created_at
		FROM medication_records WHERE id = $1`, id).
		Scan(&record.ID, &record.UserID, &record.MedicationName, &record.Dosage,
			&record.DosageUnit, &record.MedicationTime, &record.Notes, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *postgresMedications) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*MedicationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, medication_name, dosage, dosage_unit, medication_time, COALESCE(notes, ''), created_at
		FROM medication_records
		WHERE user_id = $1 AND medication_time >= $2 AND medication_time <= $3
		ORDER BY medication_time DESC`,
		userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*MedicationRecord
	for rows.Next() {
		record := &MedicationRecord{}
		if err := rows.Scan(&record.ID, &record.UserID, &record.MedicationName, &record.Dosage,
			&record.DosageUnit, &record.MedicationTime, &record.Notes, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *postgresMedications) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM medication_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

// ----------------------------------------------------------------------------
// Symptoms

type postgresSymptoms struct {
	db *sql.DB
}

func (r *postgresSymptoms) Create(ctx context.Context, record *SymptomRecord) error {
	record.CreatedAt = time.Now()
	return r.db.QueryRowContext(ctx, `
		INSERT INTO symptom_records
			(user_id, symptom_name, recovery_status, record_time, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		record.UserID, record.SymptomName, record.RecoveryStatus,
		record.RecordTime, nullableString(record.Notes), record.CreatedAt,
	).Scan(&record.ID)
}

func (r *postgresSymptoms) GetByID(ctx context.Context, id int64) (*SymptomRecord, error) {
	record := &SymptomRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, symptom_name, recovery_status, record_time, COALESCE(notes, ''), created_at
		FROM symptom_records WHERE id = $1`, id).
		Scan(&record.ID, &record.UserID, &record.SymptomName, &record.RecoveryStatus,
			&record.RecordTime, &record.Notes, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *postgresSymptoms) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*SymptomRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, symptom_name, recovery_status, record_time, COALESCE(notes, ''), created_at
		FROM symptom_records
		WHERE user_id = $1 AND record_time >= $2 AND record_time <= $3
		ORDER BY record_time DESC`,
		userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SymptomRecord
	for rows.Next() {
		record := &SymptomRecord{}
		if err := rows.Scan(&record.ID, &record.UserID, &record.SymptomName, &record.RecoveryStatus,
			&record.RecordTime, &record.Notes, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *postgresSymptoms) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM symptom_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

// ----------------------------------------------------------------------------
// Health events

type postgresHealthEvents struct {
	db *sql.DB
}

func (r *postgresHealthEvents) Create(ctx context.Context, record *HealthEventRecord) error {
	record.CreatedAt = time.Now()
	return r.db.QueryRowContext(ctx, `
		INSERT INTO health_event_records
			(user_id, event_type, check_in_time, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		record.UserID, record.EventType, record.CheckInTime,
		nullableString(record.Notes), record.CreatedAt,
	).Scan(&record.ID)
}

func (r *postgresHealthEvents) GetByID(ctx context.Context, id int64) (*HealthEventRecord, error) {
	record := &HealthEventRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, event_type, check_in_time, COALESCE(notes, ''), created_at
		FROM health_event_records WHERE id = $1`, id).
		Scan(&record.ID, &record.UserID, &record.EventType,
			&record.CheckInTime, &record.Notes, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *postgresHealthEvents) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*HealthEventRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, event_type, check_in_time, COALESCE(notes, ''), created_at
		FROM health_event_records
		WHERE user_id = $1 AND check_in_time >= $2 AND check_in_time <= $3
		ORDER BY check_in_time DESC`,
		userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*HealthEventRecord
	for rows.Next() {
		record := &HealthEventRecord{}
		if err := rows.Scan(&record.ID, &record.UserID, &record.EventType,
			&record.CheckInTime, &record.Notes, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *postgresHealthEvents) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM health_event_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

// ----------------------------------------------------------------------------
// Users

type postgresUsers struct {
	db *sql.DB
}

func (r *postgresUsers) GetByID(ctx context.Context, userID string) (*User, error) {
	var infoJSON sql.NullString
	user := &User{ID: userID}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_info FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &infoJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if infoJSON.Valid && infoJSON.String != "" {
		if err := json.Unmarshal([]byte(infoJSON.String), &user.UserInfo); err != nil {
			return nil, fmt.Errorf("invalid user_info JSON for user %s: %w", userID, err)
		}
	}
	return user, nil
}

// ----------------------------------------------------------------------------
// Helpers

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
