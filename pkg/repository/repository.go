// Package repository provides the persistence layer behind the domain
// tools: typed records, CRUD interfaces, a Postgres implementation and an
// in-memory implementation used in tests and database-less runs.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record or user does not exist.
var ErrNotFound = errors.New("record not found")

// BloodPressureRecord is one blood pressure measurement.
type BloodPressureRecord struct {
	ID         int64
	UserID     string
	Systolic   int
	Diastolic  int
	HeartRate  *int
	Notes      string
	RecordTime time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MedicationRecord is one medication intake entry.
type MedicationRecord struct {
	ID             int64
	UserID         string
	MedicationName string
	Dosage         int
	DosageUnit     string
	MedicationTime time.Time
	Notes          string
	CreatedAt      time.Time
}

// SymptomRecord is one symptom entry.
type SymptomRecord struct {
	ID             int64
	UserID         string
	SymptomName    string
	RecoveryStatus string
	RecordTime     time.Time
	Notes          string
	CreatedAt      time.Time
}

// HealthEventRecord is one health-habit check-in.
type HealthEventRecord struct {
	ID          int64
	UserID      string
	EventType   string
	CheckInTime time.Time
	Notes       string
	CreatedAt   time.Time
}

// User is a row of the users table; UserInfo is the free-form profile
// injected into prompts.
type User struct {
	ID       string
	UserInfo map[string]any
}

// BloodPressureRepository persists blood pressure records.
type BloodPressureRepository interface {
	Create(ctx context.Context, record *BloodPressureRecord) error
	GetByID(ctx context.Context, id int64) (*BloodPressureRecord, error)
	// GetRecent returns records with record_time in [start, end], newest
	// first.
	GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*BloodPressureRecord, error)
	// GetLatest returns the record with the latest record_time for the
	// user, ties broken by latest created_at.
	GetLatest(ctx context.Context, userID string) (*BloodPressureRecord, error)
	Update(ctx context.Context, record *BloodPressureRecord) error
	Delete(ctx context.Context, id int64) error
}

// MedicationRepository persists medication records.
type MedicationRepository interface {
	Create(ctx context.Context, record *MedicationRecord) error
	GetByID(ctx context.Context, id int64) (*MedicationRecord, error)
	GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*MedicationRecord, error)
	Delete(ctx context.Context, id int64) error
}

// SymptomRepository persists symptom records.
type SymptomRepository interface {
	Create(ctx context.Context, record *SymptomRecord) error
	GetByID(ctx context.Context, id int64) (*SymptomRecord, error)
	GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*SymptomRecord, error)
	Delete(ctx context.Context, id int64) error
}

// HealthEventRepository persists health-event check-ins.
type HealthEventRepository interface {
	Create(ctx context.Context, record *HealthEventRecord) error
	GetByID(ctx context.Context, id int64) (*HealthEventRecord, error)
	GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*HealthEventRecord, error)
	Delete(ctx context.Context, id int64) error
}

// UserRepository reads user profiles.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*User, error)
}

// Store bundles the repositories the tools and the login endpoints use.
type Store struct {
	BloodPressure BloodPressureRepository
	Medications   MedicationRepository
	Symptoms      SymptomRepository
	HealthEvents  HealthEventRepository
	Users         UserRepository
}
