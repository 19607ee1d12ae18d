package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewMemoryStore builds a Store backed by in-process maps. Used by the
// test suite and by runs without a database.
func NewMemoryStore() *Store {
	return &Store{
		BloodPressure: &memoryBloodPressure{},
		Medications:   &memoryMedications{},
		Symptoms:      &memorySymptoms{},
		HealthEvents:  &memoryHealthEvents{},
		Users:         NewMemoryUsers(nil),
	}
}

// ----------------------------------------------------------------------------
// Blood pressure

type memoryBloodPressure struct {
	mu      sync.RWMutex
	nextID  int64
	records []*BloodPressureRecord
}

func (r *memoryBloodPressure) Create(ctx context.Context, record *BloodPressureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *memoryBloodPressure) GetByID(ctx context.Context, id int64) (*BloodPressureRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ID == id {
			out := *record
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryBloodPressure) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*BloodPressureRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*BloodPressureRecord
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if record.RecordTime.Before(start) || record.RecordTime.After(end) {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordTime.After(out[j].RecordTime)
	})
	return out, nil
}

func (r *memoryBloodPressure) GetLatest(ctx context.Context, userID string) (*BloodPressureRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *BloodPressureRecord
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if latest == nil ||
			record.RecordTime.After(latest.RecordTime) ||
			(record.RecordTime.Equal(latest.RecordTime) && record.CreatedAt.After(latest.CreatedAt)) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (r *memoryBloodPressure) Update(ctx context.Context, record *BloodPressureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.records {
		if existing.ID == record.ID {
			record.UpdatedAt = time.Now()
			record.CreatedAt = existing.CreatedAt
			stored := *record
			r.records[i] = &stored
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryBloodPressure) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.records {
		if existing.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ----------------------------------------------------------------------------
// Medications

type memoryMedications struct {
	mu      sync.RWMutex
	nextID  int64
	records []*MedicationRecord
}

func (r *memoryMedications) Create(ctx context.Context, record *MedicationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *memoryMedications) GetByID(ctx context.Context, id int64) (*MedicationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ID == id {
			out := *record
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryMedications) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*MedicationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*MedicationRecord
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if record.MedicationTime.Before(start) || record.MedicationTime.After(end) {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MedicationTime.After(out[j].MedicationTime)
	})
	return out, nil
}

func (r *memoryMedications) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.records {
		if existing.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ----------------------------------------------------------------------------
// Symptoms

type memorySymptoms struct {
	mu      sync.RWMutex
	nextID  int64
	records []*SymptomRecord
}

func (r *memorySymptoms) Create(ctx context.Context, record *SymptomRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *memorySymptoms) GetByID(ctx context.Context, id int64) (*SymptomRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ID == id {
			out := *record
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memorySymptoms) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*SymptomRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*SymptomRecord
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if record.RecordTime.Before(start) || record.RecordTime.After(end) {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordTime.After(out[j].RecordTime)
	})
	return out, nil
}

func (r *memorySymptoms) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.records {
		if existing.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ----------------------------------------------------------------------------
// Health events

type memoryHealthEvents struct {
	mu      sync.RWMutex
	nextID  int64
	records []*HealthEventRecord
}

func (r *memoryHealthEvents) Create(ctx context.Context, record *HealthEventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *memoryHealthEvents) GetByID(ctx context.Context, id int64) (*HealthEventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ID == id {
			out := *record
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryHealthEvents) GetRecent(ctx context.Context, userID string, start, end time.Time) ([]*HealthEventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*HealthEventRecord
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if record.CheckInTime.Before(start) || record.CheckInTime.After(end) {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CheckInTime.After(out[j].CheckInTime)
	})
	return out, nil
}

func (r *memoryHealthEvents) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.records {
		if existing.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ----------------------------------------------------------------------------
// Users

// MemoryUsers is an in-memory UserRepository seeded with known profiles.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryUsers creates an in-memory user repository.
func NewMemoryUsers(users map[string]*User) *MemoryUsers {
	if users == nil {
		users = make(map[string]*User)
	}
	return &MemoryUsers{users: users}
}

// Put adds or replaces a user profile.
func (r *MemoryUsers) Put(user *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
}

func (r *MemoryUsers) GetByID(ctx context.Context, userID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}
