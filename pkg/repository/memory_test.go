package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBloodPressure_GetLatestTieBreak(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sameTime := time.Date(2024, 3, 15, 8, 0, 0, 0, time.Local)

	first := &BloodPressureRecord{
		UserID: "u1", Systolic: 120, Diastolic: 80,
		RecordTime: sameTime,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	second := &BloodPressureRecord{
		UserID: "u1", Systolic: 125, Diastolic: 82,
		RecordTime: sameTime,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.BloodPressure.Create(ctx, first))
	require.NoError(t, store.BloodPressure.Create(ctx, second))

	// Equal record_time: the later created_at wins.
	latest, err := store.BloodPressure.GetLatest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 125, latest.Systolic)
}

func TestMemoryBloodPressure_CRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := &BloodPressureRecord{
		UserID: "u1", Systolic: 120, Diastolic: 80, RecordTime: time.Now(),
	}
	require.NoError(t, store.BloodPressure.Create(ctx, record))
	require.NotZero(t, record.ID)

	got, err := store.BloodPressure.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, got.Systolic)

	got.Systolic = 130
	require.NoError(t, store.BloodPressure.Update(ctx, got))

	updated, err := store.BloodPressure.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 130, updated.Systolic)

	require.NoError(t, store.BloodPressure.Delete(ctx, record.ID))
	_, err = store.BloodPressure.GetByID(ctx, record.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUsers(t *testing.T) {
	users := NewMemoryUsers(nil)
	_, err := users.GetByID(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	users.Put(&User{ID: "u1", UserInfo: map[string]any{"name": "张三"}})
	got, err := users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "张三", got.UserInfo["name"])
}

func TestMemoryStore_IsolationBetweenUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Symptoms.Create(ctx, &SymptomRecord{
		UserID: "u1", SymptomName: "头晕", RecoveryStatus: "新记录", RecordTime: now,
	}))
	require.NoError(t, store.Symptoms.Create(ctx, &SymptomRecord{
		UserID: "u2", SymptomName: "头痛", RecoveryStatus: "新记录", RecordTime: now,
	}))

	records, err := store.Symptoms.GetRecent(ctx, "u1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "头晕", records[0].SymptomName)
}
