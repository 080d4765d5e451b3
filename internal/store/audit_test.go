// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the audit_log table

package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Append(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		ActorID:    1,
		Action:     AuditDeactivateUser,
		TargetType: "user",
		TargetID:   "2",
		Detail:     map[string]any{"reason": "duplicate account"},
	}

	err := store.AppendAuditLog(ctx, entry)
	require.NoError(t, err)

	// Should have generated ID and timestamp
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "duplicate account", entries[0].Detail["reason"])
}

func TestAuditStore_List_NoFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, action := range []AuditAction{AuditDeactivateUser, AuditActivateUser, AuditNotifyUser} {
		entry := &AuditEntry{
			ActorID:    1,
			Action:     action,
			TargetType: "user",
			TargetID:   strconv.Itoa(i + 2),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendAuditLog(ctx, entry))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Should be newest first
	assert.Equal(t, AuditNotifyUser, entries[0].Action)
}

func TestAuditStore_List_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	entries := []AuditEntry{
		{ActorID: 1, Action: AuditDeactivateUser, TargetID: "5", Timestamp: base},
		{ActorID: 1, Action: AuditActivateUser, TargetID: "5", Timestamp: base.Add(10 * time.Minute)},
		{ActorID: 3, Action: AuditNotifyUser, TargetID: "7", Timestamp: base.Add(20 * time.Minute)},
	}
	for i := range entries {
		entries[i].TargetType = "user"
		require.NoError(t, store.AppendAuditLog(ctx, &entries[i]))
	}

	since := base.Add(5 * time.Minute)
	got, err := store.ListAuditLog(ctx, AuditFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	actor := int64(1)
	got, err = store.ListAuditLog(ctx, AuditFilter{ActorID: &actor})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	action := AuditNotifyUser
	got, err = store.ListAuditLog(ctx, AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].TargetID)

	target := "5"
	got, err = store.ListAuditLog(ctx, AuditFilter{TargetID: &target, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, AuditActivateUser, got[0].Action)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 50, normalizeAuditLimit(50))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}
