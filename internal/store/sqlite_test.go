package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/pkg/logx"
)

func openTestStore(t *testing.T, key string) Store {
	t.Helper()
	st, err := Open(Config{
		DSN:           filepath.Join(t.TempDir(), "courier.db"),
		EncryptionKey: key,
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testSchedule() NewSchedule {
	return NewSchedule{
		Recipient:      "Ada",
		RecipientEmail: "ada@example.org",
		Endpoint:       EndpointPlain,
		Cron:           "* * * * *",
		NextRun:        time.Now().Unix(),
		DeliveryMethod: DeliveryEmail,
		CreatedBy:      "owner-1",
	}
}

func TestCreateAndGetSchedule(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	created, err := st.CreateSchedule(ctx, testSchedule())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotZero(t, created.CreatedAt)
	// Returned entity carries plaintext, not ciphertext.
	assert.Equal(t, "ada@example.org", created.RecipientEmail)

	got, err := st.GetSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "ada@example.org", got.RecipientEmail)
	assert.Equal(t, "* * * * *", got.Cron)

	_, err = st.GetSchedule(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEncryptedAtRest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "courier.db")
	st, err := Open(Config{DSN: path, EncryptionKey: "test-key"}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	n := testSchedule()
	n.DeliveryMethod = DeliveryWebhook
	n.WebhookURL = "https://hooks.example.com/h"
	n.WebhookSecret = "hunter2"
	created, err := st.CreateSchedule(ctx, n)
	require.NoError(t, err)

	// Read the raw columns with a second plain connection.
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()

	var email, url, secret string
	err = raw.QueryRowContext(ctx,
		`SELECT recipient_email, webhook_url, webhook_secret FROM schedules WHERE id = ?`,
		created.ID).Scan(&email, &url, &secret)
	require.NoError(t, err)

	assert.NotEqual(t, "ada@example.org", email)
	assert.NotEqual(t, "https://hooks.example.com/h", url)
	assert.NotEqual(t, "hunter2", secret)

	// And a second insert of the same plaintext yields different ciphertext.
	again, err := st.CreateSchedule(ctx, n)
	require.NoError(t, err)
	var email2 string
	err = raw.QueryRowContext(ctx,
		`SELECT recipient_email FROM schedules WHERE id = ?`, again.ID).Scan(&email2)
	require.NoError(t, err)
	assert.NotEqual(t, email, email2)
}

func TestPlaintextDegradedMode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "courier.db")
	st, err := Open(Config{DSN: path}, logx.Nop()) // no key
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	created, err := st.CreateSchedule(ctx, testSchedule())
	require.NoError(t, err)

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()

	var email string
	err = raw.QueryRowContext(ctx,
		`SELECT recipient_email FROM schedules WHERE id = ?`, created.ID).Scan(&email)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", email)
}

func TestGetSchedulesDue(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()
	base := time.Now().Unix()

	mk := func(offset int64) *Schedule {
		n := testSchedule()
		n.NextRun = base + offset
		sch, err := st.CreateSchedule(ctx, n)
		require.NoError(t, err)
		return sch
	}
	past := mk(-60)
	exact := mk(0)
	future := mk(60)

	due, err := st.GetSchedulesDue(ctx, base)
	require.NoError(t, err)

	ids := make(map[string]bool, len(due))
	for _, d := range due {
		ids[d.ID] = true
		// Due rows come back decrypted too.
		assert.Equal(t, "ada@example.org", d.RecipientEmail)
	}
	assert.True(t, ids[past.ID])
	assert.True(t, ids[exact.ID])
	assert.False(t, ids[future.ID])
	assert.Len(t, due, 2)
}

func TestUpdateScheduleNextRun(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	created, err := st.CreateSchedule(ctx, testSchedule())
	require.NoError(t, err)

	next := created.NextRun + 3600
	require.NoError(t, st.UpdateScheduleNextRun(ctx, created.ID, next))

	got, err := st.GetSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, next, got.NextRun)
	// Nothing else changed.
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
	assert.Equal(t, created.Cron, got.Cron)

	assert.ErrorIs(t, st.UpdateScheduleNextRun(ctx, "no-such-id", next), ErrNotFound)
}

func TestDeleteSchedule(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	created, err := st.CreateSchedule(ctx, testSchedule())
	require.NoError(t, err)

	found, err := st.DeleteSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = st.DeleteSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListSchedulesOwnerFilterAndOrder(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	n1 := testSchedule()
	n1.CreatedBy = "alice"
	first, err := st.CreateSchedule(ctx, n1)
	require.NoError(t, err)

	n2 := testSchedule()
	n2.CreatedBy = "bob"
	_, err = st.CreateSchedule(ctx, n2)
	require.NoError(t, err)

	all, err := st.ListSchedules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// created_at descending: newest first.
	assert.GreaterOrEqual(t, all[0].CreatedAt, all[1].CreatedAt)

	alice, err := st.ListSchedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, first.ID, alice[0].ID)

	none, err := st.ListSchedules(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRevocationIdempotence(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	require.NoError(t, st.RevokeToken(ctx, "jti-1"))
	require.NoError(t, st.RevokeToken(ctx, "jti-1")) // duplicate revoke is a no-op upsert

	revoked, err := st.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	other, err := st.IsTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, other)
}

func TestCleanupRevokedTokensBoundary(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	require.NoError(t, st.RevokeToken(ctx, "a"))
	require.NoError(t, st.RevokeToken(ctx, "b"))

	removed, err := st.CleanupRevokedTokens(ctx, time.Now().Unix()+1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for _, jti := range []string{"a", "b"} {
		revoked, err := st.IsTokenRevoked(ctx, jti)
		require.NoError(t, err)
		assert.False(t, revoked, jti)
	}

	// Nothing left; cleanup is a no-op.
	removed, err = st.CleanupRevokedTokens(ctx, time.Now().Unix()+1)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestOperationsAfterClose(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "test-key")
	ctx := context.Background()

	created, err := st.CreateSchedule(ctx, testSchedule())
	require.NoError(t, err)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close()) // idempotent

	_, err = st.CreateSchedule(ctx, testSchedule())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.GetSchedule(ctx, created.ID)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.GetSchedulesDue(ctx, time.Now().Unix())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.UpdateScheduleNextRun(ctx, created.ID, 1), ErrClosed)
	_, err = st.DeleteSchedule(ctx, created.ID)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.ListSchedules(ctx, "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.RevokeToken(ctx, "jti-1"), ErrClosed)
	_, err = st.IsTokenRevoked(ctx, "jti-1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.CleanupRevokedTokens(ctx, time.Now().Unix())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestValidateNewSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*NewSchedule)
		wantErr bool
	}{
		{name: "valid email", mutate: func(*NewSchedule) {}},
		{name: "missing recipient", mutate: func(n *NewSchedule) { n.Recipient = "" }, wantErr: true},
		{name: "missing email", mutate: func(n *NewSchedule) { n.RecipientEmail = "" }, wantErr: true},
		{name: "unknown delivery", mutate: func(n *NewSchedule) { n.DeliveryMethod = "carrier-pigeon" }, wantErr: true},
		{name: "webhook without url", mutate: func(n *NewSchedule) {
			n.DeliveryMethod = DeliveryWebhook
			n.WebhookURL = ""
		}, wantErr: true},
		{name: "valid webhook", mutate: func(n *NewSchedule) {
			n.DeliveryMethod = DeliveryWebhook
			n.WebhookURL = "https://hooks.example.com/h"
		}},
		{name: "typed without message type", mutate: func(n *NewSchedule) { n.Endpoint = EndpointTyped }, wantErr: true},
		{name: "typed with message type", mutate: func(n *NewSchedule) {
			n.Endpoint = EndpointTyped
			n.MessageType = "reminder"
		}},
		{name: "unknown endpoint", mutate: func(n *NewSchedule) { n.Endpoint = "mystery" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			n := testSchedule()
			tt.mutate(&n)
			err := ValidateNewSchedule(n, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
