package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/nuntius/internal/storage"
)

func TestNewManager_MintsAndPersistsCookie(t *testing.T) {
	kv := storage.NewMemoryKV()
	m := NewManager(kv, zerolog.Nop())

	cookie := m.Cookie()
	_, err := uuid.Parse(cookie)
	assert.NoError(t, err)

	blob, err := kv.Get(context.Background(), storage.KeyCustomerCookie)
	require.NoError(t, err)
	assert.Equal(t, cookie, string(blob))
}

func TestNewManager_ReusesStoredCookie(t *testing.T) {
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), storage.KeyCustomerCookie, []byte("stored-cookie")))

	m := NewManager(kv, zerolog.Nop())
	assert.Equal(t, "stored-cookie", m.Cookie())
}

func TestManager_Session(t *testing.T) {
	m := NewManager(storage.NewMemoryKV(), zerolog.Nop())
	assert.True(t, m.SessionStart().IsZero())

	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	m.StartSession(start)
	assert.Equal(t, start, m.SessionStart())
}

func TestManager_IdentifyAndCustomerIDs(t *testing.T) {
	m := NewManager(storage.NewMemoryKV(), zerolog.Nop())

	ids := m.CustomerIDs()
	assert.Equal(t, m.Cookie(), ids["cookie"])
	assert.Len(t, ids, 1)

	m.Identify(map[string]string{"registered": "u1"})
	m.Identify(map[string]string{"email_id": "e1"})

	ids = m.CustomerIDs()
	assert.Equal(t, "u1", ids["registered"])
	assert.Equal(t, "e1", ids["email_id"])
	assert.Equal(t, m.Cookie(), ids["cookie"])

	assert.Equal(t, map[string]string{"registered": "u1", "email_id": "e1"}, m.ExternalIDs())
}

func TestManager_Anonymize(t *testing.T) {
	kv := storage.NewMemoryKV()
	m := NewManager(kv, zerolog.Nop())
	m.Identify(map[string]string{"registered": "u1"})

	before := m.Cookie()
	m.Anonymize()

	assert.NotEqual(t, before, m.Cookie())
	assert.Empty(t, m.ExternalIDs())

	// The fresh cookie is persisted too.
	blob, err := kv.Get(context.Background(), storage.KeyCustomerCookie)
	require.NoError(t, err)
	assert.Equal(t, m.Cookie(), string(blob))
}
