package contact

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/internal/crypto"
	dErrors "consentry/pkg/domain-errors"
)

func newTestService(t *testing.T) (*Service, *InMemoryStore) {
	t.Helper()
	cryptoSvc, err := crypto.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	store := NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(cryptoSvc, store, logger), store
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantType Type
		wantErr  bool
	}{
		{"email lowercased", " User@Example.COM ", "user@example.com", TypeEmail, false},
		{"phone keeps plus and digits", "+1 (206) 555-1234", "+12065551234", TypePhone, false},
		{"phone without plus", "206 555 1234", "2065551234", TypePhone, false},
		{"empty", "  ", "", "", true},
		{"bare at", "@example.com", "", "", true},
		{"trailing at", "user@", "", "", true},
		{"double at", "a@b@c", "", "", true},
		{"too short phone", "12345", "", "", true},
		{"letters in phone", "555-CALL-NOW", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotType, err := Normalize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantType, gotType)
		})
	}
}

func TestCreateOrGet_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateOrGet(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, TypeEmail, first.Type)
	assert.Equal(t, StatusActive, first.Status)

	// Different spelling of the same value resolves to the same row.
	second, err := svc.CreateOrGet(ctx, "  USER@example.com ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.EncryptedValue, second.EncryptedValue)
}

func TestCreateOrGet_ConcurrentSameValue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const goroutines = 32
	ids := make([]string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := svc.CreateOrGet(ctx, "+12065551234")
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Equal(t, ids[0], ids[i], "all concurrent calls must resolve to one contact")
	}
}

func TestCreateOrGet_RejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateOrGet(context.Background(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDisplay_MasksByType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	email, err := svc.CreateOrGet(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "j****@example.com", svc.Display(ctx, email))

	phone, err := svc.CreateOrGet(ctx, "+12065551234")
	require.NoError(t, err)
	assert.Equal(t, "*******1234", svc.Display(ctx, phone))
}

func TestDisplay_DegradesOnDecryptFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c := &Contact{ID: "x", EncryptedValue: "not-a-ciphertext", Type: TypeEmail}
	assert.Equal(t, crypto.MaskedPlaceholder, svc.Display(ctx, c))
}

func TestSuppress_SetsFlagOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateOrGet(ctx, "user@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Suppress(ctx, c.ID))
	require.NoError(t, svc.Suppress(ctx, c.ID), "suppress is idempotent")

	found, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, found.OptOutAll)
}

func TestHardDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateOrGet(ctx, "user@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.HardDelete(ctx, c.ID))

	_, err = svc.Get(ctx, c.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = svc.HardDelete(ctx, c.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
