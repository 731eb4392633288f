package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/model"
)

func newStateFixture(t *testing.T) (*StateService, *mockStore, string) {
	t.Helper()
	store := newMockStore()
	u := store.addUser(&model.User{Username: "player", Email: "player@example.com"})
	return NewStateService(store, discardLogger()), store, u.ID
}

// =========================================================================
// Read TESTS
// =========================================================================

func TestRead_CreatesEmptyDocument(t *testing.T) {
	svc, store, userID := newStateFixture(t)

	gs, err := svc.Read(context.Background(), userID)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(gs.State))
	assert.JSONEq(t, `{}`, string(store.storedState(userID)))
}

func TestRead_UnwrapsLegacyEnvelope(t *testing.T) {
	svc, store, userID := newStateFixture(t)
	_, err := store.Save(context.Background(), userID, json.RawMessage(`{"state":{"locations":["hall"]}}`))
	require.NoError(t, err)

	gs, err := svc.Read(context.Background(), userID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"locations":["hall"]}`, string(gs.State))
}

func TestRead_UnknownUser(t *testing.T) {
	svc, _, _ := newStateFixture(t)

	_, err := svc.Read(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRead_ConcurrentFirstReadsShareOneDocument(t *testing.T) {
	svc, store, userID := newStateFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Read(context.Background(), userID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.states, 1)
}

// =========================================================================
// Write TESTS
// =========================================================================

func TestWrite(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		want    string
		wantErr error
	}{
		{"plain object", `{"locations":["attic"]}`, `{"locations":["attic"]}`, nil},
		{"wrapped object is unwrapped", `{"state":{"hp":3}}`, `{"hp":3}`, nil},
		{"nested envelopes all removed", `{"state":{"state":{"a":1}}}`, `{"a":1}`, nil},
		{"envelope around a scalar", `{"state":{"state":1}}`, `1`, nil},
		{"array kept", `[1,2,3]`, `[1,2,3]`, nil},
		{"scalar kept", `42`, `42`, nil},
		{"null rejected", `null`, "", apperror.ErrValidation},
		{"missing rejected", ``, "", apperror.ErrValidation},
		{"wrapped null rejected", `{"state":null}`, "", apperror.ErrValidation},
		{"doubly wrapped null rejected", `{"state":{"state":null}}`, "", apperror.ErrValidation},
		{"malformed rejected", `{"a":`, "", apperror.ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, userID := newStateFixture(t)

			gs, err := svc.Write(context.Background(), userID, json.RawMessage(tc.value))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Zero(t, store.saveCalls, "rejected writes must not reach the store")
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(gs.State))
			assert.JSONEq(t, tc.want, string(store.storedState(userID)))
		})
	}
}

func TestWrite_ThenReadReturnsSameValue(t *testing.T) {
	svc, _, userID := newStateFixture(t)
	ctx := context.Background()

	_, err := svc.Write(ctx, userID, json.RawMessage(`{"state": {"inventory": ["lamp"], "room": 4}}`))
	require.NoError(t, err)

	gs, err := svc.Read(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, `{"inventory":["lamp"],"room":4}`, string(gs.State))
}

func TestWrite_ReturnsWhatReadServes(t *testing.T) {
	inputs := []string{
		`{"state":{"state":{"a":1}}}`,
		`{"state":{"a":1}}`,
		`{"a":1}`,
		`{"state":{"state":{"state":[1]}}}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			svc, store, userID := newStateFixture(t)
			ctx := context.Background()

			written, err := svc.Write(ctx, userID, json.RawMessage(in))
			require.NoError(t, err)
			read, err := svc.Read(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, string(written.State), string(read.State))

			// Writing back what the client was handed changes nothing.
			stored := string(store.storedState(userID))
			again, err := svc.Write(ctx, userID, read.State)
			require.NoError(t, err)
			assert.Equal(t, string(read.State), string(again.State))
			assert.Equal(t, stored, string(store.storedState(userID)))
		})
	}
}

func TestRead_RepairsNestedLegacyEnvelopes(t *testing.T) {
	svc, store, userID := newStateFixture(t)
	_, err := store.Save(context.Background(), userID, json.RawMessage(`{"state":{"state":{"room":2}}}`))
	require.NoError(t, err)

	gs, err := svc.Read(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, `{"room":2}`, string(gs.State))
}

func TestWrite_StoreFailureKeepsCause(t *testing.T) {
	svc, store, userID := newStateFixture(t)
	store.failWith = errDatabaseDown

	_, err := svc.Write(context.Background(), userID, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDatabaseDown))
}

// =========================================================================
// Clear / Ensure TESTS
// =========================================================================

func TestClear_ResetsToEmptyObject(t *testing.T) {
	svc, _, userID := newStateFixture(t)
	ctx := context.Background()

	_, err := svc.Write(ctx, userID, json.RawMessage(`{"locations":["x"]}`))
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, userID))

	gs, err := svc.Read(ctx, userID)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(gs.State))
}

func TestClear_CreatesMissingDocument(t *testing.T) {
	svc, store, userID := newStateFixture(t)

	require.NoError(t, svc.Clear(context.Background(), userID))
	assert.JSONEq(t, `{}`, string(store.storedState(userID)))
}

func TestEnsure_SeedsInitialStateOnlyWhenAbsent(t *testing.T) {
	svc, _, userID := newStateFixture(t)
	ctx := context.Background()

	gs, err := svc.Ensure(ctx, userID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"locations":[]}`, string(gs.State))

	_, err = svc.Write(ctx, userID, json.RawMessage(`{"locations":["garden"]}`))
	require.NoError(t, err)

	gs, err = svc.Ensure(ctx, userID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"locations":["garden"]}`, string(gs.State))
}
