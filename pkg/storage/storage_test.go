package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/wallet-service/internal/encryption"
)

func getDBImplementations(t *testing.T) []ServiceStorage {
	boltDB := setupBoltDB(t)
	key := make([]byte, 32)
	return []ServiceStorage{
		boltDB,
		setupRedisDB(t),
		NewEncryptedWrapper(
			setupBoltDB(t),
			encryption.NewXChaCha20Poly1305EncrypterWithKey(key),
			encryption.NewXChaCha20Poly1305EncrypterWithKey(key),
		),
	}
}

func setupBoltDB(t *testing.T) *BoltDB {
	db, err := NewStorage(Bolt, Option{
		ID:     BoltDBFilePathOption,
		Option: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, db)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db.(*BoltDB)
}

func setupRedisDB(t *testing.T) *RedisDB {
	server := miniredis.RunT(t)
	options := []Option{
		{
			ID:     RedisAddressOption,
			Option: server.Addr(),
		},
	}
	db, err := NewStorage(Redis, options...)
	require.NoError(t, err)
	require.NotEmpty(t, db)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db.(*RedisDB)
}

func TestDB(t *testing.T) {
	for _, dbImpl := range getDBImplementations(t) {
		db := dbImpl
		t.Run(db.Type().String(), func(tt *testing.T) {
			ctx := context.Background()
			assert.True(tt, db.IsOpen())

			namespace := "credential"
			credID := "urn:uuid:2f9f7c4e-1e0a-4c6f-9a51-2d2e4c0f6a11"
			cred := map[string]any{"id": credID, "status": "VALID"}
			credBytes, err := json.Marshal(cred)
			require.NoError(tt, err)

			err = db.Write(ctx, namespace, credID, credBytes)
			assert.NoError(tt, err)

			got, err := db.Read(ctx, namespace, credID)
			assert.NoError(tt, err)
			var gotCred map[string]any
			require.NoError(tt, json.Unmarshal(got, &gotCred))
			assert.Equal(tt, cred, gotCred)

			exists, err := db.Exists(ctx, namespace, credID)
			assert.NoError(tt, err)
			assert.True(tt, exists)

			// a value from a namespace that doesn't exist
			res, err := db.Read(ctx, "bad", "worse")
			assert.NoError(tt, err)
			assert.Nil(tt, res)

			// a value that doesn't exist in the namespace
			res, err = db.Read(ctx, namespace, "urn:uuid:missing")
			assert.NoError(tt, err)
			assert.Nil(tt, res)

			exists, err = db.Exists(ctx, namespace, "urn:uuid:missing")
			assert.NoError(tt, err)
			assert.False(tt, exists)

			second := "urn:uuid:9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"
			err = db.Write(ctx, namespace, second, []byte(`{"status":"ISSUED"}`))
			assert.NoError(tt, err)

			// a namespace sharing a prefix must not leak into ReadAll
			err = db.Write(ctx, namespace+"s", "other", []byte(`{}`))
			assert.NoError(tt, err)

			gotAll, err := db.ReadAll(ctx, namespace)
			assert.NoError(tt, err)
			assert.Len(tt, gotAll, 2)
			assert.Contains(tt, gotAll, credID)
			assert.Contains(tt, gotAll, second)

			err = db.Delete(ctx, namespace, second)
			assert.NoError(tt, err)
			res, err = db.Read(ctx, namespace, second)
			assert.NoError(tt, err)
			assert.Nil(tt, res)

			// deleting from a namespace that doesn't exist is a no-op
			assert.NoError(tt, db.Delete(ctx, "bad", second))

			err = db.DeleteNamespace(ctx, "bad")
			assert.ErrorContains(tt, err, "could not delete namespace<bad>")

			err = db.DeleteNamespace(ctx, namespace)
			assert.NoError(tt, err)
			res, err = db.Read(ctx, namespace, credID)
			assert.NoError(tt, err)
			assert.Nil(tt, res)
		})
	}
}

func TestWriteIfAbsent(t *testing.T) {
	for _, dbImpl := range getDBImplementations(t) {
		db := dbImpl
		t.Run(db.Type().String(), func(tt *testing.T) {
			ctx := context.Background()
			namespace := "user"
			userID := "urn:entities:userId:1234"

			written, err := db.WriteIfAbsent(ctx, namespace, userID, []byte(`{"v":1}`))
			assert.NoError(tt, err)
			assert.True(tt, written)

			written, err = db.WriteIfAbsent(ctx, namespace, userID, []byte(`{"v":2}`))
			assert.NoError(tt, err)
			assert.False(tt, written)

			got, err := db.Read(ctx, namespace, userID)
			assert.NoError(tt, err)
			assert.JSONEq(tt, `{"v":1}`, string(got))
		})
	}
}

func TestWriteIfAbsentConcurrent(t *testing.T) {
	for _, dbImpl := range getDBImplementations(t) {
		db := dbImpl
		t.Run(db.Type().String(), func(tt *testing.T) {
			var wg sync.WaitGroup
			var mu sync.Mutex
			writes := 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					written, err := db.WriteIfAbsent(context.Background(), "user", "same-user", []byte(fmt.Sprintf(`{"n":%d}`, i)))
					assert.NoError(tt, err)
					if written {
						mu.Lock()
						writes++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(tt, 1, writes)
		})
	}
}

func TestNewStorage(t *testing.T) {
	_, err := NewStorage("mongo")
	assert.ErrorContains(t, err, "unsupported storage type")

	_, err = NewStorage(Redis)
	assert.ErrorContains(t, err, "redis address option is required")

	_, err = NewStorage(Bolt, Option{ID: BoltDBFilePathOption, Option: 42})
	assert.ErrorContains(t, err, "must be of type string")
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{"bolt": Bolt, " Redis ": Redis, "POSTGRES": DatabaseSQL} {
		got, err := ParseType(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("scorpio")
	assert.Error(t, err)
}

func TestProcessSQLOptions(t *testing.T) {
	conn, driver, err := processSQLOptions(Option{ID: SQLConnectionString, Option: "host=localhost dbname=wallet"})
	assert.NoError(t, err)
	assert.Equal(t, "host=localhost dbname=wallet", conn)
	assert.Equal(t, "postgres", driver)

	_, _, err = processSQLOptions(Option{ID: SQLDriverName, Option: "postgres"})
	assert.ErrorContains(t, err, "connection string must not be empty")

	_, _, err = processSQLOptions(Option{ID: SQLConnectionString, Option: 1})
	assert.Error(t, err)
}
