// Package testutil provides storage engines for package tests, closed when the test ends.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/wallet-service/pkg/storage"
)

// TestDatabases lists the engines that can run without external infrastructure
var TestDatabases = []struct {
	Name           string
	ServiceStorage func(t *testing.T) storage.ServiceStorage
}{
	{
		Name: "Test with Bolt DB",
		ServiceStorage: func(t *testing.T) storage.ServiceStorage {
			return openStorage(t, storage.Bolt, storage.BoltDBFilePathOption, filepath.Join(t.TempDir(), "wallet.db"))
		},
	},
	{
		Name: "Test with Redis DB",
		ServiceStorage: func(t *testing.T) storage.ServiceStorage {
			return openStorage(t, storage.Redis, storage.RedisAddressOption, miniredis.RunT(t).Addr())
		},
	},
}

func openStorage(t *testing.T, storageType storage.Type, option storage.OptionKey, value string) storage.ServiceStorage {
	s, err := storage.NewStorage(storageType, storage.Option{ID: option, Option: value})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
