// Package testing allows for spinning up a real sqlite-backed
// store instance for unit tests throughout the oracle repo.
package testing

import (
	"testing"

	"github.com/hashgraph-online/flora-price-oracle/db"
)

// SetupDB instantiates and returns a store backed by a throwaway sqlite file.
func SetupDB(t testing.TB) *db.Store {
	s, err := db.NewDB(t.TempDir(), &db.Config{KeySecret: "test-secret"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return s
}
