package db

import (
	"testing"
)

func setupDB(t *testing.T) *Store {
	s, err := NewDB(t.TempDir(), &Config{KeySecret: "test-secret"})
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
