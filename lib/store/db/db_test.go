package db

import (
	"testing"
)

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New("cassandra", "host:9042"); err == nil {
		t.Error("unsupported database type accepted")
	}
}

func TestCloseNoStore(t *testing.T) {
	// a bridge running without persistence closes a nil store
	if err := Close(nil); err != nil {
		t.Errorf("closing no store returned %v", err)
	}
}
