package db

import (
	"strings"
	"testing"
)

func TestLockData(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"encounter states", "1 1 0 2"},
		{"large", strings.Repeat("3 0 1 ", 4096)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := EncodeLockData(tt.data)
			if tt.data == "" && blob != nil {
				t.Errorf("EncodeLockData(%q) = %v, want nil", tt.data, blob)
			}
			got, err := DecodeLockData(blob)
			if err != nil {
				t.Fatalf("DecodeLockData() error = %v", err)
			}
			if got != tt.data {
				t.Errorf("DecodeLockData() = %q, want %q", got, tt.data)
			}
		})
	}
}

func TestLockData_Compresses(t *testing.T) {
	data := strings.Repeat("0 0 0 0 ", 1024)
	if blob := EncodeLockData(data); len(blob) >= len(data)/4 {
		t.Errorf("len(EncodeLockData()) = %d, want well under %d", len(blob), len(data))
	}
}

func TestDecodeLockData_Corrupt(t *testing.T) {
	if _, err := DecodeLockData([]byte("not zstd")); err == nil {
		t.Error("DecodeLockData(garbage) error = nil, want error")
	}
}
