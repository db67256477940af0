package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "database-url")
	if err := os.WriteFile(file, []byte("postgres://file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("JOBHUNTER_TEST_SECRET", " postgres://env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{File: file, Env: "JOBHUNTER_TEST_SECRET", Value: "inline"}, want: "postgres://file"},
		{name: "env wins over value", src: Source{Env: "JOBHUNTER_TEST_SECRET", Value: "inline"}, want: "postgres://env"},
		{name: "unset env falls back to value", src: Source{Env: "JOBHUNTER_TEST_UNSET", Value: " inline "}, want: "inline"},
		{name: "missing file", src: Source{Name: "database url", File: filepath.Join(dir, "nope")}, wantErr: "reading database url"},
		{name: "empty file", src: Source{File: empty}, wantErr: "is empty"},
		{name: "nothing configured", src: Source{Name: "redis url"}, wantErr: "redis url is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOptionalAllowsAbsentSecrets(t *testing.T) {
	got, err := Optional(Source{Name: "redis url"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret without error, got %q, %v", got, err)
	}
}
