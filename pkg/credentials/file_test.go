package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSource_Path(t *testing.T) {
	s := NewFileSource("/data")

	path, err := s.Path("acme", "jdoe")
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	want := filepath.Join("/data", "exported_data", "acme", "jdoe", FileName)
	if path != want {
		t.Errorf("Path() = %q, want %q", path, want)
	}

	if _, err := s.Path("acme", "../other"); err == nil {
		t.Error("Expected error for subject with separator")
	}
}

func TestFileSource_Load(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		content   *string
		wantNil   bool
		wantErr   bool
		wantToken string
	}{
		{name: "missing file", content: nil, wantNil: true},
		{name: "malformed json", content: strPtr(`{"cookie":`), wantErr: true},
		{name: "valid", content: strPtr(`{"cookie":"li_at=x","csrfToken":"ajax:9"}`), wantToken: "ajax:9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewFileSource(dir)

			if tt.content != nil {
				path, _ := s.Path("acme", "jdoe")
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte(*tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			bundle, err := s.Load(ctx, "acme", "jdoe")
			if tt.wantErr {
				if err == nil {
					t.Error("Expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.wantNil {
				if bundle != nil {
					t.Errorf("Load() = %+v, want nil", bundle)
				}
				return
			}
			if bundle.CSRFToken != tt.wantToken {
				t.Errorf("CSRFToken = %q, want %q", bundle.CSRFToken, tt.wantToken)
			}
		})
	}
}

func TestFileSource_SaveThenAwait(t *testing.T) {
	ctx := context.Background()
	s := NewFileSource(t.TempDir())

	if err := s.Save(ctx, "acme", "jdoe", Bundle{Cookie: "li_at=y", CSRFToken: "ajax:2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	w, err := NewWaiter(s, nil, fastConfig())
	if err != nil {
		t.Fatalf("NewWaiter() error = %v", err)
	}
	bundle, err := w.Await(ctx, Session{Tenant: "acme", Subject: "jdoe", OnSite: true})
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if bundle.Cookie != "li_at=y" {
		t.Errorf("Cookie = %q, want li_at=y", bundle.Cookie)
	}
}

func strPtr(s string) *string { return &s }
