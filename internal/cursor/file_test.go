package cursor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

func TestFileStore_MissingFileIsAbsent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing.state"), zap.NewNop())

	v, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok {
		t.Errorf("expected absent cursor, got %d", v)
	}
}

func TestFileStore_ReadErrorIsReturned(t *testing.T) {
	// A directory where the state file should be cannot be read as a file.
	path := t.TempDir()
	s := NewFileStore(path, zap.NewNop())

	_, ok, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected read error, got nil")
	}
	if ok {
		t.Error("expected ok=false on read error")
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "notify.state")
	s := NewFileStore(path, zap.NewNop())
	ctx := context.Background()

	if err := s.Save(ctx, 102); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	v, ok, err := s.Load(ctx)
	if err != nil || !ok || v != 102 {
		t.Errorf("expected 102, got %d (ok=%v)", v, ok)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after save")
	}

	// Overwrite
	if err := s.Save(ctx, 250); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if v, _, _ := s.Load(ctx); v != 250 {
		t.Errorf("expected 250 after overwrite, got %d", v)
	}

	// A fresh store over the same path sees the saved value.
	if v, ok, _ := NewFileStore(path, zap.NewNop()).Load(ctx); !ok || v != 250 {
		t.Errorf("expected reopened store to load 250, got %d (ok=%v)", v, ok)
	}
}

func TestFileStore_UnparsableIsAbsent(t *testing.T) {
	tests := []string{"", "abc", "12.5", "  ", "99999999999999999999999"}

	for _, content := range tests {
		path := filepath.Join(t.TempDir(), "bad.state")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		v, ok, err := NewFileStore(path, zap.NewNop()).Load(context.Background())
		if err != nil {
			t.Errorf("content %q: unexpected error: %v", content, err)
		}
		if ok {
			t.Errorf("content %q: expected absent, got %d", content, v)
		}
	}
}

func TestFileStore_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.state")
	if err := os.WriteFile(path, []byte(" 42\n"), 0600); err != nil {
		t.Fatal(err)
	}

	v, ok, err := NewFileStore(path, zap.NewNop()).Load(context.Background())
	if err != nil || !ok || v != 42 {
		t.Errorf("expected 42, got %d (ok=%v)", v, ok)
	}
}

func TestFileStore_SaveIntoUnwritableParentFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(filepath.Join(blocker, "cursor.state"), zap.NewNop())
	if err := s.Save(context.Background(), 1); err == nil {
		t.Error("expected error when parent path is a regular file")
	}
}

// Property: whatever sequence of saves happens, Load returns the last one.
func TestFileStore_LastSaveWinsProperty(t *testing.T) {
	dir := t.TempDir()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	n := 0
	properties.Property("load returns the last saved value", prop.ForAll(
		func(values []int64) bool {
			n++
			s := NewFileStore(filepath.Join(dir, "prop", "c"+format(int64(n))), zap.NewNop())
			ctx := context.Background()
			for _, v := range values {
				if err := s.Save(ctx, v); err != nil {
					return false
				}
			}
			got, ok, err := s.Load(ctx)
			if err != nil {
				return false
			}
			if len(values) == 0 {
				return !ok
			}
			return ok && got == values[len(values)-1]
		},
		gen.SliceOf(gen.Int64Range(-1, 1<<53)),
	))

	properties.TestingRun(t)
}
