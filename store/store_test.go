package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	bs, err := OpenBoltStore(filepath.Join(t.TempDir(), "plugins.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{
		"memory": NewMemStore(),
		"file":   fs,
		"bolt":   bs,
	}
}

func TestStoreRoundtrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			location, err := s.Save("p1", []byte(`{"name":"p1"}`))
			if err != nil {
				t.Fatal(err)
			}
			if location == "" {
				t.Error("Save should return a record location")
			}

			ok, err := s.Exists("p1")
			if err != nil || !ok {
				t.Fatalf("Exists(p1) = %v, %v", ok, err)
			}

			data, err := s.Load("p1")
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != `{"name":"p1"}` {
				t.Errorf("Load(p1) = %q", data)
			}

			// Overwrite replaces the record.
			if _, err := s.Save("p1", []byte(`{"name":"p1","v":2}`)); err != nil {
				t.Fatal(err)
			}
			data, _ = s.Load("p1")
			if string(data) != `{"name":"p1","v":2}` {
				t.Errorf("after overwrite Load(p1) = %q", data)
			}

			existed, err := s.Delete("p1")
			if err != nil || !existed {
				t.Fatalf("Delete(p1) = %v, %v", existed, err)
			}
			existed, err = s.Delete("p1")
			if err != nil || existed {
				t.Fatalf("second Delete(p1) = %v, %v, want false", existed, err)
			}
		})
	}
}

func TestStoreLoadMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load("ghost"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load(ghost) = %v, want ErrNotFound", err)
			}
			ok, err := s.Exists("ghost")
			if err != nil || ok {
				t.Errorf("Exists(ghost) = %v, %v, want false", ok, err)
			}
		})
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"../evil", "a/b", `a\b`, ".", ".."} {
		if _, err := fs.Save(id, []byte("x")); err == nil {
			t.Errorf("Save(%q) should be rejected", id)
		}
	}
}
