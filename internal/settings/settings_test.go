package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pyforge/internal/channel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "settings.toml"))
}

func mustSpec(t *testing.T, token string) channel.Spec {
	t.Helper()
	spec, err := channel.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestStoreSetGet(t *testing.T) {
	store := newTestStore(t)
	scope := filepath.Join(string(filepath.Separator), "home", "dev", "proj")

	if _, ok, err := store.Get(scope); err != nil || ok {
		t.Fatalf("empty store get: ok=%v err=%v", ok, err)
	}

	if err := store.Set(scope, mustSpec(t, "3.11.4")); err != nil {
		t.Fatal(err)
	}

	spec, ok, err := store.Get(scope)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if spec.String() != "3.11.4" {
		t.Fatalf("got %s, want 3.11.4", spec)
	}

	t.Run("last write wins", func(t *testing.T) {
		if err := store.Set(scope, mustSpec(t, "3.12")); err != nil {
			t.Fatal(err)
		}
		spec, _, err := store.Get(scope)
		if err != nil {
			t.Fatal(err)
		}
		if spec.String() != "3.12" {
			t.Fatalf("got %s, want 3.12", spec)
		}
	})
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	scope := filepath.Join(string(filepath.Separator), "work", "proj")

	if err := store.Remove(scope); err != nil {
		t.Fatalf("remove on empty store: %v", err)
	}

	if err := store.Set(scope, mustSpec(t, "3.11")); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(scope); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(scope); ok {
		t.Fatal("entry survived remove")
	}
}

func TestStoreLookupFallback(t *testing.T) {
	store := newTestStore(t)
	parent := filepath.Join(string(filepath.Separator), "home", "dev")
	child := filepath.Join(parent, "proj", "sub")

	if err := store.Set(DefaultKey, mustSpec(t, "3")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(parent, mustSpec(t, "3.11")); err != nil {
		t.Fatal(err)
	}

	t.Run("ancestor beats default", func(t *testing.T) {
		spec, matched, ok, err := store.Lookup(child)
		if err != nil || !ok {
			t.Fatalf("lookup: ok=%v err=%v", ok, err)
		}
		if matched != parent || spec.String() != "3.11" {
			t.Fatalf("matched %s -> %s, want %s -> 3.11", matched, spec, parent)
		}
	})

	t.Run("exact beats ancestor", func(t *testing.T) {
		if err := store.Set(child, mustSpec(t, "3.12.1")); err != nil {
			t.Fatal(err)
		}
		spec, matched, ok, err := store.Lookup(child)
		if err != nil || !ok {
			t.Fatalf("lookup: ok=%v err=%v", ok, err)
		}
		if matched != child || spec.String() != "3.12.1" {
			t.Fatalf("matched %s -> %s", matched, spec)
		}
	})

	t.Run("default as last resort", func(t *testing.T) {
		elsewhere := filepath.Join(string(filepath.Separator), "tmp", "scratch")
		spec, matched, ok, err := store.Lookup(elsewhere)
		if err != nil || !ok {
			t.Fatalf("lookup: ok=%v err=%v", ok, err)
		}
		if matched != DefaultKey || spec.String() != "3" {
			t.Fatalf("matched %s -> %s, want default -> 3", matched, spec)
		}
	})

	t.Run("nothing stored", func(t *testing.T) {
		empty := newTestStore(t)
		_, _, ok, err := empty.Lookup(child)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("lookup on empty store matched")
		}
	})
}

func TestStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("this is not toml = = ="), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewStore(path)

	_, _, err := store.Get("anything")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}

	// The document must survive untouched.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "this is not toml") {
		t.Fatal("corrupt document was replaced")
	}
}

func TestStorePreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	seed := "default = \"3.11\"\n\n[future_table]\nshiny = true\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewStore(path)

	if err := store.Set("/some/scope", mustSpec(t, "3.12.0")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "future_table") || !strings.Contains(string(data), "shiny") {
		t.Fatalf("unknown keys dropped on rewrite:\n%s", data)
	}
}

func TestStoreEntries(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set(DefaultKey, mustSpec(t, "3")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("/a/b", mustSpec(t, "3.11.4")); err != nil {
		t.Fatal(err)
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries["/a/b"].String() != "3.11.4" {
		t.Fatalf("got %s", entries["/a/b"])
	}
}
