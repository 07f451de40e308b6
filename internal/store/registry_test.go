package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rashpile/scriptmate/pkg/script"
)

func def(id string) script.Definition {
	return script.Definition{
		ID:      id,
		Label:   "Label " + id,
		Command: "sh " + id + ".sh",
		Args: []script.Argument{
			{Name: "target", Description: "Target", Type: script.TypeString, Required: true, Positional: true},
			{Name: "env", Description: "Env", Type: script.TypeString, Default: "dev"},
			{Name: "verbose", Description: "Verbose", Type: script.TypeBoolean, Default: false},
		},
	}
}

func openTemp(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptmate-commands.json")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	return r, path
}

func TestLoadRecovers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "empty file", content: ""},
		{name: "whitespace", content: "  \n\t"},
		{name: "empty array", content: "[]"},
		{name: "bad json", content: "[{", wantErr: ErrStorageUnavailable},
		{name: "object", content: `{"id":"x"}`, wantErr: script.ErrInvalidDefinition},
		{name: "null", content: "null", wantErr: script.ErrInvalidDefinition},
		{name: "array of numbers", content: "[1,2]", wantErr: script.ErrInvalidDefinition},
		{name: "missing label", content: `[{"id":"x","command":"ls","args":[]}]`, wantErr: script.ErrInvalidDefinition},
		{
			name:    "duplicate ids",
			content: `[{"id":"x","label":"X","command":"ls","args":[]},{"id":"x","label":"Y","command":"ls","args":[]}]`,
			wantErr: script.ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "commands.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			r, err := Open(path)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Open() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() = %v, want %v", err, tt.wantErr)
			}
			if r == nil {
				t.Fatal("registry must be usable after a failed load")
			}
			if r.Len() != 0 {
				t.Errorf("Len() = %d, want 0", r.Len())
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	r, path := openTemp(t)
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("loading must not create the file")
	}
}

func TestAddDuplicate(t *testing.T) {
	r, _ := openTemp(t)
	if err := r.Add(def("a")); err != nil {
		t.Fatal(err)
	}
	before := r.List()

	dup := def("a")
	dup.Label = "Other"
	err := r.Add(dup)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Add(dup) = %v, want ErrDuplicateID", err)
	}
	if !reflect.DeepEqual(r.List(), before) {
		t.Error("failed Add changed the registry")
	}
}

func TestAddInvalid(t *testing.T) {
	r, _ := openTemp(t)
	bad := def("a")
	bad.Command = ""
	if err := r.Add(bad); !errors.Is(err, script.ErrInvalidDefinition) {
		t.Errorf("Add(invalid) = %v", err)
	}
	if r.Len() != 0 {
		t.Error("invalid definition was stored")
	}
}

func TestUpdate(t *testing.T) {
	r, _ := openTemp(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Add(def(id)); err != nil {
			t.Fatal(err)
		}
	}

	changed := def("b")
	changed.Label = "Changed"
	if err := r.Update(changed); err != nil {
		t.Fatalf("Update() = %v", err)
	}

	list := r.List()
	if list[1].ID != "b" || list[1].Label != "Changed" {
		t.Errorf("list[1] = %+v, want updated b in place", list[1])
	}

	if err := r.Update(def("zzz")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	r, _ := openTemp(t)
	for _, id := range []string{"a", "b"} {
		if err := r.Add(def(id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Delete("missing-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(missing) = %v, want ErrNotFound", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d after failed delete, want 2", r.Len())
	}

	if err := r.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(a) = %v after delete", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestRename(t *testing.T) {
	r, _ := openTemp(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Add(def(id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Rename("b", def("c")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Rename onto existing id = %v", err)
	}
	if err := r.Rename("nope", def("n")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename(missing) = %v", err)
	}
	if err := r.Rename("b", def("bee")); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, d := range r.List() {
		ids = append(ids, d.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "bee", "c"}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestRoundTrip(t *testing.T) {
	r, path := openTemp(t)

	withDesc := def("b")
	withDesc.Description = "described"
	withDesc.BaseDirectory = "/srv/app"
	want := []script.Definition{def("a"), withDesc, def("c")}
	for _, d := range want {
		if err := r.Add(d); err != nil {
			t.Fatal(err)
		}
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if got := reopened.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestListReturnsCopies(t *testing.T) {
	r, _ := openTemp(t)
	if err := r.Add(def("a")); err != nil {
		t.Fatal(err)
	}

	list := r.List()
	list[0].Label = "mutated"
	list[0].Args[0].Name = "mutated"
	_ = append(list, def("x"))

	got, _ := r.Get("a")
	if got.Label != "Label a" || got.Args[0].Name != "target" {
		t.Error("mutating List() result changed the registry")
	}
}

func TestNotifications(t *testing.T) {
	r, _ := openTemp(t)

	calls := 0
	unsubscribe := r.Subscribe(func() { calls++ })

	_ = r.Add(def("a"))
	_ = r.Add(def("a")) // rejected
	_ = r.Delete("missing")
	_ = r.Load()

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (add + load)", calls)
	}

	unsubscribe()
	_ = r.Load()
	if calls != 2 {
		t.Error("unsubscribed observer was called")
	}
}

func TestSetPathReloads(t *testing.T) {
	r, _ := openTemp(t)
	if err := r.Add(def("a")); err != nil {
		t.Fatal(err)
	}

	other := filepath.Join(t.TempDir(), "nested", "other.json")
	if err := r.SetPath(other); err != nil {
		t.Fatalf("SetPath() = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after switching to an empty location", r.Len())
	}

	// The first save creates the missing directory.
	if err := r.Add(def("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("file not written: %v", err)
	}
}

func TestSaveFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The parent "directory" is a regular file, so every save fails.
	r, err := Open(filepath.Join(blocker, "commands.json"))
	if err != nil {
		t.Logf("Open() warning: %v", err)
	}

	calls := 0
	r.Subscribe(func() { calls++ })

	if err := r.Add(def("a")); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Add() = %v, want ErrStorageUnavailable", err)
	}
	if r.Len() != 0 {
		t.Error("failed save left the definition in memory")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestReloadIfChanged(t *testing.T) {
	r, path := openTemp(t)
	if err := r.Add(def("a")); err != nil {
		t.Fatal(err)
	}

	reloaded, err := r.ReloadIfChanged()
	if err != nil || reloaded {
		t.Fatalf("ReloadIfChanged() after own write = %v, %v", reloaded, err)
	}

	doc := `[{"id":"ext","label":"External","command":"ls","args":[]}]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded, err = r.ReloadIfChanged()
	if err != nil || !reloaded {
		t.Fatalf("ReloadIfChanged() after external write = %v, %v", reloaded, err)
	}
	if _, err := r.Get("ext"); err != nil {
		t.Errorf("Get(ext) = %v", err)
	}
}

func TestMemoryOnly(t *testing.T) {
	r, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(def("a")); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d", r.Len())
	}
}
