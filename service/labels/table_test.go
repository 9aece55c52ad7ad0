package labels

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/khaledhikmat/od-prepost/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestNewFromFileJSON(t *testing.T) {
	path := writeFile(t, "labels.json", `[{"class":"background"},{"class":"person"},{"class":"bicycle"}]`)

	svc, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if svc.Len() != 3 {
		t.Fatalf("unexpected length: %d", svc.Len())
	}
	for i, want := range []string{"background", "person", "bicycle"} {
		got, err := svc.Lookup(i)
		if err != nil || got != want {
			t.Fatalf("Lookup(%d) = %q, %v; want %q", i, got, err, want)
		}
	}
}

func TestNewFromFileYAML(t *testing.T) {
	path := writeFile(t, "labels.yaml", "- class: cat\n- class: dog\n")

	svc, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if got, _ := svc.Lookup(1); got != "dog" {
		t.Fatalf("Lookup(1) = %q, want dog", got)
	}
}

func TestNewFromFilePbtxt(t *testing.T) {
	path := writeFile(t, "mscoco_label_map.pbtxt", `
item {
  name: "/m/01g317"
  id: 1
  display_name: "person"
}
item {
  name: "/m/0199g"
  id: 2
  display_name: "bicycle"
}
item {
  name: "toothbrush"
  id: 90
}
`)

	svc, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if svc.Len() != 91 {
		t.Fatalf("unexpected length: %d", svc.Len())
	}
	if got, _ := svc.Lookup(1); got != "person" {
		t.Fatalf("Lookup(1) = %q, want person", got)
	}
	if got, _ := svc.Lookup(90); got != "toothbrush" {
		t.Fatalf("Lookup(90) = %q, want toothbrush", got)
	}

	// ids missing from the map are lookup failures, not blank labels
	_, err = svc.Lookup(3)
	var lookupErr *model.LabelLookupError
	if !errors.As(err, &lookupErr) || lookupErr.Index != 3 {
		t.Fatalf("expected LabelLookupError for id 3, got %v", err)
	}
}

func TestNewFromFileFailures(t *testing.T) {
	cases := map[string]string{
		"empty.json":   `[]`,
		"broken.json":  `{"class":`,
		"broken.yaml":  "- class: [",
		"noid.pbtxt":   `item { display_name: "x" }`,
		"empty.pbtxt":  ``,
		"labels.names": "person\n",
		"noclass.json": `[{"class":"person"},{"name":"bicycle"}]`,
		"blank.json":   `[{"class":"person"},{"class":""}]`,
		"blank.yaml":   "- class: person\n- class: \"  \"\n",
		"blank.pbtxt":  `item { id: 1 display_name: "" }`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewFromFile(writeFile(t, name, content)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}

	if _, err := NewFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLookupOutOfRange(t *testing.T) {
	names := make([]string, 80)
	for i := range names {
		names[i] = "class"
	}
	svc := New(names)

	for _, idx := range []int{-1, 80, 99} {
		name, err := svc.Lookup(idx)
		var lookupErr *model.LabelLookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("Lookup(%d) expected LabelLookupError, got %v", idx, err)
		}
		if lookupErr.Index != idx || lookupErr.Size != 80 {
			t.Fatalf("unexpected error fields: %+v", lookupErr)
		}
		if name != "" {
			t.Fatalf("Lookup(%d) returned a name on failure: %q", idx, name)
		}
	}
}

func TestNewCopiesInput(t *testing.T) {
	names := []string{"a", "b"}
	svc := New(names)
	names[0] = "mutated"
	if got, _ := svc.Lookup(0); got != "a" {
		t.Fatalf("table must not alias caller slice, got %q", got)
	}
}

func TestLookupNeverReturnsBlankName(t *testing.T) {
	svc := New([]string{"person", ""})
	name, err := svc.Lookup(1)
	var lookupErr *model.LabelLookupError
	if !errors.As(err, &lookupErr) || name != "" {
		t.Fatalf("Lookup(1) = %q, %v; want LabelLookupError", name, err)
	}
}
