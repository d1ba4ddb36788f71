package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
)

type zipEntry struct {
	name string
	data string
}

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create entry %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.data)); err != nil {
			t.Fatalf("write entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

const aplusbConfig = `{
	"entry": "aplusb.py",
	"data": "test.dat",
	"parameters": "$data -t $time -c $cpu -m $memory",
	"time": 10,
	"memory": 256,
	"cpu": 8
}`

func TestLoad_AplusB(t *testing.T) {
	data := buildZip(t, []zipEntry{
		{"config.json", aplusbConfig},
		{"program/aplusb.py", "print(35)\n"},
		{"data/test.dat", "17 18\n"},
	})

	scratch := t.TempDir()
	loaded, err := Load(data, scratch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "/workspace/data/test.dat -t 10 -c 8 -m 256"
	if loaded.Parameters != want {
		t.Errorf("parameters = %q, want %q", loaded.Parameters, want)
	}

	if _, err := os.Stat(filepath.Join(scratch, "program", "aplusb.py")); err != nil {
		t.Errorf("entry file not materialized: %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "data", "test.dat")); err != nil {
		t.Errorf("data file not materialized: %v", err)
	}
}

func TestLoad_MissingConfigJSON(t *testing.T) {
	data := buildZip(t, []zipEntry{{"program/main.py", "print(1)"}})
	_, err := Load(data, t.TempDir())
	var archErr *judgeerr.ArchiveError
	if err == nil {
		t.Fatal("expected error")
	}
	if !asArchiveError(err, &archErr) {
		t.Fatalf("expected ArchiveError, got %T: %v", err, err)
	}
}

func TestLoad_MissingEntryFile(t *testing.T) {
	config := `{"entry":"missing.py","parameters":"","time":1,"memory":64,"cpu":1}`
	data := buildZip(t, []zipEntry{{"config.json", config}})
	_, err := Load(data, t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing entry file")
	}
}

func TestLoad_MissingDataFile(t *testing.T) {
	config := `{"entry":"a.py","data":"missing.dat","parameters":"$data","time":1,"memory":64,"cpu":1}`
	data := buildZip(t, []zipEntry{
		{"config.json", config},
		{"program/a.py", "pass"},
	})
	_, err := Load(data, t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing data file")
	}
}

func TestLoad_InvalidSeedCount(t *testing.T) {
	config := `{"entry":"a.py","parameters":"","time":1,"memory":64,"cpu":1,"seedCount":-3}`
	data := buildZip(t, []zipEntry{
		{"config.json", config},
		{"program/a.py", "pass"},
	})
	_, err := Load(data, t.TempDir())
	if err == nil {
		t.Fatal("expected error for negative seedCount")
	}
}

func TestLoad_JunkFilesIgnored(t *testing.T) {
	config := `{"entry":"a.py","parameters":"","time":1,"memory":64,"cpu":1}`
	data := buildZip(t, []zipEntry{
		{"config.json", config},
		{"program/a.py", "pass"},
		{"README.md", "not part of the sandbox"},
		{"junk/extra.txt", "also ignored"},
	})
	scratch := t.TempDir()
	if _, err := Load(data, scratch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "README.md")); !os.IsNotExist(err) {
		t.Errorf("expected README.md to never be materialized, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "junk")); !os.IsNotExist(err) {
		t.Errorf("expected junk/ to never be materialized, stat err = %v", err)
	}
}

func TestLoad_OptionalPlaceholdersOmittedWhenAbsent(t *testing.T) {
	config := `{"entry":"a.py","parameters":"run $time $data end","time":5,"memory":64,"cpu":1}`
	data := buildZip(t, []zipEntry{
		{"config.json", config},
		{"program/a.py", "pass"},
	})
	loaded, err := Load(data, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "run 5 $data end"
	if loaded.Parameters != want {
		t.Errorf("parameters = %q, want %q", loaded.Parameters, want)
	}
}

func asArchiveError(err error, target **judgeerr.ArchiveError) bool {
	if ae, ok := err.(*judgeerr.ArchiveError); ok {
		*target = ae
		return true
	}
	return false
}
