package bundler

import (
	"encoding/json"
	"testing"
	"time"
)

func TestManifestToJSONRoundTrip(t *testing.T) {
	m := SourceManifest{
		SchemaVersion: SchemaVersion,
		SchemaID:      SchemaID,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RunID:         "run-1",
		SourceSHA256:  "deadbeef",
		Entries: []ManifestEntry{
			{Path: "a.txt", Size: 3, SHA256: "abc", Type: EntryFile},
			{Path: "subdir", Type: EntryDirectory},
			{Path: "link", Type: EntrySymlink, SymlinkTarget: "a.txt"},
		},
	}

	data, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded SourceManifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.SchemaID != SchemaID {
		t.Errorf("SchemaID = %q, want %q", decoded.SchemaID, SchemaID)
	}
	if len(decoded.Entries) != 3 {
		t.Errorf("len(Entries) = %d, want 3", len(decoded.Entries))
	}
}

func TestManifestTotalSize(t *testing.T) {
	m := SourceManifest{Entries: []ManifestEntry{
		{Path: "a", Size: 10, Type: EntryFile},
		{Path: "b", Size: 20, Type: EntryFile},
		{Path: "dir", Type: EntryDirectory},
	}}
	if got := m.TotalSize(); got != 30 {
		t.Errorf("TotalSize() = %d, want 30", got)
	}
}

func TestManifestEntryCounts(t *testing.T) {
	m := SourceManifest{Entries: []ManifestEntry{
		{Path: "a", Type: EntryFile},
		{Path: "b", Type: EntryFile},
		{Path: "dir", Type: EntryDirectory},
		{Path: "link", Type: EntrySymlink},
	}}
	files, dirs, symlinks := m.EntryCounts()
	if files != 2 || dirs != 1 || symlinks != 1 {
		t.Errorf("EntryCounts() = (%d, %d, %d), want (2, 1, 1)", files, dirs, symlinks)
	}
}

func TestManifestFindEntry(t *testing.T) {
	m := SourceManifest{Entries: []ManifestEntry{
		{Path: "a/b.txt", Size: 5, Type: EntryFile},
	}}

	entry, ok := m.FindEntry("a/b.txt")
	if !ok {
		t.Fatal("FindEntry() ok = false, want true")
	}
	if entry.Size != 5 {
		t.Errorf("entry.Size = %d, want 5", entry.Size)
	}

	if _, ok := m.FindEntry("missing"); ok {
		t.Error("FindEntry(missing) ok = true, want false")
	}
}

func TestManifestEmptySourceManifestTotalsZero(t *testing.T) {
	m := SourceManifest{}
	if m.TotalSize() != 0 {
		t.Errorf("TotalSize() = %d, want 0", m.TotalSize())
	}
	files, dirs, symlinks := m.EntryCounts()
	if files != 0 || dirs != 0 || symlinks != 0 {
		t.Errorf("EntryCounts() = (%d, %d, %d), want all zero", files, dirs, symlinks)
	}
}
