package job

import (
	"path/filepath"
	"testing"
)

func TestNewJobDefaults(t *testing.T) {
	j := New(" /src ", "/dest")
	if j.ID == "" {
		t.Fatal("expected generated id")
	}
	if j.SourcePath != "/src" {
		t.Fatalf("source path not trimmed: %q", j.SourcePath)
	}
	if _, ok := j.SelectedMetadata(); ok {
		t.Fatal("expected no selection")
	}
	if _, ok := j.Title(); ok {
		t.Fatal("expected no selected title")
	}
	if other := New("/src", "/dest"); other.ID == j.ID {
		t.Fatal("expected unique ids")
	}
}

func TestAddCandidateSelectsFirst(t *testing.T) {
	j := New("/src", "/dest")
	j.AddCandidate(Metadata{Provider: "a", Title: "Alien", Year: 1979})
	j.AddCandidate(Metadata{Provider: "b", Title: "Aliens", Year: 1986})
	got, ok := j.SelectedMetadata()
	if !ok || got.Title != "Alien" {
		t.Fatalf("SelectedMetadata = %+v, %v", got, ok)
	}
	if j.DisplayName() != "Alien (1979)" {
		t.Fatalf("DisplayName = %q", j.DisplayName())
	}
}

func TestTitleLookup(t *testing.T) {
	j := New("/src", "/dest")
	j.Disc = &Disc{Titles: []Title{{Index: 0, Size: 10}, {Index: 3, Size: 5}}}
	j.SelectedTitle = 3
	title, ok := j.Title()
	if !ok || title.Size != 5 {
		t.Fatalf("Title = %+v, %v", title, ok)
	}
	if j.Disc.TotalSize() != 15 {
		t.Fatalf("TotalSize = %d", j.Disc.TotalSize())
	}
}

func TestSetOutputName(t *testing.T) {
	j := New("/src", "/dest")
	j.SetOutputName("Movie (2001).mkv")
	if j.OutputPath != filepath.Join("/dest", "Movie (2001).mkv") {
		t.Fatalf("OutputPath = %q", j.OutputPath)
	}
	j.SetOutputName("  ")
	if j.OutputPath != "" {
		t.Fatalf("expected cleared output path, got %q", j.OutputPath)
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	j := New("/media/DISC_ONE", "/dest")
	if j.DisplayName() != "DISC_ONE" {
		t.Fatalf("DisplayName = %q", j.DisplayName())
	}
	j.Disc = &Disc{VolumeLabel: "LABEL"}
	if j.DisplayName() != "LABEL" {
		t.Fatalf("DisplayName = %q", j.DisplayName())
	}
	j.Query = SearchQuery{Title: "Heat", Year: 1995}
	if j.DisplayName() != "Heat (1995)" {
		t.Fatalf("DisplayName = %q", j.DisplayName())
	}
}
