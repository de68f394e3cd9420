package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/store"
)

func TestListRecordingsPrintsSummaries(t *testing.T) {
	memoryStore := store.NewMemoryStore()
	rec := &recording.Recording{
		ID:        recording.RecordingID("rec-1"),
		Name:      "demo",
		CreatedAt: time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
		Duration:  1500,
		Snapshots: []recording.Snapshot{
			{Timestamp: 0, Content: ""},
			{Timestamp: 500, Content: "a"},
		},
	}
	if err := memoryStore.Save(context.Background(), rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var out bytes.Buffer
	if err := listRecordings(context.Background(), memoryStore, &out); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", out.String())
	}
	for _, fragment := range []string{"rec-1", "demo", "2026-09-02T10:00:00Z", "1.5s", "false"} {
		if !strings.Contains(lines[1], fragment) {
			t.Fatalf("row %q missing %q", lines[1], fragment)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{{"recordings", "list"}, {"recordings", "delete"}, {"token"}} {
		command, _, err := root.Find(path)
		if err != nil || command == root {
			t.Fatalf("subcommand %v not registered: %v", path, err)
		}
	}
}
