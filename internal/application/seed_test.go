package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/memory"
)

func TestScheduleSeeder_Seed(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	t.Cleanup(func() { _ = storage.Close() })

	existing := catalogEntry("existing", "Mon/Wed", "8:00 AM - 9:30 AM")
	if err := storage.PutSchedule(ctx, existing); err != nil {
		t.Fatalf("PutSchedule: %v", err)
	}

	duplicate := catalogEntry("dup", "Mon/Wed", "8:00 AM - 9:30 AM")
	duplicate.FacultyID = "fac-2"

	overlap := catalogEntry("overlap", "Wed", "9:00 AM - 10:00 AM")
	overlap.FacultyID = "fac-3"

	missingRoom := catalogEntry("bad", "Fri", "8:00 AM - 9:00 AM")
	missingRoom.Room = ""

	badTime := catalogEntry("late", "Fri", "5 PM - 4 PM")

	fresh := catalogEntry("", "Tue/Thu", "1:00 PM - 2:30 PM")

	ids := 0
	seeder := NewScheduleSeeder(storage, func() string {
		ids++
		return "generated-" + string(rune('0'+ids))
	}, nil)

	report, err := seeder.Seed(ctx, []persistence.ScheduleEntry{duplicate, overlap, missingRoom, badTime, fresh})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if got := strings.Join(report.Inserted, ","); got != "overlap,generated-1" {
		t.Fatalf("unexpected inserted rows %q", got)
	}
	if report.Skipped["dup"] != "duplicate schedule" {
		t.Fatalf("expected duplicate to be skipped, got %v", report.Skipped)
	}
	if !strings.Contains(report.Skipped["bad"], "room is required") {
		t.Fatalf("expected missing room reason, got %q", report.Skipped["bad"])
	}
	if _, ok := report.Skipped["late"]; !ok {
		t.Fatalf("expected inverted window to be skipped, got %v", report.Skipped)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "room conflict with existing") {
		t.Fatalf("expected one room overlap warning, got %v", report.Warnings)
	}

	if _, err := storage.GetSchedule(ctx, "generated-1"); err != nil {
		t.Fatalf("expected generated row to be stored: %v", err)
	}
}

func TestLoadScheduleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	body := `[{"id":"s1","facultyId":"fac-1","schoolYear":"2024-2025","semester":"1st","subjectCode":"CS101","day":"Mon","time":"8:00 AM - 9:00 AM","room":"R101"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := LoadScheduleFile(path)
	if err != nil {
		t.Fatalf("LoadScheduleFile: %v", err)
	}
	if len(entries) != 1 || entries[0].Time != "8:00 AM - 9:00 AM" || entries[0].Room != "R101" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	if _, err := LoadScheduleFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
