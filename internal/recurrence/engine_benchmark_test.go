package recurrence

import (
	"testing"
	"time"
)

func BenchmarkEngineNext(b *testing.B) {
	engine := NewEngine(nil)
	meeting, err := ParseMeeting("Tue/Thurs", "1:00 PM - 2:30 PM")
	if err != nil {
		b.Fatalf("unexpected error: %v", err)
	}
	ref := time.Date(2024, 5, 6, 9, 0, 0, 0, pht)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Next(meeting, ref.Add(time.Duration(i%168)*time.Hour)); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}
