package application

import "testing"

func TestVerificationGate(t *testing.T) {
	gate := NewVerificationGate()
	tests := []struct {
		name    string
		marker  string
		decoded string
		want    bool
	}{
		{name: "exact", marker: RoomMarker("105"), decoded: "Room: 105", want: true},
		{name: "embedded", marker: RoomMarker("105"), decoded: "ROOMIT\nBuilding: Main\nRoom: 105\n", want: true},
		{name: "other room", marker: RoomMarker("105"), decoded: "Room: 106", want: false},
		{name: "case sensitive", marker: RoomMarker("105"), decoded: "room: 105", want: false},
		{name: "empty marker", marker: "", decoded: "Room: 105", want: false},
		{name: "empty payload", marker: RoomMarker("105"), decoded: "", want: false},
		// Substring matching accepts a longer room number with the same prefix.
		{name: "prefix room", marker: RoomMarker("10"), decoded: "Room: 105", want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := gate.Verify(tc.marker, tc.decoded); got != tc.want {
				t.Fatalf("Verify(%q, %q) = %v, want %v", tc.marker, tc.decoded, got, tc.want)
			}
		})
	}
}
