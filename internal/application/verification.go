package application

import "strings"

const roomMarkerPrefix = "Room: "

// RoomMarker returns the text a room's printed code carries.
func RoomMarker(room string) string {
	return roomMarkerPrefix + room
}

// Verifier decides whether a decoded scan identifies the expected room.
type Verifier interface {
	Verify(expectedMarker, decodedText string) bool
}

// VerificationGate matches scans by substring. It confirms presence only: any
// client able to type the marker passes.
type VerificationGate struct{}

// NewVerificationGate returns the default gate.
func NewVerificationGate() VerificationGate {
	return VerificationGate{}
}

// Verify reports whether decodedText contains the non-empty marker.
func (VerificationGate) Verify(expectedMarker, decodedText string) bool {
	if expectedMarker == "" {
		return false
	}
	return strings.Contains(decodedText, expectedMarker)
}
