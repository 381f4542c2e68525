package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/room-occupancy/internal/application"
)

func TestHandleServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"room": "is required"}}, wantStatus: http.StatusUnprocessableEntity, wantCode: "VALIDATION_FAILED"},
		{name: "verification", err: &application.VerificationError{Room: "R101"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_CODE"},
		{name: "room occupied", err: &application.ConflictError{Reason: application.ConflictRoomOccupied, Room: "R101"}, wantStatus: http.StatusConflict, wantCode: "ROOM_OCCUPIED"},
		{name: "attending elsewhere", err: &application.ConflictError{Reason: application.ConflictAttendingElsewhere, Room: "R102"}, wantStatus: http.StatusConflict, wantCode: "ATTENDING_ELSEWHERE"},
		{name: "invalid state", err: fmt.Errorf("%w: busy", application.ErrInvalidState), wantStatus: http.StatusConflict, wantCode: "INVALID_STATE"},
		{name: "not found", err: application.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "store", err: &application.StoreError{Op: "claim_room", Err: errors.New("timeout")}, wantStatus: http.StatusServiceUnavailable, wantCode: "STORE_UNAVAILABLE"},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	r := newResponder(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.handleServiceError(context.Background(), rec, tt.err)

			expectStatus(t, rec, tt.wantStatus)
			got := decodeBody[errorResponse](t, rec)
			if got.ErrorCode != tt.wantCode {
				t.Fatalf("expected error code %q, got %q", tt.wantCode, got.ErrorCode)
			}
			if got.Message == "" {
				t.Fatal("expected a message")
			}
		})
	}
}

func TestWriteJSONNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	newResponder(nil).writeJSON(context.Background(), rec, http.StatusNoContent, map[string]string{"ignored": "yes"})

	expectStatus(t, rec, http.StatusNoContent)
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}
