package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/room-occupancy/internal/persistence"
)

// RoomReader captures the occupancy reads needed by the dashboard.
type RoomReader interface {
	ReadRoom(ctx context.Context, room string) (persistence.RoomRecord, error)
	ListRooms(ctx context.Context) ([]persistence.RoomRecord, error)
	WatchRooms(ctx context.Context) (<-chan persistence.RoomEvent, error)
}

// RoomStatusService is the read side of room occupancy. Results may be stale by
// one round trip; absence of a record means the room is free.
type RoomStatusService struct {
	rooms  RoomReader
	logger *slog.Logger
}

// NewRoomStatusService constructs a room status service.
func NewRoomStatusService(rooms RoomReader) *RoomStatusService {
	return NewRoomStatusServiceWithLogger(rooms, nil)
}

// NewRoomStatusServiceWithLogger constructs a room status service with a specified logger.
func NewRoomStatusServiceWithLogger(rooms RoomReader, logger *slog.Logger) *RoomStatusService {
	return &RoomStatusService{rooms: rooms, logger: defaultLogger(logger)}
}

func (s *RoomStatusService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomStatusService", operation, attrs...)
}

// ListOccupied returns every room that currently holds an active session.
func (s *RoomStatusService) ListOccupied(ctx context.Context) ([]RoomStatus, error) {
	if s == nil || s.rooms == nil {
		return nil, fmt.Errorf("RoomStatusService is not configured")
	}
	records, err := s.rooms.ListRooms(ctx)
	if err != nil {
		err = storeError("list_rooms", err)
		s.loggerWith(ctx, "ListOccupied").ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	statuses := make([]RoomStatus, 0, len(records))
	for _, rec := range records {
		statuses = append(statuses, occupiedStatus(rec))
	}
	return statuses, nil
}

// GetRoom returns the status of room.
func (s *RoomStatusService) GetRoom(ctx context.Context, room string) (RoomStatus, error) {
	if s == nil || s.rooms == nil {
		return RoomStatus{}, fmt.Errorf("RoomStatusService is not configured")
	}
	if !persistence.ValidSegment(room) {
		return RoomStatus{}, newValidationError("room", "must not be blank or contain '/'")
	}
	rec, err := s.rooms.ReadRoom(ctx, room)
	if errors.Is(err, persistence.ErrNotFound) {
		return RoomStatus{Room: room}, nil
	}
	if err != nil {
		err = storeError("read_room", err)
		s.loggerWith(ctx, "GetRoom", "room", room).ErrorContext(ctx, "failed to read room", "error", err, "error_kind", ErrorKind(err))
		return RoomStatus{}, err
	}
	return occupiedStatus(rec), nil
}

// Watch streams room status changes until ctx is done.
func (s *RoomStatusService) Watch(ctx context.Context) (<-chan RoomStatus, error) {
	if s == nil || s.rooms == nil {
		return nil, fmt.Errorf("RoomStatusService is not configured")
	}
	events, err := s.rooms.WatchRooms(ctx)
	if err != nil {
		return nil, storeError("watch_rooms", err)
	}

	out := make(chan RoomStatus)
	go func() {
		defer close(out)
		for event := range events {
			status := RoomStatus{Room: event.Room, Revision: event.Revision}
			if event.Record != nil {
				status = occupiedStatus(*event.Record)
			}
			select {
			case out <- status:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func occupiedStatus(rec persistence.RoomRecord) RoomStatus {
	session := sessionFromRecord(rec.SessionRecord)
	return RoomStatus{
		Room:     rec.Room,
		Occupied: true,
		Session:  &session,
		Revision: rec.Revision,
	}
}
