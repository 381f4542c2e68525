package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// RoomEvent reports a change of a room's occupancy. Record is nil when the room
// became free.
type RoomEvent struct {
	Room     string
	Record   *RoomRecord
	Revision int64
}

// OccupancyStore maps the occupancy records onto a Store. It performs no
// multi-key coordination; callers sequence the individual writes.
type OccupancyStore struct {
	kv Store
}

// NewOccupancyStore wraps kv with typed accessors for the occupancy keyspace.
func NewOccupancyStore(kv Store) *OccupancyStore {
	return &OccupancyStore{kv: kv}
}

// KV exposes the underlying key-value store.
func (s *OccupancyStore) KV() Store {
	return s.kv
}

// ReadRoom returns the occupancy record of room or ErrNotFound when the room is free.
func (s *OccupancyStore) ReadRoom(ctx context.Context, room string) (RoomRecord, error) {
	if !ValidSegment(room) {
		return RoomRecord{}, fmt.Errorf("%w: invalid room %q", ErrConstraintViolation, room)
	}
	entry, err := s.kv.Read(ctx, RoomKey(room))
	if err != nil {
		return RoomRecord{}, err
	}
	return decodeRoom(entry)
}

// ClaimRoom stores rec only if the room currently has no record.
func (s *OccupancyStore) ClaimRoom(ctx context.Context, rec RoomRecord) (RoomRecord, error) {
	if !ValidSegment(rec.Room) {
		return RoomRecord{}, fmt.Errorf("%w: invalid room %q", ErrConstraintViolation, rec.Room)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("encode room record: %w", err)
	}
	entry, err := s.kv.CompareAndWrite(ctx, RoomKey(rec.Room), 0, payload)
	if err != nil {
		return RoomRecord{}, err
	}
	rec.Revision = entry.Revision
	return rec, nil
}

// ReleaseRoom removes the room record if it is still at revision.
func (s *OccupancyStore) ReleaseRoom(ctx context.Context, room string, revision int64) error {
	if !ValidSegment(room) {
		return fmt.Errorf("%w: invalid room %q", ErrConstraintViolation, room)
	}
	if revision <= 0 {
		return fmt.Errorf("%w: release requires a revision", ErrConstraintViolation)
	}
	_, err := s.kv.CompareAndWrite(ctx, RoomKey(room), revision, nil)
	return err
}

// ListRooms returns every occupied room ordered by room identifier.
func (s *OccupancyStore) ListRooms(ctx context.Context) ([]RoomRecord, error) {
	entries, err := s.kv.List(ctx, Prefix(RoomsNamespace))
	if err != nil {
		return nil, err
	}
	records := make([]RoomRecord, 0, len(entries))
	for _, entry := range entries {
		rec, err := decodeRoom(entry)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// WatchRooms streams occupancy changes for all rooms until ctx is done.
func (s *OccupancyStore) WatchRooms(ctx context.Context) (<-chan RoomEvent, error) {
	events, err := s.kv.Watch(ctx, Prefix(RoomsNamespace))
	if err != nil {
		return nil, err
	}
	out := make(chan RoomEvent)
	go func() {
		defer close(out)
		for event := range events {
			roomEvent := RoomEvent{Room: event.Entry.Key.Leaf(), Revision: event.Entry.Revision}
			if event.Type == EventPut {
				rec, err := decodeRoom(event.Entry)
				if err != nil {
					continue
				}
				roomEvent.Record = &rec
			}
			select {
			case out <- roomEvent:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ReadPointer returns the user's occupancy pointer or ErrNotFound when the user
// occupies no room.
func (s *OccupancyStore) ReadPointer(ctx context.Context, userID string) (UserPointer, error) {
	if !ValidSegment(userID) {
		return UserPointer{}, fmt.Errorf("%w: invalid user %q", ErrConstraintViolation, userID)
	}
	entry, err := s.kv.Read(ctx, OccupiedRoomKey(userID))
	if err != nil {
		return UserPointer{}, err
	}
	pointer := UserPointer{UserID: userID, Revision: entry.Revision}
	if err := json.Unmarshal(entry.Value, &pointer.OccupiedRoom); err != nil {
		return UserPointer{}, fmt.Errorf("decode %s: %w", entry.Key, err)
	}

	flag, err := s.kv.Read(ctx, AttendingClassKey(userID))
	switch {
	case err == nil:
		if err := json.Unmarshal(flag.Value, &pointer.AttendingClass); err != nil {
			return UserPointer{}, fmt.Errorf("decode %s: %w", flag.Key, err)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return UserPointer{}, err
	}
	return pointer, nil
}

// ClaimPointer records room as the user's occupied room only if the user has
// no pointer yet.
func (s *OccupancyStore) ClaimPointer(ctx context.Context, userID, room string) (UserPointer, error) {
	if !ValidSegment(userID) {
		return UserPointer{}, fmt.Errorf("%w: invalid user %q", ErrConstraintViolation, userID)
	}
	payload, err := json.Marshal(room)
	if err != nil {
		return UserPointer{}, err
	}
	entry, err := s.kv.CompareAndWrite(ctx, OccupiedRoomKey(userID), 0, payload)
	if err != nil {
		return UserPointer{}, err
	}
	return UserPointer{UserID: userID, OccupiedRoom: room, Revision: entry.Revision}, nil
}

// MarkAttending sets users/{id}/attendingClass to true.
func (s *OccupancyStore) MarkAttending(ctx context.Context, userID string) error {
	if !ValidSegment(userID) {
		return fmt.Errorf("%w: invalid user %q", ErrConstraintViolation, userID)
	}
	_, err := s.kv.Write(ctx, AttendingClassKey(userID), []byte("true"))
	return err
}

// ClearPointer removes both pointer keys of the user. When revision is positive
// the occupied room key is only removed if it is still at that revision.
func (s *OccupancyStore) ClearPointer(ctx context.Context, userID string, revision int64) error {
	if !ValidSegment(userID) {
		return fmt.Errorf("%w: invalid user %q", ErrConstraintViolation, userID)
	}
	if revision > 0 {
		if _, err := s.kv.CompareAndWrite(ctx, OccupiedRoomKey(userID), revision, nil); err != nil {
			return err
		}
	} else if err := s.kv.Delete(ctx, OccupiedRoomKey(userID)); err != nil {
		return err
	}
	return s.kv.Delete(ctx, AttendingClassKey(userID))
}

// AppendHistory stores rec under history/{key}. Existing entries are never
// replaced: an occupied key returns ErrConflict.
func (s *OccupancyStore) AppendHistory(ctx context.Context, key string, rec HistoryRecord) (HistoryRecord, error) {
	if !ValidSegment(key) {
		return HistoryRecord{}, fmt.Errorf("%w: invalid history key %q", ErrConstraintViolation, key)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return HistoryRecord{}, fmt.Errorf("encode history record: %w", err)
	}
	entry, err := s.kv.CompareAndWrite(ctx, HistoryKey(key), 0, payload)
	if err != nil {
		return HistoryRecord{}, err
	}
	rec.Key = key
	rec.Revision = entry.Revision
	return rec, nil
}

// ReadHistory returns the archived session stored under history/{key}.
func (s *OccupancyStore) ReadHistory(ctx context.Context, key string) (HistoryRecord, error) {
	if !ValidSegment(key) {
		return HistoryRecord{}, fmt.Errorf("%w: invalid history key %q", ErrConstraintViolation, key)
	}
	entry, err := s.kv.Read(ctx, HistoryKey(key))
	if err != nil {
		return HistoryRecord{}, err
	}
	return decodeHistory(entry)
}

// ListHistory returns every archived session ordered by key.
func (s *OccupancyStore) ListHistory(ctx context.Context) ([]HistoryRecord, error) {
	entries, err := s.kv.List(ctx, Prefix(HistoryNamespace))
	if err != nil {
		return nil, err
	}
	records := make([]HistoryRecord, 0, len(entries))
	for _, entry := range entries {
		rec, err := decodeHistory(entry)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRoom(entry Entry) (RoomRecord, error) {
	var rec RoomRecord
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return RoomRecord{}, fmt.Errorf("decode %s: %w", entry.Key, err)
	}
	if rec.Room == "" {
		rec.Room = entry.Key.Leaf()
	}
	rec.Revision = entry.Revision
	return rec, nil
}

func decodeHistory(entry Entry) (HistoryRecord, error) {
	var rec HistoryRecord
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return HistoryRecord{}, fmt.Errorf("decode %s: %w", entry.Key, err)
	}
	rec.Key = entry.Key.Leaf()
	rec.Revision = entry.Revision
	return rec, nil
}
