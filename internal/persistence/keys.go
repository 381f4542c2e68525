package persistence

import (
	"fmt"
	"strings"
)

// Namespaces of the occupancy keyspace.
const (
	RoomsNamespace   = "rooms"
	UsersNamespace   = "users"
	HistoryNamespace = "history"
)

const (
	occupiedRoomField   = "occupiedRoom"
	attendingClassField = "attendingClass"
)

// Key addresses a single value in the store. Segments are separated by "/".
type Key string

// RoomKey addresses the occupancy record of a room: rooms/{room}.
func RoomKey(room string) Key {
	return Key(RoomsNamespace + "/" + room)
}

// OccupiedRoomKey addresses the room a user currently occupies: users/{id}/occupiedRoom.
func OccupiedRoomKey(userID string) Key {
	return Key(UsersNamespace + "/" + userID + "/" + occupiedRoomField)
}

// AttendingClassKey addresses the attending flag of a user: users/{id}/attendingClass.
func AttendingClassKey(userID string) Key {
	return Key(UsersNamespace + "/" + userID + "/" + attendingClassField)
}

// HistoryKey addresses an archived session: history/{entry}.
func HistoryKey(entry string) Key {
	return Key(HistoryNamespace + "/" + entry)
}

// Prefix returns the key prefix matching every key in a namespace.
func Prefix(namespace string) string {
	return namespace + "/"
}

// Namespace returns the first segment of the key.
func (k Key) Namespace() string {
	ns, _, _ := strings.Cut(string(k), "/")
	return ns
}

// Leaf returns the last segment of the key.
func (k Key) Leaf() string {
	s := string(k)
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// Validate reports whether the key is well formed.
func (k Key) Validate() error {
	s := string(k)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty key", ErrConstraintViolation)
	}
	segments := strings.Split(s, "/")
	if len(segments) < 2 {
		return fmt.Errorf("%w: key %q has no namespace", ErrConstraintViolation, s)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return fmt.Errorf("%w: key %q has an empty segment", ErrConstraintViolation, s)
		}
	}
	switch segments[0] {
	case RoomsNamespace, UsersNamespace, HistoryNamespace:
	default:
		return fmt.Errorf("%w: unknown namespace %q", ErrConstraintViolation, segments[0])
	}
	return nil
}

// ValidSegment reports whether value can be used as a single key segment.
func ValidSegment(value string) bool {
	return strings.TrimSpace(value) != "" && !strings.Contains(value, "/")
}
