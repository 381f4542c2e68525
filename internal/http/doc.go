// Package http exposes the session engines, the schedule catalog and the room
// dashboard over HTTP.
//
// The router exposes the following endpoints:
//   - GET /health: {"status":"ok"} or 503 when the store is unreachable.
//   - GET /schedules?school_year=&semester=&day=: the caller's class meetings.
//     Missing filters or "All" match everything.
//   - GET /session: {"state","session","faculty_id","faculty_name"} for the
//     caller's engine.
//   - POST /session/select: body {"schedule_id"} or {"session":{...}} with a
//     full candidate. Moves the engine to awaiting_verification.
//   - POST /session/cancel: abandons verification.
//   - POST /session/scan: body {"decoded_text"}. On success the caller holds
//     the room and the engine is attending.
//   - POST /session/end: releases the room and archives the session. Response
//     {"state","result":{"session","historyKey","archived"},"warning"}.
//   - GET /rooms, GET /rooms/{room}: room status. A room without a record is free.
//   - GET /rooms/watch: websocket stream. The first message is
//     {"type":"snapshot","rooms":[...]}, then one {"type":"update","room":{...}}
//     per change.
//   - GET /history?faculty_id=&room=&limit=: archived sessions, oldest first.
//
// The /session and /schedules routes require the X-Faculty-ID header (and
// optionally X-Faculty-Name) set by the upstream identity provider.
//
// Errors use {"error_code","message","room","errors"}. Error codes are
// VALIDATION_FAILED, INVALID_CODE, ROOM_OCCUPIED, ATTENDING_ELSEWHERE,
// INVALID_STATE and STORE_UNAVAILABLE.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
