// Package session implements the client-side session store: the single owner
// of the token, the user profile, and the persisted session record.
//
// # State machine
//
//	Unknown   --Restore-->               Authenticated | Anonymous
//	Anonymous --Login success-->         Authenticated
//	Authenticated --Logout-->            Anonymous
//	Authenticated --Unauthorized-->      Anonymous (record wiped, error rethrown)
//
// # Ordering
//
// Overlapping Restore/Login/Logout calls are serialized by a generation
// counter rather than by blocking: each mutating operation is stamped with a
// generation at start, and late results from a superseded generation are
// discarded. Profile fetches are additionally deduplicated per generation so
// concurrent callers share one request.
//
// # Persistence
//
// The durable record (token + profile) is committed atomically and only after
// a complete successful login or refresh; it is deleted on logout and on any
// Unauthorized response. No other component writes it.
package session
