/*
NAME
  errcode.go

DESCRIPTION
  errcode.go defines the plugin adapter's error code space (spec.md §7)
  and the per-handle last-error store every public operation consults
  before returning its sentinel (false/null/0/-1).

  Modelled on the BASS addon ABI's thread-local BASS_ErrorGetCode
  convention (_examples/original_source/BassAES67/bass_aes67.h), adapted
  to Go as an explicit map guarded by a mutex instead of thread-local
  storage, since a goroutine has no stable identity to key on.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package plugin bridges the RX/TX pipelines to a host add-on's callback
// contract: config key/value registry, stream-create dispatch, and a sync
// list for UNDERRUN/PACKET_LATE notifications (spec.md §4.4).
package plugin

import "sync"

// ErrorCode enumerates the plugin-domain error kinds (spec.md §7).
type ErrorCode uint8

const (
	ErrNone ErrorCode = iota
	ErrMem
	ErrIllParam
	ErrPosition
	ErrNotAvail
	ErrAlready
	ErrVersion
	ErrNoClock
	ErrInit
	ErrUnknown
)

// String renders the error code the way a host log line would show it.
func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "NONE"
	case ErrMem:
		return "MEM"
	case ErrIllParam:
		return "ILLPARAM"
	case ErrPosition:
		return "POSITION"
	case ErrNotAvail:
		return "NOTAVAIL"
	case ErrAlready:
		return "ALREADY"
	case ErrVersion:
		return "VERSION"
	case ErrNoClock:
		return "NO_CLOCK"
	case ErrInit:
		return "INIT"
	default:
		return "UNKNOWN"
	}
}

// Handle identifies a stream or output to the host; opaque from the
// host's perspective.
type Handle uint32

// errorStore holds the last error code reported per handle, the closest
// Go analogue to the BASS ABI's thread-local last-error slot: operations
// here are dispatched from host callback goroutines that don't carry a
// stable per-thread identity, so the store is keyed by handle instead and
// guarded by a single mutex (spec.md §4.4 "single mutex, rare access").
type errorStore struct {
	mu   sync.Mutex
	errs map[Handle]ErrorCode
}

func newErrorStore() *errorStore {
	return &errorStore{errs: make(map[Handle]ErrorCode)}
}

// set records the last error code for handle.
func (s *errorStore) set(h Handle, code ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[h] = code
}

// get returns the last error code recorded for handle, or ErrNone if
// none was recorded.
func (s *errorStore) get(h Handle) ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[h]
}

// clear drops the error record for handle, e.g. once it is freed.
func (s *errorStore) clear(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs, h)
}
