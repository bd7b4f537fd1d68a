/*
NAME
  capability.go

DESCRIPTION
  capability.go models spec.md §9's "optional callback slots with NULL
  sentinels": a Capabilities value the adapter reports to the host at
  Init, describing which operations it implements so the host can decide,
  per operation, whether to dispatch into the adapter or handle the
  request itself.

  Grounded on device.AVDevice's explicit per-method interface contract
  and revid.Logger's mini-interface pattern, both in the teacher; and on
  the commented-out extension hooks (tags, attributes, file position) in
  _examples/original_source/BassAES67/bass_aes67.h, captured here as
  reserved, always-false fields rather than implemented.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package plugin

// ABIVersion is the host add-on ABI generation this adapter was built
// against (spec.md §9 "ABI-version discriminant"). Init fails with
// ErrVersion if the host reports an older generation.
const ABIVersion = 1

// Capabilities reports which optional operations this adapter implements,
// so a host dispatching a pull/seek/length/sync request knows whether to
// call into the adapter or fall back to its own default handling.
type Capabilities struct {
	RXGetLength      bool
	RXCanSetPosition bool
	RXSetSync        bool
	TXGetPPM         bool

	// Reserved: extension points present in the original implementation
	// (tags/attributes, absolute file position) that this adapter does
	// not implement (spec.md §9).
	RXGetTags         bool
	RXGetFilePosition bool
}

// Describe returns the capability set this adapter always reports: the
// core pull-contract operations are implemented, the reserved extension
// hooks are not.
func Describe() Capabilities {
	return Capabilities{
		RXGetLength:      true,
		RXCanSetPosition: true,
		RXSetSync:        true,
		TXGetPPM:         true,
	}
}
