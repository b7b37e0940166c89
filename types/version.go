package types

// Version is the canonical project version.
const Version = "0.3.0"

// EventVersion is the version stamped on fetch completion events.
// It moves in lockstep with Version.
const EventVersion = Version
