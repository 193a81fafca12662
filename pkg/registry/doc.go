// Package registry provides an access-controlled, content-addressed message
// registry with pluggable repository backends.
//
// The registry records opaque content references (content-hash pointers into
// an external content-addressed store), tracks per-submitter storage-quota
// consumption against a flat per-message size estimate, and enforces
// per-message access-control lists. It never touches content bytes; resolving
// a reference is the caller's concern.
//
// It exposes a single Service interface that orchestrates message
// registration, retrieval, deletion, access grants, quota accounting, and the
// administrative surface (caller authorization, admin transfer, fee
// withdrawal). Repository implementations (memory, bolt, Postgres) are
// provided under subpackages; every mutating repository operation performs
// its precondition checks and state changes as one indivisible unit, so a
// failed operation leaves no partial effect.
//
// Mutations emit structured events through an EventSink. Emission is
// fire-and-forget: a sink failure is logged and never fails the operation.
package registry
