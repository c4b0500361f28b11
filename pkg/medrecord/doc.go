// Package medrecord provides a reusable library for versioned clinical
// records with optimistic concurrency control, structured audit logging,
// and integrity-verified package exchange.
//
// It exposes a single Service interface that orchestrates record
// creation, mutation under an explicit expected-version check, the
// DRAFT -> SIGNED lifecycle, archival, and admin-gated deletion. Every
// successful mutation appends exactly one audit event carrying a
// before/after diff, written in the same unit of work as the mutation
// itself. Implementations of repositories (memory, Postgres) live under
// subpackages, as do the package exporter/importer (pack) and the
// durable artifact stores (artifact, artifact/s3).
//
// Payload Strategy
//
// Record content is an explicit tagged structure of named sections
// (identity, medical, flags, annotations) with an Extra map as a
// catch-all for fields that have not been promoted to first-class yet.
// The first-class fields are the source of truth; Extra is carried
// through diffs and package exchange untouched.
package medrecord
