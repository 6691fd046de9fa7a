// Package dedup collapses, ranks, and caps batches of anchored issues.
//
// # Overview
//
// The extraction oracle frequently reports the same passage more than once,
// phrased slightly differently. This package removes those duplicates by
// canonical quoted text, ranks survivors by a weighted priority score, and
// truncates the batch to a configurable cap so downstream stages stay bounded.
//
// DedupeAndCap is a pure function: deterministic, no I/O, and idempotent on
// its own output. It runs synchronously between the extraction and
// support-filter stages and cannot fail.
package dedup
