// Package audit persists the append-only log of delivery records. Every
// message reaching the delivery stage produces exactly one row, failures
// included, giving the REST API its record listing and dashboard aggregates.
package audit
