// Package models provides request and response models for the VentiGlobe API.
package models

import "time"

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp is an RFC 3339 UTC timestamp.
type Timestamp = time.Time

// Date is a calendar date in YYYY-MM-DD form.
type Date = string
