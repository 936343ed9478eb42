// Package health implements the daemon's health aggregator: a pure
// transform from scanner results to a weighted snapshot, plus a bounded
// rolling history.
package health

import (
	"time"

	"github.com/dcyfr/guardian/internal/scanner"
)

// Status classifies an overall or component score.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// ComponentHealth is one scanner's contribution to a snapshot.
type ComponentHealth struct {
	Score           float64            `json:"score"`
	Status          Status             `json:"status"`
	LastRun         time.Time          `json:"lastRun"`
	ViolationsCount int                `json:"violations_count"`
	WarningsCount   int                `json:"warnings_count"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Summary         string             `json:"summary"`
}

// Overall is the aggregate score and classification.
type Overall struct {
	Score  float64 `json:"score"`
	Status Status  `json:"status"`
}

// Workspace carries coarse context about what was scanned.
type Workspace struct {
	Packages          int   `json:"packages"`
	LastScanDuration  int64 `json:"lastScanDuration"`
}

// Snapshot is a single point-in-time health evaluation.
type Snapshot struct {
	Timestamp time.Time                        `json:"timestamp"`
	Overall   Overall                           `json:"overall"`
	Scanners  map[scanner.ID]ComponentHealth    `json:"scanners"`
	Workspace Workspace                         `json:"workspace"`
}

func classify(score float64) Status {
	switch {
	case score >= 90:
		return StatusHealthy
	case score >= 70:
		return StatusDegraded
	default:
		return StatusCritical
	}
}
