// internal/domain/incident/model.go

package incident

import (
	"errors"
	"time"

	"safewatch/internal/domain/geo"
)

var (
	// ErrValidation marks a malformed report rejected at the boundary
	ErrValidation = errors.New("invalid incident attributes")

	// ErrDuplicateSubmission marks an idempotency-key collision. It is a
	// soft outcome: the original submission already succeeded.
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// Type classifies a safety incident
type Type string

const (
	TypeHijacking Type = "hijacking"
	TypeMugging   Type = "mugging"
	TypeAccident  Type = "accident"
)

// ValidType reports whether t is a known incident type
func ValidType(t Type) bool {
	switch t {
	case TypeHijacking, TypeMugging, TypeAccident:
		return true
	}
	return false
}

// Incident represents a geotagged safety-incident report. CRUD and expiry
// are owned by the incident store; this subsystem reads incidents for zone
// statistics and route risk and reacts to creation events.
type Incident struct {
	ID                string     `json:"id"`
	Type              Type       `json:"type"`
	Description       string     `json:"description,omitempty"`
	Location          geo.Point  `json:"location"`
	ReportedBy        string     `json:"reported_by,omitempty"`
	VerificationCount int        `json:"verification_count"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Validate checks required fields and coordinate ranges
func (i Incident) Validate() error {
	if !ValidType(i.Type) {
		return ErrValidation
	}
	if !i.Location.Valid() {
		return ErrValidation
	}
	return nil
}
