package warning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies the subsystem a warning originates from.
type Type string

const (
	TypeCPU         Type = "cpu"
	TypeMemory      Type = "memory"
	TypeGlitch      Type = "glitch"
	TypeDegradation Type = "degradation"
	TypeGraph       Type = "graph"
	TypeLifecycle   Type = "lifecycle"
)

// Severity ranks warnings from informational to critical.
type Severity int

const (
	// SeverityInfo is an informational event that needs no action
	SeverityInfo Severity = iota
	// SeverityWarning indicates a condition worth surfacing
	SeverityWarning
	// SeverityCritical indicates audible or imminent failure
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Warning is one diagnostic event.
type Warning struct {
	ID        uuid.UUID
	Type      Type
	Severity  Severity
	Message   string
	Timestamp time.Time
}
