// internal/domain/event/event.go

package event

import (
	"time"

	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
)

// Kind identifies a real-time event pushed to clients
type Kind string

const (
	KindIncidentNew     Kind = "incident:new"
	KindZoneEntered     Kind = "zone:entered"
	KindZoneExited      Kind = "zone:exited"
	KindZoneApproaching Kind = "zone:approaching"
	KindCellJoined      Kind = "cell:joined"
)

// Envelope is the wire shape for real-time events. Exactly one of Zone or
// Incident is set depending on the kind.
type Envelope struct {
	Kind           Kind               `json:"type"`
	Time           time.Time          `json:"time"`
	Geohash        string             `json:"geohash,omitempty"`
	Zone           *zone.Zone         `json:"zone,omitempty"`
	Incident       *incident.Incident `json:"incident,omitempty"`
	DistanceMeters float64            `json:"distance_meters,omitempty"`
}

// ZoneTransition builds an entry/exit/approach event for a zone
func ZoneTransition(kind Kind, z zone.Zone, distanceMeters float64) Envelope {
	return Envelope{
		Kind:           kind,
		Time:           time.Now().UTC(),
		Zone:           &z,
		DistanceMeters: distanceMeters,
	}
}

// IncidentCreated builds a new-incident broadcast for a cell
func IncidentCreated(inc incident.Incident, cell string) Envelope {
	return Envelope{
		Kind:     KindIncidentNew,
		Time:     time.Now().UTC(),
		Geohash:  cell,
		Incident: &inc,
	}
}

// CellJoined acknowledges a resharded subscription to the client
func CellJoined(cell string) Envelope {
	return Envelope{
		Kind:    KindCellJoined,
		Time:    time.Now().UTC(),
		Geohash: cell,
	}
}
