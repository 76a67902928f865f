// internal/worker/worker.go

// Package worker runs the periodic reconciliation jobs that stay off the
// per-update hot path: closing stale membership rows, dissolving inactive
// zones, and promoting incident clusters into new hotspot zones.
package worker

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
)

// MembershipSweeper closes membership rows left open by dropped
// connections
type MembershipSweeper interface {
	CloseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ZoneSweeper dissolves zones with no recent incident activity
type ZoneSweeper interface {
	DissolveStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// IncidentSource feeds the density scan
type IncidentSource interface {
	FindRecent(ctx context.Context, t incident.Type, since time.Time) ([]incident.Incident, error)
}

// ZoneCreator is the zone-manager surface the detector needs; creation
// goes through the manager so the overlap invariant holds for
// auto-created zones too
type ZoneCreator interface {
	CreateZone(ctx context.Context, z zone.Zone) (*zone.Zone, error)
	ZonesContaining(ctx context.Context, p geo.Point) ([]zone.Zone, error)
}

// Config contains configuration for the background jobs
type Config struct {
	SweepInterval        time.Duration
	MembershipStaleAfter time.Duration
	ZoneRetention        time.Duration

	DetectionInterval   time.Duration
	DetectionWindow     time.Duration
	ClusterRadiusMeters float64
	ClusterMinIncidents int
	NewZoneRadiusMeters int
}

// Worker owns the periodic jobs
type Worker struct {
	memberships MembershipSweeper
	zones       ZoneSweeper
	incidents   IncidentSource
	creator     ZoneCreator
	logger      *zap.Logger
	config      Config
}

// New creates a new worker
func New(memberships MembershipSweeper, zones ZoneSweeper, incidents IncidentSource, creator ZoneCreator, logger *zap.Logger, config Config) *Worker {
	return &Worker{
		memberships: memberships,
		zones:       zones,
		incidents:   incidents,
		creator:     creator,
		logger:      logger,
		config:      config,
	}
}

// Start launches the sweep and detection loops; they stop when the
// context is cancelled
func (w *Worker) Start(ctx context.Context) {
	go w.runLoop(ctx, w.config.SweepInterval, w.sweep)
	go w.runLoop(ctx, w.config.DetectionInterval, w.detectHotspots)
}

func (w *Worker) runLoop(ctx context.Context, interval time.Duration, job func(ctx context.Context)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// sweep closes stale memberships and dissolves inactive zones
func (w *Worker) sweep(ctx context.Context) {
	closed, err := w.memberships.CloseStale(ctx, time.Now().Add(-w.config.MembershipStaleAfter))
	if err != nil {
		w.logger.Error("membership sweep failed", zap.Error(err))
	} else if closed > 0 {
		w.logger.Info("closed stale memberships", zap.Int64("count", closed))
	}

	if w.config.ZoneRetention <= 0 {
		return
	}
	dissolved, err := w.zones.DissolveStale(ctx, time.Now().Add(-w.config.ZoneRetention))
	if err != nil {
		w.logger.Error("zone sweep failed", zap.Error(err))
	} else if dissolved > 0 {
		w.logger.Info("dissolved stale zones", zap.Int64("count", dissolved))
	}
}

// detectHotspots promotes dense incident clusters into zones. Clusters
// are found greedily: the incident with the most neighbors within the
// cluster radius seeds a zone at the cluster centroid.
func (w *Worker) detectHotspots(ctx context.Context) {
	since := time.Now().Add(-w.config.DetectionWindow)

	for _, t := range []incident.Type{incident.TypeHijacking, incident.TypeMugging, incident.TypeAccident} {
		incidents, err := w.incidents.FindRecent(ctx, t, since)
		if err != nil {
			w.logger.Error("hotspot scan failed",
				zap.String("type", string(t)), zap.Error(err))
			continue
		}
		if len(incidents) < w.config.ClusterMinIncidents {
			continue
		}

		w.promoteClusters(ctx, t, incidents)
	}
}

type cluster struct {
	seed    int
	members []int
}

func (w *Worker) promoteClusters(ctx context.Context, t incident.Type, incidents []incident.Incident) {
	var clusters []cluster
	for i := range incidents {
		c := cluster{seed: i}
		for j := range incidents {
			if geo.DistanceMeters(incidents[i].Location, incidents[j].Location) <= w.config.ClusterRadiusMeters {
				c.members = append(c.members, j)
			}
		}
		if len(c.members) >= w.config.ClusterMinIncidents {
			clusters = append(clusters, c)
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i].members) > len(clusters[j].members)
	})

	assigned := make(map[int]bool)
	for _, c := range clusters {
		fresh := c.members[:0:0]
		for _, idx := range c.members {
			if !assigned[idx] {
				fresh = append(fresh, idx)
			}
		}
		if len(fresh) < w.config.ClusterMinIncidents {
			continue
		}

		centroid := geo.Point{}
		for _, idx := range fresh {
			centroid.Lat += incidents[idx].Location.Lat
			centroid.Lng += incidents[idx].Location.Lng
		}
		centroid.Lat /= float64(len(fresh))
		centroid.Lng /= float64(len(fresh))

		existing, err := w.creator.ZonesContaining(ctx, centroid)
		if err != nil {
			w.logger.Error("hotspot zone lookup failed", zap.Error(err))
			continue
		}
		covered := false
		for _, z := range existing {
			if z.Type == zone.Type(t) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}

		created, err := w.creator.CreateZone(ctx, zone.Zone{
			Type:         zone.Type(t),
			Center:       centroid,
			RadiusMeters: w.config.NewZoneRadiusMeters,
		})
		if err != nil {
			if errors.Is(err, zone.ErrOverlap) {
				continue
			}
			w.logger.Error("hotspot zone creation failed", zap.Error(err))
			continue
		}

		w.logger.Info("created hotspot zone from incident cluster",
			zap.String("zone_id", created.ID),
			zap.String("type", string(t)),
			zap.Int("cluster_size", len(fresh)))

		for _, idx := range fresh {
			assigned[idx] = true
		}
	}
}
