package catalog

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Discoverer enumerates the models a provider currently hosts. Engines
// that support listing implement this; it is background enrichment, never
// part of the routing hot path (spec §4.I).
type Discoverer interface {
	ProviderID() string
	DiscoverModels(ctx context.Context) ([]Profile, error)
}

// DiscoveryJob periodically polls a set of Discoverers and republishes
// freshly seen profiles into a Catalog, skipping ones already present.
type DiscoveryJob struct {
	catalog     *Catalog
	discoverers []Discoverer
	logger      *slog.Logger
	cron        *cron.Cron
}

// NewDiscoveryJob wires a background scheduler that refreshes the catalog
// on the given cron spec (e.g. "0 */6 * * *" for every six hours).
func NewDiscoveryJob(catalog *Catalog, discoverers []Discoverer, logger *slog.Logger) *DiscoveryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryJob{
		catalog:     catalog,
		discoverers: discoverers,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start schedules recurring discovery and returns immediately; it never
// blocks the caller or the routing hot path.
func (j *DiscoveryJob) Start(ctx context.Context, spec string) error {
	_, err := j.cron.AddFunc(spec, func() { j.runOnce(ctx) })
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler; in-flight discovery runs are allowed to finish.
func (j *DiscoveryJob) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce executes a single discovery pass synchronously, useful for
// tests and for an initial warm-up before Start.
func (j *DiscoveryJob) RunOnce(ctx context.Context) { j.runOnce(ctx) }

func (j *DiscoveryJob) runOnce(ctx context.Context) {
	for _, d := range j.discoverers {
		profiles, err := d.DiscoverModels(ctx)
		if err != nil {
			j.logger.Warn("model discovery failed", "provider", d.ProviderID(), "error", err)
			continue
		}
		for _, p := range profiles {
			if _, exists := j.catalog.Find(p.ProviderID, p.ModelID); exists {
				continue
			}
			j.catalog.Register(p)
		}
	}
}
