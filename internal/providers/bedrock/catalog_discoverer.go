package bedrock

import (
	"context"

	"github.com/emmett08/unified-agent-sdk/internal/catalog"
)

// CatalogDiscoverer adapts DiscoverModels into a catalog.Discoverer so the
// Model Catalog's background DiscoveryJob can enrich its bedrock profiles
// from the live ListFoundationModels API instead of only the seeded
// defaults.
type CatalogDiscoverer struct {
	Config DiscoveryConfig
}

// ProviderID identifies the engine these profiles route to.
func (CatalogDiscoverer) ProviderID() string { return "bedrock" }

// DiscoverModels queries AWS Bedrock and converts every active foundation
// model into a catalog Profile, classifying it by known model-family
// context/output limits and a reasoning-capability heuristic.
func (d CatalogDiscoverer) DiscoverModels(ctx context.Context) ([]catalog.Profile, error) {
	models, err := DiscoverModels(ctx, &d.Config)
	if err != nil {
		return nil, err
	}

	profiles := make([]catalog.Profile, 0, len(models))
	for _, m := range models {
		classes := []catalog.Class{catalog.ClassDefault}
		if m.ContextWindow >= 200_000 {
			classes = append(classes, catalog.ClassLongContext)
		}
		if m.Reasoning {
			classes = append(classes, catalog.ClassFrontier)
		}

		profiles = append(profiles, catalog.Profile{
			ProviderID:       "bedrock",
			ModelID:          m.ID,
			Classes:          classes,
			LatencyRank:      2,
			CostRank:         2,
			MaxContextTokens: m.ContextWindow,
			Capabilities: catalog.Capabilities{
				Streaming: m.StreamingSupported,
				Tools:     true,
			},
		})
	}
	return profiles, nil
}
