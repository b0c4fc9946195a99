package organization

import (
	"fmt"
	"sort"

	"github.com/donorsync/donorsync/internal/config"
	"github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// Registry is the set of configured organizations, keyed by slug. It is
// built once at startup and passed into every reconciliation call; there is
// no ambient global lookup.
type Registry struct {
	orgs map[string]*domain.Organization
}

// NewRegistry builds the registry from configuration. Slugs are normalized
// so env-derived and URL-derived spellings agree.
func NewRegistry(cfg config.Config, log *zap.Logger) (*Registry, error) {
	orgs := make(map[string]*domain.Organization, len(cfg.Orgs))
	for _, oc := range cfg.Orgs {
		key := slug.Make(oc.Slug)
		if key == "" {
			return nil, fmt.Errorf("organization slug %q normalizes to empty", oc.Slug)
		}
		if _, exists := orgs[key]; exists {
			return nil, fmt.Errorf("duplicate organization slug %q", key)
		}
		orgs[key] = &domain.Organization{
			Slug:               key,
			ConnectorAPIKey:    oc.ConnectorAPIKey,
			EventbriteToken:    oc.EventbriteToken,
			EventbriteOrgID:    oc.EventbriteOrgID,
			TypeMap:            oc.TypeMap,
			PaypalClientID:     oc.PaypalClientID,
			PaypalClientSecret: oc.PaypalClientSecret,
			PaypalProperty:     oc.PaypalProperty,
		}
		log.Info("registered organization",
			zap.String("org", key),
			zap.Bool("eventbrite", oc.HasEventbrite()),
			zap.Bool("paypal", oc.HasPaypal()),
		)
	}
	return &Registry{orgs: orgs}, nil
}

// Get returns the organization for a slug, or nil when unknown.
func (r *Registry) Get(orgSlug string) *domain.Organization {
	if r == nil {
		return nil
	}
	return r.orgs[slug.Make(orgSlug)]
}

// All returns the organizations in stable slug order.
func (r *Registry) All() []*domain.Organization {
	out := make([]*domain.Organization, 0, len(r.orgs))
	for _, org := range r.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
