package connectors

import (
	"fmt"
	"sort"

	"unifydata-backend/pkg/config"
	"unifydata-backend/pkg/pipelineerr"
)

// Registry resolves a source type to its connector. Providers without
// configured client credentials are left out, so a connect attempt against
// them fails fast as a configuration error.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{connectors: make(map[string]Connector)}

	if cfg.GoogleClientID != "" {
		r.register(NewGoogleDrive(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI))
	}
	if cfg.SalesforceClientID != "" {
		r.register(NewSalesforce(cfg.SalesforceClientID, cfg.SalesforceClientSecret, cfg.SalesforceRedirectURI))
	}
	if cfg.SlackClientID != "" {
		r.register(NewSlack(cfg.SlackClientID, cfg.SlackClientSecret, cfg.SlackRedirectURI))
	}
	if cfg.NotionClientID != "" {
		r.register(NewNotion(cfg.NotionClientID, cfg.NotionClientSecret, cfg.NotionRedirectURI))
	}
	return r
}

func (r *Registry) register(c Connector) {
	r.connectors[c.Type()] = c
}

func (r *Registry) Get(sourceType string) (Connector, error) {
	c, ok := r.connectors[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: no connector configured for source type %q", pipelineerr.ErrConfiguration, sourceType)
	}
	return c, nil
}

// Types lists the configured source types in stable order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
