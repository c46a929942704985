package llm

import (
	"fmt"

	"ArticlesReconciler/internal/config"
	"ArticlesReconciler/internal/domain"
)

// Catalog holds the configured AI providers and their observed status. The
// provider set is configuration data; only its health changes at runtime.
type Catalog struct {
	order     []string
	providers map[string]*domain.Provider
	clients   map[string]*ChatClient
}

// NewCatalog builds the catalog from configuration, all providers untested.
func NewCatalog(cfgs []config.ProviderConfig) *Catalog {
	c := &Catalog{
		providers: make(map[string]*domain.Provider, len(cfgs)),
		clients:   make(map[string]*ChatClient, len(cfgs)),
	}
	for _, cfg := range cfgs {
		if cfg.ID == "" {
			continue
		}
		c.order = append(c.order, cfg.ID)
		c.providers[cfg.ID] = &domain.Provider{
			ID:          cfg.ID,
			DisplayName: cfg.DisplayName,
			Model:       cfg.Model,
			Status:      domain.ProviderUntested,
		}
		c.clients[cfg.ID] = NewChatClient(cfg.Endpoint, cfg.APIKey)
	}
	return c
}

// List returns all providers in configuration order.
func (c *Catalog) List() []domain.Provider {
	out := make([]domain.Provider, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.providers[id])
	}
	return out
}

// Get returns one provider by id.
func (c *Catalog) Get(id string) (domain.Provider, error) {
	p, ok := c.providers[id]
	if !ok {
		return domain.Provider{}, fmt.Errorf("provider %s is not configured", id)
	}
	return *p, nil
}

func (c *Catalog) client(id string) (*ChatClient, error) {
	client, ok := c.clients[id]
	if !ok {
		return nil, fmt.Errorf("provider %s is not configured", id)
	}
	return client, nil
}

// MarkWorking records a successful call against the provider.
func (c *Catalog) MarkWorking(id string) {
	if p, ok := c.providers[id]; ok {
		p.Status = domain.ProviderWorking
	}
}

// MarkFailed records a failed call against the provider.
func (c *Catalog) MarkFailed(id string) {
	if p, ok := c.providers[id]; ok {
		p.Status = domain.ProviderFailed
	}
}
