package monitor

import (
	"context"

	"github.com/google/uuid"

	"shopmon/models"
	"shopmon/pageinfo"
)

// IncompleteProducts returns clones of products still missing cover
// metadata: no image or no description.
func (m *Monitor) IncompleteProducts() []*models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Product
	for _, p := range m.products {
		if p.ImageURL == "" || p.Description == "" {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ApplyPageInfo fills metadata gaps from a fresh page extraction. Fields
// that already hold values are left alone; the name is owned by add-time
// extraction and is never rewritten. Reports whether anything changed.
func (m *Monitor) ApplyPageInfo(ctx context.Context, productID uuid.UUID, info *pageinfo.PageInfo) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(productID)
	if p == nil {
		return false, ErrProductNotFound
	}

	changed := false
	if info.ImageURL != "" && p.ImageURL == "" {
		p.ImageURL = info.ImageURL
		changed = true
	}
	if info.Description != "" && p.Description == "" {
		p.Description = info.Description
		changed = true
	}

	if changed {
		p.UpdatedAt = m.clock.Now()
		m.persistLocked(ctx)
	}
	return changed, nil
}
