package crm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/pkg/notion"
)

// NotionSource collects raw leads from database pages whose status is New.
type NotionSource struct {
	client notion.Client
	dbID   string
}

// NewNotionSource creates a NotionSource.
func NewNotionSource(client notion.Client, dbID string) *NotionSource {
	return &NotionSource{client: client, dbID: dbID}
}

// Collect returns every New page as a raw lead. Pages without a name are
// skipped.
func (s *NotionSource) Collect(ctx context.Context) ([]model.RawLead, error) {
	pages, err := notion.QueryLeadsByStatus(ctx, s.client, s.dbID, notion.StatusNew)
	if err != nil {
		return nil, eris.Wrap(err, "crm: collect leads")
	}

	out := make([]model.RawLead, 0, len(pages))
	for _, p := range pages {
		raw := notion.RawLeadFromPage(p)
		if raw.Name == "" {
			zap.L().Debug("crm: skipping page without name", zap.String("page_id", string(p.ID)))
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
