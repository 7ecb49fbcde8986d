// Package crm mirrors pipeline state into the Notion lead database and
// collects new leads from it.
package crm

import (
	"context"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/notion"
)

// Sink receives lead state updates.
type Sink interface {
	Upsert(ctx context.Context, lead *model.Lead) error
}

// NotionSink upserts leads as pages of a Notion database. Pages are matched
// by the lead's external ID when it came from Notion, and by name
// otherwise. Resolved page IDs are cached per lead.
type NotionSink struct {
	client  notion.Client
	dbID    string
	breaker *resilience.CircuitBreaker
	now     func() time.Time

	mu    sync.Mutex
	pages map[string]string
}

// NewNotionSink creates a NotionSink. breaker may be nil.
func NewNotionSink(client notion.Client, dbID string, breaker *resilience.CircuitBreaker) *NotionSink {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
	}
	return &NotionSink{
		client:  client,
		dbID:    dbID,
		breaker: breaker,
		now:     time.Now,
		pages:   make(map[string]string),
	}
}

// Upsert writes the lead's pipeline fields to its page, creating the page
// when none exists. It returns resilience.ErrCircuitOpen while Notion is
// considered down.
func (s *NotionSink) Upsert(ctx context.Context, lead *model.Lead) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		pageID, err := s.lookup(ctx, lead)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		if pageID != "" {
			_, err := s.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
				Properties: notion.LeadProperties(lead, false, now),
			})
			return eris.Wrapf(err, "crm: update lead %s", lead.ID)
		}

		page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(s.dbID),
			},
			Properties: notion.LeadProperties(lead, true, now),
		})
		if err != nil {
			return eris.Wrapf(err, "crm: create lead %s", lead.ID)
		}
		s.remember(lead.ID, string(page.ID))
		return nil
	})
}

func (s *NotionSink) lookup(ctx context.Context, lead *model.Lead) (string, error) {
	s.mu.Lock()
	id, ok := s.pages[lead.ID]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	if lead.Source.ExternalID != "" {
		s.remember(lead.ID, lead.Source.ExternalID)
		return lead.Source.ExternalID, nil
	}

	page, err := notion.FindLeadPage(ctx, s.client, s.dbID, lead.Source.Name)
	if err != nil {
		return "", eris.Wrapf(err, "crm: look up lead %s", lead.ID)
	}
	if page == nil {
		return "", nil
	}
	s.remember(lead.ID, string(page.ID))
	return string(page.ID), nil
}

func (s *NotionSink) remember(leadID, pageID string) {
	s.mu.Lock()
	s.pages[leadID] = pageID
	s.mu.Unlock()
}
