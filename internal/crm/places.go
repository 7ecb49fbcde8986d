package crm

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/google"
)

// placesPageSize is the largest page Places Text Search returns.
const placesPageSize = 20

// PlacesSource collects raw leads from a Google Places text search such as
// "dentists in Austin TX", following result pages until limit is reached.
type PlacesSource struct {
	client google.Client
	policy *resilience.Policy
	query  string
	limit  int
}

// NewPlacesSource creates a PlacesSource. limit <= 0 collects every page the
// API returns.
func NewPlacesSource(client google.Client, policy *resilience.Policy, query string, limit int) *PlacesSource {
	return &PlacesSource{client: client, policy: policy.For("places"), query: query, limit: limit}
}

// Collect returns the places in result order. Places without a name are
// skipped and a place seen on an earlier page is not repeated.
func (s *PlacesSource) Collect(ctx context.Context) ([]model.RawLead, error) {
	if strings.TrimSpace(s.query) == "" {
		return nil, eris.New("crm: places query is required")
	}

	var out []model.RawLead
	seen := make(map[string]bool)
	token := ""
	for page := 1; ; page++ {
		req := google.TextSearchRequest{TextQuery: s.query, PageSize: placesPageSize, PageToken: token}
		resp, err := resilience.Call(ctx, s.policy, "text_search", func(ctx context.Context) (*google.TextSearchResponse, error) {
			resp, err := s.client.TextSearch(ctx, req)
			if err != nil {
				var se *google.StatusError
				if errors.As(err, &se) {
					return nil, resilience.ClassifyHTTPStatus(err, se.StatusCode)
				}
				return nil, err
			}
			return resp, nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "crm: places search page %d", page)
		}

		for _, p := range resp.Places {
			name := strings.TrimSpace(p.DisplayName.Text)
			if name == "" || (p.ID != "" && seen[p.ID]) {
				continue
			}
			seen[p.ID] = true
			out = append(out, RawLeadFromPlace(p))
			if s.limit > 0 && len(out) >= s.limit {
				return out, nil
			}
		}

		zap.L().Debug("crm: places page collected",
			zap.String("query", s.query),
			zap.Int("page", page),
			zap.Int("leads", len(out)),
		)
		if resp.NextPageToken == "" {
			return out, nil
		}
		token = resp.NextPageToken
	}
}

// RawLeadFromPlace maps a place onto a raw lead record. A zero rating means
// the place has no reviews and is left absent. The place ID is not carried
// as ExternalID, which names the lead's CRM page.
func RawLeadFromPlace(p google.Place) model.RawLead {
	raw := model.RawLead{
		Name:    strings.TrimSpace(p.DisplayName.Text),
		Website: p.WebsiteURI,
		Phone:   p.NationalPhoneNumber,
		Address: p.FormattedAddress,
	}
	if p.Rating > 0 {
		raw.Rating = strconv.FormatFloat(p.Rating, 'f', -1, 64)
	}
	return raw
}
