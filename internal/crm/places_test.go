package crm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/google"
)

// scriptedPlaces answers one response (or error) per call, in order.
type scriptedPlaces struct {
	responses []*google.TextSearchResponse
	errs      []error
	requests  []google.TextSearchRequest
}

func (s *scriptedPlaces) TextSearch(_ context.Context, req google.TextSearchRequest) (*google.TextSearchResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

func place(id, name string) google.Place {
	return google.Place{ID: id, DisplayName: google.DisplayName{Text: name}}
}

func fastPolicy() *resilience.Policy {
	return resilience.NewPolicy(resilience.PolicyConfig{
		Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
}

func TestPlacesSource_FollowsPages(t *testing.T) {
	fc := &scriptedPlaces{
		responses: []*google.TextSearchResponse{
			{Places: []google.Place{place("p1", "Bright Smiles"), place("p2", "")}, NextPageToken: "t2"},
			{Places: []google.Place{place("p1", "Bright Smiles"), place("p3", "Dental Co")}},
		},
	}

	raws, err := NewPlacesSource(fc, fastPolicy(), "dentists in Austin", 0).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "Bright Smiles", raws[0].Name)
	assert.Equal(t, "Dental Co", raws[1].Name)

	require.Len(t, fc.requests, 2)
	assert.Empty(t, fc.requests[0].PageToken)
	assert.Equal(t, "t2", fc.requests[1].PageToken)
	assert.Equal(t, placesPageSize, fc.requests[0].PageSize)
}

func TestPlacesSource_StopsAtLimit(t *testing.T) {
	fc := &scriptedPlaces{
		responses: []*google.TextSearchResponse{
			{Places: []google.Place{place("p1", "A"), place("p2", "B"), place("p3", "C")}, NextPageToken: "t2"},
		},
	}

	raws, err := NewPlacesSource(fc, fastPolicy(), "q", 2).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, raws, 2)
	assert.Len(t, fc.requests, 1)
}

func TestPlacesSource_RetriesThrottling(t *testing.T) {
	fc := &scriptedPlaces{
		errs: []error{&google.StatusError{StatusCode: http.StatusTooManyRequests}},
		responses: []*google.TextSearchResponse{
			nil,
			{Places: []google.Place{place("p1", "A")}},
		},
	}

	raws, err := NewPlacesSource(fc, fastPolicy(), "q", 0).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, raws, 1)
	assert.Len(t, fc.requests, 2)
}

func TestPlacesSource_AuthFailureIsPermanent(t *testing.T) {
	fc := &scriptedPlaces{
		errs:      []error{&google.StatusError{StatusCode: http.StatusForbidden}},
		responses: []*google.TextSearchResponse{nil},
	}

	_, err := NewPlacesSource(fc, fastPolicy(), "q", 0).Collect(context.Background())
	require.Error(t, err)
	code, ok := resilience.PermanentCode(err)
	require.True(t, ok)
	assert.Equal(t, model.ReasonAuthFailed, code)
	assert.Len(t, fc.requests, 1)
}

func TestPlacesSource_RequiresQuery(t *testing.T) {
	_, err := NewPlacesSource(&scriptedPlaces{}, fastPolicy(), "  ", 0).Collect(context.Background())
	assert.Error(t, err)
}

func TestRawLeadFromPlace(t *testing.T) {
	raw := RawLeadFromPlace(google.Place{
		ID:                  "place-1",
		DisplayName:         google.DisplayName{Text: " Bright Smiles "},
		FormattedAddress:    "1 Main St, Austin, TX",
		NationalPhoneNumber: "(512) 555-0100",
		WebsiteURI:          "https://brightsmiles.example",
		Rating:              4.5,
	})
	assert.Equal(t, "Bright Smiles", raw.Name)
	assert.Equal(t, "4.5", raw.Rating)
	assert.Equal(t, "https://brightsmiles.example", raw.Website)
	assert.Empty(t, raw.ExternalID)

	src := model.NormalizeSource(raw)
	require.NotNil(t, src.Rating)
	assert.InDelta(t, 4.5, *src.Rating, 1e-9)

	assert.Empty(t, RawLeadFromPlace(place("p", "No Reviews")).Rating)
}
