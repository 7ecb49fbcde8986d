package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/model"
)

type sliceLog struct {
	mu     sync.Mutex
	events []model.OutcomeEvent
	err    error
}

func (l *sliceLog) AppendEvent(_ context.Context, ev model.OutcomeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, ev)
	return nil
}

func (l *sliceLog) ListEvents(context.Context) ([]model.OutcomeEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.OutcomeEvent(nil), l.events...), l.err
}

func ev(lead string, kind model.OutcomeKind, s model.Strategy, t model.Tone, industry string) model.OutcomeEvent {
	return model.OutcomeEvent{LeadID: lead, Kind: kind, Strategy: s, Tone: t, Industry: industry}
}

func appendAll(t *testing.T, s *Store, events ...model.OutcomeEvent) {
	t.Helper()
	for _, e := range events {
		_, err := s.Append(context.Background(), e)
		require.NoError(t, err)
	}
}

func TestAppend_AssignsSeqAndNormalizes(t *testing.T) {
	log := &sliceLog{}
	s := New(Config{}, log)

	got, err := s.Append(context.Background(), ev("l1", model.OutcomeSent, model.StrategyPainPoint, model.ToneCasual, " Dental  Care"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, "dental care", got.Industry)

	got, err = s.Append(context.Background(), ev("l2", model.OutcomeFailed, "", "", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Seq)
	assert.Len(t, log.events, 2)
}

func TestAppend_Rejects(t *testing.T) {
	s := New(Config{}, nil)

	_, err := s.Append(context.Background(), ev("l1", "clicked", "", "", ""))
	assert.Error(t, err)

	_, err = s.Append(context.Background(), ev("", model.OutcomeSent, "", "", ""))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestAppend_PersistFailureKeepsEvent(t *testing.T) {
	s := New(Config{}, &sliceLog{err: eris.New("disk full")})

	_, err := s.Append(context.Background(), ev("l1", model.OutcomeSent, "", "", ""))
	assert.Error(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestAppend_ConcurrentKeepsOrder(t *testing.T) {
	log := &sliceLog{}
	s := New(Config{}, log)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(context.Background(), ev(fmt.Sprintf("l%d", i), model.OutcomeSent, "", "", ""))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events := s.Events()
	require.Len(t, events, 50)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, e, log.events[i])
	}
}

func TestLoad_RestoresSequence(t *testing.T) {
	log := &sliceLog{}
	first := New(Config{}, log)
	appendAll(t, first,
		ev("l1", model.OutcomeApproved, model.StrategyPainPoint, model.ToneCasual, "dental"),
		ev("l1", model.OutcomeSent, model.StrategyPainPoint, model.ToneCasual, "dental"),
	)

	second := New(Config{}, log)
	require.NoError(t, second.Load(context.Background()))
	assert.Equal(t, first.Events(), second.Events())

	next, err := second.Append(context.Background(), ev("l2", model.OutcomeSent, "", "", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.Seq)
}

func dentalHistory() []model.OutcomeEvent {
	var out []model.OutcomeEvent
	pp, fr := model.StrategyPainPoint, model.ToneFriendly
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		out = append(out,
			ev(id, model.OutcomeApproved, pp, fr, "dental"),
			ev(id, model.OutcomeSent, pp, fr, "dental"),
		)
	}
	out = append(out,
		ev("a1", model.OutcomeReplied, pp, fr, "dental"),
		ev("a1", model.OutcomeReplied, pp, fr, "dental"),
		ev("a2", model.OutcomeReplied, pp, fr, "dental"),
	)

	vp, pro := model.StrategyValueProposition, model.ToneProfessional
	out = append(out,
		ev("b1", model.OutcomeApproved, vp, pro, "Dental"),
		ev("b1", model.OutcomeSent, vp, pro, "dental"),
		ev("b1", model.OutcomeReplied, vp, pro, "dental"),
		ev("b2", model.OutcomeRejected, vp, pro, "dental"),
		// Below-threshold rejections carry no strategy and are ignored.
		ev("c1", model.OutcomeRejected, "", "", "dental"),
	)
	return out
}

func TestAggregates(t *testing.T) {
	s := New(Config{MinSamples: 3}, nil)
	appendAll(t, s, dentalHistory()...)

	aggs := s.Aggregates()
	require.Len(t, aggs, 2)

	pp := aggs[0]
	assert.Equal(t, model.StrategyPainPoint, pp.Strategy)
	assert.Equal(t, 4, pp.Leads)
	assert.Equal(t, 2, pp.Replied)
	assert.Equal(t, 1.0, pp.ApprovalRate)
	assert.Equal(t, 0.5, pp.ReplyRate)

	vp := aggs[1]
	assert.Equal(t, model.StrategyValueProposition, vp.Strategy)
	assert.Equal(t, 2, vp.Leads)
	assert.Equal(t, 0.5, vp.ApprovalRate)
	assert.Equal(t, 1.0, vp.ReplyRate)
}

func TestRecommend_BestReplyRate(t *testing.T) {
	s := New(Config{MinSamples: 3}, nil)
	appendAll(t, s, dentalHistory()...)

	rec := s.Recommend("DENTAL")

	assert.False(t, rec.Fallback)
	assert.Equal(t, "dental", rec.Industry)
	assert.Equal(t, model.StrategyValueProposition, rec.Strategy)
	assert.Equal(t, model.ToneProfessional, rec.Tone)
	assert.Equal(t, 6, rec.Samples)
	// 2/(2+3) * max(reply 1.0, approval 0.5)
	assert.Equal(t, 0.4, rec.Confidence)
}

func TestRecommend_FallbackBelowMinSamples(t *testing.T) {
	s := New(Config{MinSamples: 10, DefaultStrategy: model.StrategySocialProof, DefaultTone: model.ToneFormal}, nil)
	appendAll(t, s, dentalHistory()...)

	rec := s.Recommend("dental")
	assert.True(t, rec.Fallback)
	assert.Equal(t, model.StrategySocialProof, rec.Strategy)
	assert.Equal(t, model.ToneFormal, rec.Tone)
	assert.Equal(t, 6, rec.Samples)
	assert.Zero(t, rec.Confidence)

	unknown := s.Recommend("aerospace")
	assert.True(t, unknown.Fallback)
	assert.Zero(t, unknown.Samples)
}

func TestRecommend_TieBreaksByName(t *testing.T) {
	s := New(Config{MinSamples: 1}, nil)
	appendAll(t, s,
		ev("x1", model.OutcomeSent, model.StrategySocialProof, model.ToneCasual, "bakery"),
		ev("x2", model.OutcomeSent, model.StrategyPainPoint, model.ToneFriendly, "bakery"),
		ev("x3", model.OutcomeSent, model.StrategyPainPoint, model.ToneCasual, "bakery"),
	)

	rec := s.Recommend("bakery")
	assert.Equal(t, model.StrategyPainPoint, rec.Strategy)
	assert.Equal(t, model.ToneCasual, rec.Tone)
}

func TestRecommend_Idempotent(t *testing.T) {
	a := New(Config{MinSamples: 3}, nil)
	b := New(Config{MinSamples: 3}, nil)
	appendAll(t, a, dentalHistory()...)
	appendAll(t, b, dentalHistory()...)

	first := a.Recommend("dental")
	for range 20 {
		assert.Equal(t, first, a.Recommend("dental"))
	}
	assert.Equal(t, first, b.Recommend("dental"))
}

func TestBreakdown(t *testing.T) {
	s := New(Config{}, nil)
	appendAll(t, s, dentalHistory()...)

	bd := s.Breakdown()
	assert.Equal(t, Counts{Sent: 5, Replied: 3}, bd.ByIndustry["dental"])
	assert.Equal(t, Counts{Sent: 4, Replied: 2}, bd.ByStrategy[model.StrategyPainPoint])
	assert.Equal(t, Counts{Sent: 1, Replied: 1}, bd.ByTone[model.ToneProfessional])
}
