// Package outreach drafts personalized outreach emails through the reasoning
// oracle. Length bounds and the compliance footer are enforced here, never
// left to the oracle.
package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/memory"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/oracle"
	"github.com/ahermangesh/Leads/internal/resilience"
)

const systemPrompt = `You write concise, personalized cold outreach emails for small businesses. Respond with a single JSON object only.`

// Recommender suggests a strategy and tone for an industry.
type Recommender interface {
	Recommend(industry string) memory.Recommendation
}

// Config configures a Generator.
type Config struct {
	Sender          Sender
	MaxSubjectChars int
	MaxBodyWords    int
	// Strategy and Tone force a selection for every draft when set.
	Strategy    model.Strategy
	Tone        model.Tone
	MaxTokens   int64
	Temperature float64
}

// Request describes the lead a draft is written for.
type Request struct {
	LeadName string
	Website  string
	Research *model.ResearchResult
	// Strategy and Tone override every other selection source.
	Strategy model.Strategy
	Tone     model.Tone
}

// Generator produces drafts. It is safe for concurrent use.
type Generator struct {
	oracle  oracle.Oracle
	policy  *resilience.Policy
	prompts Prompts
	rec     Recommender
	cfg     Config
	now     func() time.Time
}

// NewGenerator creates a Generator. rec may be nil, in which case the
// configured or built-in default selection is used.
func NewGenerator(o oracle.Oracle, policy *resilience.Policy, prompts Prompts, rec Recommender, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.Sender.Name) == "" || strings.TrimSpace(cfg.Sender.Email) == "" {
		return nil, eris.New("outreach: sender name and email are required for the compliance footer")
	}
	if cfg.MaxSubjectChars <= 3 {
		cfg.MaxSubjectChars = 60
	}
	if cfg.MaxBodyWords <= 0 {
		cfg.MaxBodyWords = 500
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	retryable := func(err error) bool {
		return resilience.IsTransient(err) || resilience.IsMalformed(err)
	}
	return &Generator{
		oracle:  o,
		policy:  policy.For("oracle").RetryOn(retryable),
		prompts: prompts,
		rec:     rec,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Select resolves the strategy and tone for a request: explicit request
// values, then the configured override, then the memory recommendation for
// the lead's industry, then the built-in defaults.
func (g *Generator) Select(req Request) (model.Strategy, model.Tone) {
	var rec memory.Recommendation
	if g.rec != nil {
		industry := ""
		if req.Research != nil {
			industry = req.Research.Industry
		}
		rec = g.rec.Recommend(industry)
	}
	strategy := firstValid(req.Strategy, g.cfg.Strategy, rec.Strategy, model.StrategyValueProposition)
	tone := firstValidTone(req.Tone, g.cfg.Tone, rec.Tone, model.ToneProfessional)
	return strategy, tone
}

// Generate drafts a new message. When the oracle call exhausts its retries
// the error is returned; no fallback message is produced.
func (g *Generator) Generate(ctx context.Context, req Request) (*model.Draft, error) {
	strategy, tone := g.Select(req)
	prompt := g.draftPrompt(req, strategy, tone)
	return g.build(ctx, prompt, strategy, tone)
}

// Regenerate redrafts prev with operator feedback, keeping its strategy and
// tone and the same bounds and footer.
func (g *Generator) Regenerate(ctx context.Context, req Request, prev *model.Draft, feedback string) (*model.Draft, error) {
	if prev == nil {
		return g.Generate(ctx, req)
	}
	prompt := g.draftPrompt(req, prev.Strategy, prev.Tone) + fmt.Sprintf(`

PREVIOUS DRAFT:
Subject: %s
%s

OPERATOR FEEDBACK:
%s

Rewrite the draft to address the feedback.`, prev.Subject, prev.Body, strings.TrimSpace(feedback))
	return g.build(ctx, prompt, prev.Strategy, prev.Tone)
}

func (g *Generator) build(ctx context.Context, prompt string, strategy model.Strategy, tone model.Tone) (*model.Draft, error) {
	out, err := g.call(ctx, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: draft")
	}

	signature := g.cfg.Sender.Signature()
	budget := max(1, g.cfg.MaxBodyWords-wordCount(signature))

	body := out.Body
	if wordCount(body) > budget {
		shortened, err := g.call(ctx, shortenPrompt(body, budget))
		switch {
		case err == nil:
			body = shortened.Body
		case ctx.Err() != nil:
			return nil, eris.Wrap(ctx.Err(), "outreach: draft cancelled")
		default:
			zap.L().Warn("outreach: shorten request failed, truncating", zap.Error(err))
		}
		body = truncateWords(body, budget)
	}

	return &model.Draft{
		Subject:     truncateSubject(out.Subject, g.cfg.MaxSubjectChars),
		Body:        body + signature,
		Footer:      g.cfg.Sender.Footer(),
		Strategy:    strategy,
		Tone:        tone,
		GeneratedAt: g.now().UTC(),
	}, nil
}

type draftOutput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (g *Generator) call(ctx context.Context, prompt string) (draftOutput, error) {
	return resilience.Call(ctx, g.policy, "draft", func(ctx context.Context) (draftOutput, error) {
		text, err := g.oracle.Generate(ctx, prompt, oracle.Config{
			System:      systemPrompt,
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: g.cfg.Temperature,
			JSON:        true,
		})
		if err != nil {
			return draftOutput{}, err
		}
		return parseDraft(text)
	})
}

func parseDraft(text string) (draftOutput, error) {
	var out draftOutput
	if err := json.Unmarshal([]byte(oracle.ExtractJSON(text)), &out); err != nil {
		return out, eris.Wrapf(resilience.ErrMalformed, "outreach: parse draft: %v", err)
	}
	out.Subject = cleanSubject(out.Subject)
	out.Body = strings.TrimSpace(out.Body)
	if out.Subject == "" || out.Body == "" {
		return out, eris.Wrap(resilience.ErrMalformed, "outreach: draft missing subject or body")
	}
	return out, nil
}

func (g *Generator) draftPrompt(req Request, strategy model.Strategy, tone model.Tone) string {
	var ctxLines strings.Builder
	fmt.Fprintf(&ctxLines, "Business Name: %s\n", req.LeadName)
	if req.Website != "" {
		fmt.Fprintf(&ctxLines, "Website: %s\n", req.Website)
	}
	if r := req.Research; r != nil {
		if r.Summary != "" {
			fmt.Fprintf(&ctxLines, "What they do: %s\n", r.Summary)
		}
		if r.Industry != "" {
			fmt.Fprintf(&ctxLines, "Industry: %s\n", r.Industry)
		}
		if r.TargetAudience != "" {
			fmt.Fprintf(&ctxLines, "Their audience: %s\n", r.TargetAudience)
		}
		if len(r.PainPoints) > 0 {
			fmt.Fprintf(&ctxLines, "Potential challenges: %s\n", strings.Join(head(r.PainPoints, 3), "; "))
		}
		if len(r.ValueProps) > 0 {
			fmt.Fprintf(&ctxLines, "What sets them apart: %s\n", strings.Join(head(r.ValueProps, 3), "; "))
		}
		if len(r.OutreachAngles) > 0 {
			fmt.Fprintf(&ctxLines, "Suggested angles: %s\n", strings.Join(head(r.OutreachAngles, 2), "; "))
		}
	}

	return fmt.Sprintf(`Write a personalized cold outreach email to this business.

BUSINESS CONTEXT:
%s
SENDER: %s

REQUIREMENTS:
- Tone: %s
- Strategy: %s
- Subject at most %d characters, no spam words
- Body at most %d words, with a personalized greeting and a soft call to action
- Do not include a sign-off, signature or unsubscribe text

Return JSON: {"subject": "...", "body": "..."}`,
		ctxLines.String(), g.cfg.Sender.Name,
		g.prompts.Tones[tone], g.prompts.Strategies[strategy],
		g.cfg.MaxSubjectChars, g.cfg.MaxBodyWords-wordCount(g.cfg.Sender.Signature()))
}

func shortenPrompt(body string, words int) string {
	return fmt.Sprintf(`Shorten this email body to at most %d words. Keep the greeting, the main point and the call to action.

%s

Return JSON: {"subject": "unchanged", "body": "..."}`, words, body)
}

func cleanSubject(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "Subject:")
	return strings.TrimSpace(s)
}

// truncateSubject bounds s to limit runes, marking the cut with "...".
func truncateSubject(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimRightFunc(string(r[:limit-3]), unicode.IsSpace) + "..."
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// truncateWords cuts s after n words, then back to the last sentence end in
// the kept text when there is one. Line breaks inside the kept text are
// preserved.
func truncateWords(s string, n int) string {
	if wordCount(s) <= n {
		return s
	}
	words, inWord, cut := 0, false, len(s)
	for i, r := range s {
		if unicode.IsSpace(r) {
			if inWord {
				words++
				if words == n {
					cut = i
					break
				}
			}
			inWord = false
			continue
		}
		inWord = true
	}
	kept := s[:cut]
	if i := strings.LastIndexAny(kept, ".!?"); i > 0 {
		kept = kept[:i+1]
	}
	return strings.TrimSpace(kept)
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func firstValid(opts ...model.Strategy) model.Strategy {
	for _, s := range opts {
		if s.Valid() {
			return s
		}
	}
	return model.StrategyValueProposition
}

func firstValidTone(opts ...model.Tone) model.Tone {
	for _, t := range opts {
		if t.Valid() {
			return t
		}
	}
	return model.ToneProfessional
}
