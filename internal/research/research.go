// Package research derives a structured business analysis for a lead from
// its fetched pages using the reasoning oracle, falling back to a local
// heuristic when the oracle cannot produce usable output.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/oracle"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/internal/scrape"
)

const systemPrompt = `You are a B2B business analyst. Analyze the website content you are given and respond with a single JSON object only, no prose and no code fences.`

// Config tunes the engine.
type Config struct {
	// MaxContentChars bounds the aggregated page text sent to the oracle.
	MaxContentChars int
	// MaxAttempts is the attempt ceiling for the oracle call, covering both
	// transient failures and malformed output. <= 0 uses the policy default.
	MaxAttempts int
	MaxTokens   int64
	Temperature float64
}

// Input is what the engine researches.
type Input struct {
	Name    string
	Website string
	Pages   []*scrape.Page
}

// Engine runs research for one lead at a time. It is safe for concurrent use.
type Engine struct {
	oracle oracle.Oracle
	policy *resilience.Policy
	cfg    Config
}

// NewEngine creates an Engine.
func NewEngine(o oracle.Oracle, policy *resilience.Policy, cfg Config) *Engine {
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 5000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	retryable := func(err error) bool {
		return resilience.IsTransient(err) || resilience.IsMalformed(err)
	}
	return &Engine{
		oracle: o,
		policy: policy.For("oracle").WithMaxAttempts(cfg.MaxAttempts).RetryOn(retryable),
		cfg:    cfg,
	}
}

// Research analyzes the input. A full result returns a nil error. When the
// oracle keeps failing transiently or keeps returning unparseable output,
// a degraded heuristic result is returned together with a PartialDataError.
// Permanent oracle errors and cancellation are returned with a nil result.
func (e *Engine) Research(ctx context.Context, in Input) (*model.ResearchResult, error) {
	content := Aggregate(in.Pages, e.cfg.MaxContentChars)
	if strings.TrimSpace(content) == "" {
		return Heuristic(in), resilience.NewPartialDataError(
			eris.Errorf("research: no content for %q", in.Name), resilience.PartialDegradedResearch)
	}

	prompt := buildPrompt(in, content)
	result, err := resilience.Call(ctx, e.policy, "research", func(ctx context.Context) (*model.ResearchResult, error) {
		text, err := e.oracle.Generate(ctx, prompt, oracle.Config{
			System:      systemPrompt,
			MaxTokens:   e.cfg.MaxTokens,
			Temperature: e.cfg.Temperature,
			JSON:        true,
		})
		if err != nil {
			return nil, err
		}
		return Parse(text)
	})
	if err == nil {
		return result, nil
	}

	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "research: cancelled")
	}
	if resilience.IsPermanent(err) {
		return nil, eris.Wrapf(err, "research: oracle rejected request for %q", in.Name)
	}

	zap.L().Warn("research: falling back to heuristic",
		zap.String("lead", in.Name),
		zap.Error(err),
	)
	return Heuristic(in), resilience.NewPartialDataError(
		eris.Wrapf(err, "research: degraded for %q", in.Name), resilience.PartialDegradedResearch)
}

// Aggregate concatenates page metadata and text, bounded to maxChars.
func Aggregate(pages []*scrape.Page, maxChars int) string {
	var b strings.Builder
	for _, p := range pages {
		if p == nil {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", p.URL)
		if p.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", p.Title)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", p.Description)
		}
		if len(p.Headings) > 0 {
			fmt.Fprintf(&b, "Headings: %s\n", strings.Join(p.Headings, " | "))
		}
		b.WriteString(p.Text)
		b.WriteString("\n\n")
		if b.Len() >= maxChars {
			break
		}
	}
	return truncateRunes(b.String(), maxChars)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func buildPrompt(in Input, content string) string {
	return fmt.Sprintf(`Business: %s
Website: %s

Website content:
%s

Return JSON with these keys:
  "business_summary": 2-3 sentence summary of what the business does
  "industry": short industry label
  "services_products": list of main services or products
  "target_audience": who the business serves
  "pain_points": list of likely operational or marketing pain points
  "unique_value_proposition": list of what sets the business apart
  "outreach_angles": list of angles for a personalized cold email
  "business_size": one of "small", "medium", "large"
  "quality_indicators": list of signals of an established business
  "red_flags": list of reasons not to contact this business`, in.Name, in.Website, content)
}

type oracleResponse struct {
	Summary           string   `json:"business_summary"`
	Industry          string   `json:"industry"`
	Services          []string `json:"services_products"`
	TargetAudience    string   `json:"target_audience"`
	PainPoints        []string `json:"pain_points"`
	ValueProps        []string `json:"unique_value_proposition"`
	OutreachAngles    []string `json:"outreach_angles"`
	BusinessSize      string   `json:"business_size"`
	QualityIndicators []string `json:"quality_indicators"`
	RedFlags          []string `json:"red_flags"`
}

// Parse converts oracle output into a full ResearchResult. Output that is not
// a JSON object, or a JSON object with no summary and no industry, wraps
// resilience.ErrMalformed.
func Parse(text string) (*model.ResearchResult, error) {
	var resp oracleResponse
	if err := json.Unmarshal([]byte(oracle.ExtractJSON(text)), &resp); err != nil {
		return nil, eris.Wrapf(resilience.ErrMalformed, "research: parse oracle output: %v", err)
	}
	if strings.TrimSpace(resp.Summary) == "" && strings.TrimSpace(resp.Industry) == "" {
		return nil, eris.Wrap(resilience.ErrMalformed, "research: oracle output missing summary and industry")
	}

	r := &model.ResearchResult{
		Summary:        strings.TrimSpace(resp.Summary),
		Industry:       model.NormalizeIndustry(resp.Industry),
		PainPoints:     compact(resp.PainPoints),
		ValueProps:     compact(resp.ValueProps),
		TargetAudience: strings.TrimSpace(resp.TargetAudience),
		Services:       compact(resp.Services),
		OutreachAngles: compact(resp.OutreachAngles),
		BusinessSize:   strings.ToLower(strings.TrimSpace(resp.BusinessSize)),
		RedFlags:       compact(resp.RedFlags),
		Mode:           model.ResearchFull,
		RawOutput:      text,
	}
	r.Completeness = Completeness(r)
	return r, nil
}

// Completeness is the fraction of summary, industry, pain points, value
// propositions and target audience that are present.
func Completeness(r *model.ResearchResult) float64 {
	if r == nil {
		return 0
	}
	present := 0
	for _, ok := range []bool{
		r.Summary != "",
		r.Industry != "",
		len(r.PainPoints) > 0,
		len(r.ValueProps) > 0,
		r.TargetAudience != "",
	} {
		if ok {
			present++
		}
	}
	return float64(present) / 5
}

func compact(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
