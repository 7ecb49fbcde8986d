package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RawLead is a prospect record as delivered by a source collector. Every
// field except Name may be empty or malformed.
type RawLead struct {
	Name        string   `json:"name" yaml:"name"`
	Website     string   `json:"website,omitempty" yaml:"website,omitempty"`
	Phone       string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Address     string   `json:"address,omitempty" yaml:"address,omitempty"`
	Rating      string   `json:"rating,omitempty" yaml:"rating,omitempty"`
	SocialLinks []string `json:"social_links,omitempty" yaml:"social_links,omitempty"`
	ExternalID  string   `json:"external_id,omitempty" yaml:"external_id,omitempty"`
}

// Source holds the normalized source attributes of a lead. A nil pointer
// means the attribute is absent.
type Source struct {
	Name        string   `json:"name"`
	Website     *string  `json:"website,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	Address     *string  `json:"address,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	SocialLinks []string `json:"social_links,omitempty"`
	ExternalID  string   `json:"external_id,omitempty"`
}

// Lead is a prospect moving through the pipeline.
type Lead struct {
	ID        string          `json:"id"`
	Campaign  string          `json:"campaign,omitempty"`
	Source    Source          `json:"source"`
	State     State           `json:"state"`
	Contacts  []Contact       `json:"contacts,omitempty"`
	Research  *ResearchResult `json:"research,omitempty"`
	Score     *ScoreBreakdown `json:"score,omitempty"`
	Draft     *Draft          `json:"draft,omitempty"`
	Approval  *Approval       `json:"approval,omitempty"`
	Send      *SendReceipt    `json:"send,omitempty"`
	Failure   *Failure        `json:"failure,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Contact is a discovered outreach address.
type Contact struct {
	Address      string    `json:"address"`
	Confidence   float64   `json:"confidence"`
	SourcePage   string    `json:"source_page"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// BestContact returns the highest-confidence contact, if any. Contacts are
// kept sorted by the resolver, but the scan does not rely on it.
func (l *Lead) BestContact() (Contact, bool) {
	if len(l.Contacts) == 0 {
		return Contact{}, false
	}
	best := l.Contacts[0]
	for _, c := range l.Contacts[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// Industry returns the researched industry label or "" when unknown.
func (l *Lead) Industry() string {
	if l.Research == nil {
		return ""
	}
	return l.Research.Industry
}

// TotalScore returns the total score, or -1 when the lead was never scored.
func (l *Lead) TotalScore() int {
	if l.Score == nil {
		return -1
	}
	return l.Score.Total
}

// ApprovalDecision is the outcome of the human gate.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// Approval records who let a draft through the gate.
type Approval struct {
	Decision ApprovalDecision `json:"decision"`
	Auto     bool             `json:"auto"`
	By       string           `json:"by,omitempty"`
	Note     string           `json:"note,omitempty"`
	At       time.Time        `json:"at"`
}

// SendReceipt is returned by a Sender on successful hand-off.
type SendReceipt struct {
	MessageID string    `json:"message_id"`
	Recipient string    `json:"recipient"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sent_at"`
}

// NormalizeSource converts a raw record into the fixed-shape Source.
// Malformed optional fields are dropped, never reported.
func NormalizeSource(raw RawLead) Source {
	src := Source{
		Name:       strings.TrimSpace(raw.Name),
		ExternalID: strings.TrimSpace(raw.ExternalID),
	}
	if u, ok := normalizeURL(raw.Website); ok {
		src.Website = &u
	}
	if p := strings.TrimSpace(raw.Phone); countDigits(p) >= 7 {
		src.Phone = &p
	}
	if a := strings.TrimSpace(raw.Address); a != "" {
		src.Address = &a
	}
	if r, err := strconv.ParseFloat(strings.TrimSpace(raw.Rating), 64); err == nil && r >= 0 && r <= 5 {
		src.Rating = &r
	}
	src.SocialLinks = MergeLinks(nil, raw.SocialLinks...)
	return src
}

// MergeLinks appends the valid links in more to links, skipping any link
// already present. Links that differ only in scheme, a leading "www." or
// letter case are the same link.
func MergeLinks(links []string, more ...string) []string {
	seen := make(map[string]bool, len(links)+len(more))
	for _, l := range links {
		seen[linkKey(l)] = true
	}
	for _, raw := range more {
		u, ok := normalizeURL(raw)
		if !ok || seen[linkKey(u)] {
			continue
		}
		seen[linkKey(u)] = true
		links = append(links, u)
	}
	return links
}

func linkKey(link string) string {
	k := strings.ToLower(link)
	k = strings.TrimPrefix(strings.TrimPrefix(k, "https://"), "http://")
	return strings.TrimSuffix(strings.TrimPrefix(k, "www."), "/")
}

func normalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return strings.TrimRight(u.String(), "/"), true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
