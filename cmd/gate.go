package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/orchestrator"
)

// approver is the part of the orchestrator the gate keeper decides through.
type approver interface {
	Approve(ctx context.Context, id, by, note string) error
	Reject(ctx context.Context, id, by, note string) error
	Regenerate(ctx context.Context, id, feedback string) (*model.Lead, error)
}

// gateKeeper answers the approval gate of an in-process run. Leads scoring at
// or above autoScore are approved; the rest are put to the operator on in
// when interactive is set and otherwise left waiting.
type gateKeeper struct {
	pipeline    approver
	autoScore   int
	interactive bool
	in          io.Reader
	out         io.Writer
}

// Run handles events until ctx is cancelled or events is closed. Decisions
// are made one lead at a time.
func (g *gateKeeper) Run(ctx context.Context, events <-chan orchestrator.Event) {
	lines := bufio.NewScanner(g.in)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Transition.To != model.StateAwaitingApproval {
				continue
			}
			g.decide(ctx, &ev.Lead, lines)
		}
	}
}

func (g *gateKeeper) decide(ctx context.Context, lead *model.Lead, lines *bufio.Scanner) {
	log := zap.L().With(zap.String("lead_id", lead.ID), zap.Int("score", lead.TotalScore()))

	if g.autoScore > 0 && lead.TotalScore() >= g.autoScore {
		if err := g.pipeline.Approve(ctx, lead.ID, "auto", fmt.Sprintf("score >= %d", g.autoScore)); err != nil {
			log.Warn("gate: auto-approve failed", zap.Error(err))
		}
		return
	}
	if !g.interactive {
		return
	}

	for {
		printDraft(g.out, lead)
		fmt.Fprint(g.out, "[a]pprove, [r]eject [note], [e]dit <feedback>, [s]kip: ")
		if !lines.Scan() {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(lines.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch strings.ToLower(cmd) {
		case "a", "approve":
			err = g.pipeline.Approve(ctx, lead.ID, "terminal", arg)
		case "r", "reject":
			err = g.pipeline.Reject(ctx, lead.ID, "terminal", arg)
		case "e", "edit":
			if arg == "" {
				fmt.Fprintln(g.out, "feedback is required")
				continue
			}
			var next *model.Lead
			next, err = g.pipeline.Regenerate(ctx, lead.ID, arg)
			if err == nil && next.State == model.StateAwaitingApproval {
				lead = next
				continue
			}
		case "s", "skip":
			return
		default:
			fmt.Fprintf(g.out, "unknown choice %q\n", cmd)
			continue
		}
		if err != nil {
			log.Warn("gate: decision not applied", zap.Error(err))
			fmt.Fprintf(g.out, "not applied: %v\n", err)
		}
		return
	}
}

func printDraft(w io.Writer, lead *model.Lead) {
	fmt.Fprintf(w, "\n== %s (score %d)\n", lead.Source.Name, lead.TotalScore())
	if c, ok := lead.BestContact(); ok {
		fmt.Fprintf(w, "To: %s\n", c.Address)
	}
	if d := lead.Draft; d != nil {
		fmt.Fprintf(w, "Subject: %s\n\n%s\n\n", d.Subject, d.Text())
	}
}
