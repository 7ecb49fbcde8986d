package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahermangesh/Leads/internal/crm"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/orchestrator"
	"github.com/ahermangesh/Leads/internal/store"
	"github.com/ahermangesh/Leads/pkg/google"
	"github.com/ahermangesh/Leads/pkg/notion"
)

var (
	runSource      string
	runInput       string
	runQuery       string
	runCampaign    string
	runReport      string
	runLimit       int
	runWorkers     int
	runTimeout     time.Duration
	runInteractive bool
	runAutoScore   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the qualification pipeline over a batch of leads",
	Long: `Imports leads from a YAML/JSON file, the Notion lead database, a Google
Places text search or the store's pending leads, and drives each one to Sent, Rejected or Failed.

Drafts scoring below the auto-approval threshold wait at the approval gate
until they are approved (--interactive, --auto-approve-score or the serve
API in the same process) or the approval timeout elapses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runWorkers > 0 {
			cfg.Batch.Workers = runWorkers
		}
		if cmd.Flags().Changed("approval-timeout") {
			cfg.Batch.ApprovalTimeoutSecs = int(runTimeout.Seconds())
		}

		var gate *orchestrator.ChanObserver
		var extra []orchestrator.Observer
		if runInteractive || runAutoScore > 0 {
			gate = orchestrator.NewChanObserver(1024)
			extra = append(extra, gate)
		}

		env, err := initPipeline(ctx, "run", extra...)
		if err != nil {
			return err
		}
		defer env.Close()

		if gate != nil {
			g := &gateKeeper{
				pipeline:    env.Orchestrator,
				autoScore:   runAutoScore,
				interactive: runInteractive,
				in:          os.Stdin,
				out:         os.Stderr,
			}
			gateCtx, cancelGate := context.WithCancel(ctx)
			defer cancelGate()
			go g.Run(gateCtx, gate.C())
		}

		report, err := runPipeline(ctx, env)
		if err != nil {
			return err
		}
		if gate != nil && gate.Dropped() > 0 {
			zap.L().Warn("approval gate events dropped", zap.Int64("dropped", gate.Dropped()))
		}

		formatRunReport(os.Stdout, report)
		if runReport != "" {
			if err := writeReport(runReport, report); err != nil {
				return err
			}
			zap.L().Info("run report written", zap.String("path", runReport))
		}
		return nil
	},
}

// runPipeline loads the leads from the selected source and runs them.
func runPipeline(ctx context.Context, env *pipelineEnv) (*model.RunReport, error) {
	switch runSource {
	case "file":
		if runInput == "" {
			return nil, eris.New("run: --input is required for --source file")
		}
		raws, err := readLeadsFile(runInput)
		if err != nil {
			return nil, err
		}
		return env.Orchestrator.Run(ctx, limitRaws(raws, runLimit), runCampaign)

	case "notion":
		if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
			return nil, eris.New("run: notion.token and notion.lead_db are required for --source notion")
		}
		client := env.Notion
		if client == nil {
			client = notion.NewClient(cfg.Notion.Token)
		}
		raws, err := crm.NewNotionSource(client, cfg.Notion.LeadDB).Collect(ctx)
		if err != nil {
			return nil, err
		}
		return env.Orchestrator.Run(ctx, limitRaws(raws, runLimit), runCampaign)

	case "places":
		if cfg.Google.Key == "" {
			return nil, eris.New("run: google.key is required for --source places")
		}
		client := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
		raws, err := crm.NewPlacesSource(client, newPolicy(), runQuery, runLimit).Collect(ctx)
		if err != nil {
			return nil, err
		}
		return env.Orchestrator.Run(ctx, raws, runCampaign)

	case "store":
		pending, err := env.Store.ListLeads(ctx, store.LeadFilter{
			States:   []model.State{model.StateNew},
			Campaign: runCampaign,
			Limit:    runLimit,
		})
		if err != nil {
			return nil, eris.Wrap(err, "run: list pending leads")
		}
		leads := make([]*model.Lead, len(pending))
		for i := range pending {
			leads[i] = &pending[i]
		}
		return env.Orchestrator.RunLeads(ctx, leads)

	default:
		return nil, eris.Errorf("run: unknown source %q (file, notion, places or store)", runSource)
	}
}

// readLeadsFile reads a list of raw lead records. YAML is a superset of
// JSON, so both formats decode through the same path.
func readLeadsFile(path string) ([]model.RawLead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "run: read input %s", path)
	}
	var raws []model.RawLead
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return nil, eris.Wrapf(err, "run: parse input %s", path)
	}
	return raws, nil
}

func limitRaws(raws []model.RawLead, limit int) []model.RawLead {
	if limit > 0 && len(raws) > limit {
		return raws[:limit]
	}
	return raws
}

func writeReport(path string, report *model.RunReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "run: encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "run: write report %s", path)
	}
	return nil
}

// formatRunReport writes one row per lead followed by the per-state totals.
func formatRunReport(w io.Writer, report *model.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LEAD\tNAME\tSTATE\tSCORE\tREASON\tRETRIES")
	for _, o := range report.Leads {
		score := "-"
		if o.Score != nil {
			score = fmt.Sprintf("%d", *o.Score)
		}
		reason := string(o.Reason)
		if reason == "" {
			reason = "-"
		} else if o.Retryable {
			reason += " (retryable)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			shortID(o.LeadID), truncate(o.Name, 32), o.State, score, reason, o.Retries)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nrun %s %s in %s\n", report.RunID, report.Status,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, s := range []model.State{model.StateSent, model.StateRejected, model.StateFailed} {
		fmt.Fprintf(w, "  %-9s %d\n", s, report.Counts[s])
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "file", "lead source: file, notion, places or store")
	runCmd.Flags().StringVar(&runInput, "input", "", "YAML or JSON file of lead records (source file)")
	runCmd.Flags().StringVar(&runQuery, "query", "", `Places text search, e.g. "dentists in Austin TX" (source places)`)
	runCmd.Flags().StringVar(&runCampaign, "campaign", "", "campaign label for imported leads, filter for source store")
	runCmd.Flags().StringVar(&runReport, "report", "", "write the run report as YAML to this path")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max leads to run (0 = all)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent lead pipelines (default from config)")
	runCmd.Flags().DurationVar(&runTimeout, "approval-timeout", 0, "how long drafts wait for approval (0 = until interrupted)")
	runCmd.Flags().BoolVar(&runInteractive, "interactive", false, "prompt on the terminal for each draft awaiting approval")
	runCmd.Flags().IntVar(&runAutoScore, "auto-approve-score", 0, "approve drafts awaiting approval at or above this score (0 = off)")
	rootCmd.AddCommand(runCmd)
}
