package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/orchestrator"
)

// These commands act on leads stored as AwaitingApproval, outside any live
// run in this process. Drafts held by a running `run` or `serve` are decided
// through that process's gate or API.

var (
	approveBy   string
	approveNote string
)

var approveCmd = &cobra.Command{
	Use:   "approve <lead-id>",
	Short: "Approve a stored draft and send it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orchestrator.Approve(ctx, args[0], approveBy, approveNote); err != nil {
			return eris.Wrap(err, "approve")
		}
		return printLead(cmd, env, args[0])
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <lead-id>",
	Short: "Reject a stored draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orchestrator.Reject(ctx, args[0], approveBy, approveNote); err != nil {
			return eris.Wrap(err, "reject")
		}
		return printLead(cmd, env, args[0])
	},
}

var regenerateFeedback string

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <lead-id>",
	Short: "Redraft a stored draft with operator feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Orchestrator.Regenerate(ctx, args[0], regenerateFeedback)
		if err != nil {
			return eris.Wrap(err, "regenerate")
		}
		return encodeJSON(lead)
	},
}

var bulkMinScore int

var bulkApproveCmd = &cobra.Command{
	Use:   "bulk-approve",
	Short: "Approve every stored draft at or above a minimum score",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		threshold := bulkMinScore
		if !cmd.Flags().Changed("min-score") {
			threshold = cfg.Scoring.BulkMinScore
		}

		n, err := env.Orchestrator.BulkApprove(ctx, orchestrator.MinScore(threshold), approveBy)
		if err != nil {
			return eris.Wrap(err, "bulk approve")
		}
		zap.L().Info("bulk approve complete", zap.Int("approved", n), zap.Int("min_score", threshold))
		fmt.Fprintf(cmd.OutOrStdout(), "approved %d lead(s) scoring >= %d\n", n, threshold)
		return nil
	},
}

var outcomeCmd = &cobra.Command{
	Use:   "outcome <lead-id> <opened|replied|bounced>",
	Short: "Record a downstream signal for a sent lead",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		ev, err := env.Orchestrator.RecordOutcome(ctx, args[0], model.OutcomeKind(args[1]))
		if err != nil {
			return eris.Wrap(err, "record outcome")
		}
		return encodeJSON(ev)
	},
}

func printLead(cmd *cobra.Command, env *pipelineEnv, id string) error {
	lead, err := env.Orchestrator.Lead(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s", lead.ID, lead.State)
	if f := lead.Failure; f != nil {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", f.Reason)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func encodeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{approveCmd, rejectCmd, bulkApproveCmd} {
		c.Flags().StringVar(&approveBy, "by", "cli", "operator recorded on the decision")
	}
	approveCmd.Flags().StringVar(&approveNote, "note", "", "note recorded on the approval")
	rejectCmd.Flags().StringVar(&approveNote, "note", "", "note recorded on the rejection")

	regenerateCmd.Flags().StringVar(&regenerateFeedback, "feedback", "", "what to change in the draft (required)")
	_ = regenerateCmd.MarkFlagRequired("feedback")

	bulkApproveCmd.Flags().IntVar(&bulkMinScore, "min-score", 70, "minimum score to approve (default from scoring.bulk_min_score)")

	rootCmd.AddCommand(approveCmd, rejectCmd, regenerateCmd, bulkApproveCmd, outcomeCmd)
}
