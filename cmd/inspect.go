package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ahermangesh/Leads/internal/memory"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/store"
)

// -- leads --

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List stored leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		states, _ := cmd.Flags().GetStringSlice("state")
		campaign, _ := cmd.Flags().GetString("campaign")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.LeadFilter{Campaign: campaign, Limit: limit}
		for _, s := range states {
			state := model.State(strings.TrimSpace(s))
			if !state.Valid() {
				return eris.Errorf("leads: unknown state %q", s)
			}
			filter.States = append(filter.States, state)
		}

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- lead --

var leadCmd = &cobra.Command{
	Use:   "lead <lead-id>",
	Short: "Show a stored lead and its transition history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "lead show")
		}
		history, err := st.ListTransitions(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "lead history")
		}

		return encodeJSON(struct {
			Lead        *model.Lead        `json:"lead"`
			Transitions []model.Transition `json:"transitions"`
		}{lead, history})
	},
}

// -- stats --

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored lead counts and outcome breakdowns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, mem, err := initMemory(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountLeadsByState(ctx)
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		formatStats(os.Stdout, counts, mem.Breakdown())
		return nil
	},
}

// -- recommend --

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend an outreach strategy and tone for an industry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, mem, err := initMemory(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		industry, _ := cmd.Flags().GetString("industry")
		return encodeJSON(mem.Recommend(industry))
	},
}

func formatLeadsList(w io.Writer, leads []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tSCORE\tCAMPAIGN\tUPDATED")
	for _, l := range leads {
		score := "-"
		if l.Score != nil {
			score = fmt.Sprintf("%d", l.Score.Total)
		}
		state := string(l.State)
		if l.Failure != nil {
			state += " (" + string(l.Failure.Reason) + ")"
		}
		campaign := l.Campaign
		if campaign == "" {
			campaign = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(l.ID), truncate(l.Source.Name, 32), state, score, campaign,
			l.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func formatStats(w io.Writer, counts map[model.State]int, b memory.Breakdown) {
	fmt.Fprintln(w, "=== Leads ===")
	total := 0
	for _, s := range model.AllStates {
		if n := counts[s]; n > 0 {
			fmt.Fprintf(w, "  %-17s %d\n", s, n)
			total += n
		}
	}
	fmt.Fprintf(w, "  %-17s %d\n", "total", total)

	section := func(title string, rows map[string]memory.Counts) {
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(w, "\n=== %s ===\n", title)
		keys := make([]string, 0, len(rows))
		for k := range rows {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tSENT\tOPENED\tREPLIED\tREPLY RATE")
		for _, k := range keys {
			c := rows[k]
			rate := 0.0
			if c.Sent > 0 {
				rate = float64(c.Replied) / float64(c.Sent) * 100
			}
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%.1f%%\n", k, c.Sent, c.Opened, c.Replied, rate)
		}
		_ = tw.Flush()
	}

	byStrategy := make(map[string]memory.Counts, len(b.ByStrategy))
	for k, v := range b.ByStrategy {
		byStrategy[string(k)] = v
	}
	byTone := make(map[string]memory.Counts, len(b.ByTone))
	for k, v := range b.ByTone {
		byTone[string(k)] = v
	}
	section("By strategy", byStrategy)
	section("By tone", byTone)
	section("By industry", b.ByIndustry)
}

func init() {
	leadsCmd.Flags().StringSlice("state", nil, "filter by state (repeatable or comma-separated)")
	leadsCmd.Flags().String("campaign", "", "filter by campaign")
	leadsCmd.Flags().Int("limit", 50, "max number of leads to display")

	recommendCmd.Flags().String("industry", "", "industry label (empty uses the overall history)")

	rootCmd.AddCommand(leadsCmd, leadCmd, statsCmd, recommendCmd)
}
