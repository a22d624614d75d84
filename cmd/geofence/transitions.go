// ABOUTME: Transition log subcommands
// ABOUTME: Lists, acknowledges, and clears recorded zone entries and exits

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/ui"
	"github.com/spf13/cobra"
)

var transitionsCmd = &cobra.Command{
	Use:     "transitions",
	Aliases: []string{"tr", "log"},
	Short:   "Inspect the transition log",
}

var transitionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List transitions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		limit, _ := cmd.Flags().GetInt("limit")
		unacked, _ := cmd.Flags().GetBool("unacknowledged")

		transitions := newestFirst(s.engine.Transitions(), unacked, limit)
		out := cmd.OutOrStdout()
		if len(transitions) == 0 {
			_, _ = fmt.Fprintln(out, "No transitions recorded.")
			return nil
		}
		for _, tr := range transitions {
			_, _ = fmt.Fprintln(out, ui.FormatTransition(tr))
		}
		return nil
	},
}

var transitionsAckCmd = &cobra.Command{
	Use:   "ack [id...]",
	Short: "Acknowledge transitions",
	Long: `Mark transitions as seen. IDs may be shortened to their first 8 characters.

Examples:
  geofence transitions ack 3f2a9c1d
  geofence transitions ack --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("pass transition IDs or --all")
		}

		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		transitions := s.engine.Transitions()
		acked := 0
		if all {
			for _, tr := range transitions {
				if !tr.Acknowledged && s.engine.Acknowledge(tr.ID) {
					acked++
				}
			}
		} else {
			for _, ref := range args {
				id, err := resolveTransitionID(transitions, ref)
				if err != nil {
					return err
				}
				if s.engine.Acknowledge(id) {
					acked++
				}
			}
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Acknowledged %d transition(s)", acked))
		return nil
	},
}

var transitionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the whole transition log",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		n := len(s.engine.Transitions())
		s.engine.ClearTransitions()
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Cleared %d transition(s)", n))
		return nil
	},
}

func init() {
	transitionsListCmd.Flags().IntP("limit", "n", 20, "maximum transitions to show (0 for all)")
	transitionsListCmd.Flags().BoolP("unacknowledged", "u", false, "only unacknowledged transitions")
	transitionsAckCmd.Flags().Bool("all", false, "acknowledge every transition")

	transitionsCmd.AddCommand(transitionsListCmd, transitionsAckCmd, transitionsClearCmd)
	rootCmd.AddCommand(transitionsCmd)
}

// newestFirst reverses the log, optionally dropping acknowledged entries,
// and keeps at most limit entries when limit is positive.
func newestFirst(log []models.Transition, unackedOnly bool, limit int) []models.Transition {
	out := make([]models.Transition, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if unackedOnly && log[i].Acknowledged {
			continue
		}
		out = append(out, log[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func resolveTransitionID(log []models.Transition, ref string) (string, error) {
	var match string
	for _, tr := range log {
		if tr.ID == ref {
			return tr.ID, nil
		}
		if strings.HasPrefix(tr.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("'%s' matches more than one transition", ref)
			}
			match = tr.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("transition '%s' not found", ref)
	}
	return match, nil
}
