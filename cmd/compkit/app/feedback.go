package app

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/feedback"
)

func (a *App) newFeedbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect reviewer feedback on recommended candidates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		a.newFeedbackRecordCommand(),
		a.newFeedbackListCommand(),
		a.newFeedbackRemoveCommand(),
		a.newFeedbackResetCommand(),
	)
	return cmd
}

func (a *App) newFeedbackRecordCommand() *cobra.Command {
	var (
		e        feedback.Entry
		disagree bool
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record agree/disagree for one recommended candidate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.Agree == disagree {
				return core.NewInvalidArgumentError(core.ModuleStore, "exactly one of --agree or --disagree is required")
			}
			l, err := a.Feedback()
			if err != nil {
				return err
			}
			if err := l.Record(cmd.Context(), e); err != nil {
				return err
			}
			a.logger.Infof("feedback: %s/%s agree=%v", e.OrderID, e.CandidateID, e.Agree)
			return nil
		},
	}
	cmd.Flags().StringVar(&e.OrderID, "order", "", "order id")
	cmd.Flags().StringVar(&e.CandidateID, "candidate", "", "candidate id")
	cmd.Flags().IntVar(&e.Rank, "rank", 0, "rank the candidate was recommended at")
	cmd.Flags().Float64Var(&e.Score, "score", 0, "model score of the candidate")
	cmd.Flags().StringVar(&e.Reviewer, "reviewer", "", "reviewer name")
	cmd.Flags().BoolVar(&e.Agree, "agree", false, "the candidate is a good comparable")
	cmd.Flags().BoolVar(&disagree, "disagree", false, "the candidate should not be recommended")
	return cmd
}

func (a *App) newFeedbackListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.Feedback()
			if err != nil {
				return err
			}
			entries, err := l.List(cmd.Context())
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []feedback.Entry{}
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}
}

func (a *App) newFeedbackRemoveCommand() *cobra.Command {
	var orderID, candidateID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the feedback for one candidate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.Feedback()
			if err != nil {
				return err
			}
			return l.Remove(cmd.Context(), orderID, candidateID)
		},
	}
	cmd.Flags().StringVar(&orderID, "order", "", "order id")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id")
	return cmd
}

func (a *App) newFeedbackResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all feedback and exclusion lists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.Feedback()
			if err != nil {
				return err
			}
			return l.Reset(cmd.Context())
		},
	}
}
