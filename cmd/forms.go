package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/observability"
	"github.com/xkilldash9x/formrelay/internal/service"
	"github.com/xkilldash9x/formrelay/internal/weights"
)

const defaultOwner = "cli"

func newExtractCmd(a *app) *cobra.Command {
	var owner string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract a form's schema and store it for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, service.Options{Browser: true})
			if err != nil {
				return err
			}
			defer components.Shutdown()

			form, report, err := components.Service.Extract(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			if report != nil && len(report.Skipped) > 0 {
				for _, s := range report.Skipped {
					observability.GetLogger().Warn("Question block skipped.", zap.Int("block", s.Index), zap.String("reason", s.Reason))
				}
			}
			return printForm(out(cmd), form, asJSON)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", defaultOwner, "owner id the schema is stored under")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored schema document")
	cmd.Flags().Bool("headless", true, "run the browser headless")
	bindFlag(cmd, "headless", "browser.headless")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var owner string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored schema of an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, service.Options{})
			if err != nil {
				return err
			}
			defer components.Shutdown()

			form, err := components.Service.Describe(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printForm(out(cmd), form, asJSON)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", defaultOwner, "owner id of the schema")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored schema document")
	return cmd
}

func newWeightCmd(a *app) *cobra.Command {
	var owner, list string
	var question int

	cmd := &cobra.Command{
		Use:   "weight",
		Short: "Set the option weights of one question",
		Long: "Set the option weights of one question. --question is 1-based and --weights lists\n" +
			"one weight in 0..10 per option, for example --question 2 --weights 9,1,1.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := weights.ParseWeights(list)
			if err != nil {
				return err
			}
			if question < 1 {
				return fmt.Errorf("%w: --question must be 1 or more", service.ErrInvalidInput)
			}

			components, err := a.components(cmd, service.Options{})
			if err != nil {
				return err
			}
			defer components.Shutdown()

			form, err := components.Service.SetWeights(cmd.Context(), owner, question-1, w)
			if err != nil {
				return err
			}
			q := form.Questions[question-1]
			fmt.Fprintf(out(cmd), "Weights saved for question %d (%s).\n", question, strings.TrimSpace(q.Text))
			for i, opt := range q.Options {
				fmt.Fprintf(out(cmd), "  %2d  %s\n", q.WeightAt(i+1), opt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", defaultOwner, "owner id of the schema")
	cmd.Flags().IntVarP(&question, "question", "q", 0, "question number, starting at 1")
	cmd.Flags().StringVarP(&list, "weights", "w", "", "comma-separated weights, one per option")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("weights")
	return cmd
}

func newFillCmd(a *app) *cobra.Command {
	var owner string
	var repeat int

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Replay the stored schema and submit it repeatedly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, service.Options{Browser: true})
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.Service.ValidateRepetitions(repeat); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Filling the form %d time(s). Do not change the form until the process completes.\n", repeat)

			report, err := components.Service.Fill(cmd.Context(), owner, repeat)
			if report != nil {
				fmt.Fprintf(out(cmd), "Completed %d of %d run(s).\n", report.Completed, report.Requested)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", defaultOwner, "owner id of the schema")
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 1, "number of submissions")
	cmd.Flags().Bool("headless", true, "run the browser headless")
	cmd.Flags().Int("concurrency", 0, "maximum simultaneous browser pages")
	cmd.Flags().Int64("seed", 0, "random seed; 0 picks one from the clock")
	bindFlag(cmd, "headless", "browser.headless")
	bindFlag(cmd, "concurrency", "browser.concurrency")
	bindFlag(cmd, "seed", "pacing.seed")
	return cmd
}

// printForm writes the schema document or a numbered listing.
func printForm(w io.Writer, form *schemas.Form, asJSON bool) error {
	if asJSON {
		data, err := schemas.EncodeForm(form)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintln(w, form.Title)
	if form.SourceLink != "" {
		fmt.Fprintln(w, form.SourceLink)
	}
	for i, q := range form.Questions {
		fmt.Fprintf(w, "\n%d) %s [%s]\n", i+1, strings.TrimSpace(q.Text), q.Type)
		for j, opt := range q.Options {
			fmt.Fprintf(w, "   - %s (weight %d)\n", opt, q.WeightAt(j+1))
		}
	}
	return nil
}
