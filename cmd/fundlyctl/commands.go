package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fundly/internal/app"
	campaignModels "fundly/internal/campaign/models"
	donationModels "fundly/internal/donation/models"
	id "fundly/pkg/domain"
	"fundly/pkg/requestcontext"
)

type coreOpener func(ctx context.Context, envFile string) (*app.Core, func(), error)

// cli holds the state shared by every sub-command.
type cli struct {
	open    coreOpener
	envFile string
	core    *app.Core
	close   func()
}

func newRootCmd(open coreOpener) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "fundlyctl",
		Short:         "Operate fundly projects, donations and reports",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			core, closeFn, err := c.open(cmd.Context(), c.envFile)
			if err != nil {
				return err
			}
			c.core, c.close = core, closeFn
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.close != nil {
				c.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "optional dotenv file")

	root.AddCommand(c.reviewCmd())
	root.AddCommand(c.projectCmd())
	root.AddCommand(c.reportCmd())
	return root
}

// ctx stamps the operator's clock on the command context.
func (c *cli) ctx(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return requestcontext.WithTime(ctx, time.Now())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) reviewCmd() *cobra.Command {
	var decision, reason string
	cmd := &cobra.Command{
		Use:   "review <donation-id>",
		Short: "Verify or fail a pending bank transfer after checking its receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			donationID, err := id.ParseDonationID(args[0])
			if err != nil {
				return err
			}
			d, ok := donationModels.ParseReviewDecision(decision)
			if !ok {
				return fmt.Errorf("--decision must be verified or failed, got %q", decision)
			}
			donation, err := c.core.Records.Review(c.ctx(cmd), donationID, d, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd, donationView(donation))
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "verified or failed")
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason shown to operators")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func (c *cli) projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create projects and drive their lifecycle",
	}

	var title, endDate string
	var goal int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an active project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			end, err := time.Parse(time.DateOnly, endDate)
			if err != nil {
				return fmt.Errorf("--end-date must be YYYY-MM-DD: %w", err)
			}
			p, err := c.core.Ledger.CreateProject(c.ctx(cmd), &campaignModels.CreateProjectRequest{
				Title:      title,
				GoalAmount: goal,
				EndDate:    end,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, projectView(p, time.Now()))
		},
	}
	create.Flags().StringVar(&title, "title", "", "project title")
	create.Flags().Int64Var(&goal, "goal", 0, "goal amount in whole currency units")
	create.Flags().StringVar(&endDate, "end-date", "", "last day of the campaign (YYYY-MM-DD)")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("goal")
	_ = create.MarkFlagRequired("end-date")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects with their funding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := c.core.Ledger.ListProjects(c.ctx(cmd))
			if err != nil {
				return err
			}
			now := time.Now()
			out := make([]map[string]any, 0, len(projects))
			for _, p := range projects {
				out = append(out, projectView(p, now))
			}
			return printJSON(cmd, out)
		},
	}

	transition := func(use, short string, apply func(context.Context, id.ProjectID) (*campaignModels.Project, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <project-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				projectID, err := id.ParseProjectID(args[0])
				if err != nil {
					return err
				}
				p, err := apply(c.ctx(cmd), projectID)
				if err != nil {
					return err
				}
				return printJSON(cmd, projectView(p, time.Now()))
			},
		}
	}

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project; its donations stay queryable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := id.ParseProjectID(args[0])
			if err != nil {
				return err
			}
			if err := c.core.Ledger.DeleteProject(c.ctx(cmd), projectID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", projectID)
			return nil
		},
	}

	cmd.AddCommand(
		create,
		list,
		transition("stop", "Pause an active project", func(ctx context.Context, pid id.ProjectID) (*campaignModels.Project, error) {
			return c.core.Ledger.Stop(ctx, pid)
		}),
		transition("resume", "Reactivate a stopped project", func(ctx context.Context, pid id.ProjectID) (*campaignModels.Project, error) {
			return c.core.Ledger.Resume(ctx, pid)
		}),
		transition("finish", "Close an active or funded project", func(ctx context.Context, pid id.ProjectID) (*campaignModels.Project, error) {
			return c.core.Ledger.Finish(ctx, pid)
		}),
		del,
	)
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Donation reports",
	}
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Verified donation totals per calendar month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			months, err := c.core.Records.MonthlyVerifiedTotals(c.ctx(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, months)
		},
	}
	var project string
	distribution := &cobra.Command{
		Use:   "distribution",
		Short: "Donation counts per status and per method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var projectID *id.ProjectID
			if project != "" {
				parsed, err := id.ParseProjectID(project)
				if err != nil {
					return err
				}
				projectID = &parsed
			}
			dist, err := c.core.Records.Distribution(c.ctx(cmd), projectID)
			if err != nil {
				return err
			}
			return printJSON(cmd, dist)
		},
	}
	distribution.Flags().StringVar(&project, "project", "", "limit to one project")
	cmd.AddCommand(monthly, distribution)
	return cmd
}

func projectView(p *campaignModels.Project, now time.Time) map[string]any {
	return map[string]any{
		"id":             p.ID.String(),
		"title":          p.Title,
		"status":         p.Status.String(),
		"goal_amount":    p.GoalAmount,
		"raised_amount":  p.RaisedAmount(),
		"donors_count":   p.DonorsCount(),
		"percent_funded": p.PercentFunded(),
		"days_left":      p.DaysLeft(now),
		"end_date":       p.EndDate.Format(time.DateOnly),
	}
}

func donationView(d *donationModels.Donation) map[string]any {
	return map[string]any{
		"id":             d.ID.String(),
		"project_id":     d.ProjectID.String(),
		"amount":         d.Amount,
		"method":         d.Method.String(),
		"status":         d.Status.String(),
		"reference":      d.Reference,
		"failure_reason": d.FailureReason,
	}
}
