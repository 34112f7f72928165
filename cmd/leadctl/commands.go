package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/lead-disposition/internal/bootstrap"
	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/engine"
	"github.com/ignite/lead-disposition/internal/service/disposition"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
	"github.com/ignite/lead-disposition/internal/service/ingest"
	"github.com/ignite/lead-disposition/internal/service/ownership"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	driver     string
	sqlitePath string

	eng *engine.Engine
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operate the lead disposition and ownership engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.eng == nil {
				return nil
			}
			return c.eng.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to YAML config (defaults plus environment when empty)")
	root.PersistentFlags().StringVar(&c.driver, "driver", "", "override database.driver (postgres, sqlite, memory)")
	root.PersistentFlags().StringVar(&c.sqlitePath, "sqlite-path", "", "override database.sqlite_path")

	root.AddCommand(
		c.importCmd(),
		c.transitionCmd(),
		c.claimCmd(),
		c.releaseCmd(),
		c.transferCmd(),
		c.availableCmd(),
		c.snapshotCmd(),
		c.healthCmd(),
		c.historyCmd(),
		c.sweepCmd(),
		c.maintainCmd(),
	)
	return root
}

func (c *cli) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadFromEnv(c.configPath)
	if err != nil {
		return err
	}
	if c.driver != "" {
		cfg.Database.Driver = c.driver
	}
	if c.sqlitePath != "" {
		cfg.Database.SQLitePath = c.sqlitePath
	}
	bootstrap.SetupLogging(cfg.Log)

	eng, _, err := bootstrap.NewEngine(ctx, cfg, nil)
	if err != nil {
		return err
	}
	c.eng = eng
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func contactKey(clientID, email string) (domain.ContactKey, error) {
	e, err := ingest.NormalizeEmail(email)
	if err != nil {
		return domain.ContactKey{}, err
	}
	return domain.ContactKey{Email: e, ClientID: clientID}, nil
}

func (c *cli) importCmd() *cobra.Command {
	var clientID, source string
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import contacts from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := c.eng.ImportCSV(cmd.Context(), f, clientID, nil, source)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id (required)")
	cmd.Flags().StringVar(&source, "source", "csv_upload", "source system label")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func (c *cli) transitionCmd() *cobra.Command {
	var reason, channel, campaign string
	cmd := &cobra.Command{
		Use:   "transition <client> <email> <status>",
		Short: "Move a contact to a new disposition status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := contactKey(args[0], args[1])
			if err != nil {
				return err
			}
			status, err := domain.ParseStatus(args[2])
			if err != nil {
				return err
			}
			ch, err := domain.ParseChannel(channel)
			if err != nil {
				return err
			}
			contact, err := c.eng.ApplyTransition(cmd.Context(), disposition.TransitionRequest{
				Key:         key,
				NewStatus:   status,
				Reason:      reason,
				TriggeredBy: "leadctl",
				CampaignID:  campaign,
				Channel:     ch,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, contact)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason")
	cmd.Flags().StringVar(&channel, "channel", "email", "channel the event came from")
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign id")
	return cmd
}

func ttlFlag(cmd *cobra.Command, days *int) {
	cmd.Flags().IntVar(days, "ttl-days", 0, "lease length in days (0 uses the configured default)")
}

func (c *cli) claimCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "claim <domain> <client>",
		Short: "Claim or refresh a company lease",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lease, err := c.eng.Claim(cmd.Context(), ownership.ClaimRequest{
				Domain:   args[0],
				ClientID: args[1],
				TTL:      time.Duration(days) * 24 * time.Hour,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, lease)
		},
	}
	ttlFlag(cmd, &days)
	return cmd
}

func (c *cli) releaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <domain> <client>",
		Short: "Release a lease held by client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.eng.Release(cmd.Context(), args[0], args[1], domain.ReasonManualRelease); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) transferCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "transfer <domain> <client>",
		Short: "Reassign a company to client, overriding any live lease",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lease, err := c.eng.Transfer(cmd.Context(), args[0], args[1], time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			return printJSON(cmd, lease)
		},
	}
	ttlFlag(cmd, &days)
	return cmd
}

func (c *cli) availableCmd() *cobra.Command {
	var (
		channel string
		limit   int
		titles  string
	)
	cmd := &cobra.Command{
		Use:   "available <client>",
		Short: "List contacts the client may target now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := domain.ParseChannel(channel)
			if err != nil {
				return err
			}
			var keywords []string
			if titles != "" {
				keywords = strings.Split(titles, ",")
			}
			rows, err := c.eng.FindAvailable(cmd.Context(), eligibility.Query{
				ClientID:      args[0],
				Channel:       ch,
				Limit:         limit,
				TitleKeywords: keywords,
			})
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.Contact.Email, r.Contact.CompanyDomain, r.Contact.DispositionStatus, r.Contact.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "email", "outreach channel")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().StringVar(&titles, "title", "", "comma-separated title keywords")
	return cmd
}

func (c *cli) snapshotCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "snapshot <client>",
		Short: "Compute and store a TAM snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := c.eng.Policy().Now()
			if date != "" {
				d, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				day = d
			}
			snap, err := c.eng.ComputeSnapshot(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "snapshot day as YYYY-MM-DD (default today)")
	return cmd
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <client>",
		Short: "Show live TAM pools and health grade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.eng.TAM.Health(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, h)
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show audit history",
	}
	contact := &cobra.Command{
		Use:   "contact <client> <email>",
		Short: "Disposition history of a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := contactKey(args[0], args[1])
			if err != nil {
				return err
			}
			rows, err := c.eng.Audit.ContactTimeline(cmd.Context(), key, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	company := &cobra.Command{
		Use:   "company <domain>",
		Short: "Ownership history of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.eng.Audit.CompanyTimeline(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	verify := &cobra.Command{
		Use:   "verify <client> <email>",
		Short: "Replay a contact's history against its current status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := contactKey(args[0], args[1])
			if err != nil {
				return err
			}
			v, err := c.eng.Audit.VerifyContact(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, v)
		},
	}
	cmd.PersistentFlags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	cmd.AddCommand(contact, company, verify)
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release every expired lease",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.eng.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func (c *cli) maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one maintenance cycle in-process without locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := c.eng.RunMaintenance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, rep)
		},
	}
}
