package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"raidbot/internal/bot"
	"raidbot/internal/chat"
	"raidbot/internal/config"
	"raidbot/internal/db"
	"raidbot/internal/domain"
	"raidbot/internal/engine"
	"raidbot/internal/migrate"
	"raidbot/internal/notify"
	"raidbot/internal/ratelimit"
	"raidbot/internal/repo"
	"raidbot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "raidbot",
	Short: "Raidbot CLI",
	Long: `Raidbot runs the marketplace raid bot: account linking, raid
announcements, completion review with trust scoring, daily engagement
rewards and group broadcasts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RAIDBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(raidCmd())
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
}

// withEngine opens the workspace database, migrates it and hands a ready
// engine to fn.
func withEngine(ctx context.Context, fn func(ctx context.Context, e engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Listen
			}
			jwtSecret := os.Getenv("RAIDBOT_JWT_SECRET")
			if jwtSecret == "" {
				jwtSecret = cfg.Server.JWTSecret
			}
			if jwtSecret == "" {
				return fmt.Errorf("RAIDBOT_JWT_SECRET is required for bearer auth")
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			e := engine.New(conn, cfg)

			limiter := ratelimit.New(ratelimit.Config{
				SubjectLimit:  cfg.Limits.CompletionsPerHour,
				SubjectWindow: time.Hour,
				AddressLimit:  cfg.Limits.PerAddress,
				AddressWindow: cfg.AddressWindow(),
				SweepEvery:    5 * time.Minute,
			})
			limiter.StartSweeper()
			defer limiter.Stop()

			transport := chat.NewClient(cfg.Chat.APIBase, cfg.Chat.Token, cfg.ChatTimeout())

			groups := bot.NewGroupRegistry()
			groups.Deactivate = func(chatID int64) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := e.DeactivateGroup(ctx, chatID); err != nil {
					logger.Warn("deactivate group", zap.Int64("group_id", chatID), zap.Error(err))
				}
			}
			known, err := e.Repo.ListActiveGroups(cmd.Context())
			if err != nil {
				return err
			}
			for _, g := range known {
				groups.Register(g.GroupID, g.BrandingRef)
			}

			queue := notify.NewQueue(transport, groups, logger, cfg.Pace())
			queue.Branding = groups.Branding
			if err := queue.Start(); err != nil {
				return err
			}
			defer queue.Stop()

			router := &bot.Router{
				Engine:    e,
				Store:     bot.NewConversationStore(nil),
				Groups:    groups,
				Limiter:   limiter,
				Transport: transport,
				Queue:     queue,
				Log:       logger,
			}

			go runDailySummary(cmd.Context(), e, queue, logger)

			handler, err := server.New(server.Config{
				Engine:   e,
				Bot:      router,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:     jwtSecret,
					WebhookSecret: cfg.Chat.WebhookSecret,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// runDailySummary enqueues one engagement summary per group shortly after
// each UTC midnight, covering the day that just ended.
func runDailySummary(ctx context.Context, e engine.Engine, queue *notify.Queue, logger *zap.Logger) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24*time.Hour + time.Minute)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}
		dateKey := engine.DateKey(time.Now().UTC().Add(-time.Hour))
		groups, err := e.Repo.ListActiveGroups(ctx)
		if err != nil {
			logger.Warn("daily summary", zap.Error(err))
			continue
		}
		for _, g := range groups {
			s, err := e.Repo.SummarizeEngagement(ctx, g.GroupID, dateKey)
			if err != nil {
				logger.Warn("daily summary", zap.Int64("group_id", g.GroupID), zap.Error(err))
				continue
			}
			if s.ActiveSubjects == 0 {
				continue
			}
			queue.Enqueue(notify.Job{
				Kind: notify.KindDailySummary,
				Text: fmt.Sprintf("Yesterday %d of you were active here and earned %d bubbles. Keep it up! 🫧",
					s.ActiveSubjects, s.MessagePoints+s.ReactionPoints),
				Targets: []int64{g.GroupID},
			})
		}
	}
}

// --- raids ---

func raidCmd() *cobra.Command {
	raid := &cobra.Command{Use: "raid", Short: "Manage raids"}
	raid.AddCommand(raidListCmd())
	raid.AddCommand(raidCreateCmd())
	raid.AddCommand(raidCloseCmd())
	return raid
}

func raidListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List raids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raids, err := e.ListRaids(ctx, activeOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(raids)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Platform", "Reward", "Votes", "Active"})
				for _, r := range raids {
					tw.AppendRow(table.Row{r.ID, r.Title, r.Platform, r.Reward, r.Votes, r.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active raids")
	return cmd
}

func raidCreateCmd() *cobra.Command {
	var title, platform, postURL string
	var reward int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a raid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raid, err := e.CreateRaid(ctx, engine.RaidCreateOptions{
					Title:    title,
					Platform: platform,
					PostURL:  postURL,
					Reward:   reward,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(raid)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "raid title")
	cmd.Flags().StringVar(&platform, "platform", "twitter", "platform")
	cmd.Flags().StringVar(&postURL, "url", "", "post URL")
	cmd.Flags().Int64Var(&reward, "reward", 0, "bubble reward")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("reward")
	return cmd
}

func raidCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <raid-id>",
		Short: "Close a raid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.CloseRaid(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- completions ---

func completionCmd() *cobra.Command {
	c := &cobra.Command{Use: "completion", Short: "Review completions"}
	c.AddCommand(completionPendingCmd())
	c.AddCommand(completionApproveCmd())
	c.AddCommand(completionRejectCmd())
	return c
}

func completionPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending completions in trust order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pending, err := e.PendingCompletions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pending)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Raid", "Subject", "Proof", "Submitted"})
				for _, c := range pending {
					tw.AppendRow(table.Row{c.ID, c.RaidID, c.SubjectID, c.PostReference, c.CompletedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func completionApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <completion-id>",
		Short: "Approve a completion and credit the reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ApproveCompletion(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	return cmd
}

func completionRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <completion-id>",
		Short: "Reject a completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RejectCompletion(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				// Best-effort notice to the subject; the rejection stands
				// even when the chat transport is unreachable.
				if e.Config.Chat.Token != "" {
					client := chat.NewClient(e.Config.Chat.APIBase, e.Config.Chat.Token, e.Config.ChatTimeout())
					var title string
					if raid, rerr := e.Repo.GetRaid(ctx, c.RaidID); rerr == nil {
						title = raid.Title
					}
					if _, serr := client.SendText(ctx, c.SubjectID, bot.RejectionNotice(c, title), nil); serr != nil {
						fmt.Fprintln(os.Stderr, "warning: rejection notice undelivered:", serr)
					}
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

// --- ledger ---

func ledgerCmd() *cobra.Command {
	var limit int
	var entryType string
	var subjectID int64
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Tail the audit ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.LatestLedger(ctx, limit, entryType, subjectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Subject", "Entity", "Actor"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.TS, en.Type, en.SubjectID, en.EntityKind + "/" + en.EntityID, en.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	cmd.Flags().StringVar(&entryType, "type", "", "entry type filter")
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "subject filter")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyRevokeCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("id: %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}
