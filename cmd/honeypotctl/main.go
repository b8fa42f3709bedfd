package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"honeypot-lab/internal/app"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

var version = "dev"

// options shared by every command
type options struct {
	configPath string
	server     string
	apiKey     string
	timeout    time.Duration
	retries    uint64
	verbose    bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:           "honeypotctl",
	Short:         "honeypotctl - drive and observe the scam honeypot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [message]",
	Short: "Send one message and print the honeypot's answer",
	Long: "Send one message and print the honeypot's answer. The message is read from the\n" +
		"arguments, or from stdin when none are given. Without --server the turn runs in-process.",
	RunE: runAnalyze,
}

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "Play a scripted scam conversation turn by turn",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream intelligence events from NATS",
	RunE:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var (
	sessionFlag string
	jsonFlag    bool
	kindsFlag   []string
	scamOnly    bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	pf.StringVarP(&opts.server, "server", "s", "", "API base URL; empty runs turns in-process")
	pf.StringVar(&opts.apiKey, "api-key", os.Getenv("HONEYPOT_AUTH_API_KEY"), "API key for --server")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	pf.Uint64Var(&opts.retries, "retries", 2, "retries for failed requests")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log service activity to stderr")

	analyzeCmd.Flags().StringVar(&sessionFlag, "session", "", "session id (default: a new one)")
	replayCmd.Flags().BoolVar(&jsonFlag, "json", false, "print every step as JSON")
	watchCmd.Flags().StringVar(&sessionFlag, "session", "", "only events for this session")
	watchCmd.Flags().StringSliceVar(&kindsFlag, "kind", nil, "only these indicator kinds (repeatable)")
	watchCmd.Flags().BoolVar(&scamOnly, "scam-only", false, "only events from flagged sessions")

	rootCmd.AddCommand(analyzeCmd, replayCmd, watchCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	if !opts.verbose {
		return logger.NewNop()
	}
	return logger.FromConfig(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.TimeFormat)
}

// newClient returns a remote client when --server is set, else an in-process
// core with background delivery switched off
func newClient() (TurnClient, error) {
	if opts.server != "" {
		return newRemoteClient(opts.server, opts.apiKey, opts.timeout, opts.retries), nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Callback.Enabled = false

	core, err := app.NewCore(cfg, newLogger(cfg), nil)
	if err != nil {
		return nil, err
	}
	return &localClient{core: core}, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		data, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return errors.New("no message given")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	id := sessionFlag
	if id == "" {
		id = fmt.Sprintf("cli-%d", time.Now().UnixNano())
	}

	res, err := client.Send(cmd.Context(), models.InboundTurn{
		SessionID: id,
		Message:   models.Message{Sender: senderScammer, Text: text, Timestamp: time.Now().UnixMilli()},
		History:   []models.Message{},
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runReplay(cmd *cobra.Command, args []string) error {
	script, err := LoadScript(args[0])
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	steps, err := Replay(cmd.Context(), client, script, time.Now(), func(s ReplayStep) {
		if jsonFlag {
			_ = printJSON(out, s)
			return
		}
		fmt.Fprintf(out, "[%d] scammer: %s\n", s.Turn, s.Text)
		fmt.Fprintf(out, "[%d] agent:   %s\n", s.Turn, s.Result.Reply)
	})
	if err != nil {
		return err
	}

	if !jsonFlag && len(steps) > 0 {
		last := steps[len(steps)-1].Result
		fmt.Fprintf(out, "\nsession %s: scam=%t type=%s confidence=%.2f messages=%d\n",
			last.SessionID, last.ScamDetected, last.ScamType, last.ConfidenceLevel, last.TotalMessagesExchanged)
		fmt.Fprintf(out, "notes: %s\n", last.AgentNotes)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub, err := streaming.NewNATSPublisher(ctx, cfg.NATS, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer pub.Close()

	events, err := pub.Subscribe(ctx, watchSubscription())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for ev := range events {
		if err := printJSON(out, ev); err != nil {
			return err
		}
	}
	return nil
}

func watchSubscription() *streaming.Subscription {
	sub := &streaming.Subscription{SessionID: sessionFlag, ScamOnly: scamOnly}
	for _, k := range kindsFlag {
		sub.Kinds = append(sub.Kinds, models.IndicatorKind(strings.TrimSpace(k)))
	}
	return sub
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
