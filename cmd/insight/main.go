package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/nhle/codeinsight/internal/app"
	"github.com/nhle/codeinsight/internal/credential"
	"github.com/nhle/codeinsight/internal/intake"
	"github.com/nhle/codeinsight/internal/logging"
	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool
	modeFlag   string

	// Set up by PersistentPreRunE.
	cfg     *model.AppConfig
	logger  *zap.Logger
	closeFn func() error
)

// rootCmd launches the interactive TUI.
var rootCmd = &cobra.Command{
	Use:   "insight [file]",
	Short: "Explain code and chat about it in the terminal",
	Long: `insight streams an explanation of a piece of code and lets you ask
follow-up questions about it.

Code is read from the file argument, from a pipe on stdin, or pushed by an
editor through the local intake endpoint when intake.enabled is set.

Modes:
  split   code beside a running insight
  chat    insight as the first assistant message of a chat
  source  code and insight beside a chat
  smart   chat only`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeFn != nil {
			_ = closeFn()
		}
	},
	RunE: runTUI,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [file]",
	Short: "Start the interactive interface (same as running without a command)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

func init() {
	// Assigned here rather than in the literal: setup refers to rootCmd.
	rootCmd.PersistentPreRunE = setup

	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
	rootCmd.PersistentFlags().StringVarP(&modeFlag, "mode", "m", "", "mode to open in (split, chat, source, smart)")

	authCmd.AddCommand(authSetCmd, authDeleteCmd, authStatusCmd)
	configCmd.AddCommand(configPathCmd, configShowCmd, configInitCmd)

	explainCmd.Flags().BoolVar(&renderFlag, "render", false, "render the finished explanation as markdown")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of conversations")

	rootCmd.AddCommand(tuiCmd, explainCmd, historyCmd, authCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and builds the logger. The TUI logs to the file
// only; other commands mirror to stderr with --verbose.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if modeFlag != "" {
		mode, err := model.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		cfg.UI.DefaultMode = string(mode)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, closeFn, err = logging.New(logging.Options{
		File:    cfg.Log.File,
		Level:   level,
		Console: verbose && !interactive(cmd),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.Install(logger)
	return nil
}

func interactive(cmd *cobra.Command) bool {
	return cmd == rootCmd || cmd == tuiCmd
}

// credentials returns the provider backed by the system keyring.
func credentials() *credential.Provider {
	return credential.NewProvider(credential.NewKeyring(credential.SystemRing(model.ConfigDir())))
}

// openStore opens the conversation database named by the config. Relative
// paths resolve against the config directory.
func openStore() (*store.SQLiteStore, error) {
	path := cfg.Store.Path
	if path != ":memory:" && !filepath.IsAbs(path) {
		path = filepath.Join(model.ConfigDir(), path)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return store.NewSQLiteStore(path)
}

// readInput returns the file contents, or stdin when it is piped. Empty
// means there is nothing to load.
func readInput(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", args[0], err)
		}
		return string(data), nil
	}
	if stdin == nil || term.IsTerminal(int(stdin.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	code, err := readInput(args, os.Stdin)
	if err != nil {
		return err
	}

	var st store.Store
	if db, err := openStore(); err != nil {
		logger.Warn("history disabled", zap.Error(err))
	} else {
		defer db.Close()
		st = db
	}

	creds := credentials()
	m := app.New(app.Options{
		Config:      *cfg,
		ConfigPath:  configPath,
		Store:       st,
		Credentials: creds,
		Deps: app.Deps{
			Creds:  creds,
			Cache:  app.NewCache(*cfg),
			Logger: logging.Module("explain"),
		},
		InitialCode: strings.TrimRight(code, "\n"),
		Logger:      logging.Module("app"),
	})

	// A piped stdin is exhausted, so the program reads keys from the tty.
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if code != "" && len(args) == 0 {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return fmt.Errorf("opening terminal: %w", err)
		}
		defer tty.Close()
		opts = append(opts, tea.WithInput(tty))
	}
	p := tea.NewProgram(m, opts...)

	if cfg.Intake.Enabled {
		srv := intake.New(func(sub intake.Submission) {
			// Send blocks until the program reads the message.
			go p.Send(app.CodeMsg{Code: sub.Code, Mode: sub.Mode})
		}, logging.Module("intake"))

		go func() {
			if err := srv.Start(cfg.Intake.Addr); err != nil {
				logger.Error("intake stopped", zap.Error(err))
			}
		}()
		defer func() {
			if err := srv.Shutdown(2 * time.Second); err != nil {
				logger.Warn("intake shutdown", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

// signalContext cancels on interrupt, for the headless commands.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
