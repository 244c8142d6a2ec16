package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/netsurf-tools/monkeyctl/internal/authdb"
	"github.com/netsurf-tools/monkeyctl/internal/browser"
	"github.com/netsurf-tools/monkeyctl/internal/config"
	"github.com/netsurf-tools/monkeyctl/internal/logger"
	"github.com/netsurf-tools/monkeyctl/internal/planrunner"
	"github.com/netsurf-tools/monkeyctl/internal/transport"
)

var (
	monkeyPath string
	logLevel   string
	logFile    string
	watch      bool
	authDBPath string
)

// authPasswordEnvPrefix names the environment variables monkeyctl reads
// cleartext passwords from for --auth-db: MONKEYCTL_AUTH_PASSWORD_<username>.
// The store itself never holds cleartext, so there is no other channel.
const authPasswordEnvPrefix = "MONKEYCTL_AUTH_PASSWORD_"

func main() {
	rootCmd := &cobra.Command{
		Use:   "monkeyctl",
		Short: "Drive a headless browser child through the monkey control protocol",
		Long:  "monkeyctl spawns a browser child, runs a YAML test plan against it, and reports pass/fail.",
	}
	rootCmd.PersistentFlags().StringVar(&monkeyPath, "monkey", "", "path to the browser child binary (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	runCmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a YAML test plan against a fresh browser child",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlanCmd,
	}
	runCmd.Flags().BoolVar(&watch, "watch", false, "re-run the plan whenever the file changes")
	runCmd.Flags().StringVar(&authDBPath, "auth-db", "", "path to a bcrypt-hashed credential store for auth_db prompts")
	rootCmd.AddCommand(runCmd)

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive line-oriented session against a browser child",
		RunE:  replCmd_,
	}
	rootCmd.AddCommand(replCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cm := config.NewManager()
	userDir, err := config.GetUserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("user config dir: %w", err)
	}
	projectDir, err := config.GetProjectDir()
	if err != nil {
		return nil, fmt.Errorf("project dir: %w", err)
	}
	if err := cm.Load(userDir, projectDir); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cm.Get(), nil
}

func launchOptionsFromConfig(cfg *config.Config) transport.LaunchOptions {
	path := cfg.MonkeyPath
	if monkeyPath != "" {
		path = monkeyPath
	}
	opts := transport.LaunchOptions{
		MonkeyPath:    path,
		WrapperArgs:   cfg.WrapperArgs,
		LaunchOptions: cfg.LaunchOptions,
		UsePTY:        cfg.UsePTY,
	}
	if cfg.Language != "" {
		opts.Env = map[string]string{"LANGUAGE": cfg.Language}
	}
	return opts
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	planPath := args[0]

	runID := uuid.New().String()
	logger.Info("monkeyctl: starting run", "run_id", runID, "plan", planPath)

	if !watch {
		return runPlanOnce(planPath, runID)
	}
	return runPlanWatched(planPath)
}

// loadAuthRecords opens the bcrypt-hashed store at path, matches each stored
// username against a cleartext password supplied via
// MONKEYCTL_AUTH_PASSWORD_<username>, and returns the browser.AuthRecord
// entries the session should seed its auth_db with.
func loadAuthRecords(path string) ([]browser.AuthRecord, error) {
	store, err := authdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open auth db: %w", err)
	}
	cleartext := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, authPasswordEnvPrefix) {
			continue
		}
		cleartext[strings.TrimPrefix(name, authPasswordEnvPrefix)] = value
	}
	return store.ToAuthRecords(cleartext), nil
}

func runPlanOnce(planPath, runID string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(planPath)
	if err != nil {
		return fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()

	plan, err := planrunner.LoadPlan(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	session, err := browser.NewSession(ctx, launchOptionsFromConfig(cfg), logger.Log)
	if err != nil {
		return fmt.Errorf("launch browser child: %w", err)
	}

	authPath := cfg.AuthDBPath
	if authDBPath != "" {
		authPath = authDBPath
	}
	if authPath != "" {
		records, err := loadAuthRecords(authPath)
		if err != nil {
			return err
		}
		for _, r := range records {
			session.AddAuth(r)
		}
		logger.Info("monkeyctl: seeded auth_db", "path", authPath, "records", len(records))
	}

	runner := planrunner.NewRunner(session, logger.Log)
	runErr := runner.Run(plan)

	elapsed := time.Since(start)
	if runErr != nil {
		fmt.Printf("FAIL %s (%s) run=%s: %v\n", plan.Title, humanize.RelTime(start, time.Now(), "", ""), runID, runErr)
		return runErr
	}
	fmt.Printf("PASS %s in %s (run=%s)\n", plan.Title, elapsed.Round(time.Millisecond), runID)
	return nil
}

func runPlanWatched(planPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(planPath); err != nil {
		return fmt.Errorf("watch %s: %w", planPath, err)
	}

	run := func() {
		runID := uuid.New().String()
		if err := runPlanOnce(planPath, runID); err != nil {
			logger.Error("monkeyctl: watched run failed", "error", err)
		}
	}
	run()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				run()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("monkeyctl: watch error", "error", err)
		}
	}
}

func replCmd_(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	session, err := browser.NewSession(ctx, launchOptionsFromConfig(cfg), logger.Log)
	if err != nil {
		return fmt.Errorf("launch browser child: %w", err)
	}

	fmt.Println("monkeyctl repl — commands: new <url>, go <tag> <url>, redraw <tag>, kill <tag>, quit")
	return runREPL(session)
}
