// Package main is the entry point for reviewdeck, an interactive terminal
// tool for working through pull-request review comments with inline code
// context, reply drafting, and an AI coding agent.
package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const (
	appName    = "reviewdeck"
	appVersion = "0.3.0"
)

var debugWriterMu sync.Mutex

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the root cobra command and its subcommands.
func newRootCmd() *cobra.Command {
	var repoPath, dbPath, token string
	var verbose, noCache bool

	rootCmd := &cobra.Command{
		Use:           "reviewdeck <pr-url>",
		Short:         "Review pull request comments in the terminal",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runStart := time.Now()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg, token, dbPath)
			if verbose {
				cfg.DebugWriter = cmd.ErrOrStderr()
				defer func() {
					debugLog(cfg, "total elapsed: %dms", time.Since(runStart).Milliseconds())
				}()
			}

			locator, err := ParsePullRequestURL(args[0])
			if err != nil {
				return err
			}
			debugLog(cfg, "locator: owner=%s repo=%s number=%d api=%s", locator.Owner, locator.Repo, locator.Number, locator.APIBase)

			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode requires a terminal. Use 'reviewdeck export %s' for non-interactive output", args[0])
			}

			telemetry := TelemetrySink(NoopTelemetrySink{})
			if verbose {
				telemetry = &StderrTelemetrySink{}
			}

			var cache *MetadataCache
			if !noCache {
				cache, err = OpenMetadataCache(cfg.DatabasePath)
				if err != nil {
					return err
				}
			}

			gateway, err := NewReviewGateway(cmd.Context(), cfg.GitHubToken, enterpriseBaseURL(locator, cfg), cache, cfg.CacheTTL())
			if err != nil {
				return err
			}

			// Metadata and the comment list are independent; fetch them
			// concurrently to save a round-trip of wall-clock time.
			var metadata PullRequestMetadata
			var page CommentPage
			fetchStart := time.Now()
			eg, egCtx := errgroup.WithContext(cmd.Context())
			eg.Go(func() error {
				var fetchErr error
				metadata, fetchErr = timedCall(cfg, "metadata fetch", func() (PullRequestMetadata, error) {
					return gateway.FetchMetadata(egCtx, locator)
				})
				return fetchErr
			})
			eg.Go(func() error {
				var fetchErr error
				page, fetchErr = timedCall(cfg, "comment fetch", func() (CommentPage, error) {
					return gateway.FetchReviewComments(egCtx, locator)
				})
				return fetchErr
			})
			if err := eg.Wait(); err != nil {
				return err
			}
			debugLog(cfg, "fetch: elapsed=%dms comments=%d rate-remaining=%d",
				time.Since(fetchStart).Milliseconds(), len(page.Comments), page.RateLimit.Remaining)

			opts := ReviewAppOptions{
				Config:         cfg,
				Locator:        locator,
				Metadata:       metadata,
				Comments:       page.Comments,
				Loader:         gateway,
				RewriteService: NewProviderRewriteService(cfg),
				Telemetry:      telemetry,
			}

			// Wire the local repository for time travel when one is found.
			discoveryStart := repoPath
			if discoveryStart == "" {
				discoveryStart = "."
			}
			if local, discErr := DiscoverRepository(discoveryStart); discErr == nil {
				if gitOps, openErr := OpenGitOperations(local.WorkDir); openErr == nil {
					opts.GitOps = gitOps
					opts.HeadSHA = local.HeadSHA
					debugLog(cfg, "local repo: %s head=%s", local.WorkDir, local.HeadSHA)
				} else {
					opts.DiscoveryError = openErr.Error()
				}
			} else {
				opts.DiscoveryError = discErr.Error()
				debugLog(cfg, "local repo discovery failed: %v", discErr)
			}

			// An interrupted agent session triggers the resume prompt.
			if session, ok := FindInterruptedSession(cfg.TranscriptDir, locator); ok {
				opts.ResumeSession = session
				debugLog(cfg, "resume candidate: transcript=%s thread=%s", session.TranscriptPath, session.ThreadID)
			}

			program := tea.NewProgram(NewReviewApp(opts), tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}

	rootCmd.Flags().StringVar(&repoPath, "repo-path", "", "Path to a local checkout of the repository (default: discover from the working directory)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Path to the metadata cache database")
	rootCmd.Flags().StringVar(&token, "token", "", "GitHub token (overrides config and GITHUB_TOKEN)")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose debug logging to stderr")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the metadata cache for this run")

	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newAiRewriteCmd())
	rootCmd.AddCommand(newMigrateDBCmd())
	rootCmd.AddCommand(newInitConfigCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion script",
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	})

	return rootCmd
}

// applyFlagOverrides layers CLI flags over the loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *Config, token, dbPath string) {
	if cmd.Flags().Changed("token") {
		cfg.GitHubToken = token
	}
	if cmd.Flags().Changed("db") {
		cfg.DatabasePath = dbPath
	}
}

// enterpriseBaseURL returns the host to hand to the GitHub SDK when the
// locator points at an Enterprise instance, preferring an explicit config
// value.
func enterpriseBaseURL(locator PullRequestLocator, cfg *Config) string {
	if cfg.GitHubBaseURL != "" {
		return cfg.GitHubBaseURL
	}
	if locator.APIBase == "https://api.github.com" {
		return ""
	}
	return "https://" + locator.Host()
}

// newExportCmd returns the export subcommand, which writes the review
// comments as Markdown, JSONL, or through a user template.
func newExportCmd() *cobra.Command {
	var format, outputPath, templatePath string
	var clipboardFlag bool

	cmd := &cobra.Command{
		Use:   "export <pr-url>",
		Short: "Export review comments as markdown, jsonl, or via a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			locator, err := ParsePullRequestURL(args[0])
			if err != nil {
				return err
			}

			gateway, err := NewReviewGateway(cmd.Context(), cfg.GitHubToken, enterpriseBaseURL(locator, cfg), nil, 0)
			if err != nil {
				return err
			}
			page, err := gateway.FetchReviewComments(cmd.Context(), locator)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			switch format {
			case "markdown":
				err = ExportMarkdown(&buf, locator.HTMLURL(), page.Comments)
			case "jsonl":
				err = ExportJSONL(&buf, page.Comments)
			case "template":
				if templatePath == "" {
					return fmt.Errorf("--template is required when --format=template")
				}
				err = ExportTemplate(&buf, templatePath, locator.HTMLURL(), page.Comments)
			default:
				return fmt.Errorf("unsupported format %q: must be markdown, jsonl, or template", format)
			}
			if err != nil {
				return err
			}

			if clipboardFlag {
				if err := clipboard.WriteAll(buf.String()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy to clipboard: %v\n", err)
				}
			}

			if outputPath != "" {
				return os.WriteFile(outputPath, buf.Bytes(), 0o600)
			}
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown, jsonl, or template")
	cmd.Flags().StringVar(&outputPath, "output", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&templatePath, "template", "", "Template file for --format=template")
	cmd.Flags().BoolVar(&clipboardFlag, "clipboard", false, "Also copy the output to the clipboard")
	return cmd
}

// newAiRewriteCmd returns the ai-rewrite subcommand: a non-interactive
// entry point for the expand/reword service, printing the side-by-side
// preview.
func newAiRewriteCmd() *cobra.Command {
	var modeFlag, text string

	cmd := &cobra.Command{
		Use:   "ai-rewrite",
		Short: "Rewrite reply text with the configured AI provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mode, err := ParseRewriteMode(modeFlag)
			if err != nil {
				return err
			}
			if text == "" {
				return &ConfigError{Message: "--text is required in ai-rewrite mode"}
			}

			service := NewProviderRewriteService(cfg)
			outcome, err := RewriteWithFallback(cmd.Context(), service, RewriteRequest{Mode: mode, SourceText: text})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "AI rewrite mode: %s\n", mode)
			if outcome.Generated {
				fmt.Fprintln(out, "Status: generated")
				fmt.Fprintf(out, "Origin: %s\n", outcome.OriginLabel)
				preview := BuildSideBySidePreview(text, outcome.RewrittenText)
				fmt.Fprintln(out, "Preview: original || candidate")
				for i, line := range preview.Lines {
					fmt.Fprintf(out, "%3d: %s || %s\n", i+1, line.Original, line.Candidate)
				}
				changed := "no"
				if preview.HasChanges {
					changed = "yes"
				}
				fmt.Fprintf(out, "Changed: %s\n", changed)
				fmt.Fprintf(out, "\nCandidate text:\n%s\n", outcome.RewrittenText)
				return nil
			}

			fmt.Fprintln(out, "Status: fallback")
			fmt.Fprintf(out, "Reason: %s\n", outcome.Reason)
			fmt.Fprintf(out, "\nOriginal text preserved:\n%s\n", outcome.OriginalText)
			return nil
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "Rewrite mode: expand or reword")
	cmd.Flags().StringVar(&text, "text", "", "Draft text to rewrite")
	return cmd
}

// newMigrateDBCmd returns the migrate-db subcommand, which applies pending
// cache schema migrations.
func newMigrateDBCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate-db",
		Short: "Apply pending cache database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabasePath = dbPath
			}

			if err := ensureParentDir(cfg.DatabasePath); err != nil {
				return err
			}

			version, err := MigrateDatabase(cfg.DatabasePath, &StderrTelemetrySink{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database migrated. Schema version: %s\n", version)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the metadata cache database")
	return cmd
}

// ensureParentDir creates the directory containing path when missing.
func ensureParentDir(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == ":memory:" {
		return nil
	}
	dir := parentDir(trimmed)
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

// defaultConfigTOML is the template written by the init-config subcommand.
// It documents every supported key with its default value.
const defaultConfigTOML = `# reviewdeck configuration
# Place this file at ~/.reviewdeck.toml or in the project root.

# --- GitHub / GitHub Enterprise ---
# github_token = ""    # or set GITHUB_TOKEN env var
# github_base_url = "" # GitHub Enterprise host, e.g. https://github.mycompany.com

# --- Metadata cache ---
# database_path = "~/.reviewdeck/cache.db"
cache_ttl_seconds = 300

# --- Coding agent ---
agent_command = "codex"
# transcript_dir = "~/.reviewdeck/transcripts"

# --- Reply drafting ---
reply_max_length = 2000
# reply_templates = [
#   "Thanks {{.Author}}, fixed in the next push.",
#   "Good catch - will address before merging.",
# ]

# --- AI rewrite provider: openai | anthropic | gemini | ollama ---
provider = "openai"
ai_timeout_seconds = 30

# openai_api_key = ""   # or set OPENAI_API_KEY env var
openai_model    = "gpt-4o-mini"
openai_endpoint = "https://api.openai.com/v1/"

# anthropic_api_key = ""   # or set ANTHROPIC_API_KEY env var
anthropic_model    = "claude-sonnet-4-6"
anthropic_endpoint = "https://api.anthropic.com"

# gemini_api_key = ""   # or set GEMINI_API_KEY env var
gemini_model = "gemini-2.5-flash"

ollama_model    = "llama3"
ollama_endpoint = "http://localhost:11434/api/generate"
`

// newInitConfigCmd returns the init-config subcommand, which writes a
// commented TOML configuration file.
func newInitConfigCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file to ~/.reviewdeck.toml",
		Long: `Writes a commented TOML configuration file with all supported settings and
their defaults. Edit the generated file to add your tokens and customise
the cache, agent, and AI provider settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := outputPath
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("could not determine home directory: %w", err)
				}
				dest = home + "/.reviewdeck.toml"
			}

			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("config file already exists at %s (remove it first or use --output to choose a different path)", dest)
			}

			if err := os.WriteFile(dest, []byte(defaultConfigTOML), 0o600); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config file written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputPath, "output", "", "Write config to this path instead of ~/.reviewdeck.toml")
	return cmd
}

// debugLog writes a formatted debug message to cfg.DebugWriter when verbose
// mode is enabled. The message is prefixed with "[debug] " and terminated
// with a newline.
func debugLog(cfg *Config, format string, args ...any) {
	if cfg.DebugWriter == nil {
		return
	}
	debugWriterMu.Lock()
	defer debugWriterMu.Unlock()
	_, _ = fmt.Fprintf(cfg.DebugWriter, "[debug] "+format+"\n", args...)
}

// timedCall invokes fn, then logs the elapsed time and any error.
// fn always runs; the logging is a no-op when verbose mode is disabled
// (cfg.DebugWriter == nil).
func timedCall[T any](cfg *Config, label string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	elapsed := time.Since(start).Milliseconds()
	if err == nil {
		debugLog(cfg, "%s completed in %dms", label, elapsed)
	} else {
		debugLog(cfg, "%s failed in %dms: %v", label, elapsed, err)
	}
	return result, err
}
