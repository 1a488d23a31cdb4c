// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"k8s.io/klog/v2"

	"github.com/henshin-ai/henshin/pkg/config"
	"github.com/henshin-ai/henshin/pkg/history"
	"github.com/henshin-ai/henshin/pkg/journal"
	"github.com/henshin-ai/henshin/pkg/localstore"
	"github.com/henshin-ai/henshin/pkg/mailgen"
)

// Using the defaults from goreleaser as per https://goreleaser.com/cookbooks/using-main.version/
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Options holds the CLI configuration. Flag values override stored settings,
// which override environment variables.
type Options struct {
	StoreDir  string
	TracePath string
	Plain     bool

	Model         string
	SystemPrompt  string
	Date          string
	SenderName    string
	RecipientName string
	Signatures    string
	SignatureFile string
	Received      string
	ReceivedFile  string
	Outline       string
	StyleExamples []string
	Tone          int
	Length        int
	Mode          string
}

func (o *Options) InitDefaults() {
	o.StoreDir = ""
	o.TracePath = ""
	o.Plain = false
	o.Date = time.Now().Format("2006-01-02")
	// -1 means "not set" for the 0-100 sliders.
	o.Tone = -1
	o.Length = -1
	o.Mode = string(mailgen.ModeEmail)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context) error {
	// klog setup must happen before cobra parses any flags
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	defer klog.Flush()

	opt := &Options{}
	opt.InitDefaults()

	rootCmd, err := BuildRootCommand(opt)
	if err != nil {
		return err
	}
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	return rootCmd.ExecuteContext(ctx)
}

func BuildRootCommand(opt *Options) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "henshin",
		Short: "Draft Japanese business email replies with an LLM",
		Long: "henshin collects the structured pieces of a Japanese business email reply\n" +
			"(sender, recipient, received message, desired outline, tone and length)\n" +
			"and asks an OpenAI-, Gemini- or Anthropic-compatible model to draft it.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opt.StoreDir, "store-dir", opt.StoreDir, "directory for settings and history (default ~/.henshin/store)")
	rootCmd.PersistentFlags().StringVar(&opt.TracePath, "trace-path", opt.TracePath, "append request/response trace events to this file")
	rootCmd.PersistentFlags().BoolVar(&opt.Plain, "plain", opt.Plain, "plain text output, no terminal rendering")

	rootCmd.AddCommand(buildGenerateCommand(opt))
	rootCmd.AddCommand(buildAdjustCommand(opt))
	rootCmd.AddCommand(buildHistoryCommand(opt))
	rootCmd.AddCommand(buildKeysCommand(opt))
	rootCmd.AddCommand(buildConfigCommand(opt))
	rootCmd.AddCommand(buildDoctorCommand(opt))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of henshin",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
		},
	})

	return rootCmd, nil
}

func buildGenerateCommand(opt *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [outline]",
		Short: "Generate an email or chat-message draft",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opt.Outline = args[0]
			}
			return runGenerate(cmd.Context(), opt)
		},
	}

	cmd.Flags().StringVar(&opt.Model, "model", opt.Model, "model identifier (gpt-*, o3*, gemini-*, claude-*)")
	cmd.Flags().StringVar(&opt.Date, "date", opt.Date, "email date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opt.SenderName, "sender", opt.SenderName, "sender name (required)")
	cmd.Flags().StringVar(&opt.RecipientName, "recipient", opt.RecipientName, "recipient name")
	cmd.Flags().StringVar(&opt.Signatures, "signature", opt.Signatures, "signature block text")
	cmd.Flags().StringVar(&opt.SignatureFile, "signature-file", opt.SignatureFile, "read the signature block from a file")
	cmd.Flags().StringVar(&opt.Received, "received", opt.Received, "received message text; empty composes a new message")
	cmd.Flags().StringVar(&opt.ReceivedFile, "received-file", opt.ReceivedFile, "read the received message from a file, or - for stdin")
	cmd.Flags().StringVar(&opt.Outline, "outline", opt.Outline, "outline of the desired reply")
	cmd.Flags().StringArrayVar(&opt.StyleExamples, "style-example", opt.StyleExamples, "style reference text, repeatable up to 5 times")
	cmd.Flags().IntVar(&opt.Tone, "tone", opt.Tone, "tone 0 (formal) to 100 (casual)")
	cmd.Flags().IntVar(&opt.Length, "length", opt.Length, "length 0 (concise) to 100 (detailed)")
	cmd.Flags().StringVar(&opt.Mode, "mode", opt.Mode, "output mode: email or message")

	return cmd
}

func runGenerate(ctx context.Context, opt *Options) error {
	env, err := newEnvironment(opt)
	if err != nil {
		return err
	}
	defer env.Close()

	if opt.SignatureFile != "" {
		data, err := os.ReadFile(opt.SignatureFile)
		if err != nil {
			return fmt.Errorf("reading signature file: %w", err)
		}
		opt.Signatures = string(data)
	}
	if opt.ReceivedFile != "" {
		data, err := readFileOrStdin(opt.ReceivedFile)
		if err != nil {
			return fmt.Errorf("reading received message: %w", err)
		}
		opt.Received = data
	}
	if strings.TrimSpace(opt.SenderName) == "" {
		return errors.New("--sender is required")
	}
	if strings.TrimSpace(opt.Outline) == "" {
		return errors.New("an outline is required (positional argument or --outline)")
	}
	mode := mailgen.Mode(opt.Mode)
	if mode != mailgen.ModeEmail && mode != mailgen.ModeMessage {
		return fmt.Errorf("invalid mode %q: must be email or message", opt.Mode)
	}

	settings := env.settings
	styleExamples := settings.StyleExamples
	if len(opt.StyleExamples) > 0 {
		styleExamples = opt.StyleExamples
	}
	req := mailgen.Request{
		Date:            opt.Date,
		Signatures:      firstNonEmpty(opt.Signatures, settings.Signatures),
		SenderName:      opt.SenderName,
		RecipientName:   opt.RecipientName,
		ReceivedMessage: opt.Received,
		ResponseOutline: opt.Outline,
		Model:           firstNonEmpty(opt.Model, settings.Model),
		SystemPrompt:    settings.SystemPrompt,
		StyleExamples:   styleExamples,
		Tone:            sliderValue(opt.Tone, settings.Tone),
		Length:          sliderValue(opt.Length, settings.Length),
		Mode:            mode,
	}

	res := env.generator.GenerateEmail(ctx, req, settings.Keys)
	return env.renderResult(res)
}

func buildAdjustCommand(opt *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust <instruction>",
		Short: "Adjust a generated draft with a free-text instruction",
		Long: "Reads the current draft from --text-file (or stdin) and rewrites it\n" +
			"according to the instruction, e.g. もっと柔らかい文面にして.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdjust(cmd.Context(), opt, args[0])
		},
	}

	cmd.Flags().StringVar(&opt.ReceivedFile, "text-file", "-", "read the current draft from a file, or - for stdin")
	cmd.Flags().StringVar(&opt.Model, "model", opt.Model, "model identifier")
	cmd.Flags().IntVar(&opt.Tone, "tone", opt.Tone, "tone 0 (formal) to 100 (casual)")
	cmd.Flags().IntVar(&opt.Length, "length", opt.Length, "length 0 (concise) to 100 (detailed)")

	return cmd
}

func runAdjust(ctx context.Context, opt *Options, instruction string) error {
	env, err := newEnvironment(opt)
	if err != nil {
		return err
	}
	defer env.Close()

	text, err := readFileOrStdin(opt.ReceivedFile)
	if err != nil {
		return fmt.Errorf("reading current draft: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("the current draft is empty")
	}

	settings := env.settings
	model := firstNonEmpty(opt.Model, settings.Model)
	apiKey := settings.Keys
	req := mailgen.AdjustRequest{
		CurrentText:  text,
		CustomPrompt: instruction,
		Tone:         sliderValue(opt.Tone, settings.Tone),
		Length:       sliderValue(opt.Length, settings.Length),
		Model:        model,
		SystemPrompt: settings.SystemPrompt,
	}

	provider := mailgen.ResolveProvider(model)
	res := env.generator.AdjustText(ctx, req, keyFor(apiKey, provider))
	return env.renderResult(res)
}

func buildHistoryCommand(opt *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recent generation attempts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the retained attempts, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			entries := env.history.List()
			if len(entries) == 0 {
				fmt.Println("No history.")
				return nil
			}
			var b strings.Builder
			b.WriteString("# Recent generations\n\n")
			for _, e := range entries {
				status := "ok"
				if !e.Response.Success {
					status = string(e.Response.ErrorKind)
				}
				ts := time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04")
				fmt.Fprintf(&b, "- `%s` %s [%s] %s\n", e.ID, ts, status, truncate(e.Request.ResponseOutline, 60))
			}
			return env.renderMarkdown(b.String())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one attempt in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			for _, e := range env.history.List() {
				if e.ID == args[0] {
					return env.renderResult(e.Response)
				}
			}
			return fmt.Errorf("history entry %q not found", args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()
			return env.history.Delete(args[0])
		},
	})

	return cmd
}

func buildKeysCommand(opt *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <openai|gemini|anthropic>",
		Short: "Store an API key (prompted, not echoed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			provider := mailgen.Provider(args[0])
			if _, err := config.KeyForProvider(provider); err != nil {
				return err
			}
			fmt.Printf("API key for %s: ", provider)
			keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading key: %w", err)
			}
			return config.SetAPIKey(env.store, provider, strings.TrimSpace(string(keyBytes)))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show which providers have a key configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			keys := env.settings.Keys
			for _, provider := range providerOrder {
				state := "not configured"
				if keyFor(keys, provider) != "" {
					state = "configured"
				}
				fmt.Printf("%-10s %s\n", provider, state)
			}
			return nil
		},
	})

	return cmd
}

// configKeys maps the names accepted by the config command to their stored
// keys. API keys have their own command with a no-echo prompt.
var configKeys = map[string]string{
	"model":         config.KeyModel,
	"system_prompt": config.KeySystemPrompt,
	"signatures":    config.KeySignatures,
	"tone":          config.KeyTone,
	"length":        config.KeyLength,
}

func buildConfigCommand(opt *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stored generation settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <model|system_prompt|signatures|tone|length> <value>",
		Short: "Store a default setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			storeKey, ok := configKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			switch storeKey {
			case config.KeyTone, config.KeyLength:
				v, err := strconv.Atoi(args[1])
				if err != nil || v < 0 || v > 100 {
					return fmt.Errorf("%s must be an integer between 0 and 100", args[0])
				}
				return env.store.Set(storeKey, v)
			default:
				return env.store.Set(storeKey, args[1])
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset <name>",
		Short: "Remove a stored setting, reverting to the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			storeKey, ok := configKeys[args[0]]
			if !ok && args[0] != "style_examples" {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			if args[0] == "style_examples" {
				storeKey = config.KeyStyleExamples
			}
			return env.store.Delete(storeKey)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			s := env.settings
			fmt.Printf("model:          %s\n", s.Model)
			fmt.Printf("system_prompt:  %s\n", summarize(s.SystemPrompt))
			fmt.Printf("signatures:     %s\n", summarize(s.Signatures))
			fmt.Printf("style_examples: %d stored\n", len(s.StyleExamples))
			fmt.Printf("tone:           %s\n", sliderString(s.Tone))
			fmt.Printf("length:         %s\n", sliderString(s.Length))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add-style-example <text>",
		Short: "Append a style reference (oldest dropped beyond 5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			examples := append(env.settings.StyleExamples, args[0])
			if len(examples) > mailgen.MaxStyleExamples {
				examples = examples[len(examples)-mailgen.MaxStyleExamples:]
			}
			return env.store.Set(config.KeyStyleExamples, examples)
		},
	})

	return cmd
}

func buildDoctorCommand(opt *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Verify every configured API key against its provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opt)
			if err != nil {
				return err
			}
			defer env.Close()

			keys := env.settings.Keys
			configured := map[mailgen.Provider]string{}
			for _, provider := range providerOrder {
				if key := keyFor(keys, provider); key != "" {
					configured[provider] = key
				}
			}
			if len(configured) == 0 {
				return errors.New("no API keys configured; run henshin keys set <provider>")
			}

			var mu sync.Mutex
			results := make(map[mailgen.Provider]error, len(configured))
			g, ctx := errgroup.WithContext(cmd.Context())
			for provider, key := range configured {
				g.Go(func() error {
					verifyErr := env.generator.VerifyKey(ctx, provider, key)
					mu.Lock()
					results[provider] = verifyErr
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := false
			for _, provider := range providerOrder {
				verifyErr, checked := results[provider]
				if !checked {
					continue
				}
				if verifyErr != nil {
					failed = true
					fmt.Printf("%-10s FAIL: %v\n", provider, verifyErr)
				} else {
					fmt.Printf("%-10s OK\n", provider)
				}
			}
			if failed {
				return errors.New("one or more API keys failed verification")
			}
			return nil
		},
	}
}

// environment bundles the store, settings and generator shared by every
// command.
type environment struct {
	store     *localstore.Store
	settings  *config.Settings
	history   *history.Store
	generator *mailgen.Generator
	recorder  journal.Recorder
	plain     bool
}

func newEnvironment(opt *Options) (*environment, error) {
	dir := opt.StoreDir
	if dir == "" {
		var err error
		dir, err = localstore.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("locating store directory: %w", err)
		}
	}
	store, err := localstore.Open(dir)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(store)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	var recorder journal.Recorder = journal.NoopRecorder{}
	if opt.TracePath != "" {
		fileRecorder, err := journal.NewFileRecorder(opt.TracePath)
		if err != nil {
			return nil, err
		}
		recorder = fileRecorder
	}

	hist := history.NewStore(store)
	gen := mailgen.NewGenerator(
		mailgen.WithHistory(hist),
		mailgen.WithJournal(recorder),
	)

	return &environment{
		store:     store,
		settings:  settings,
		history:   hist,
		generator: gen,
		recorder:  recorder,
		plain:     opt.Plain,
	}, nil
}

func (e *environment) Close() {
	if err := e.recorder.Close(); err != nil {
		klog.Warningf("closing trace recorder: %v", err)
	}
}

// renderResult prints a generation outcome. Failures exit non-zero with the
// localized message, matching what the original UI displayed.
func (e *environment) renderResult(res mailgen.Result) error {
	if !res.Success {
		return fmt.Errorf("%s (%s)", res.Content, res.ErrorKind)
	}

	var b strings.Builder
	if res.Subject != "" {
		fmt.Fprintf(&b, "# %s\n\n", res.Subject)
	}
	b.WriteString(res.Content)
	b.WriteString("\n")
	if res.Degraded {
		b.WriteString("\n> 注意: AIの応答を構造化できなかったため、原文のまま表示しています。\n")
	}
	return e.renderMarkdown(b.String())
}

func (e *environment) renderMarkdown(markdown string) error {
	if e.plain {
		fmt.Println(markdown)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		// Fall back to plain output rather than failing the command.
		klog.Warningf("initializing markdown renderer: %v", err)
		fmt.Println(markdown)
		return nil
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		fmt.Println(markdown)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func readFileOrStdin(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// sliderValue merges a flag value (-1 means unset) with a stored default.
func sliderValue(flagValue int, stored *int) *int {
	if flagValue >= 0 {
		v := flagValue
		return &v
	}
	return stored
}

// providerOrder fixes the display order of provider listings.
var providerOrder = []mailgen.Provider{
	mailgen.ProviderOpenAI,
	mailgen.ProviderGemini,
	mailgen.ProviderAnthropic,
}

func keyFor(keys mailgen.APIKeys, p mailgen.Provider) string {
	switch p {
	case mailgen.ProviderGemini:
		return keys.Gemini
	case mailgen.ProviderAnthropic:
		return keys.Anthropic
	default:
		return keys.OpenAI
	}
}

// summarize renders a possibly multi-line setting on one status line.
func summarize(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not set)"
	}
	return truncate(s, 60)
}

func sliderString(v *int) string {
	if v == nil {
		return "(not set)"
	}
	return strconv.Itoa(*v)
}

func truncate(s string, n int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}
