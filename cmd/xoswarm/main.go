// Command xoswarm fans a question out to several LLM providers and merges
// their answers. It serves the HTTP API, answers one-off questions from the
// terminal and exports stored answers for fine-tuning.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xostack/xoswarm"
	"github.com/xostack/xoswarm/config"
	"github.com/xostack/xoswarm/memory"
	"github.com/xostack/xoswarm/metrics"
	"github.com/xostack/xoswarm/ollama"
	"github.com/xostack/xoswarm/server"
)

var version = "dev"

const defaultExportPath = "training_data.jsonl"

// app carries state shared by every subcommand.
type app struct {
	configPath string
	debug      bool

	cfg    config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "xoswarm",
		Short:        "Ask many LLMs at once and synthesize one answer",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a TOML config file (default: XDG config location)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable development logging")

	root.AddCommand(a.serveCmd(), a.askCmd(), a.modelsCmd(), a.exportCmd())
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFromFile(a.configPath)
		if err == nil {
			a.cfg.ApplyEnv(os.LookupEnv)
			err = a.cfg.Validate()
		}
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if a.debug {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

// openMemory returns nil when memory is disabled in the configuration.
func (a *app) openMemory() (*memory.Store, error) {
	if !a.cfg.Memory.Enabled {
		return nil, nil
	}
	store, err := memory.Open(a.cfg.Memory.Path, memory.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open memory: %w", err)
	}
	return store, nil
}

func (a *app) pipeline(store *memory.Store, extra ...xoswarm.Option) *xoswarm.Pipeline {
	opts := []xoswarm.Option{xoswarm.WithLogger(a.logger)}
	if store != nil {
		opts = append(opts, xoswarm.WithMemory(store))
	}
	return xoswarm.NewPipeline(a.cfg, append(opts, extra...)...)
}

func (a *app) serveCmd() *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			collector := metrics.NewCollector(reg, a.logger)

			store, err := a.openMemory()
			if err != nil {
				return err
			}
			p := a.pipeline(store, xoswarm.WithRecorder(collector))
			defer p.Close()

			opts := []server.Option{
				server.WithLogger(a.logger),
				server.WithMetrics(reg, collector),
			}
			if store != nil {
				opts = append(opts, server.WithHistory(store))
			}
			if lister, err := ollama.NewClient(a.cfg.OllamaURL(), "", a.cfg.LocalTimeout(), ollama.WithLogger(a.logger)); err == nil {
				opts = append(opts, server.WithModelLister(lister))
			} else {
				a.logger.Warn("local model discovery disabled", zap.Error(err))
			}

			return server.New(p, opts...).ListenAndServe(cmd.Context(), a.cfg.ListenAddr())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func (a *app) askCmd() *cobra.Command {
	var (
		online     []string
		offline    []string
		endpoint   string
		useMemory  bool
		synthModel string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the selected providers and print the synthesized answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := xoswarm.Request{
				Query:     strings.TrimSpace(strings.Join(args, " ")),
				Online:    online,
				UseMemory: useMemory,
			}
			if req.Query == "" {
				return errors.New("question must not be empty")
			}
			for _, m := range offline {
				req.Offline = append(req.Offline, xoswarm.LocalModel{Model: m, Endpoint: endpoint})
			}
			if synthModel != "" {
				req.Synthesizer = &xoswarm.Target{Model: synthModel}
			}

			var store *memory.Store
			if useMemory {
				var err error
				if store, err = a.openMemory(); err != nil {
					return err
				}
			}
			p := a.pipeline(store)
			defer p.Close()

			progress := cmd.ErrOrStderr()
			res := p.Stream(cmd.Context(), req, func(ev xoswarm.Event) {
				printProgress(progress, ev)
			})
			if verbose {
				printResponses(cmd.OutOrStdout(), res.IndividualResponses)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.FinalAnswer)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&online, "online", nil, "hosted providers to query, e.g. \"ChatGPT (OpenAI)\",Groq")
	cmd.Flags().StringSliceVar(&offline, "offline", nil, "local Ollama models to query")
	cmd.Flags().StringVar(&endpoint, "ollama-endpoint", "", "Ollama base URL for --offline models")
	cmd.Flags().BoolVar(&useMemory, "memory", false, "include and update the answer memory")
	cmd.Flags().StringVar(&synthModel, "synth-model", "", "model for the primary synthesizer")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every provider's answer")
	return cmd
}

func printProgress(w io.Writer, ev xoswarm.Event) {
	switch ev.Status {
	case xoswarm.StatusQuerying:
		fmt.Fprintf(w, "… %s\n", ev.Message)
	case xoswarm.StatusResponse:
		fmt.Fprintf(w, "✓ %s\n", ev.Model)
	case xoswarm.StatusError:
		fmt.Fprintf(w, "✗ %s\n", ev.Model)
	case xoswarm.StatusSynthesizing:
		fmt.Fprintln(w, "… synthesizing")
	}
}

func printResponses(w io.Writer, responses xoswarm.ResponseMap) {
	names := make([]string, 0, len(responses))
	for name := range responses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "--- %s ---\n%s\n\n", name, responses[name])
	}
}

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List selectable hosted providers and local Ollama models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Online:")
			for _, name := range xoswarm.OnlineProviders() {
				fmt.Fprintf(out, "  %s\n", name)
			}

			fmt.Fprintln(out, "Offline:")
			client, err := ollama.NewClient(a.cfg.OllamaURL(), "", a.cfg.LocalTimeout(), ollama.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer client.Close()
			names, err := client.ListModels(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "  (unavailable: %v)\n", err)
				return nil
			}
			for _, name := range names {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Export stored answers as JSONL training data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultExportPath
			if len(args) == 1 {
				path = args[0]
			}
			store, err := a.openMemory()
			if err != nil {
				return err
			}
			if store == nil {
				return xoswarm.ErrNoMemory
			}
			p := a.pipeline(store)
			defer p.Close()

			msg, err := p.Export(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
