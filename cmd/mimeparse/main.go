// Package main is the command line front end for the MIME parser.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/oklog/ulid/v2"

	"github.com/shineum/mimeparse-lite/internal/config"
	"github.com/shineum/mimeparse-lite/internal/email"
	"github.com/shineum/mimeparse-lite/internal/extract"
	"github.com/shineum/mimeparse-lite/internal/parser"
	"github.com/shineum/mimeparse-lite/internal/provider"
	"github.com/shineum/mimeparse-lite/internal/provider/ses"
	"github.com/shineum/mimeparse-lite/internal/provider/stdout"
)

// options holds the command line flags.
type options struct {
	configPath  string
	inPath      string
	dump        bool
	msgpackPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to YAML or TOML configuration file (optional)")
	flag.StringVar(&opts.inPath, "in", "", "message file to parse (default stdin)")
	flag.BoolVar(&opts.dump, "dump", false, "dump the parsed tree to stderr")
	flag.StringVar(&opts.msgpackPath, "msgpack", "", "write the parsed tree as msgpack to this path")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	prov, err := selectProvider(ctx, cfg, os.Stdout)
	if err != nil {
		slog.Error("failed to select provider", "error", err)
		os.Exit(1)
	}

	in := io.Reader(os.Stdin)
	if opts.inPath != "" {
		f, err := os.Open(opts.inPath)
		if err != nil {
			slog.Error("failed to open input", "path", opts.inPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	if err := run(ctx, cfg, opts, in, os.Stderr, prov); err != nil {
		slog.Error("mimeparse failed", "error", err)
		os.Exit(1)
	}
}

// run parses one message from in and hands it to prov, after the optional
// dump, msgpack export and extraction steps.
func run(ctx context.Context, cfg *config.Config, opts options, in io.Reader, dumpOut io.Writer, prov provider.Provider) error {
	logger := slog.Default().With("parse_id", ulid.Make().String())

	msg, err := parse(cfg, in, logger)
	if err != nil {
		return err
	}
	logger.Info("message parsed",
		"parts", countParts(msg),
		"streaming", cfg.Parser.Streaming,
	)

	if opts.dump {
		spew.Fdump(dumpOut, msg)
	}

	if opts.msgpackPath != "" {
		data, err := msg.MarshalMsg(nil)
		if err != nil {
			return fmt.Errorf("failed to encode msgpack: %w", err)
		}
		if err := os.WriteFile(opts.msgpackPath, data, 0o640); err != nil {
			return fmt.Errorf("failed to write msgpack: %w", err)
		}
		logger.Info("msgpack written", "path", opts.msgpackPath, "size", len(data))
	}

	if cfg.ExtractEnabled() {
		ex, err := extract.New(cfg.Extract.Dir, cfg.Extract.Patterns)
		if err != nil {
			return fmt.Errorf("failed to configure extraction: %w", err)
		}
		records, err := ex.Extract(msg)
		if err != nil {
			return fmt.Errorf("failed to extract parts: %w", err)
		}
		logger.Info("parts extracted", "dir", cfg.Extract.Dir, "count", len(records))
	}

	if err := prov.Send(ctx, msg); err != nil {
		return fmt.Errorf("provider %s: %w", prov.Name(), err)
	}
	logger.Info("message delivered", "provider", prov.Name())
	return nil
}

// parse reads the message in configured chunks. In streaming mode the
// events are logged on their way into a tree builder.
func parse(cfg *config.Config, in io.Reader, logger *slog.Logger) (*email.Message, error) {
	popts := []parser.Option{
		parser.WithLogger(logger),
		parser.WithMaxLineLength(cfg.Parser.MaxLineLength),
	}
	if !cfg.Parser.Streaming {
		return parser.ParseReader(in, cfg.Parser.ChunkSize, popts...)
	}

	tb := parser.NewTreeBuilder()
	popts = append(popts, parser.WithSink(parser.NewLogSink(tb, logger)))
	if _, err := parser.ParseReader(in, cfg.Parser.ChunkSize, popts...); err != nil {
		return nil, err
	}
	return tb.Message(), nil
}

func countParts(msg *email.Message) int {
	n := 0
	email.Walk(msg, func(email.Part, int) bool {
		n++
		return true
	})
	return n
}

// loadConfig loads configuration from the specified path (file + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output on stderr
// and the specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

var errSESNotConfigured = errors.New("SES provider selected but SES_REGION is required")

// selectProvider chooses the delivery backend based on configuration.
// With no provider named, SES is used when configured, else stdout.
func selectProvider(ctx context.Context, cfg *config.Config, out io.Writer) (provider.Provider, error) {
	switch cfg.Provider {
	case "ses":
		if !cfg.SESConfigured() {
			return nil, errSESNotConfigured
		}
		return newSES(ctx, cfg)

	case "stdout":
		slog.Info("using stdout provider")
		return newStdout(out), nil

	case "":
		if cfg.SESConfigured() {
			slog.Info("using AWS SES provider (auto-detected)")
			return newSES(ctx, cfg)
		}
		slog.Info("no provider configured, using stdout provider")
		return newStdout(out), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newSES(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	slog.Info("using AWS SES provider",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	p, err := ses.New(ctx, ses.SESProviderConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SES provider: %w", err)
	}
	return p, nil
}

// newStdout colors output only when writing to the process's stdout.
func newStdout(out io.Writer) provider.Provider {
	if out == io.Writer(os.Stdout) {
		return stdout.New()
	}
	return stdout.NewWithWriter(out)
}
