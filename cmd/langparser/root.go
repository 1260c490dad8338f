package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/japaniel/langparser/pkg/config"
	"github.com/japaniel/langparser/pkg/db"
	"github.com/japaniel/langparser/pkg/langparser"
	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/reconcile"
	"github.com/japaniel/langparser/pkg/script"
	"github.com/japaniel/langparser/pkg/source"
)

// app is the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "langparser",
		Short: "Annotate Korean and Chinese text with the words you are learning",
		Long: `langparser finds Korean and Chinese words in text and web pages, tracks how
well you know each one (0 unknown to 4 mastered) and renders the text with
every word marked by its familiarity.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (LANGPARSER_*)
3. Config file (~/.langparser/config.yaml)
4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.langparser/config.yaml)")
	flags.String("db", "", "path to the SQLite database")
	flags.StringP("lang", "l", "", "language variant: kr, zh_CN or zh_HK")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("log-json", false, "log as JSON")

	_ = a.v.BindPFlag("db", flags.Lookup("db"))
	_ = a.v.BindPFlag("language", flags.Lookup("lang"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.json", flags.Lookup("log-json"))

	root.AddCommand(
		a.newParseCmd(),
		a.newMarkKnownCmd(),
		a.newStatsCmd(),
		a.newWordCmd(),
		a.newWordsCmd(),
		a.newExportCmd(),
		a.newImportCmd(),
		a.newDictCmd(),
		a.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "langparser v%s\n", langparser.Version())
		},
	}
}

// load resolves the effective configuration and the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Output:     cmd.ErrOrStderr(),
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debug("using config file", "path", used)
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (a *app) variant() (script.Variant, error) {
	return script.ParseVariant(a.cfg.Language)
}

func (a *app) dictionaryFiles() map[script.Variant]langparser.DictionaryFiles {
	files := make(map[script.Variant]langparser.DictionaryFiles, len(a.cfg.Dictionaries))
	for k, d := range a.cfg.Dictionaries {
		files[script.Variant(k)] = langparser.DictionaryFiles{
			Words:    d.Words,
			Readings: d.Readings,
			CEDICT:   d.CEDICT,
			URL:      d.URL,
		}
	}
	return files
}

// openEngine opens the database and builds an engine over it. A read-only
// engine loads the stored words but never writes them back. The returned
// func closes both and may be called more than once.
func (a *app) openEngine(ctx context.Context, sink reconcile.Sink, readOnly bool) (*langparser.Engine, func() error, error) {
	if dir := filepath.Dir(a.cfg.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	conn, err := db.Open(a.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	segs, err := langparser.LoadSegmenters(ctx, a.dictionaryFiles(), a.log)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	store := langparser.WithStore(conn)
	if readOnly {
		store = langparser.WithReadOnlyStore(conn)
	}
	eng, err := langparser.New(
		langparser.WithLogger(a.log),
		langparser.WithSink(sink),
		langparser.WithSegmenters(segs),
		store,
		langparser.WithIngest(a.cfg.Workers, a.cfg.BatchSize),
	)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	var (
		once     sync.Once
		closeErr error
	)
	closeFn := func() error {
		once.Do(func() {
			closeErr = eng.Close()
			if err := conn.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		})
		return closeErr
	}
	return eng, closeFn, nil
}

// loadDocument reads a URL, an HTML or text file, or stdin ("-" or no argument).
func (a *app) loadDocument(cmd *cobra.Command, args []string, article bool) (source.Document, error) {
	target := "-"
	if len(args) > 0 {
		target = args[0]
	}
	switch {
	case target == "-":
		return source.FromText(cmd.InOrStdin())
	case isURL(target):
		opts := []source.FetchOption{
			source.WithHTTPClient(&http.Client{Timeout: a.cfg.Fetch.Timeout}),
			source.WithCacheTTL(a.cfg.Fetch.CacheTTL),
			source.WithFetchLogger(a.log),
		}
		if a.cfg.Fetch.UserAgent != "" {
			opts = append(opts, source.WithUserAgent(a.cfg.Fetch.UserAgent))
		}
		a.log.Info("fetching", "url", target)
		return source.NewFetcher(opts...).Load(cmd.Context(), target, article)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		return source.Document{}, err
	}
	switch ext := filepath.Ext(target); {
	case article:
		return source.FromArticle(content, "")
	case ext == ".html" || ext == ".htm":
		return source.FromHTML(content, "")
	default:
		doc, err := source.FromText(bytes.NewReader(content))
		doc.Title = filepath.Base(target)
		return doc, err
	}
}
