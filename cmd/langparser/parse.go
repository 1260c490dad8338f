package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/reconcile"
	"github.com/japaniel/langparser/pkg/render"
	"github.com/japaniel/langparser/pkg/source"
)

type parseOptions struct {
	article  bool
	htmlOut  string
	readings bool
	quiet    bool
}

func (o *parseOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.article, "article", false, "extract the main article (readability) instead of every text node")
	cmd.Flags().StringVar(&o.htmlOut, "html", "", "write an annotated HTML page to this path (- for stdout)")
	cmd.Flags().BoolVar(&o.readings, "readings", false, "show pronunciations after words in terminal output")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "do not print the annotated text")
}

func (a *app) newParseCmd() *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse [file|url|-]",
		Short: "Annotate a text file, web page or stdin",
		Long: `Segment the target-language words of a document, add new words to the
knowledgebase at familiarity 0 and print the text with every word colored by
familiarity. The words seen are recorded against the document as its source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.runParse(cmd, args, opts, false)
			return err
		},
	}
	opts.register(cmd)
	return cmd
}

func (a *app) newMarkKnownCmd() *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "mark-known [file|url|-]",
		Short: "Mark every unknown word of a document as known",
		Long: `Annotate a document, then raise every word in it still at familiarity 0 to
4. Words already in progress are left as they are.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.runParse(cmd, args, opts, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d words as known.\n", n)
			return nil
		},
	}
	opts.register(cmd)
	return cmd
}

// runParse annotates a document, optionally marks it known, and writes the
// requested output. It returns the number of words marked known.
func (a *app) runParse(cmd *cobra.Command, args []string, opts *parseOptions, markKnown bool) (int, error) {
	v, err := a.variant()
	if err != nil {
		return 0, err
	}
	doc, err := a.loadDocument(cmd, args, opts.article)
	if err != nil {
		return 0, err
	}

	htmlSink := render.NewHTML()
	term := render.NewTerminal(opts.readings)
	sink := reconcile.SinkFunc(func(h reconcile.Handle, instrs []reconcile.Instruction) error {
		if err := htmlSink.Render(h, instrs); err != nil {
			return err
		}
		return term.Render(h, instrs)
	})

	eng, closeEngine, err := a.openEngine(cmd.Context(), sink, false)
	if err != nil {
		return 0, err
	}
	defer func() { _ = closeEngine() }()

	rep, links, err := eng.ParseDocument(cmd.Context(), v, &doc)
	if err != nil {
		return 0, err
	}
	a.log.Info("parsed document", "title", doc.Title, "regions", len(doc.Regions),
		"annotated", rep.Annotated, "skipped", rep.Skipped, "occurrences", links)

	marked := 0
	if markKnown {
		if marked, err = eng.MarkAllKnown(v); err != nil {
			return 0, err
		}
	}

	if !opts.quiet && opts.htmlOut != "-" {
		if err := term.WriteRegions(cmd.OutOrStdout(), doc.Regions); err != nil {
			return 0, err
		}
	}
	if opts.htmlOut != "" {
		if err := writeHTML(cmd.OutOrStdout(), opts.htmlOut, htmlSink, doc); err != nil {
			return 0, err
		}
	}
	return marked, closeEngine()
}

func writeHTML(stdout io.Writer, path string, sink *render.HTML, doc source.Document) (err error) {
	w := stdout
	if path != "-" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", path, createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		w = f
	}
	return sink.WritePage(w, doc.Title, doc.Regions)
}

func (a *app) newStatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats [file|url|-]",
		Short: "Show familiarity counts",
		Long: `Show how many words of the language are at each familiarity level. With a
document, the words of that document are counted separately (page); words
new to the knowledgebase count at level 0 and are not saved.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.variant()
			if err != nil {
				return err
			}
			eng, closeEngine, err := a.openEngine(cmd.Context(), nil, true)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			if len(args) > 0 {
				doc, err := a.loadDocument(cmd, args, false)
				if err != nil {
					return err
				}
				if _, err := eng.Parse(v, doc.Regions); err != nil {
					return err
				}
			}
			st, err := eng.GetStats(v)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintf(out, "%-6s %8s %8s\n", "level", "full", "page")
			for f := knowledge.MinFamiliarity; f <= knowledge.MaxFamiliarity; f++ {
				fmt.Fprintf(out, "%-6s %8d %8d\n", strconv.Itoa(f), st.Full[f], st.Page[f])
			}
			fmt.Fprintf(out, "%-6s %8d %8d\n", "total", st.Full.Total(), st.Page.Total())
			return closeEngine()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the histograms as JSON")
	return cmd
}
