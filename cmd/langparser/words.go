package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/japaniel/langparser/pkg/dictionary"
	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/script"
)

func (a *app) newWordCmd() *cobra.Command {
	var (
		cycle  bool
		level  int
		notes  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "word <text>",
		Short: "Show or edit one word",
		Long: `Show a word's familiarity, notes and pronunciation, adding it at
familiarity 0 if it is new. --cycle advances the familiarity by one (4 wraps
to 0); --set and --notes replace it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.variant()
			if err != nil {
				return err
			}
			eng, closeEngine, err := a.openEngine(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			sess, err := eng.Edit().Open(v, args[0])
			if err != nil {
				return err
			}
			if cycle {
				if _, err := sess.Cycle(); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("set") {
				if err := sess.SetFamiliarity(level); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("notes") {
				if err := sess.SetNotes(notes); err != nil {
					return err
				}
			}
			state := sess.State()
			if err := eng.Edit().Close(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				entry, err := knowledge.EncodeEntry(v, state)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(entry))
				return closeEngine()
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "word\t%s\n", args[0])
			fmt.Fprintf(tw, "familiarity\t%d\n", state.Familiarity)
			if state.Pronunciation != "" {
				fmt.Fprintf(tw, "pronunciation\t%s\n", state.Pronunciation)
			}
			if state.Notes != "" {
				fmt.Fprintf(tw, "notes\t%s\n", state.Notes)
			}
			if u := v.LookupURL(args[0]); u != "" {
				fmt.Fprintf(tw, "lookup\t%s\n", u)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return closeEngine()
		},
	}
	cmd.Flags().BoolVar(&cycle, "cycle", false, "advance familiarity by one")
	cmd.Flags().IntVar(&level, "set", 0, "set familiarity (0-4)")
	cmd.Flags().StringVar(&notes, "notes", "", "replace the notes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entry in snapshot form")
	return cmd
}

func (a *app) newWordsCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "words",
		Short: "List the words of the knowledgebase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.variant()
			if err != nil {
				return err
			}
			eng, closeEngine, err := a.openEngine(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			filter := cmd.Flags().Changed("level")
			tokens := eng.Knowledge().Tokens(v)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, w := range eng.Knowledge().Words(v) {
				s := tokens[w]
				if filter && s.Familiarity != level {
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", w, s.Familiarity, s.Pronunciation, s.Notes)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return closeEngine()
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "only list words at this familiarity")
	return cmd
}

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the knowledgebase snapshot as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeEngine, err := a.openEngine(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			data, err := eng.ExportSnapshot()
			if err != nil {
				return err
			}
			if len(args) == 0 || args[0] == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			a.log.Info("exported knowledgebase", "path", args[0], "bytes", len(data))
			return closeEngine()
		},
	}
}

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the knowledgebase with a JSON snapshot",
		Long: `Replace the whole knowledgebase with a snapshot written by export (or by
the browser extension). A snapshot without top-level "tokens" and
"userStats" is rejected and nothing changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			eng, closeEngine, err := a.openEngine(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			if err := eng.LoadSnapshot(data); err != nil {
				return err
			}
			for _, v := range script.Variants() {
				if n := len(eng.Knowledge().Words(v)); n > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d words\n", v, n)
				}
			}
			return closeEngine()
		},
	}
}

func (a *app) newDictCmd() *cobra.Command {
	dict := &cobra.Command{
		Use:   "dict",
		Short: "Manage Chinese dictionaries",
	}
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Download the configured CEDICT file of the language if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.variant()
			if err != nil {
				return err
			}
			d, ok := a.cfg.Dictionaries[string(v)]
			if !ok || d.CEDICT == "" {
				return fmt.Errorf("no dictionaries.%s.cedict path configured", v)
			}
			url := d.URL
			if url == "" && v == script.Mandarin {
				url = dictionary.CEDICTURL
			}
			if err := dictionary.EnsureDictionary(cmd.Context(), d.CEDICT, url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dictionary ready at %s\n", d.CEDICT)
			return nil
		},
	}
	dict.AddCommand(fetch)
	return dict
}
