package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
)

type rootOptions struct {
	configPath string
	dataDir    string
	backend    string
	timezone   string
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "entitlectl",
		Short:         "Inspect and edit entitlement state",
		Long:          `Show the subscription tier and today's usage, evaluate feature gates, and record or reset usage.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default <data-dir>/entitlectl.yaml)")
	f.StringVar(&opts.dataDir, "data-dir", "", "directory of the file store")
	f.StringVar(&opts.backend, "store", "", "store backend: file or redis")
	f.StringVar(&opts.timezone, "timezone", "", "IANA zone whose midnight resets usage")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")
	f.BoolVar(&opts.jsonOut, "json", false, "print JSON")

	cmd.AddCommand(
		newStatusCmd(opts),
		newCheckCmd(opts),
		newRecordCmd(opts),
		newConsumeCmd(opts),
		newTierCmd(opts, "upgrade", "Switch to the premium tier"),
		newTierCmd(opts, "downgrade", "Switch to the free tier"),
		newResetCmd(opts),
		newFeaturesCmd(opts),
	)
	return cmd
}

// session opens the engine described by the flags and config file.
func (o *rootOptions) session(cmd *cobra.Command) (*entitle.Engine, error) {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	path, explicit := o.configPath, o.configPath != ""
	if !explicit {
		dir := o.dataDir
		if dir == "" {
			dir = defaultConfig().DataDir
		}
		path = filepath.Join(dir, "entitlectl.yaml")
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return nil, err
	}

	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.backend != "" {
		cfg.Store = o.backend
	}
	if o.timezone != "" {
		cfg.Timezone = o.timezone
	}

	s, err := cfg.openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	engineOpts, err := cfg.engineOptions()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	engineOpts = append(engineOpts, entitle.WithLogger(logger))

	e := entitle.New(s, engineOpts...)
	if err := e.Start(cmd.Context()); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Debug("entitlectl: session opened", "store", cfg.Store, "data_dir", cfg.DataDir)
	return e, nil
}

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tier and today's usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.session(cmd)
			if err != nil {
				return err
			}
			defer e.Stop()

			st := e.State()
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			limits := e.Gate().Limits()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Tier:     %s\n", st.Tier)
			fmt.Fprintf(w, "Date:     %s\n", st.Ledger.Date)
			fmt.Fprintf(w, "Messages: %d/%d\n", st.Ledger.MessageCount, limits.DailyMessages)
			fmt.Fprintf(w, "Actions:  %d/%d\n", st.Ledger.ActionCount, limits.DailyActions)
			return nil
		},
	}
}

func newCheckCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "check FEATURE...",
		Short:   "Evaluate feature gates",
		Example: `  entitlectl check ai_chat vet_finder`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.session(cmd)
			if err != nil {
				return err
			}
			defer e.Stop()

			verdicts := make([]entitlement.Verdict, 0, len(args))
			for _, key := range args {
				verdicts = append(verdicts, e.Evaluate(cmd.Context(), key))
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), verdicts)
			}
			for _, v := range verdicts {
				printVerdict(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func newRecordCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "record message|action",
		Short:     "Count one unit of usage for today",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(meter.KindMessage), string(meter.KindAction)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := meter.Kind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("%w: %q", entitle.ErrInvalidKind, args[0])
			}

			e, err := o.session(cmd)
			if err != nil {
				return err
			}
			defer e.Stop()

			if kind == meter.KindAction {
				e.RecordAction(cmd.Context())
			} else {
				e.RecordMessage(cmd.Context())
			}
			return printLedger(cmd.OutOrStdout(), o.jsonOut, e.PeekLedger(cmd.Context()))
		},
	}
}

func newConsumeCmd(o *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "consume FEATURE",
		Short: "Check a feature and record usage if allowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.session(cmd)
			if err != nil {
				return err
			}
			defer e.Stop()

			v, err := e.Consume(cmd.Context(), args[0], meter.Kind(kind))
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			printVerdict(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(meter.KindMessage), "usage kind: message or action")
	return cmd
}

func newTierCmd(o *rootOptions, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.session(cmd)
			if err != nil {
				return err
			}
			defer e.Stop()

			if use == "upgrade" {
				e.Upgrade(cmd.Context())
			} else {
				e.Downgrade(cmd.Context())
			}
			st := e.State()
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tier: %s\n", st.Tier)
			return nil
		},
	}
}

func newResetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear today's usage counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.session(cmd)
			if err != nil {
				return err
			}
			defer e.Stop()

			return printLedger(cmd.OutOrStdout(), o.jsonOut, e.ResetUsage(cmd.Context()))
		},
	}
}

func newFeaturesCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the free-tier decision table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			features := slices.Clone(plan.Free().Features)
			slices.SortFunc(features, func(a, b plan.Feature) int {
				if c := cmp.Compare(a.Type, b.Type); c != 0 {
					return c
				}
				return cmp.Compare(a.Key, b.Key)
			})
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), features)
			}
			for _, f := range features {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", f.Type, f.Key)
			}
			return nil
		},
	}
}

func printVerdict(w io.Writer, v entitlement.Verdict) {
	if v.Allowed {
		fmt.Fprintf(w, "%s: allowed\n", v.Feature)
		return
	}
	fmt.Fprintf(w, "%s: denied (%s)\n", v.Feature, v.Reason)
}

func printLedger(w io.Writer, jsonOut bool, l meter.Ledger) error {
	if jsonOut {
		return writeJSON(w, l)
	}
	_, err := fmt.Fprintf(w, "%s messages=%d actions=%d\n", l.Date, l.MessageCount, l.ActionCount)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
