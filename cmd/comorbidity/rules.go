package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehr/comorbidity/internal/config"
	"github.com/ehr/comorbidity/internal/domain/comorbidity"
	"github.com/ehr/comorbidity/internal/platform/ruletable"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect, validate and import rule tables",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesShowCmd())
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available rule tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			infos, err := a.service().ListRuleSets(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format != "" {
				if err := checkFormat(format); err != nil {
					return err
				}
				return write(out, format, infos)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SCHEME\tVERSION\tYEAR\tCATEGORIES\tMAX SCORE")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", info.Scheme, info.Version, info.Year, info.Categories, info.MaxScore)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: json or yaml (default table)")
	return cmd
}

func rulesShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show SCHEME VERSION YEAR",
		Short: "Print the rule table that applies to scheme, version and year",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			year, err := strconv.Atoi(args[2])
			if err != nil || year <= 0 {
				return fmt.Errorf("%w: %q", comorbidity.ErrInvalidYear, args[2])
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rs, err := a.service().GetRuleSet(cmd.Context(), args[0], args[1], year)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), format, ruletable.FromRuleSet(rs))
		},
	}
	cmd.Flags().StringVar(&format, "format", formatYAML, "Output format: json or yaml")
	return cmd
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check rule table files against the schema and rule-set invariants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range args {
				_, rs, err := ruletable.ReadFile(name)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s\n  %v\n", name, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s  %s (%d categories, max score %d)\n", name, rs.Key(), rs.Len(), rs.MaxScore())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rule tables invalid", failed, len(args))
			}
			return nil
		},
	}
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Validate rule table files and store them in PostgreSQL",
		Long: `Each file replaces the stored table with the same scheme, version and
year. All files are validated before anything is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets := make([]*comorbidity.RuleSet, 0, len(args))
			for _, name := range args {
				_, rs, err := ruletable.ReadFile(name)
				if err != nil {
					return err
				}
				sets = append(sets, rs)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.RulesSource != config.RulesPostgres {
				return errors.New("rules import requires RULES_SOURCE=postgres")
			}
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.service()
			for _, rs := range sets {
				if err := svc.ImportRuleSet(cmd.Context(), rs); err != nil {
					return fmt.Errorf("import %s: %w", rs.Key(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", rs.Key())
			}
			return nil
		},
	}
}
