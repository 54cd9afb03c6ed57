package main

import (
	"github.com/spf13/cobra"

	"github.com/ehr/comorbidity/internal/domain/comorbidity"
)

func scoreCmd() *cobra.Command {
	var (
		req     comorbidity.Request
		year    int
		format  string
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "score CODE...",
		Short: "Score a set of ICD-10 codes",
		Example: `  comorbidity score E10.0 E10.2
  comorbidity score B18.2 --version icd10gmquan --explain --format yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req.Codes = args
			req.Year = comorbidity.Year(year)
			svc := a.service()
			out := cmd.OutOrStdout()

			if explain {
				res, err := svc.Explain(cmd.Context(), req)
				if err != nil {
					return err
				}
				return write(out, format, res)
			}
			res, err := svc.Score(cmd.Context(), req)
			if err != nil {
				return err
			}
			return write(out, format, res)
		},
	}
	cmd.Flags().StringVar(&req.Scheme, "scheme", "", "Scoring scheme (default charlson)")
	cmd.Flags().StringVar(&req.Version, "version", "", "Code-system version (default icd10gm)")
	cmd.Flags().IntVar(&year, "year", 0, "Applicable year; the closest earlier table is used")
	cmd.Flags().BoolVar(&req.Exact, "exact", false, "Match candidate codes exactly instead of by prefix")
	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format: json or yaml")
	cmd.Flags().BoolVar(&explain, "explain", false, "Include triggering codes and suppressed categories")
	return cmd
}
