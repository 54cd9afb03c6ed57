package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/comorbidity/internal/domain/comorbidity"
)

const maxLineBytes = 1 << 20

func batchCmd() *cobra.Command {
	var (
		input       string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Score requests read as JSON lines",
		Long: `Reads one JSON request per line, for example
  {"id":"p1","codes":["E10.0","E10.2"],"year":2024}
and writes one JSON result per line in input order. Failed items carry an
"error" field; the command fails only on unreadable input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			items, err := readItems(r)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.service()
			svc.SetBatchConcurrency(concurrency)
			results, err := svc.ScoreBatch(cmd.Context(), items)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range results {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON lines file, - for stdin")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel evaluations (default BATCH_CONCURRENCY)")
	return cmd
}

// readItems decodes JSON lines, skipping blank lines.
func readItems(r io.Reader) ([]comorbidity.BatchItem, error) {
	var items []comorbidity.BatchItem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var item comorbidity.BatchItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return items, nil
}
