package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/browserlog/internal/classify"
)

func newClassifyCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "classify [message...]",
		Short: "Classify error messages against known browser debugging conditions",
		Long: `Classify each argument, or each line of stdin when no arguments are
given, against the known error taxonomy.

Examples:
  browserlog classify "dial tcp 127.0.0.1:9222: connect: connection refused"
  grep -i error chrome.log | browserlog classify
  browserlog classify --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				for _, c := range classify.Known() {
					fmt.Fprintln(out, renderClassification("", c, true))
				}
				return nil
			}
			if len(args) > 0 {
				for _, msg := range args {
					printClassification(out, msg)
				}
				return nil
			}
			return classifyLines(cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list known classifications")
	return cmd
}

func classifyLines(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		printClassification(out, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func printClassification(out io.Writer, msg string) {
	c, known := classify.Classify(msg)
	fmt.Fprintln(out, renderClassification(msg, c, known))
}
