package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xxxsen/datachat/internal/config"
	"github.com/xxxsen/datachat/internal/service"
)

func newNormalizeCommand() *cobra.Command {
	var (
		configPath string
		input      string
		variant    string
	)
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "normalize a saved conversation stream and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			citationCfg := config.CitationConfig{}
			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				citationCfg = cfg.Citation
			}
			r, closeFn, err := openInput(input)
			if err != nil {
				return err
			}
			defer closeFn()

			svc := service.NewCitationService(serviceOptions(citationCfg), nil)
			res, err := svc.NormalizeStream(context.Background(), r, variant, "")
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional path to config.json for citation settings")
	cmd.Flags().StringVar(&input, "input", "-", "conversation stream file, - for stdin")
	cmd.Flags().StringVar(&variant, "variant", "display", "display or card")
	return cmd
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func printResult(w io.Writer, res *service.StreamResult) {
	heading := color.New(color.FgCyan, color.Bold)
	index := color.New(color.FgYellow)
	warn := color.New(color.FgRed)

	if res.Error != "" {
		warn.Fprintf(w, "error: %s\n", res.Error)
	}
	heading.Fprintf(w, "answer (%s)\n", res.Variant)
	fmt.Fprintln(w, res.Text)

	heading.Fprintln(w, "references")
	for i, c := range res.Citations {
		index.Fprintf(w, "[%d] ", i+1)
		fmt.Fprintln(w, c.Label)
	}
	for _, a := range res.Actions {
		index.Fprintf(w, "[%d] ", a.Index)
		if a.URL != "" {
			fmt.Fprintf(w, "%s <%s>\n", a.Title, a.URL)
			continue
		}
		fmt.Fprintln(w, a.Title)
	}
}
