package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/literesearch/config"
	"github.com/mohammad-safakhou/literesearch/internal/research"
	srv "github.com/mohammad-safakhou/literesearch/internal/server"
	"github.com/mohammad-safakhou/literesearch/internal/telemetry"
)

func main() {
	root := &cobra.Command{Use: "literesearch", Short: "LLM research pipeline"}

	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr == "" {
				serveAddr = os.Getenv("LITERESEARCH_HTTP_ADDR")
			}
			return srv.Run(cfgPath, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	var (
		reportType string
		tone       string
		subQueries int
		subtopics  int
		maxResults int
		outPath    string
	)
	researchCmd := &cobra.Command{
		Use:   "research <topic>",
		Short: "Run one research pipeline and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			rt, err := research.ParseReportType(reportType)
			if err != nil {
				return err
			}
			tn, err := research.ParseTone(tone)
			if err != nil {
				return err
			}
			req := research.Request{
				Topic:              strings.Join(args, " "),
				ReportType:         rt,
				Tone:               tn,
				MaxSubQueries:      pickInt(subQueries, cfg.Research.MaxSubQueries),
				MaxSubtopics:       pickInt(subtopics, cfg.Research.MaxSubtopics),
				MaxResultsPerQuery: pickInt(maxResults, cfg.Research.MaxResultsPerQuery),
			}

			tele := telemetry.NewTelemetry(cfg.Telemetry, nil)
			orch, err := research.NewOrchestrator(cfg, log.New(os.Stderr, "[ORCH] ", log.LstdFlags), tele)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			draft, err := orch.Run(ctx, req)
			if err != nil {
				return err
			}

			markdown := draft.Markdown()
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(markdown+"\n"), 0o644); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
				fmt.Fprintf(os.Stderr, "report written to %s\n", outPath)
				return nil
			}
			fmt.Println(markdown)
			return nil
		},
	}
	researchCmd.Flags().StringVar(&reportType, "type", string(research.ReportTypeSummary), "report type (summary, resource_report, outline_report, custom_report, detailed_report)")
	researchCmd.Flags().StringVar(&tone, "tone", string(research.ToneObjective), "report tone")
	researchCmd.Flags().IntVar(&subQueries, "subqueries", 0, "max sub-queries (default from config)")
	researchCmd.Flags().IntVar(&subtopics, "subtopics", 0, "max subtopics for detailed reports (default from config)")
	researchCmd.Flags().IntVar(&maxResults, "results", 0, "max search results per sub-query (default from config)")
	researchCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the Markdown report to a file")

	root.AddCommand(serve, researchCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func pickInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
