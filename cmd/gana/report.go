package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/ganabosques/ganabosques-geo/internal/export"
	"github.com/ganabosques/ganabosques-geo/internal/report"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/riskapi"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
	"github.com/ganabosques/ganabosques-geo/internal/session"
	"github.com/ganabosques/ganabosques-geo/internal/templates"
)

// reportCommand runs the CSV-to-PDF workflow once without starting a server.
func reportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a risk report from a CSV of ids",
		Example: `  gana report --file farms.csv --kind farm --label 2022-2023 --out farms.pdf
  gana report --file adm3.csv --kind adm3 --type cumulative --csv --out adm3.csv`,
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts)
			if err := runReport(cmd, opts); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().String("file", "", "CSV file listing the ids")
	cmd.Flags().String("kind", "farm", "Entity kind: adm3, farm or enterprise")
	cmd.Flags().String("type", string(risk.TypeAnnual), "Risk type: annual or cumulative")
	cmd.Flags().StringArray("label", nil, "Period label (YYYY-YYYY) to keep; repeatable")
	cmd.Flags().String("column", report.DefaultColumn, "Id column")
	cmd.Flags().String("out", "", "Output file; defaults to the input name with .pdf or .csv")
	cmd.Flags().Bool("csv", false, "Write the table as CSV instead of PDF")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runReport(cmd *cobra.Command, opts *Options) error {
	flags := cmd.Flags()
	file, _ := flags.GetString("file")
	kindFlag, _ := flags.GetString("kind")
	typ, _ := flags.GetString("type")
	labels, _ := flags.GetStringArray("label")
	column, _ := flags.GetString("column")
	out, _ := flags.GetString("out")
	asCSV, _ := flags.GetBool("csv")

	kind, err := risk.ParseKind(kindFlag)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if out == "" {
		ext := ".pdf"
		if asCSV {
			ext = ".csv"
		}
		out = file[:len(file)-len(filepath.Ext(file))] + ext
	}

	var sess *session.Session
	if opts.Token != "" {
		sess = session.New(session.Static(session.Credential{Token: opts.Token}))
		sess.Set(session.Credential{Token: opts.Token})
	}
	client := riskapi.NewClient(opts.APIURL, sess, riskapi.WithBatchSize(opts.BatchSize))

	renderer, err := templates.New()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	engine := report.NewEngine(filepath.Base(file), report.Options{
		Fetcher:  client,
		Exporter: export.NewChromiumExporter(opts.ChromePath),
		Render:   report.HTMLRenderer(renderer),
		OnChange: func(s report.Snapshot) {
			log.WithFields(log.Fields{"state": s.State, "rows": s.ResultRows}).Debug("report state")
		},
	})

	if err := engine.Select(report.File{Name: filepath.Base(file), Data: data}); err != nil {
		return err
	}
	if err := engine.Parse(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	snap, err := engine.Generate(ctx, report.Request{
		Kind:   kind,
		Type:   risk.Type(typ),
		Column: column,
		Labels: labels,
	})
	if err != nil {
		return err
	}
	summary := report.Summarize(snap.Result)
	fmt.Print(summary.Markdown(snap.Result.Request))

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if asCSV {
		if err := risktable.WriteCSV(f, snap.Result.Rows); err != nil {
			return err
		}
	} else {
		doc, err := engine.Export(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := f.Write(doc); err != nil {
			return err
		}
	}
	fmt.Printf("\nWrote %s (%d rows)\n", out, snap.ResultRows)
	return nil
}
