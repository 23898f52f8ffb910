package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ganabosques/ganabosques-geo/internal/server"
)

// Options defines all CLI flags and env vars for the server.
// Flags: --host, --port, --api-url, --token, --batch-size, --refresh,
// --debounce, --chrome-path, --data-dir, --templates, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_API_URL, SERVICE_TOKEN, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	APIURL     string `name:"api-url" doc:"Base URL of the remote risk service" default:"http://localhost:8000"`
	Token      string `doc:"Bearer token for the remote risk service"`
	BatchSize  int    `name:"batch-size" doc:"Ids per remote request" default:"400"`
	Refresh    string `doc:"Credential refresh interval" default:"5m"`
	Debounce   string `doc:"View search debounce" default:"300ms"`
	ChromePath string `name:"chrome-path" doc:"Chrome/Chromium binary used for PDF export"`
	DataDir    string `name:"data-dir" doc:"DuckDB workspace directory; empty keeps it in memory"`
	Templates  string `doc:"Directory of report and fragment templates overriding the embedded ones"`
	LogLevel   string `name:"log-level" doc:"Log level: debug, info, warn, error" default:"info"`
}

func duration(name, v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		log.WithError(err).Warnf("invalid %s %q, using default", name, v)
		return 0
	}
	return d
}

func setupLogging(opts *Options) {
	log.SetHandler(text.New(os.Stderr))
	log.SetLevelFromString(opts.LogLevel)
}

func newServer(opts *Options) *server.Server {
	setupLogging(opts)
	srv, err := server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		APIURL:     opts.APIURL,
		Token:      opts.Token,
		BatchSize:  opts.BatchSize,
		Refresh:    duration("refresh", opts.Refresh),
		ChromePath: opts.ChromePath,
		DataDir:    opts.DataDir,
		Templates:  opts.Templates,
		Quiet:      duration("debounce", opts.Debounce),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		httpSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port)}

		hooks.OnStart(func() {
			srv := newServer(opts)
			defer srv.Close()
			httpSrv.Handler = srv
			go srv.Run(ctx)

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("ganabosques-geo API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Remote:  %s\n", opts.APIURL)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Fatal("server error")
			}
		})

		hooks.OnStop(func() {
			cancel()
			shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = httpSrv.Shutdown(shutdown)
		})
	})

	cli.Root().Use = "gana"
	cli.Root().Short = "Deforestation risk API and CSV-to-PDF report generator"
	cli.Root().Version = "1.0.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Root().AddCommand(reportCommand())

	cli.Run()
}
