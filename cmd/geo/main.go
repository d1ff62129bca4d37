package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-geo-ogc/internal/config"
	"github.com/joeblew999/plat-geo-ogc/internal/logging"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/server"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/tui"
)

// Options defines all CLI flags and env vars for the geo server.
// Flags: --host, --port, --data-dir, --config, --log-level, --log-format, --locale, --templates
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory for the map and feature store" default:".data"`
	Config    string `doc:"Path to the YAML config file" short:"c" default:"geo.yaml"`
	LogLevel  string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat string `doc:"Log format: text or json" default:"text"`
	Locale    string `doc:"Default dialog locale" default:"en"`
	Templates string `doc:"Load HTML fragments from this directory instead of the embedded set"`
}

func newServer(opts *Options, logger *slog.Logger) (*server.Server, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		Host:        opts.Host,
		Port:        fmt.Sprintf("%d", opts.Port),
		DataDir:     opts.DataDir,
		Locale:      opts.Locale,
		TemplateDir: opts.Templates,
		App:         cfg,
		Logger:      logger,
	})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server
		var srv *server.Server

		hooks.OnStart(func() {
			logger, err := logging.New(opts.LogLevel, opts.LogFormat, os.Stderr)
			if err != nil {
				fatal("Error: %v", err)
			}
			srv, err = newServer(opts, logger)
			if err != nil {
				fatal("Error starting server: %v", err)
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-geo-ogc API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Editor:  %s/editor\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if httpServer != nil {
				httpServer.Shutdown(ctx)
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "geo"
	cli.Root().Short = "Browse OGC services and add their layers to a map"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCommand(), capsCommand(), addLayerCommand())
	cli.Run()
}

// specCommand exports the OpenAPI description.
func specCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(srv.OpenAPI())
			} else {
				output, err = json.MarshalIndent(srv.OpenAPI(), "", "  ")
			}
			if err != nil {
				fatal("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// capsCommand prints the layer tree of a service.
func capsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caps <url>",
		Short: "Print the layer tree of a WMS or WFS endpoint",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			if _, err := logging.New(opts.LogLevel, opts.LogFormat, os.Stderr); err != nil {
				fatal("Error: %v", err)
			}
			client := ogc.NewClient(server.RequestTimeout)

			var (
				tree *ogc.Layer
				err  error
			)
			if wfs, _ := cmd.Flags().GetBool("wfs"); wfs {
				tree, err = (&ogc.WFSService{Client: client}).GetCapabilities(cmd.Context(), args[0])
			} else {
				tree, err = (&ogc.WMSService{Client: client}).GetCapabilities(cmd.Context(), args[0])
			}
			if err != nil {
				fatal("Error: %v", err)
			}

			if useYAML, _ := cmd.Flags().GetBool("yaml"); useYAML {
				out, err := yaml.Marshal(tree)
				if err != nil {
					fatal("Error marshaling tree: %v", err)
				}
				fmt.Print(string(out))
				return
			}
			printTree(os.Stdout, tree, 0)
		}),
	}
	cmd.Flags().Bool("wfs", false, "Query a WFS endpoint instead of WMS")
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML")
	return cmd
}

func printTree(w io.Writer, l *ogc.Layer, depth int) {
	title := l.Title
	if title == "" {
		title = "(no title)"
	}
	line := strings.Repeat("  ", depth) + title
	if l.Name != "" {
		line += " [" + l.Name + "]"
	}
	fmt.Fprintln(w, line)
	for _, child := range l.Layer {
		printTree(w, child, depth+1)
	}
}

// addLayerCommand runs the dialog in the terminal against the stored map.
func addLayerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-layer",
		Short: "Browse a service in the terminal and add a layer to the map",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, err := config.Load(opts.Config)
			if err != nil {
				fatal("Error: %v", err)
			}
			if u, _ := cmd.Flags().GetString("url"); u != "" {
				cfg.Dialog.URL = u
			}
			if wfs, _ := cmd.Flags().GetBool("wfs"); wfs {
				cfg.Dialog.AsVector = true
			}
			cfg.Dialog.AllowUserInput = true

			// The terminal belongs to the UI, so logs go to a file.
			if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
				fatal("Error: %v", err)
			}
			logFile, err := os.OpenFile(filepath.Join(opts.DataDir, "add-layer.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				fatal("Error: %v", err)
			}
			defer logFile.Close()
			logger, err := logging.New(opts.LogLevel, opts.LogFormat, logFile)
			if err != nil {
				fatal("Error: %v", err)
			}

			maps := service.NewMapService(opts.DataDir, service.NewEventBus(), logger)
			if err := server.SeedGroups(maps, cfg.Map.Groups); err != nil {
				fatal("Error: %v", err)
			}
			dialog := server.NewDialog(cfg.Dialog, ogc.NewClient(server.RequestTimeout), maps, opts.Locale, logger)
			dialog.Open(cmd.Context())

			final, err := tea.NewProgram(tui.New(cmd.Context(), dialog, nil)).Run()
			if err != nil {
				dialog.Teardown()
				fatal("Error: %v", err)
			}

			m := final.(tui.Model)
			if m.Added() == nil {
				dialog.Teardown()
				dialog.Wait()
				fmt.Println("No layer added.")
				return
			}
			// Let the style and feature type lookups decorate the layer.
			dialog.Wait()
			dialog.Teardown()

			fmt.Printf("Added %s to the map:\n\n", m.Added().ID())
			out, err := json.MarshalIndent(maps.Snapshot(), "", "  ")
			if err != nil {
				fatal("Error marshaling map: %v", err)
			}
			fmt.Println(string(out))
		}),
	}
	cmd.Flags().String("url", "", "Service URL (defaults to the configured one)")
	cmd.Flags().Bool("wfs", false, "Add the layer as a WFS vector layer")
	return cmd
}
