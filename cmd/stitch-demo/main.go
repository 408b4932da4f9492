// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

// stitch-demo runs a small demonstration service and prints its schema
// catalog. It doubles as a smoke test for the HTTP transport and the
// OpenTelemetry instrumentation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/stitch-rpc/stitch-go/stitch"
	stitchotel "github.com/stitch-rpc/stitch-go/stitch/otel"
)

// config is the YAML server configuration.
type config struct {
	Listen   string `yaml:"listen"`
	Prefix   string `yaml:"prefix"`
	ServerID string `yaml:"server_id"`
	Otel     bool   `yaml:"otel"`
}

func defaultConfig() config {
	return config{
		Listen:   "127.0.0.1:8080",
		ServerID: "stitch-demo",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// --- Demo procedures ---

type EchoParams struct {
	Message string `stitch:"message"`
	Repeat  int    `stitch:"repeat,default=1"`
}

type AddParams struct {
	A float64 `stitch:"a"`
	B float64 `stitch:"b"`
}

type Greeting struct {
	Text     string `stitch:"text"`
	Language string `stitch:"language"`
}

type GreetParams struct {
	Name     string `stitch:"name"`
	Language string `stitch:"language,default=en"`
}

func buildRegistry() (*stitch.Registry, error) {
	registry := stitch.NewRegistry()

	if err := stitch.Query(registry, "echo", func(_ context.Context, _ *stitch.CallContext, p EchoParams) (string, error) {
		return strings.Repeat(p.Message, p.Repeat), nil
	}); err != nil {
		return nil, err
	}

	if err := stitch.Query(registry, "add", func(_ context.Context, _ *stitch.CallContext, p AddParams) (float64, error) {
		return p.A + p.B, nil
	}); err != nil {
		return nil, err
	}

	if err := stitch.Mutation(registry, "greet", func(_ context.Context, _ *stitch.CallContext, p GreetParams) (Greeting, error) {
		text := "Hello, " + p.Name
		if p.Language == "fr" {
			text = "Bonjour, " + p.Name
		}
		return Greeting{Text: text, Language: p.Language}, nil
	}); err != nil {
		return nil, err
	}

	return registry, nil
}

// --- Commands ---

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo procedures over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			registry, err := buildRegistry()
			if err != nil {
				return err
			}

			opts := []stitch.HttpOption{stitch.WithServerID(cfg.ServerID)}
			if cfg.Prefix != "" {
				opts = append(opts, stitch.WithPrefix(cfg.Prefix))
			}
			srv := stitch.NewHttpServer(registry, opts...)

			if cfg.Otel {
				shutdown, err := setupOtel()
				if err != nil {
					return err
				}
				defer shutdown()
				stitchotel.Instrument(srv, stitchotel.DefaultConfig())
			}

			slog.Info("serving", "listen", cfg.Listen, "prefix", cfg.Prefix, "procedures", registry.Procedures())
			return http.ListenAndServe(cfg.Listen, srv.Handler())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the demo schema catalog as JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := buildRegistry()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(registry.Catalog(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// setupOtel installs stdout trace and metric exporters on the global
// providers.
func setupOtel() (func(), error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second)),
	))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
		_ = mp.Shutdown(shutdownCtx)
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "stitch-demo",
		Short: "Demonstration service for the stitch RPC framework",
	}
	root.AddCommand(newServeCmd(), newSchemaCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
