// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/cloud"
	"github.com/jaycherian/gcp-go-content-extractor/internal/telemetry"
)

type commandContext struct {
	configDir string
	runtime   string
	jsonOut   bool
	verbose   bool

	// newApp builds the services; tests replace it.
	newApp func(ctx context.Context, config *cloud.Config) (*app.App, error)

	once   sync.Once
	app    *app.App
	appErr error
}

func newCommandContext() *commandContext {
	return &commandContext{newApp: app.New}
}

func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.once.Do(func() {
		level := slog.LevelWarn
		if c.verbose {
			level = slog.LevelDebug
		}
		if _, err := telemetry.SetupLogging(telemetry.LogOptions{Writer: os.Stderr, Level: level}); err != nil {
			c.appErr = err
			return
		}
		config, err := app.LoadConfig(c.configDir, c.runtime)
		if err != nil {
			c.appErr = err
			return
		}
		c.app, c.appErr = c.newApp(ctx, config)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
	}
}

// withApp runs fn with the wired services.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	a, err := c.ensureApp(cmd.Context())
	if err != nil {
		return err
	}
	return fn(a)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "extractor",
		Short:         "Extract transcripts from YouTube and Instagram and turn them into content ideas",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.configDir, "config-dir", "configs", "Directory holding .env.toml")
	rootCmd.PersistentFlags().StringVar(&ctx.runtime, "runtime", "local", "Runtime overlay (.env.<runtime>.toml)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOut, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Debug logging on stderr")

	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newLookupCommand(ctx))
	rootCmd.AddCommand(newTranscribeCommand(ctx))
	rootCmd.AddCommand(newIdeasCommand(ctx))
	rootCmd.AddCommand(newCarouselCommand(ctx))
	rootCmd.AddCommand(newTrendsCommand(ctx))
	rootCmd.AddCommand(newProfileCommand(ctx))

	return rootCmd
}
