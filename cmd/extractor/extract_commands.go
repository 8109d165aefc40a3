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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/commands"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// extractRow is the outcome of one URL; Error is scoped to that URL.
type extractRow struct {
	URL    string                  `json:"url"`
	Result *model.ExtractionResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "extract URL...",
		Short: "Extract the transcript of one or more URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				rows := make([]extractRow, 0, len(args))
				failed := 0
				for _, url := range args {
					row := extractRow{URL: url}
					result, err := a.Extraction.Extract(cmd.Context(), model.ExtractionRequest{URL: url, Platform: model.Platform(platform)}, nil)
					if err != nil {
						row.Error = err.Error()
						failed++
					} else {
						row.Result = result
					}
					rows = append(rows, row)
					if cmd.Context().Err() != nil {
						break
					}
				}
				if err := printExtractRows(cmd, ctx.jsonOut, rows); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d extractions failed", failed, len(args))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "youtube, reel or carousel; inferred from the URL when empty")
	return cmd
}

func printExtractRows(cmd *cobra.Command, asJSON bool, rows []extractRow) error {
	if asJSON {
		return writeJSON(cmd, rows)
	}
	out := cmd.OutOrStdout()
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		if row.Result == nil {
			table = append(table, []string{row.URL, "-", "-", "-", preview(row.Error, 60)})
			continue
		}
		r := row.Result
		table = append(table, []string{
			row.URL,
			string(r.Source),
			strconv.FormatBool(r.CacheHit),
			strconv.Itoa(utf8.RuneCountInString(r.Transcript)),
			preview(r.Transcript, 60),
		})
	}
	fmt.Fprintln(out, renderTable(out, []string{"URL", "Source", "Cached", "Chars", "Transcript"}, table,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	return nil
}

func newLookupCommand(ctx *commandContext) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "lookup URL",
		Short: "Show the cached extraction of a URL without running any strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				req := model.ExtractionRequest{URL: args[0], Platform: model.Platform(platform)}
				if err := req.Normalize(); err != nil {
					return err
				}
				record, found, err := a.Store.Lookup(cmd.Context(), req.Platform, req.URL)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: no cached extraction for %s", model.ErrNotFound, req.URL)
				}
				if ctx.jsonOut {
					return writeJSON(cmd, record)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, [][]string{
					{"id", record.Id},
					{"collected_at", record.CollectedAt.Local().Format("2006-01-02 15:04")},
					{"author", record.AuthorHandle},
					{"views", strconv.FormatInt(record.ViewCount, 10)},
					{"source", record.Source},
					{"hook", record.Hook},
				}, nil))
				fmt.Fprintln(out, record.Transcript)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "youtube, reel or carousel")
	return cmd
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe a local audio or video file (not cached)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = file.Close() }()

				transcript, err := a.Uploads.Transcribe(cmd.Context(), &commands.UploadedMedia{FileName: filepath.Base(args[0]), Body: file})
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					return writeJSON(cmd, transcript)
				}
				fmt.Fprintln(cmd.OutOrStdout(), transcript.Text)
				return nil
			})
		},
	}
}
