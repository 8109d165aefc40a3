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
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-content-extractor/internal/app"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
)

// readTranscript returns the transcript given on the command line: the
// contents of file, or the extraction of url when no file is set.
func readTranscript(cmd *cobra.Command, a *app.App, file string, url string) (string, error) {
	switch {
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return strings.TrimSpace(string(data)), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	case url != "":
		result, err := a.Extraction.Extract(cmd.Context(), model.ExtractionRequest{URL: url}, nil)
		if err != nil {
			return "", err
		}
		return result.Transcript, nil
	}
	return "", model.NewValidationError("transcript", "set --transcript-file or --url")
}

func newIdeasCommand(ctx *commandContext) *cobra.Command {
	var file, url, mode string
	cmd := &cobra.Command{
		Use:   "ideas",
		Short: "Generate content ideas from a transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ideaMode, err := model.ParseIdeaMode(mode)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				gen, err := a.GenerationService()
				if err != nil {
					return err
				}
				transcript, err := readTranscript(cmd, a, file, url)
				if err != nil {
					return err
				}
				ideas, err := gen.GenerateIdeas(cmd.Context(), transcript, ideaMode)
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					return writeJSON(cmd, ideas)
				}
				rows := make([][]string, 0, len(ideas))
				for n, idea := range ideas {
					rows = append(rows, []string{strconv.Itoa(n + 1), idea.Title, idea.StructuralPattern, idea.Rationale})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"#", "Title", "Pattern", "Why it works"}, rows,
					[]columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "transcript-file", "f", "", "Transcript file, - for stdin")
	cmd.Flags().StringVarP(&url, "url", "u", "", "Extract this URL first and use its transcript")
	cmd.Flags().StringVarP(&mode, "mode", "m", "viral", "viral or sales")
	cmd.MarkFlagsMutuallyExclusive("transcript-file", "url")
	return cmd
}

func newCarouselCommand(ctx *commandContext) *cobra.Command {
	var file, url, title, pattern, rationale string
	cmd := &cobra.Command{
		Use:   "carousel",
		Short: "Write a carousel script for an idea",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				gen, err := a.GenerationService()
				if err != nil {
					return err
				}
				transcript, err := readTranscript(cmd, a, file, url)
				if err != nil {
					return err
				}
				idea := model.ContentIdea{Title: title, StructuralPattern: pattern, Rationale: rationale}
				script, err := gen.GenerateCarousel(cmd.Context(), idea, transcript)
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					return writeJSON(cmd, script)
				}
				rows := make([][]string, 0, len(script.Slides))
				for _, slide := range script.Slides {
					rows = append(rows, []string{strconv.Itoa(slide.PanelNumber), slide.Phase, slide.Text, slide.DesignNote})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"Slide", "Phase", "Text", "Design"}, rows,
					[]columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "transcript-file", "f", "", "Transcript file, - for stdin")
	cmd.Flags().StringVarP(&url, "url", "u", "", "Extract this URL first and use its transcript")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Idea title")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Structural pattern of the idea")
	cmd.Flags().StringVar(&rationale, "rationale", "", "Why the idea works")
	cmd.MarkFlagsMutuallyExclusive("transcript-file", "url")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTrendsCommand(ctx *commandContext) *cobra.Command {
	var req model.TrendRequest
	var script int
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Suggest trending topics for a niche and optionally script one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				gen, err := a.GenerationService()
				if err != nil {
					return err
				}
				trends, err := gen.GenerateTrends(cmd.Context(), req)
				if err != nil {
					return err
				}
				if script > len(trends) {
					return model.NewValidationError("script", fmt.Sprintf("only %d trends were generated", len(trends)))
				}
				var text string
				if script > 0 {
					if text, err = gen.WriteTrendScript(cmd.Context(), trends[script-1], req); err != nil {
						return err
					}
				}
				if ctx.jsonOut {
					return writeJSON(cmd, struct {
						Trends model.TrendIdeas `json:"trends"`
						Script string           `json:"script,omitempty"`
					}{trends, text})
				}
				rows := make([][]string, 0, len(trends))
				for n, trend := range trends {
					rows = append(rows, []string{strconv.Itoa(n + 1), trend.Title, trend.Hype, trend.Hook})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"#", "Trend", "Hype", "Hook"}, rows,
					[]columnAlignment{alignRight}))
				if text != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.Niche, "niche", "n", "", "Niche to search trends for")
	cmd.Flags().StringVarP(&req.Window, "window", "w", "last 7 days", "Time window of the trends")
	cmd.Flags().StringVar(&req.Tone, "tone", "", "Tone of voice")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Extra instructions")
	cmd.Flags().IntVar(&script, "script", 0, "Write a script for the Nth trend (1-based)")
	return cmd
}

func newProfileCommand(ctx *commandContext) *cobra.Command {
	var req model.ProfileRequest
	var platform string
	cmd := &cobra.Command{
		Use:   "profile HANDLE",
		Short: "Rank a profile's recent posts by views and transcribe the top ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Handle = args[0]
			req.Platform = model.Platform(platform)
			if err := req.Normalize(); err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				rows, err := a.Profiles.Analyze(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					return writeJSON(cmd, rows)
				}
				table := make([][]string, 0, len(rows))
				failed := 0
				for _, row := range rows {
					status := string(row.Source)
					if row.Known {
						status = "known"
					}
					if row.Error != "" {
						status = preview(row.Error, 40)
						failed++
					}
					table = append(table, []string{
						row.Item.PostedAt.Local().Format("2006-01-02"),
						strconv.FormatInt(row.Item.ViewCount, 10),
						row.Item.SourceURL,
						status,
						preview(row.Transcript, 50),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"Posted", "Views", "URL", "Status", "Transcript"}, table,
					[]columnAlignment{alignLeft, alignRight}))
				if failed > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d posts could not be transcribed\n", failed, len(rows))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "reel", "reel, carousel or youtube")
	cmd.Flags().IntVarP(&req.Days, "days", "d", 30, "Only posts from the last N days")
	cmd.Flags().IntVar(&req.TopN, "top", 10, "Keep the N most viewed posts")
	cmd.Flags().IntVar(&req.TranscribeTop, "transcribe", 3, "Transcribe the first N of the top posts")
	cmd.Flags().IntVar(&req.ScrapeLimit, "limit", 30, "Posts to scrape before filtering")
	return cmd
}
