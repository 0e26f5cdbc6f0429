package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/pkg/pipeline"
	"github.com/menta2k/vision-amp/pkg/types"
)

var (
	imageSources []string
	jsonOutput   bool
	stream       bool
	maxTokens    int
	temperature  float64
	topP         float64
)

// askCmd sends one prompt about one or more images
var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Ask a question about an image",
	Long: `Uploads every --image (file path or http(s) URL) and asks the prompt about
each distinct one.

Example:
  vision-amp ask --image hurricane.png "Which areas are flooded?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// enrichCmd runs the two-stage weather enrichment
var enrichCmd = &cobra.Command{
	Use:   "enrich [prompt]",
	Short: "Analyze a disaster map and refine it with current weather alerts",
	Long: `Asks the model for affected locations as JSON, looks up current weather alerts
for each, and asks again with the alert summaries. Without a prompt a built-in
prompt requesting the JSON list is used.`,
	Args: cobra.ArbitraryArgs,
	RunE: runEnrich,
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, enrichCmd} {
		cmd.Flags().StringSliceVarP(&imageSources, "image", "i", nil, "Image file or URL (repeatable)")
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
		cmd.Flags().BoolVar(&stream, "stream", false, "Stream the answer as it is generated")
		cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Override max_tokens (1-10240)")
		cmd.Flags().Float64Var(&temperature, "temperature", -1, "Override temperature (0-2)")
		cmd.Flags().Float64Var(&topP, "top-p", -1, "Override top_p (0-1)")
		_ = cmd.MarkFlagRequired("image")
	}
}

// newSession builds a session, applies parameter flags and uploads the images
func newSession(ctx context.Context, cmd *cobra.Command) (*visionamp.Session, []types.StoredImage, error) {
	session, err := visionamp.NewSession(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	params := session.Params()
	if cmd.Flags().Changed("stream") {
		params.Stream = stream
	}
	if maxTokens > 0 {
		params.MaxTokens = maxTokens
	}
	if temperature >= 0 {
		params.Temperature = temperature
	}
	if topP >= 0 {
		params.TopP = topP
	}
	if err := session.SetParams(params); err != nil {
		return nil, nil, err
	}

	var images []types.StoredImage
	for _, src := range imageSources {
		img, isNew, err := session.UploadSource(ctx, src)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", src, err)
		}
		if !isNew {
			fmt.Fprintf(os.Stderr, "%s is already uploaded as %s, skipping\n", src, img.Name)
			continue
		}
		images = append(images, img)
	}
	return session, images, nil
}

type askOutput struct {
	Image    string `json:"image"`
	Model    string `json:"model"`
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, images, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	prompt := strings.Join(args, " ")

	var outputs []askOutput
	for _, img := range images {
		if !jsonOutput && len(images) > 1 {
			fmt.Printf("== %s\n", img.Name)
		}
		var opts []visionamp.QueryOption
		opts = append(opts, visionamp.WithImage(img.Hash))
		if !jsonOutput {
			opts = append(opts, visionamp.WithDelta(func(chunk string) { fmt.Print(chunk) }))
		}

		resp, err := session.Ask(ctx, prompt, opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
		if jsonOutput {
			outputs = append(outputs, askOutput{Image: img.Name, Model: session.Model().Name, Text: resp.Text, Fallback: resp.Fallback})
			continue
		}
		printAnswer(os.Stdout, resp, session.Params().Stream)
	}

	if jsonOutput {
		return printJSON(outputs)
	}
	return nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, images, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	if !session.CanEnrich() {
		return fmt.Errorf("%w: set search.provider and its API key", pipeline.ErrSearchNotConfigured)
	}

	prompt := strings.Join(args, " ")
	if prompt == "" {
		prompt = pipeline.DefaultPrompt
	}

	var results []*pipeline.EnrichmentResult
	for _, img := range images {
		result, err := session.Enrich(ctx, prompt, visionamp.WithImage(img.Hash))
		if err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
		if jsonOutput {
			results = append(results, result)
			continue
		}

		fmt.Printf("== %s\nInitial analysis:\n%s\n\n", img.Name, result.StageA.Text)
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		for _, ev := range result.Events {
			if ev.Err == nil {
				fmt.Printf("  %s\n", ev.Summary)
			}
		}
		fmt.Printf("\nEnriched analysis:\n%s\n", result.StageB.Text)
	}

	if jsonOutput {
		return printJSON(results)
	}
	return nil
}

// printAnswer finishes an answer. Streamed text is already on screen unless no
// content arrived, in which case the fallback text is printed.
func printAnswer(w io.Writer, resp types.VisionResponse, streamed bool) {
	if streamed && !resp.Fallback {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, resp.Text)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
