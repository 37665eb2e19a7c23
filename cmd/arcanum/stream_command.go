// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/arcanum/internal/api"
	"github.com/tomtom215/arcanum/internal/wire"
)

// tokenEnvVar supplies the session token when --token is not set.
const tokenEnvVar = "ARCANUM_TOKEN"

type streamOptions struct {
	server    string
	token     string
	spread    string
	question  string
	cards     []string
	drawToken string
	photoRef  string
	raw       bool
	timeout   time.Duration
}

func newStreamCommand() *cobra.Command {
	opts := streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Run a reading against a server and print the stream",
		Example: `  arcanum stream --card "The Fool" --card "The Tower" --card "The Sun" -q "What now?"
  arcanum stream --spread single --photo 6f0c2d7e-0b8e-4c55-9d53-3e2f4b1c9a10`,
		Annotations: skipConfig(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				opts.token = os.Getenv(tokenEnvVar)
			}
			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return runStream(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8740", "Arcanum server base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "Session token (default $"+tokenEnvVar+")")
	cmd.Flags().StringVarP(&opts.spread, "spread", "s", "three-card", "Spread: single, three-card or celtic-cross")
	cmd.Flags().StringVarP(&opts.question, "question", "q", "", "The querent's question")
	cmd.Flags().StringArrayVar(&opts.cards, "card", nil, "Card name or ID in position order (repeatable); the server decides orientation unless --draw-token is set")
	cmd.Flags().StringVar(&opts.drawToken, "draw-token", "", "Token from POST /api/v1/spreads/draw; keeps the drawn orientations")
	cmd.Flags().StringVar(&opts.photoRef, "photo", "", "Reference of an uploaded spread photo (photo mode)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print each unit as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Give up after this long")
	return cmd
}

func (o streamOptions) request() (string, []byte, error) {
	base := strings.TrimRight(o.server, "/")
	switch {
	case o.photoRef != "" && len(o.cards) > 0:
		return "", nil, errors.New("use either --photo or --card, not both")
	case o.photoRef != "":
		body, err := json.Marshal(api.PhotoReadingRequest{SpreadType: o.spread, Question: o.question, PhotoRef: o.photoRef})
		return base + "/api/v1/readings/photo/stream", body, err
	case len(o.cards) > 0:
		body, err := json.Marshal(api.ManualReadingRequest{SpreadType: o.spread, Question: o.question, Cards: parseSelections(o.cards), DrawToken: o.drawToken})
		return base + "/api/v1/readings/stream", body, err
	default:
		return "", nil, errors.New("a reading needs --card selections or a --photo reference")
	}
}

func runStream(ctx context.Context, out io.Writer, opts streamOptions) error {
	url, body, err := opts.request()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", api.StreamContentType)
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", opts.server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return printUnits(out, wire.NewReader(resp.Body), opts.raw)
}

// responseError turns an API error envelope into an error.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope api.APIResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		return fmt.Errorf("server refused the reading (%d %s): %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("server refused the reading: %s", resp.Status)
}

// printUnits renders the stream as it arrives. Text fragments of one stage
// are printed inline; a new stage starts a new block.
func printUnits(out io.Writer, r *wire.Reader, raw bool) error {
	colorize := shouldColorize(out)
	var current wire.Type

	for u, err := range r.Units() {
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if raw {
			line, err := json.Marshal(u)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(line))
			if u.Type == wire.TypeError {
				return fmt.Errorf("reading failed: %s", u.Content)
			}
			continue
		}

		switch u.Type {
		case wire.TypeStatus:
			if current != "" {
				fmt.Fprintln(out)
				current = ""
			}
			fmt.Fprintln(out, paint("· "+u.Content, unitColor(u.Type), colorize))
		case wire.TypeCards, wire.TypeIndividual, wire.TypeGeneral:
			if u.Type != current {
				if current != "" {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, paint("== "+string(u.Type)+" ==", ansiBlue, colorize))
				current = u.Type
			}
			fmt.Fprint(out, paint(u.Content, unitColor(u.Type), colorize))
		case wire.TypeDone:
			if current != "" {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, paint("Reading "+u.ReadingID+" saved", unitColor(u.Type), colorize))
			return nil
		case wire.TypeError:
			if current != "" {
				fmt.Fprintln(out)
			}
			return fmt.Errorf("reading failed: %s", u.Content)
		}
	}

	if r.Partial() {
		return errors.New("stream ended inside a unit")
	}
	if raw {
		return nil
	}
	return errors.New("stream ended without a done unit")
}
