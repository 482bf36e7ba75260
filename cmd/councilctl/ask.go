package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"council/internal/council"
)

var errSessionFailed = errors.New("council session failed")

func newAskCmd() *cobra.Command {
	var (
		server string
		apiKey string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Convene the council on a question",
		Example: `
# Ask a local gateway, reading the key from GROQ_API_KEY
councilctl ask "Should remote work be mandatory?"

# Save the decree
councilctl ask --out decree.md "Is nuclear power green?"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("GROQ_API_KEY")
			}
			prompt := strings.Join(args, " ")
			report, err := ask(cmd.Context(), cmd.OutOrStdout(), server, prompt, apiKey)
			if err != nil {
				return err
			}
			if out != "" {
				if err := os.WriteFile(out, []byte(report), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s decree saved to %s\n", color.GreenString("✓"), out)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Gateway base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Provider API key (defaults to $GROQ_API_KEY)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the final decree to a file instead of stdout")
	return cmd
}

// ask posts one session to the gateway, renders its progress to w and
// returns the final report.
func ask(ctx context.Context, w io.Writer, server, prompt, apiKey string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt, "apiKey": apiKey})
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(server, "/") + "/api/council"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("contact gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, e.Error)
		}
		return "", fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	r := newRenderer(w)
	if id := resp.Header.Get("X-Council-Session"); id != "" {
		r.session(id)
	}
	var report string
	err = readEvents(resp.Body, func(ev council.RawEvent) error {
		done, err := r.render(ev)
		if err != nil {
			return err
		}
		if done != "" {
			report = done
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if r.failed != "" {
		return "", fmt.Errorf("%w: %s", errSessionFailed, r.failed)
	}
	if report == "" {
		return "", fmt.Errorf("%w: stream ended without a verdict", errSessionFailed)
	}
	return report, nil
}
