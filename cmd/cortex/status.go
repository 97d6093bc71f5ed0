package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/t031a5/internal/dashboard"
	"github.com/normanking/t031a5/internal/runtime"
	"github.com/normanking/t031a5/pkg/theme"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STATUS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func statusCmd() *cobra.Command {
	var (
		addr    string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running loop",
		Long: `Fetch the status of a running loop from its dashboard.

The dashboard must be enabled (dashboard.enabled: true). Without --addr the
address comes from the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.Dashboard.Addr
			}
			st, raw, err := fetchStatus(addr, timeout)
			if err != nil {
				return err
			}
			if asJSON {
				fmt.Println(string(raw))
				return nil
			}
			fmt.Println(renderStatus(st, styles()))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "dashboard address (host:port)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON status")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
	return cmd
}

func fetchStatus(addr string, timeout time.Duration) (runtime.Status, []byte, error) {
	var st runtime.Status
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url + dashboard.StatusEndpoint)
	if err != nil {
		return st, nil, fmt.Errorf("dashboard not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, nil, fmt.Errorf("dashboard returned %s", resp.Status)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return st, nil, fmt.Errorf("decode status: %w", err)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, nil, fmt.Errorf("decode status: %w", err)
	}
	return st, raw, nil
}

func renderStatus(st runtime.Status, sty theme.Styles) string {
	state := sty.OK.Render("running")
	switch {
	case st.Emergency:
		state = sty.Bad.Render("EMERGENCY STOP")
	case !st.Running:
		state = sty.Warn.Render("stopped")
	}

	label := sty.Label.Width(16)
	row := func(name, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, label.Render(name), value)
	}
	lines := []string{
		sty.Title.Render(st.Name),
		row("State", state),
		row("Frequency", fmt.Sprintf("%.1f Hz", st.Hertz)),
		row("Cycles", fmt.Sprintf("%d", st.CycleCount)),
		row("Avg cycle", fmt.Sprintf("%.2f ms", st.AvgCycleTime*1000)),
		row("Errors", fmt.Sprintf("%d", st.ErrorCount)),
		row("Uptime", (time.Duration(st.Uptime * float64(time.Second))).Round(time.Second).String()),
	}
	if st.LastError != "" {
		lines = append(lines, row("Last error", sty.Bad.Render(st.LastError)))
	}

	for _, c := range []struct {
		name  string
		value any
	}{
		{"Inputs", st.Components.Inputs},
		{"Actions", st.Components.Actions},
		{"Generator", st.Components.Generator},
		{"Conversation", st.Components.Conversation},
		{"Safety", st.Components.Safety},
	} {
		if summary := componentSummary(c.value); summary != "" {
			lines = append(lines, row(c.name, summary))
		}
	}
	return sty.Box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// componentSummary picks a few well-known fields out of a decoded component
// status.
func componentSummary(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, key := range []string{"running", "plugins", "provider", "state", "level", "conversations", "calls", "errors"} {
		val, ok := m[key]
		if !ok {
			continue
		}
		switch x := val.(type) {
		case []any:
			parts = append(parts, fmt.Sprintf("%s=%d", key, len(x)))
		case map[string]any:
			parts = append(parts, fmt.Sprintf("%s=%d", key, len(x)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", key, x))
		}
	}
	return strings.Join(parts, " ")
}
