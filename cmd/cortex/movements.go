package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/t031a5/internal/movement"
	"github.com/normanking/t031a5/pkg/theme"
)

var (
	idStyle   = lipgloss.NewStyle().Width(6).Align(lipgloss.Right).PaddingRight(2)
	nameStyle = lipgloss.NewStyle().Width(24)
)

// ═══════════════════════════════════════════════════════════════════════════════
// MOVEMENTS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func movementsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "List the G1 movement catalogue",
		Long: `List arm gestures, FSM states, locomotion commands and gesture patterns.

Examples:
  cortex movements
  cortex movements --kind arms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := movement.Default()
			sty := styles()
			var sections []string
			switch kind {
			case "", "all":
				sections = []string{
					renderMovements(sty, "Arm gestures", catalog.Arms(), catalog),
					renderMovements(sty, "FSM states", catalog.FSMStates(), catalog),
					renderMovements(sty, "Locomotion", catalog.LocomotionCommands(), catalog),
					renderPatterns(sty, catalog.Patterns()),
				}
			case "arms":
				sections = []string{renderMovements(sty, "Arm gestures", catalog.Arms(), catalog)}
			case "fsm":
				sections = []string{renderMovements(sty, "FSM states", catalog.FSMStates(), catalog)}
			case "locomotion":
				sections = []string{renderMovements(sty, "Locomotion", catalog.LocomotionCommands(), catalog)}
			case "patterns":
				sections = []string{renderPatterns(sty, catalog.Patterns())}
			default:
				return fmt.Errorf("unknown kind %q (arms, fsm, locomotion, patterns)", kind)
			}

			st := catalog.Stats()
			sections = append(sections, sty.Header.Render(fmt.Sprintf(
				"%d movements (%d arms, %d FSM, %d locomotion), %d unavailable, %d patterns",
				st.Total, st.Arms, st.FSMStates, st.Locomotion, st.Unavailable, st.Patterns)))
			fmt.Println(lipgloss.JoinVertical(lipgloss.Left, sections...))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "all", "arms, fsm, locomotion, patterns or all")
	return cmd
}

func renderMovements(sty theme.Styles, title string, ms []movement.Movement, catalog *movement.Catalog) string {
	durStyle := sty.Muted.Width(8)
	rows := []string{sty.Header.Render(title)}
	for _, m := range ms {
		id := "-"
		if m.Kind != movement.KindLocomotion {
			id = strconv.Itoa(m.ID)
		}
		name := m.Name
		if m.Kind != movement.KindLocomotion && !catalog.IsAvailable(m.ID) {
			name = sty.Muted.Strikethrough(true).Render(name)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(id),
			nameStyle.Render(name),
			durStyle.Render(m.Duration.String()),
			m.Description,
		))
	}
	return strings.Join(rows, "\n")
}

func renderPatterns(sty theme.Styles, ps []movement.Pattern) string {
	durStyle := sty.Muted.Width(8)
	rows := []string{sty.Header.Render("Patterns")}
	for _, p := range ps {
		ids := make([]string, len(p.Movements))
		for i, id := range p.Movements {
			ids[i] = strconv.Itoa(id)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(""),
			nameStyle.Render(p.Key),
			durStyle.Render(p.Duration.String()),
			strings.Join(ids, " → "),
		))
	}
	return strings.Join(rows, "\n")
}
