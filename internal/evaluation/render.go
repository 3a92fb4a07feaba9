package evaluation

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	hitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	partStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	missStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const previewRunes = 80

// Render writes a per-case breakdown followed by the summary.
func Render(w io.Writer, r *Report) {
	for i, c := range r.Cases {
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("Case #%d", i+1)))
		fmt.Fprintf(&b, "Question:    %s\n", c.Question)
		fmt.Fprintf(&b, "Expected id: %s\n", partStyle.Render(c.ExpectedID))
		if len(c.Retrieved) == 0 {
			b.WriteString(missStyle.Render("no results") + "\n")
		}
		for rank, res := range c.Retrieved {
			mark := missStyle.Render("✘")
			if res.ID == c.ExpectedID {
				mark = hitStyle.Render("✔")
			}
			fmt.Fprintf(&b, "  %d. id=%s %s score=%.4f %s\n", rank+1, res.ID, mark, res.RetrievalScore,
				dimStyle.Render(preview(res.ChunkText)))
		}
		b.WriteString(verdictStyle(c.Verdict).Render(c.Verdict.String()))
		fmt.Fprintln(w, boxStyle.Render(b.String()))
	}

	fmt.Fprintln(w, titleStyle.Render("Results"))
	fmt.Fprintf(w, "  Recall@1: %.2f%% (%d/%d)\n", r.RecallAt1*100, r.HitsAt1, r.Total())
	fmt.Fprintf(w, "  Recall@%d: %.2f%% (%d/%d)\n", r.K, r.RecallAtK*100, r.HitsAtK, r.Total())
	if r.Passed() {
		fmt.Fprintln(w, hitStyle.Render(fmt.Sprintf("Success criterion met (Recall@%d >= %.0f%%)", r.K, r.SuccessRecall*100)))
	} else {
		fmt.Fprintln(w, missStyle.Render(fmt.Sprintf("Success criterion not met (Recall@%d < %.0f%%)", r.K, r.SuccessRecall*100)))
	}
}

func verdictStyle(v Verdict) lipgloss.Style {
	switch v {
	case HitAt1:
		return hitStyle
	case HitAtK:
		return partStyle
	default:
		return missStyle
	}
}

func preview(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
