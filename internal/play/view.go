package play

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/question"
)

type keyHint struct {
	key, desc string
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	if m.width == 0 || m.height == 0 {
		return v
	}

	header := m.renderHeader()
	footer := renderFooter(m.hints(), m.width)
	contentHeight := max(0, m.height-lipgloss.Height(header)-lipgloss.Height(footer))

	content := lipgloss.NewStyle().
		Width(m.width).
		Height(contentHeight).
		Render(m.renderBody())

	v.SetContent(header + "\n" + content + "\n" + footer)
	return v
}

func (m Model) renderBody() string {
	switch m.phase {
	case phaseLoading:
		return centered(m.width, dimStyle, "\n\nPreparing your assessment...")
	case phaseFailed:
		return centered(m.width, badStyle, "\n\nError: "+m.err+"\n\nPress q to exit.")
	case phasePaused:
		return centered(m.width, warnStyle, "\n\nPaused. The clock is stopped.\n\nPress any key to resume.")
	case phaseConfirmQuit:
		return m.renderConfirm()
	case phaseFeedback:
		return m.renderFeedback()
	case phaseDone:
		return m.renderResult()
	default:
		return m.renderQuestion()
	}
}

func (m Model) renderHeader() string {
	left := titleStyle.Render("adaptiq")
	if m.sess == nil {
		return barStyle.Width(m.width).Render(left)
	}

	answered := len(m.sess.Answers)
	correct := 0
	for _, a := range m.sess.Answers {
		if a.IsCorrect {
			correct++
		}
	}
	total := len(m.sess.Questions)
	pos := min(answered+1, total)

	right := fmt.Sprintf("%s  Q %d/%d  %s %d  %s",
		tierStyle(string(m.sess.CurrentDifficulty)).Render(m.sess.CurrentDifficulty.Label()),
		pos, total,
		goodStyle.Render("✓"), correct,
		formatClock(m.remaining().Seconds()))

	center := dimStyle.Render(m.sess.Config.Criteria().String())
	inner := m.width - 4
	gap := max(1, inner-lipgloss.Width(left)-lipgloss.Width(center)-lipgloss.Width(right))
	content := left + "  " + center + strings.Repeat(" ", max(1, gap-2)) + right
	return barStyle.Width(m.width).Render(content)
}

func formatClock(secs float64) string {
	s := int(secs)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func (m Model) renderQuestion() string {
	q := m.sess.CurrentQuestion()
	if q == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(centered(m.width, textStyle.Bold(true), q.Prompt))
	b.WriteString("\n\n")

	if q.IsChoice() {
		var opts strings.Builder
		for i, o := range q.Options {
			line := fmt.Sprintf("  %d) %s", i+1, o.Text)
			if i == m.selected {
				opts.WriteString(selectedStyle.Render("> " + line[2:]))
			} else {
				opts.WriteString(textStyle.Render(line))
			}
			opts.WriteString("\n")
		}
		b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Center, opts.String()))
	} else {
		b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Center, "Answer: "+m.input.View()))
	}
	return b.String()
}

func (m Model) renderFeedback() string {
	var b strings.Builder
	b.WriteString("\n\n")
	if m.lastCorrect {
		b.WriteString(centered(m.width, goodStyle, "Correct!"))
	} else {
		b.WriteString(centered(m.width, badStyle, "Not quite"))
		if key := answerKey(m.lastQuestion); key != "" {
			b.WriteString("\n")
			b.WriteString(centered(m.width, dimStyle, "Correct answer: "+key))
		}
	}
	b.WriteString("\n\n")

	if q := m.lastQuestion; q != nil && q.Explanation != "" {
		exp := textStyle.Width(min(m.width-8, 70)).Render(q.Explanation)
		b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Center, exp))
		b.WriteString("\n\n")
	}

	if n := len(m.sess.DifficultyLog); n > 0 {
		d := m.sess.DifficultyLog[n-1]
		if d.AfterQuestionIndex == len(m.sess.Answers)-1 && d.NextDifficulty != m.lastQuestion.Difficulty {
			b.WriteString(centered(m.width, tierStyle(string(d.NextDifficulty)),
				"Next up: "+d.NextDifficulty.Label()+" questions"))
			b.WriteString("\n\n")
		}
	}

	b.WriteString(centered(m.width, dimStyle, "Press any key to continue..."))
	return b.String()
}

// answerKey renders the correct answer of q for feedback.
func answerKey(q *question.Question) string {
	if q == nil {
		return ""
	}
	if q.Numeric != nil {
		return strconv.FormatFloat(q.Numeric.Value, 'f', -1, 64)
	}
	var keys []string
	for _, o := range q.Options {
		if o.Correct {
			keys = append(keys, o.Text)
		}
	}
	return strings.Join(keys, " or ")
}

func (m Model) renderConfirm() string {
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(centered(m.width, textStyle.Bold(true), "Finish the assessment now?"))
	b.WriteString("\n")
	b.WriteString(centered(m.width, dimStyle, "Unanswered questions count as not attempted."))
	b.WriteString("\n\n")
	b.WriteString(centered(m.width, goodStyle, "[Y] Yes, finish"))
	b.WriteString("\n")
	b.WriteString(centered(m.width, selectedStyle, "[N] No, keep going"))
	return b.String()
}

func (m Model) renderResult() string {
	res := m.result
	if res == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Score %.0f%%", res.Score)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("   %d of %d correct, %d answered   (%s)",
		res.CorrectAnswers, res.TotalQuestions, res.AnsweredQuestions, reasonText(res.Reason))))
	b.WriteString("\n\n")

	tiers := make([]string, 0, len(res.ByDifficulty))
	for _, d := range question.Difficulties {
		if g, ok := res.ByDifficulty[d]; ok {
			tiers = append(tiers, fmt.Sprintf("%s %d/%d", tierStyle(string(d)).Render(d.Label()), g.Correct, g.Attempted))
		}
	}
	if len(tiers) > 0 {
		b.WriteString(strings.Join(tiers, "   "))
		b.WriteString("\n")
	}

	topics := make([]string, 0, len(res.ByTopic))
	for t := range res.ByTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		g := res.ByTopic[t]
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s %d/%d", t, g.Correct, g.Attempted)))
		b.WriteString("\n")
	}

	if len(res.Strengths) > 0 {
		b.WriteString("\n" + goodStyle.Render("Strengths: ") + textStyle.Render(strings.Join(res.Strengths, ", ")))
	}
	if len(res.Weaknesses) > 0 {
		b.WriteString("\n" + badStyle.Render("Needs work: ") + textStyle.Render(strings.Join(res.Weaknesses, ", ")))
	}
	b.WriteString("\n\n" + titleStyle.Render("Recommendations") + "\n")
	for i, r := range res.Recommendations {
		b.WriteString(textStyle.Render(fmt.Sprintf("%d. %s", i+1, r)))
		b.WriteString("\n")
	}
	if res.DegradedContent > 0 {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("%d placeholder question(s) were used.", res.DegradedContent)))
	}

	card := cardStyle.Width(min(m.width-4, 80)).Render(b.String())
	return "\n" + lipgloss.PlaceHorizontal(m.width, lipgloss.Center, card)
}

func reasonText(r analysis.CompletionReason) string {
	switch r {
	case analysis.ReasonTimeExpired:
		return "time ran out"
	case analysis.ReasonFinalized:
		return "finished early"
	default:
		return "all answered"
	}
}

func (m Model) hints() []keyHint {
	switch m.phase {
	case phaseQuestion:
		if m.isChoice() {
			return []keyHint{{"1-9", "Choose"}, {"↑↓ Enter", "Select"}, {"Ctrl+P", "Pause"}, {"Esc", "Finish"}}
		}
		return []keyHint{{"Enter", "Submit"}, {"Ctrl+P", "Pause"}, {"Esc", "Finish"}}
	case phaseFeedback, phasePaused:
		return []keyHint{{"any key", "Continue"}}
	case phaseConfirmQuit:
		return []keyHint{{"Y", "Finish"}, {"N", "Keep going"}}
	case phaseDone, phaseFailed:
		return []keyHint{{"q", "Quit"}}
	}
	return []keyHint{{"Ctrl+C", "Quit"}}
}

func renderFooter(hints []keyHint, width int) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, textStyle.Bold(true).Render(h.key)+" "+dimStyle.Render(h.desc))
	}
	return barStyle.Width(width).Render(strings.Join(parts, "   "))
}

func centered(width int, style lipgloss.Style, s string) string {
	return style.Width(width).Align(lipgloss.Center).Render(s)
}
