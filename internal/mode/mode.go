// Package mode maps a conversation mode to its system prompt template.
package mode

import (
	"fmt"
	"strings"

	"github.com/hyperjump/sensei/internal/models"
)

// Style is the preferred answer layout.
type Style string

const (
	StyleProse   Style = "prose"
	StyleBullets Style = "bullets"
)

// Template is the pure-data prompt profile of a mode.
type Template struct {
	Mode              models.Mode `json:"mode"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	SystemInstruction string      `json:"-"`
	Style             Style       `json:"style"`
	StepByStep        bool        `json:"step_by_step"`
	MaxAnswerWords    int         `json:"max_answer_words"`
}

const basePersona = "You are Sensei, a teaching assistant for university computing courses. " +
	"Be accurate, say when you are unsure, and never invent course policies or deadlines."

var templates = []Template{
	{
		Mode:        models.ModeAcademic,
		Name:        "Academic",
		Description: "Precise, formal explanations of course concepts",
		SystemInstruction: basePersona + " Answer in a precise academic register. Define terms before using them " +
			"and cite the provided course material when it is relevant.",
		Style:          StyleProse,
		MaxAnswerWords: 400,
	},
	{
		Mode:        models.ModeDoubtClarification,
		Name:        "Doubt clarification",
		Description: "Step-by-step walkthroughs that resolve a specific doubt",
		SystemInstruction: basePersona + " The student is stuck on a specific doubt. Identify the misconception, " +
			"then walk through the reasoning one numbered step at a time and finish with a one-line check question.",
		Style:          StyleProse,
		StepByStep:     true,
		MaxAnswerWords: 350,
	},
	{
		Mode:        models.ModeStudyHelp,
		Name:        "Study help",
		Description: "Concise study notes, summaries and practice suggestions",
		SystemInstruction: basePersona + " Help the student study. Prefer short bullet points, highlight key " +
			"takeaways and suggest one practice exercise.",
		Style:          StyleBullets,
		MaxAnswerWords: 250,
	},
	{
		Mode:              models.ModeGeneral,
		Name:              "General",
		Description:       "Friendly general-purpose assistance",
		SystemInstruction: basePersona + " Answer helpfully and concisely.",
		Style:             StyleProse,
		MaxAnswerWords:    300,
	},
}

// Resolve returns the template for mode. An empty mode resolves to general; any value outside
// the fixed set fails with models.ErrInvalidMode.
func Resolve(mode string) (Template, error) {
	m := strings.TrimSpace(mode)
	if m == "" {
		m = string(models.ModeGeneral)
	}
	for _, t := range templates {
		if string(t.Mode) == m {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
}

// Modes returns every supported mode in display order.
func Modes() []models.Mode {
	out := make([]models.Mode, len(templates))
	for i, t := range templates {
		out[i] = t.Mode
	}
	return out
}

// Templates returns a copy of every template in display order.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

// SystemPrompt renders the full system instruction, including style constraints.
func (t Template) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(t.SystemInstruction)
	switch t.Style {
	case StyleBullets:
		b.WriteString("\nFormat the answer as bullet points.")
	default:
		b.WriteString("\nFormat the answer as short paragraphs.")
	}
	if t.StepByStep {
		b.WriteString("\nNumber every reasoning step.")
	}
	if t.MaxAnswerWords > 0 {
		fmt.Fprintf(&b, "\nKeep the answer under %d words.", t.MaxAnswerWords)
	}
	return b.String()
}
