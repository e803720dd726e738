package voice

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

const (
	DefaultAssistantName = "Aria"
	DefaultBusinessName  = "Ajit Fitness"
	DefaultVoice         = "Kore"
	DefaultModel         = "gemini-2.5-flash-native-audio-preview-09-2025"
)

const defaultPersona = `You are {{.AssistantName}}, the intelligent, humble, and exceedingly polite virtual receptionist for {{.BusinessName}}.
Your tone is incredibly warm, respectful, professional, and encouraging. You assist members with class schedules, membership details, and facility information.
Always use extremely polite phrases such as 'It would be my absolute pleasure', 'Certainly, honored guest', 'I would be delighted to assist you', and 'Thank you so very much for asking'.
If you cannot answer a question, apologize sincerely.
If asked about medical advice, politely and humbly decline, recommending a professional.
Keep responses concise but gracious, suitable for a voice conversation.
Start by greeting the user warmly and politely to {{.BusinessName}}.`

type Persona struct {
	AssistantName string
	BusinessName  string
}

// Instruction renders the system instruction. An empty source uses the
// built-in receptionist persona.
func (p Persona) Instruction(source string) (string, error) {
	if source == "" {
		source = defaultPersona
	}
	if p.AssistantName == "" {
		p.AssistantName = DefaultAssistantName
	}
	if p.BusinessName == "" {
		p.BusinessName = DefaultBusinessName
	}

	tmpl, err := template.New("persona").Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse persona: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render persona: %w", err)
	}
	return buf.String(), nil
}

// LoadInstruction renders the persona from path, or the default when path is empty.
func LoadInstruction(p Persona, path string) (string, error) {
	if path == "" {
		return p.Instruction("")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona file: %w", err)
	}
	return p.Instruction(string(data))
}
