package types

// Persona is the agent's self-description. It is woven into the intent,
// planning, and response prompts so the agent answers in one voice.
type Persona struct {
	Name  string       `json:"name,omitempty"`
	Style PersonaStyle `json:"style,omitempty"`
}

// PersonaStyle selects the register of the agent's replies.
type PersonaStyle string

const (
	StyleNeutral  PersonaStyle = "neutral"
	StyleFormal   PersonaStyle = "formal"
	StyleFriendly PersonaStyle = "friendly"
)

// DefaultPersona is the persona used when the config does not set one.
func DefaultPersona() Persona {
	return Persona{Name: "agentd", Style: StyleNeutral}
}

// OrDefault fills empty fields from the default persona.
func (p Persona) OrDefault() Persona {
	d := DefaultPersona()
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Style == "" {
		p.Style = d.Style
	}
	return p
}
