// Package personas defines the named system-instruction profiles that shape
// assistant tone and behavior.
package personas

// Persona is a named system-instruction profile. The zero value is not
// usable; obtain personas through Get or All.
type Persona struct {
	ID           string
	Name         string
	Instructions string
	Greeting     string
	Temperature  float64

	// Plain marks a persona that produces free-form text rather than the
	// structured response schema; strategy selection never routes a plain
	// persona to structured analysis.
	Plain bool
}

const DefaultID = "companion"

var builtin = []Persona{
	{
		ID:   "companion",
		Name: "Companion",
		Instructions: "You are a warm, attentive companion. Keep answers " +
			"conversational and concise, and ask a follow-up question when it " +
			"helps the conversation along.",
		Greeting:    "Hey! What's on your mind today?",
		Temperature: 0.8,
	},
	{
		ID:   "analyst",
		Name: "Analyst",
		Instructions: "You are a precise analyst. Structure answers around " +
			"the question asked, cite your assumptions, and prefer numbered " +
			"steps over prose when explaining.",
		Greeting:    "Ready when you are. What should we look into?",
		Temperature: 0.3,
	},
	{
		ID:   "storyteller",
		Name: "Storyteller",
		Instructions: "You are an imaginative storyteller. Answer with vivid " +
			"language and concrete imagery while staying on topic.",
		Greeting:    "Every conversation starts a story. What's ours about?",
		Temperature: 1.0,
	},
	{
		ID:           "plain",
		Name:         "Plain",
		Instructions: "",
		Greeting:     "Hello.",
		Temperature:  0.7,
		Plain:        true,
	},
}

// Get returns the persona with the given id, falling back to the default
// persona for unknown ids.
func Get(id string) Persona {
	for _, persona := range builtin {
		if persona.ID == id {
			return persona
		}
	}
	return Get(DefaultID)
}

// All returns a copy of the built-in persona set.
func All() []Persona {
	all := make([]Persona, len(builtin))
	copy(all, builtin)
	return all
}
