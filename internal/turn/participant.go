// ABOUTME: Participant descriptors for the two conversation roles and runtime upserts
// ABOUTME: Synthesizes the system prompt from the assistant and user descriptions

package turn

import (
	"fmt"
	"math/rand"
)

// Participant describes a named party in the conversation. Two well-known
// participants exist by convention - "assistant" (model-backed) and "user"
// (human proxy) - but the set is mutable at runtime via personalize.
type Participant struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ModelID     string `json:"modelId"`
	Color       string `json:"color"`
}

// palette for user colors, picked at random when a conversation starts.
var palette = []string{
	"#f87171", "#fb923c", "#fbbf24", "#a3e635",
	"#34d399", "#22d3ee", "#818cf8", "#e879f9",
}

// RandomColor picks a display color for a human participant.
func RandomColor() string {
	return palette[rand.Intn(len(palette))]
}

// DefaultParticipants returns the conventional assistant and user pair.
// The assistant's description and model id come from configuration.
func DefaultParticipants(assistantDescription, assistantModelID string) []Participant {
	return []Participant{
		{
			Name:        RoleAssistant,
			Description: assistantDescription,
			ModelID:     assistantModelID,
			Color:       "#d4d4d4",
		},
		{
			Name:        RoleUser,
			Description: "I'm a user. I'm here to talk to you.",
			ModelID:     "human",
			Color:       RandomColor(),
		},
	}
}

// FindParticipant returns the participant with the given name, if present.
func FindParticipant(participants []Participant, name string) (Participant, bool) {
	for _, p := range participants {
		if p.Name == name {
			return p, true
		}
	}
	return Participant{}, false
}

// UpsertParticipant replaces the participant with the same name, or appends
// when no participant carries that name yet.
func UpsertParticipant(participants []Participant, p Participant) []Participant {
	out := make([]Participant, 0, len(participants)+1)
	for _, existing := range participants {
		if existing.Name != p.Name {
			out = append(out, existing)
		}
	}
	return append(out, p)
}

// SystemDescription synthesizes the system prompt from the assistant's and
// the user's self-descriptions.
func SystemDescription(assistantDescription, userDescription string) string {
	return fmt.Sprintf("%s\n\nThe user describes themselves as: %s", assistantDescription, userDescription)
}

// SystemMessageFor builds the system turn message for the given participant
// set. Missing participants contribute an empty description.
func SystemMessageFor(participants []Participant) Message {
	assistant, _ := FindParticipant(participants, RoleAssistant)
	user, _ := FindParticipant(participants, RoleUser)
	return SystemMessage(SystemDescription(assistant.Description, user.Description))
}
