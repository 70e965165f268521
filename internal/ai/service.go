package ai

import (
	"context"
	"fmt"
	"strings"
)

// Generator is what the assistant needs from the model client.
type Generator interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
	Configured() bool
	Model() string
}

// Assistant composes the prompts for the research assistant features.
type Assistant struct {
	client Generator
}

func NewAssistant(client Generator) *Assistant {
	return &Assistant{client: client}
}

// Configured reports whether the assistant can reach a model.
func (a *Assistant) Configured() bool {
	return a.client.Configured()
}

// Model returns the backing model name.
func (a *Assistant) Model() string {
	return a.client.Model()
}

const chatSystem = `You are a research project assistant. You help researchers plan their
projects, break work into phases and tasks, and reason about methodology.
Answer concisely and base your answers on the project context provided.`

// Chat answers a user message with the project overview and conversation
// history as context.
func (a *Assistant) Chat(ctx context.Context, projectContext string, history []Turn, message string) (string, error) {
	system := chatSystem
	if projectContext != "" {
		system += "\n\nCurrent project:\n" + projectContext
	}
	turns := make([]Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, Turn{Role: "user", Content: message})
	return a.client.Generate(ctx, system, turns)
}

// Suggest proposes next steps for a project based on its current state.
func (a *Assistant) Suggest(ctx context.Context, projectContext string) (string, error) {
	prompt := fmt.Sprintf(`Given this research project, suggest the next three concrete actions
the researcher should take. Be specific and actionable.

%s`, projectContext)
	return a.client.Generate(ctx, chatSystem, []Turn{{Role: "user", Content: prompt}})
}

const citationSystem = `You are a bibliographic assistant. You format references in APA 7th
edition style. Respond with the formatted reference only, no commentary.`

// FormatCitation turns a free-form reference description into an APA 7
// citation.
func (a *Assistant) FormatCitation(ctx context.Context, raw string) (string, error) {
	reply, err := a.client.Generate(ctx, citationSystem, []Turn{{Role: "user", Content: raw}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// SuggestReferences asks the model for literature relevant to a topic,
// formatted as APA 7 references.
func (a *Assistant) SuggestReferences(ctx context.Context, topic string) (string, error) {
	prompt := fmt.Sprintf(`Suggest up to five published works relevant to the following research
topic. Format each as an APA 7th edition reference on its own line. Only
include works you are confident exist.

Topic: %s`, topic)
	return a.client.Generate(ctx, citationSystem, []Turn{{Role: "user", Content: prompt}})
}
