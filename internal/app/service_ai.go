package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"investiflow/api/internal/ai"
	"investiflow/api/internal/store"
	"investiflow/api/internal/util"
)

func (s *Service) conversationForUser(ctx context.Context, conversationID, userID string) (store.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return store.Conversation{}, err
	}
	if conversation.UserID != userID {
		return store.Conversation{}, sql.ErrNoRows
	}
	if _, err := s.projectForUser(ctx, conversation.ProjectID, userID); err != nil {
		return store.Conversation{}, err
	}
	return conversation, nil
}

func (s *Service) ListConversations(ctx context.Context, session Session, projectID string) ([]store.Conversation, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, projectID, session.UserID)
}

func (s *Service) CreateConversation(ctx context.Context, session Session, projectID, title string) (store.Conversation, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return store.Conversation{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	return s.store.InsertConversation(ctx, store.Conversation{
		ID:        util.NewID("cnv"),
		ProjectID: projectID,
		UserID:    session.UserID,
		Title:     title,
	})
}

func (s *Service) GetConversation(ctx context.Context, session Session, conversationID string) (store.Conversation, error) {
	return s.conversationForUser(ctx, conversationID, session.UserID)
}

func (s *Service) RenameConversation(ctx context.Context, session Session, conversationID, title string) (store.Conversation, error) {
	if _, err := s.conversationForUser(ctx, conversationID, session.UserID); err != nil {
		return store.Conversation{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Conversation{}, validationError("title must not be empty")
	}
	return s.store.RenameConversation(ctx, conversationID, title)
}

func (s *Service) DeleteConversation(ctx context.Context, session Session, conversationID string) error {
	if _, err := s.conversationForUser(ctx, conversationID, session.UserID); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

func (s *Service) ListMessages(ctx context.Context, session Session, conversationID string) ([]store.Message, error) {
	if _, err := s.conversationForUser(ctx, conversationID, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// Chat sends a message to the assistant inside a project conversation. A nil
// conversation id starts a new conversation titled after the message. Both the
// user message and the model reply are persisted.
func (s *Service) Chat(ctx context.Context, session Session, projectID string, conversationID *string, message string) (store.Conversation, store.Message, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return store.Conversation{}, store.Message{}, validationError("message is required")
	}
	project, err := s.projectForUser(ctx, projectID, session.UserID)
	if err != nil {
		return store.Conversation{}, store.Message{}, err
	}

	var conversation store.Conversation
	if conversationID != nil && *conversationID != "" {
		conversation, err = s.conversationForUser(ctx, *conversationID, session.UserID)
		if err != nil {
			return store.Conversation{}, store.Message{}, err
		}
		if conversation.ProjectID != projectID {
			return store.Conversation{}, store.Message{}, sql.ErrNoRows
		}
	} else {
		conversation, err = s.store.InsertConversation(ctx, store.Conversation{
			ID:        util.NewID("cnv"),
			ProjectID: projectID,
			UserID:    session.UserID,
			Title:     conversationTitle(message),
		})
		if err != nil {
			return store.Conversation{}, store.Message{}, err
		}
	}

	stored, err := s.store.ListMessages(ctx, conversation.ID)
	if err != nil {
		return store.Conversation{}, store.Message{}, err
	}
	history := make([]ai.Turn, 0, len(stored))
	for _, m := range stored {
		history = append(history, ai.Turn{Role: m.Role, Content: m.Content})
	}

	projectContext, err := s.buildProjectContext(ctx, project)
	if err != nil {
		return store.Conversation{}, store.Message{}, err
	}

	if _, err := s.store.InsertMessage(ctx, store.Message{
		ID:             util.NewID("msg"),
		ConversationID: conversation.ID,
		Role:           "user",
		Content:        message,
	}); err != nil {
		return store.Conversation{}, store.Message{}, err
	}

	answer, err := s.ai.Chat(ctx, projectContext, history, message)
	if err != nil {
		return store.Conversation{}, store.Message{}, err
	}

	model := s.ai.Model()
	reply, err := s.store.InsertMessage(ctx, store.Message{
		ID:             util.NewID("msg"),
		ConversationID: conversation.ID,
		Role:           "model",
		Content:        answer,
		ModelUsed:      &model,
	})
	if err != nil {
		return store.Conversation{}, store.Message{}, err
	}
	return conversation, reply, nil
}

func (s *Service) Suggestions(ctx context.Context, session Session, projectID string) (string, error) {
	project, err := s.projectForUser(ctx, projectID, session.UserID)
	if err != nil {
		return "", err
	}
	projectContext, err := s.buildProjectContext(ctx, project)
	if err != nil {
		return "", err
	}
	return s.ai.Suggest(ctx, projectContext)
}

func (s *Service) FormatCitation(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", validationError("text is required")
	}
	return s.ai.FormatCitation(ctx, raw)
}

func (s *Service) SuggestReferences(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", validationError("topic is required")
	}
	return s.ai.SuggestReferences(ctx, topic)
}

func conversationTitle(message string) string {
	runes := []rune(message)
	if len(runes) > 60 {
		return string(runes[:60])
	}
	return message
}

// buildProjectContext flattens the project tree into the prompt context the
// assistant receives alongside each request.
func (s *Service) buildProjectContext(ctx context.Context, project store.Project) (string, error) {
	phases, err := s.store.ListPhases(ctx, project.ID)
	if err != nil {
		return "", err
	}
	entries, err := s.store.ListBibliography(ctx, project.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s (status: %s)\n", project.Name, project.Status)
	if project.Description != nil {
		fmt.Fprintf(&b, "Description: %s\n", *project.Description)
	}
	if project.Institution != nil {
		fmt.Fprintf(&b, "Institution: %s\n", *project.Institution)
	}
	for _, phase := range phases {
		fmt.Fprintf(&b, "Phase %d: %s\n", phase.Position+1, phase.Name)
		tasks, err := s.store.ListTasks(ctx, phase.ID)
		if err != nil {
			return "", err
		}
		for _, task := range tasks {
			fmt.Fprintf(&b, "  - [%s] %s\n", task.Status, task.Title)
		}
	}
	if len(entries) > 0 {
		fmt.Fprintf(&b, "Bibliography (%d entries):\n", len(entries))
		for _, entry := range entries {
			fmt.Fprintf(&b, "  - %s: %s\n", entry.Author, entry.Title)
		}
	}
	return b.String(), nil
}
