package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"investiflow/api/internal/ai"
	"investiflow/api/internal/auth"
	"investiflow/api/internal/authpw"
	"investiflow/api/internal/export"
	"investiflow/api/internal/extract"
	"investiflow/api/internal/ordering"
	"investiflow/api/internal/search"
	"investiflow/api/internal/session"
	"investiflow/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleAuthRegister(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleAuthLogin(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON(sess))
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// Profile
	if len(parts) == 2 && parts[1] == "me" {
		switch r.Method {
		case http.MethodGet:
			user, err := s.service.Profile(r.Context(), session)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, userJSON(user))
			return
		case http.MethodPatch:
			var body struct {
				FullName      *string `json:"fullName"`
				PhoneNumber   *string `json:"phoneNumber"`
				University    *string `json:"university"`
				ResearchGroup *string `json:"researchGroup"`
				Career        *string `json:"career"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			user, err := s.service.UpdateProfile(r.Context(), session, store.UserUpdate{
				FullName:      body.FullName,
				PhoneNumber:   body.PhoneNumber,
				University:    body.University,
				ResearchGroup: body.ResearchGroup,
				Career:        body.Career,
			})
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, userJSON(user))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 3 && parts[1] == "me" && parts[2] == "password" && r.Method == http.MethodPost {
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Global search
	if len(parts) == 2 && parts[1] == "search" && r.Method == http.MethodGet {
		q := search.Query{
			Text:      r.URL.Query().Get("q"),
			ProjectID: r.URL.Query().Get("projectId"),
			Limit:     queryInt(r, "limit", 20),
			Offset:    queryInt(r, "offset", 0),
		}
		switch r.URL.Query().Get("type") {
		case "project":
			q.FilterType = search.ResultProject
		case "reference":
			q.FilterType = search.ResultReference
		}
		response, err := s.service.SearchEverything(r.Context(), session, q)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	// Assistant one-shot features
	if len(parts) == 3 && parts[1] == "ai" && parts[2] == "citation" && r.Method == http.MethodPost {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		citation, err := s.service.FormatCitation(r.Context(), body.Text)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"citation": citation})
		return
	}
	if len(parts) == 3 && parts[1] == "ai" && parts[2] == "references" && r.Method == http.MethodPost {
		var body struct {
			Topic string `json:"topic"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		suggestions, err := s.service.SuggestReferences(r.Context(), body.Topic)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
		return
	}

	// Attachment by parent: /api/{projects|phases|tasks}/{id}/attachment
	if len(parts) == 4 && parts[3] == "attachment" {
		if kind, ok := parentKinds[parts[1]]; ok {
			parent := store.ParentRef{Kind: kind, ID: parts[2]}
			switch r.Method {
			case http.MethodGet:
				attachment, err := s.service.AttachmentForParent(r.Context(), session, parent)
				if err != nil {
					writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusOK, attachmentJSON(attachment))
				return
			case http.MethodPost:
				file, header, ok := s.formFile(w, r)
				if !ok {
					return
				}
				defer file.Close()
				attachment, err := s.service.UploadAttachment(r.Context(), session, parent, header.Filename, header.Size, file)
				if err != nil {
					writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, attachmentJSON(attachment))
				return
			}
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
	}

	switch parts[1] {
	case "projects":
		s.handleProjects(w, r, session, parts)
		return
	case "phases":
		s.handlePhases(w, r, session, parts)
		return
	case "tasks":
		s.handleTasks(w, r, session, parts)
		return
	case "attachments":
		s.handleAttachments(w, r, session, parts)
		return
	case "bibliography":
		s.handleBibliography(w, r, session, parts)
		return
	case "conversations":
		s.handleConversations(w, r, session, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

var parentKinds = map[string]store.ParentKind{
	"projects": store.ParentProject,
	"phases":   store.ParentPhase,
	"tasks":    store.ParentTask,
}

func (s *HTTPServer) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email         string  `json:"email"`
		Password      string  `json:"password"`
		FullName      string  `json:"fullName"`
		PhoneNumber   *string `json:"phoneNumber"`
		University    *string `json:"university"`
		ResearchGroup *string `json:"researchGroup"`
		Career        *string `json:"career"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, user, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		Email:         body.Email,
		Password:      body.Password,
		FullName:      body.FullName,
		PhoneNumber:   body.PhoneNumber,
		University:    body.University,
		ResearchGroup: body.ResearchGroup,
		Career:        body.Career,
	})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrEmailTaken):
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		case errors.Is(err, authpw.ErrWeakPassword):
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		default:
			writeError(w, http.StatusBadRequest, "REGISTRATION_FAILED", err.Error(), nil)
		}
		return
	}
	payload := sessionJSON(sess)
	payload["user"] = userJSON(user)
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, user, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, authpw.ErrAccountDisabled) {
			writeError(w, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled", nil)
			return
		}
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	payload := sessionJSON(sess)
	payload["user"] = userJSON(user)
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.service.ListProjects(r.Context(), session)
			if err != nil {
				writeMapped(w, err)
				return
			}
			items := make([]map[string]any, 0, len(projects))
			for _, p := range projects {
				items = append(items, projectJSON(p))
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": items})
			return
		case http.MethodPost:
			input, err := decodeProjectInput(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), session, input)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, projectJSON(project))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	projectID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(r.Context(), session, projectID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projectJSON(project))
			return
		case http.MethodPatch:
			var body struct {
				Name          *string `json:"name"`
				Description   *string `json:"description"`
				ResearchType  *string `json:"researchType"`
				Institution   *string `json:"institution"`
				ResearchGroup *string `json:"researchGroup"`
				Category      *string `json:"category"`
				Status        *string `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.UpdateProject(r.Context(), session, projectID, store.ProjectUpdate{
				Name:          body.Name,
				Description:   body.Description,
				ResearchType:  body.ResearchType,
				Institution:   body.Institution,
				ResearchGroup: body.ResearchGroup,
				Category:      body.Category,
				Status:        body.Status,
			})
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projectJSON(project))
			return
		case http.MethodDelete:
			if err := s.service.DeleteProject(r.Context(), session, projectID); err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 {
		switch parts[3] {
		case "full":
			if r.Method != http.MethodGet {
				break
			}
			detail, err := s.service.ProjectDetail(r.Context(), session, projectID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projectDetailJSON(detail))
			return
		case "export":
			if r.Method != http.MethodGet {
				break
			}
			format := export.Format(r.URL.Query().Get("format"))
			if format == "" {
				format = export.FormatPDF
			}
			includeBib := r.URL.Query().Get("bibliography") != "false"
			result, err := s.service.ExportProject(r.Context(), session, projectID, format, includeBib)
			if err != nil {
				writeMapped(w, err)
				return
			}
			w.Header().Set("Content-Type", result.MimeType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
			w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(result.Data)
			return
		case "phases":
			switch r.Method {
			case http.MethodGet:
				phases, err := s.service.ListPhases(r.Context(), session, projectID)
				if err != nil {
					writeMapped(w, err)
					return
				}
				items := make([]map[string]any, 0, len(phases))
				for _, p := range phases {
					items = append(items, phaseJSON(p))
				}
				writeJSON(w, http.StatusOK, map[string]any{"phases": items})
				return
			case http.MethodPost:
				var body struct {
					Name     string  `json:"name"`
					Color    *string `json:"color"`
					Position *int    `json:"position"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				phase, err := s.service.CreatePhase(r.Context(), session, projectID, CreatePhaseInput{
					Name:     body.Name,
					Color:    body.Color,
					Position: body.Position,
				})
				if err != nil {
					writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, phaseJSON(phase))
				return
			}
		case "tasks":
			if r.Method != http.MethodGet {
				break
			}
			tasks, err := s.service.ListProjectTasks(r.Context(), session, projectID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			items := make([]map[string]any, 0, len(tasks))
			for _, t := range tasks {
				items = append(items, taskJSON(t))
			}
			writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
			return
		case "bibliography":
			s.handleProjectBibliography(w, r, session, projectID)
			return
		case "conversations":
			switch r.Method {
			case http.MethodGet:
				conversations, err := s.service.ListConversations(r.Context(), session, projectID)
				if err != nil {
					writeMapped(w, err)
					return
				}
				items := make([]map[string]any, 0, len(conversations))
				for _, c := range conversations {
					items = append(items, conversationJSON(c))
				}
				writeJSON(w, http.StatusOK, map[string]any{"conversations": items})
				return
			case http.MethodPost:
				var body struct {
					Title string `json:"title"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				conversation, err := s.service.CreateConversation(r.Context(), session, projectID, body.Title)
				if err != nil {
					writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, conversationJSON(conversation))
				return
			}
		case "chat":
			if r.Method != http.MethodPost {
				break
			}
			var body struct {
				ConversationID *string `json:"conversationId"`
				Message        string  `json:"message"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			conversation, reply, err := s.service.Chat(r.Context(), session, projectID, body.ConversationID, body.Message)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"conversation": conversationJSON(conversation),
				"reply":        messageJSON(reply),
			})
			return
		case "suggestions":
			if r.Method != http.MethodGet {
				break
			}
			suggestions, err := s.service.Suggestions(r.Context(), session, projectID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
			return
		}
	}

	if len(parts) == 5 && parts[3] == "phases" && parts[4] == "reorder" && r.Method == http.MethodPut {
		orders, err := decodeOrders(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ReorderPhases(r.Context(), session, projectID, orders); err != nil {
			writeMapped(w, err)
			return
		}
		phases, err := s.service.ListPhases(r.Context(), session, projectID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		items := make([]map[string]any, 0, len(phases))
		for _, p := range phases {
			items = append(items, phaseJSON(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"phases": items})
		return
	}

	if len(parts) == 5 && parts[3] == "bibliography" && parts[4] == "search" && r.Method == http.MethodGet {
		response, err := s.service.SearchEverything(r.Context(), session, search.Query{
			Text:       r.URL.Query().Get("q"),
			FilterType: search.ResultReference,
			ProjectID:  projectID,
			Limit:      queryInt(r, "limit", 20),
			Offset:     queryInt(r, "offset", 0),
		})
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProjectBibliography(w http.ResponseWriter, r *http.Request, session Session, projectID string) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.service.ListBibliography(r.Context(), session, projectID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		items := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			items = append(items, bibliographyJSON(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"references": items})
		return
	case http.MethodPost:
		var body struct {
			Type   string  `json:"type"`
			Author string  `json:"author"`
			Year   *int    `json:"year"`
			Title  string  `json:"title"`
			Source *string `json:"source"`
			DOI    *string `json:"doi"`
			URL    *string `json:"url"`
			Volume *string `json:"volume"`
			Issue  *string `json:"issue"`
			Pages  *string `json:"pages"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		entry, err := s.service.CreateBibliography(r.Context(), session, projectID, CreateBibliographyInput{
			Type:   body.Type,
			Author: body.Author,
			Year:   body.Year,
			Title:  body.Title,
			Source: body.Source,
			DOI:    body.DOI,
			URL:    body.URL,
			Volume: body.Volume,
			Issue:  body.Issue,
			Pages:  body.Pages,
		})
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bibliographyJSON(entry))
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handlePhases(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	phaseID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			phase, err := s.service.GetPhase(r.Context(), session, phaseID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, phaseJSON(phase))
			return
		case http.MethodPatch:
			var body struct {
				Name     *string `json:"name"`
				Color    *string `json:"color"`
				Position *int    `json:"position"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			phase, err := s.service.UpdatePhase(r.Context(), session, phaseID, store.PhaseUpdate{
				Name:     body.Name,
				Color:    body.Color,
				Position: body.Position,
			})
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, phaseJSON(phase))
			return
		case http.MethodDelete:
			if err := s.service.DeletePhase(r.Context(), session, phaseID); err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "full" && r.Method == http.MethodGet {
		detail, err := s.service.PhaseDetail(r.Context(), session, phaseID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, phaseDetailJSON(detail))
		return
	}

	if len(parts) == 4 && parts[3] == "tasks" {
		switch r.Method {
		case http.MethodGet:
			tasks, err := s.service.ListTasks(r.Context(), session, phaseID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			items := make([]map[string]any, 0, len(tasks))
			for _, t := range tasks {
				items = append(items, taskJSON(t))
			}
			writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
			return
		case http.MethodPost:
			input, err := decodeTaskInput(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			task, err := s.service.CreateTask(r.Context(), session, phaseID, input)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, taskJSON(task))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 5 && parts[3] == "tasks" && parts[4] == "reorder" && r.Method == http.MethodPut {
		orders, err := decodeOrders(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ReorderTasks(r.Context(), session, phaseID, orders); err != nil {
			writeMapped(w, err)
			return
		}
		tasks, err := s.service.ListTasks(r.Context(), session, phaseID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		items := make([]map[string]any, 0, len(tasks))
		for _, t := range tasks {
			items = append(items, taskJSON(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	taskID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			task, err := s.service.GetTask(r.Context(), session, taskID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, taskJSON(task))
			return
		case http.MethodPatch:
			update, err := decodeTaskUpdate(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			task, err := s.service.UpdateTask(r.Context(), session, taskID, update)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, taskJSON(task))
			return
		case http.MethodDelete:
			if err := s.service.DeleteTask(r.Context(), session, taskID); err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "move" && r.Method == http.MethodPost {
		var body struct {
			PhaseID  string `json:"phaseId"`
			Position *int   `json:"position"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.PhaseID == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "phaseId is required", nil)
			return
		}
		task, err := s.service.MoveTask(r.Context(), session, taskID, body.PhaseID, body.Position)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, taskJSON(task))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAttachments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	attachmentID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			attachment, err := s.service.GetAttachment(r.Context(), session, attachmentID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, attachmentJSON(attachment))
			return
		case http.MethodPut:
			file, header, ok := s.formFile(w, r)
			if !ok {
				return
			}
			defer file.Close()
			attachment, err := s.service.ReplaceAttachment(r.Context(), session, attachmentID, header.Filename, header.Size, file)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, attachmentJSON(attachment))
			return
		case http.MethodDelete:
			if err := s.service.DeleteAttachment(r.Context(), session, attachmentID); err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "download" && r.Method == http.MethodGet {
		attachment, rc, err := s.service.OpenAttachment(r.Context(), session, attachmentID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", attachmentContentTypes[attachment.FileType])
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
		return
	}

	if len(parts) == 4 && parts[3] == "content" && r.Method == http.MethodGet {
		content, err := s.service.DocumentContent(r.Context(), session, attachmentID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": content})
		return
	}

	if len(parts) == 4 && parts[3] == "pages" && r.Method == http.MethodGet {
		page := queryInt(r, "page", 1)
		paginated, err := s.service.DocumentPage(r.Context(), session, attachmentID, page)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, paginated)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleBibliography(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	entryID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			entry, err := s.service.GetBibliography(r.Context(), session, entryID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, bibliographyJSON(entry))
			return
		case http.MethodPatch:
			var body struct {
				Type   *string `json:"type"`
				Author *string `json:"author"`
				Year   *int    `json:"year"`
				Title  *string `json:"title"`
				Source *string `json:"source"`
				DOI    *string `json:"doi"`
				URL    *string `json:"url"`
				Volume *string `json:"volume"`
				Issue  *string `json:"issue"`
				Pages  *string `json:"pages"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			entry, err := s.service.UpdateBibliography(r.Context(), session, entryID, store.BibliographyUpdate{
				Type:   body.Type,
				Author: body.Author,
				Year:   body.Year,
				Title:  body.Title,
				Source: body.Source,
				DOI:    body.DOI,
				URL:    body.URL,
				Volume: body.Volume,
				Issue:  body.Issue,
				Pages:  body.Pages,
			})
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, bibliographyJSON(entry))
			return
		case http.MethodDelete:
			if err := s.service.DeleteBibliography(r.Context(), session, entryID); err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "file" {
		switch r.Method {
		case http.MethodGet:
			entry, rc, err := s.service.OpenBibliographyFile(r.Context(), session, entryID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			defer rc.Close()
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strOr(entry.FileName)))
			w.WriteHeader(http.StatusOK)
			_, _ = io.Copy(w, rc)
			return
		case http.MethodPost:
			file, header, ok := s.formFile(w, r)
			if !ok {
				return
			}
			defer file.Close()
			entry, err := s.service.AttachBibliographyFile(r.Context(), session, entryID, header.Filename, header.Size, file)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, bibliographyJSON(entry))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleConversations(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	conversationID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			conversation, err := s.service.GetConversation(r.Context(), session, conversationID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, conversationJSON(conversation))
			return
		case http.MethodPatch:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			conversation, err := s.service.RenameConversation(r.Context(), session, conversationID, body.Title)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, conversationJSON(conversation))
			return
		case http.MethodDelete:
			if err := s.service.DeleteConversation(r.Context(), session, conversationID); err != nil {
				writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "messages" && r.Method == http.MethodGet {
		messages, err := s.service.ListMessages(r.Context(), session, conversationID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		items := make([]map[string]any, 0, len(messages))
		for _, m := range messages {
			items = append(items, messageJSON(m))
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": items})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// ---------------------------------------------------------------------------
// Request decoding helpers

func decodeProjectInput(r *http.Request) (CreateProjectInput, error) {
	var body struct {
		Name          string  `json:"name"`
		Description   *string `json:"description"`
		ResearchType  *string `json:"researchType"`
		Institution   *string `json:"institution"`
		ResearchGroup *string `json:"researchGroup"`
		Category      *string `json:"category"`
		Status        string  `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		return CreateProjectInput{}, err
	}
	return CreateProjectInput{
		Name:          body.Name,
		Description:   body.Description,
		ResearchType:  body.ResearchType,
		Institution:   body.Institution,
		ResearchGroup: body.ResearchGroup,
		Category:      body.Category,
		Status:        body.Status,
	}, nil
}

func decodeTaskInput(r *http.Request) (CreateTaskInput, error) {
	var body struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Status      string  `json:"status"`
		StartDate   *string `json:"startDate"`
		EndDate     *string `json:"endDate"`
		Position    *int    `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil {
		return CreateTaskInput{}, err
	}
	start, err := parseDate(body.StartDate)
	if err != nil {
		return CreateTaskInput{}, err
	}
	end, err := parseDate(body.EndDate)
	if err != nil {
		return CreateTaskInput{}, err
	}
	return CreateTaskInput{
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		StartDate:   start,
		EndDate:     end,
		Position:    body.Position,
	}, nil
}

func decodeTaskUpdate(r *http.Request) (store.TaskUpdate, error) {
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Completed   *bool   `json:"completed"`
		StartDate   *string `json:"startDate"`
		EndDate     *string `json:"endDate"`
		Position    *int    `json:"position"`
		PhaseID     *string `json:"phaseId"`
	}
	if err := decodeBody(r, &body); err != nil {
		return store.TaskUpdate{}, err
	}
	start, err := parseDate(body.StartDate)
	if err != nil {
		return store.TaskUpdate{}, err
	}
	end, err := parseDate(body.EndDate)
	if err != nil {
		return store.TaskUpdate{}, err
	}
	return store.TaskUpdate{
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Completed:   body.Completed,
		StartDate:   start,
		EndDate:     end,
		Position:    body.Position,
		PhaseID:     body.PhaseID,
	}, nil
}

func decodeOrders(r *http.Request) ([]ordering.Item, error) {
	var body struct {
		Orders []struct {
			ID       string `json:"id"`
			Position int    `json:"position"`
		} `json:"orders"`
	}
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	orders := make([]ordering.Item, 0, len(body.Orders))
	for _, o := range body.Orders {
		orders = append(orders, ordering.Item{ID: o.ID, Position: o.Position})
	}
	return orders, nil
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil, fmt.Errorf("dates must use the YYYY-MM-DD format")
	}
	return &t, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func (s *HTTPServer) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.service.cfg.MaxUploadBytes))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form with a file field", nil)
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return nil, nil, false
	}
	return file, header, true
}

// ---------------------------------------------------------------------------
// Response shaping

func sessionJSON(s Session) map[string]any {
	return map[string]any{
		"token":        s.Token,
		"refreshToken": s.RefreshToken,
		"userId":       s.UserID,
		"email":        s.Email,
		"fullName":     s.FullName,
		"expiresAt":    s.ExpiresAt.Unix(),
	}
}

func userJSON(u store.User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"fullName":      u.FullName,
		"phoneNumber":   u.PhoneNumber,
		"university":    u.University,
		"researchGroup": u.ResearchGroup,
		"career":        u.Career,
		"isActive":      u.IsActive,
		"createdAt":     u.CreatedAt.Format(time.RFC3339),
	}
}

func projectJSON(p store.Project) map[string]any {
	return map[string]any{
		"id":            p.ID,
		"ownerId":       p.OwnerID,
		"name":          p.Name,
		"description":   p.Description,
		"researchType":  p.ResearchType,
		"institution":   p.Institution,
		"researchGroup": p.ResearchGroup,
		"category":      p.Category,
		"status":        p.Status,
		"createdAt":     p.CreatedAt.Format(time.RFC3339),
		"updatedAt":     p.UpdatedAt.Format(time.RFC3339),
	}
}

func projectDetailJSON(d ProjectDetail) map[string]any {
	phases := make([]map[string]any, 0, len(d.Phases))
	for _, phase := range d.Phases {
		phases = append(phases, phaseDetailJSON(phase))
	}
	payload := projectJSON(d.Project)
	payload["phases"] = phases
	return payload
}

func phaseJSON(p store.Phase) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"projectId": p.ProjectID,
		"name":      p.Name,
		"position":  p.Position,
		"color":     p.Color,
		"createdAt": p.CreatedAt.Format(time.RFC3339),
		"updatedAt": p.UpdatedAt.Format(time.RFC3339),
	}
}

func phaseDetailJSON(d PhaseDetail) map[string]any {
	tasks := make([]map[string]any, 0, len(d.Tasks))
	for _, task := range d.Tasks {
		tasks = append(tasks, taskJSON(task))
	}
	payload := phaseJSON(d.Phase)
	payload["tasks"] = tasks
	return payload
}

func taskJSON(t store.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"phaseId":     t.PhaseID,
		"title":       t.Title,
		"description": t.Description,
		"position":    t.Position,
		"status":      t.Status,
		"completed":   t.Completed,
		"startDate":   dateJSON(t.StartDate),
		"endDate":     dateJSON(t.EndDate),
		"createdAt":   t.CreatedAt.Format(time.RFC3339),
		"updatedAt":   t.UpdatedAt.Format(time.RFC3339),
	}
}

func attachmentJSON(a store.Attachment) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"parentType": string(a.Parent.Kind),
		"parentId":   a.Parent.ID,
		"fileName":   a.FileName,
		"fileType":   a.FileType,
		"fileSize":   a.FileSize,
		"createdAt":  a.CreatedAt.Format(time.RFC3339),
		"updatedAt":  a.UpdatedAt.Format(time.RFC3339),
	}
}

func bibliographyJSON(b store.Bibliography) map[string]any {
	return map[string]any{
		"id":        b.ID,
		"projectId": b.ProjectID,
		"type":      b.Type,
		"author":    b.Author,
		"year":      b.Year,
		"title":     b.Title,
		"source":    b.Source,
		"doi":       b.DOI,
		"url":       b.URL,
		"volume":    b.Volume,
		"issue":     b.Issue,
		"pages":     b.Pages,
		"fileName":  b.FileName,
		"hasFile":   b.ObjectKey != nil,
		"createdAt": b.CreatedAt.Format(time.RFC3339),
		"updatedAt": b.UpdatedAt.Format(time.RFC3339),
	}
}

func conversationJSON(c store.Conversation) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"projectId": c.ProjectID,
		"title":     c.Title,
		"createdAt": c.CreatedAt.Format(time.RFC3339),
		"updatedAt": c.UpdatedAt.Format(time.RFC3339),
	}
}

func messageJSON(m store.Message) map[string]any {
	return map[string]any{
		"id":             m.ID,
		"conversationId": m.ConversationID,
		"role":           m.Role,
		"content":        m.Content,
		"modelUsed":      m.ModelUsed,
		"createdAt":      m.CreatedAt.Format(time.RFC3339),
	}
}

func dateJSON(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// ---------------------------------------------------------------------------
// Plumbing

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrAccountDisabled):
		return http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled", nil
	case errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, ordering.ErrUnknownItem):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, ai.ErrUnavailable):
		return http.StatusBadGateway, "AI_UNAVAILABLE", "Assistant is temporarily unavailable", nil
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable, "AI_NOT_CONFIGURED", "Assistant is not configured", nil
	case errors.Is(err, extract.ErrUnsupportedType):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, extract.ErrDependencyMissing),
		errors.Is(err, export.ErrPDFDependencyMissing),
		errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusBadGateway, "CONVERTER_UNAVAILABLE", "Document converter is unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
