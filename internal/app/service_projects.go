package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"investiflow/api/internal/export"
	"investiflow/api/internal/ordering"
	"investiflow/api/internal/search"
	"investiflow/api/internal/store"
	"investiflow/api/internal/util"
)

type CreateProjectInput struct {
	Name          string
	Description   *string
	ResearchType  *string
	Institution   *string
	ResearchGroup *string
	Category      *string
	Status        string
}

type CreatePhaseInput struct {
	Name     string
	Color    *string
	Position *int
}

type CreateTaskInput struct {
	Title       string
	Description *string
	Status      string
	StartDate   *time.Time
	EndDate     *time.Time
	Position    *int
}

// PhaseDetail is a phase with its tasks in position order.
type PhaseDetail struct {
	Phase store.Phase
	Tasks []store.Task
}

// ProjectDetail is a project with its full phase/task tree.
type ProjectDetail struct {
	Project store.Project
	Phases  []PhaseDetail
}

func (s *Service) ListProjects(ctx context.Context, session Session) ([]store.Project, error) {
	return s.store.ListProjects(ctx, session.UserID)
}

func (s *Service) CreateProject(ctx context.Context, session Session, input CreateProjectInput) (store.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Project{}, validationError("name is required")
	}
	status := input.Status
	if status == "" {
		status = "planning"
	}
	if _, ok := allowedProjectStatus[status]; !ok {
		return store.Project{}, validationError("invalid project status")
	}

	project, err := s.store.InsertProject(ctx, store.Project{
		ID:            util.NewID("prj"),
		OwnerID:       session.UserID,
		Name:          name,
		Description:   input.Description,
		ResearchType:  input.ResearchType,
		Institution:   input.Institution,
		ResearchGroup: input.ResearchGroup,
		Category:      input.Category,
		Status:        status,
	})
	if err != nil {
		return store.Project{}, err
	}
	s.indexProject(project)
	return project, nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	return s.projectForUser(ctx, projectID, session.UserID)
}

func (s *Service) ProjectDetail(ctx context.Context, session Session, projectID string) (ProjectDetail, error) {
	project, err := s.projectForUser(ctx, projectID, session.UserID)
	if err != nil {
		return ProjectDetail{}, err
	}
	phases, err := s.store.ListPhases(ctx, project.ID)
	if err != nil {
		return ProjectDetail{}, err
	}
	detail := ProjectDetail{Project: project, Phases: make([]PhaseDetail, 0, len(phases))}
	for _, phase := range phases {
		tasks, err := s.store.ListTasks(ctx, phase.ID)
		if err != nil {
			return ProjectDetail{}, err
		}
		detail.Phases = append(detail.Phases, PhaseDetail{Phase: phase, Tasks: tasks})
	}
	return detail, nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, update store.ProjectUpdate) (store.Project, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return store.Project{}, err
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return store.Project{}, validationError("name must not be empty")
	}
	if update.Status != nil {
		if _, ok := allowedProjectStatus[*update.Status]; !ok {
			return store.Project{}, validationError("invalid project status")
		}
	}
	project, err := s.store.UpdateProject(ctx, projectID, update)
	if err != nil {
		return store.Project{}, err
	}
	s.indexProject(project)
	return project, nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return err
	}
	entries, err := s.store.ListBibliography(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.search.DeleteProject(projectID)
	for _, entry := range entries {
		s.search.DeleteReference(entry.ID)
	}
	return nil
}

func (s *Service) SearchEverything(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, validationError("query is required")
	}
	q.OwnerID = session.UserID
	if q.ProjectID != "" {
		if _, err := s.projectForUser(ctx, q.ProjectID, session.UserID); err != nil {
			return search.Response{}, err
		}
	}
	return s.search.Search(q), nil
}

func (s *Service) ExportProject(ctx context.Context, session Session, projectID string, format export.Format, includeBibliography bool) (*export.Result, error) {
	if format != export.FormatPDF && format != export.FormatDOCX {
		return nil, validationError("format must be pdf or docx")
	}
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{
		ProjectID:           projectID,
		Format:              format,
		IncludeBibliography: includeBibliography,
	})
}

func (s *Service) indexProject(p store.Project) {
	s.search.IndexProject(search.ProjectRecord{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Description: strOr(p.Description),
		Institution: strOr(p.Institution),
		Category:    strOr(p.Category),
		Status:      p.Status,
	})
}

// ---------------------------------------------------------------------------
// Phases

func (s *Service) CreatePhase(ctx context.Context, session Session, projectID string, input CreatePhaseInput) (store.Phase, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return store.Phase{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Phase{}, validationError("name is required")
	}
	if input.Position != nil && *input.Position < 0 {
		return store.Phase{}, validationError("position must not be negative")
	}
	return s.store.InsertPhase(ctx, store.Phase{
		ID:        util.NewID("phs"),
		ProjectID: projectID,
		Name:      name,
		Color:     input.Color,
	}, input.Position)
}

func (s *Service) GetPhase(ctx context.Context, session Session, phaseID string) (store.Phase, error) {
	return s.phaseForUser(ctx, phaseID, session.UserID)
}

func (s *Service) ListPhases(ctx context.Context, session Session, projectID string) ([]store.Phase, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListPhases(ctx, projectID)
}

func (s *Service) PhaseDetail(ctx context.Context, session Session, phaseID string) (PhaseDetail, error) {
	phase, err := s.phaseForUser(ctx, phaseID, session.UserID)
	if err != nil {
		return PhaseDetail{}, err
	}
	tasks, err := s.store.ListTasks(ctx, phase.ID)
	if err != nil {
		return PhaseDetail{}, err
	}
	return PhaseDetail{Phase: phase, Tasks: tasks}, nil
}

func (s *Service) UpdatePhase(ctx context.Context, session Session, phaseID string, update store.PhaseUpdate) (store.Phase, error) {
	if _, err := s.phaseForUser(ctx, phaseID, session.UserID); err != nil {
		return store.Phase{}, err
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return store.Phase{}, validationError("name must not be empty")
	}
	if update.Position != nil && *update.Position < 0 {
		return store.Phase{}, validationError("position must not be negative")
	}
	return s.store.UpdatePhase(ctx, phaseID, update)
}

func (s *Service) DeletePhase(ctx context.Context, session Session, phaseID string) error {
	if _, err := s.phaseForUser(ctx, phaseID, session.UserID); err != nil {
		return err
	}
	return s.store.DeletePhase(ctx, phaseID)
}

func (s *Service) ReorderPhases(ctx context.Context, session Session, projectID string, orders []ordering.Item) error {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return err
	}
	if err := checkReorderInput(orders); err != nil {
		return err
	}
	return s.store.ReorderPhases(ctx, projectID, orders)
}

// ---------------------------------------------------------------------------
// Tasks

func (s *Service) CreateTask(ctx context.Context, session Session, phaseID string, input CreateTaskInput) (store.Task, error) {
	if _, err := s.phaseForUser(ctx, phaseID, session.UserID); err != nil {
		return store.Task{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Task{}, validationError("title is required")
	}
	status := input.Status
	if status == "" {
		status = "pending"
	}
	if _, ok := allowedTaskStatus[status]; !ok {
		return store.Task{}, validationError("invalid task status")
	}
	if input.Position != nil && *input.Position < 0 {
		return store.Task{}, validationError("position must not be negative")
	}
	if err := checkTaskDates(input.StartDate, input.EndDate); err != nil {
		return store.Task{}, err
	}
	return s.store.InsertTask(ctx, store.Task{
		ID:          util.NewID("tsk"),
		PhaseID:     phaseID,
		Title:       title,
		Description: input.Description,
		Status:      status,
		Completed:   status == "completed",
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}, input.Position)
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (store.Task, error) {
	return s.taskForUser(ctx, taskID, session.UserID)
}

func (s *Service) ListTasks(ctx context.Context, session Session, phaseID string) ([]store.Task, error) {
	if _, err := s.phaseForUser(ctx, phaseID, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, phaseID)
}

func (s *Service) ListProjectTasks(ctx context.Context, session Session, projectID string) ([]store.Task, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListProjectTasks(ctx, projectID)
}

func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, update store.TaskUpdate) (store.Task, error) {
	current, err := s.taskForUser(ctx, taskID, session.UserID)
	if err != nil {
		return store.Task{}, err
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return store.Task{}, validationError("title must not be empty")
	}
	if update.Status != nil {
		if _, ok := allowedTaskStatus[*update.Status]; !ok {
			return store.Task{}, validationError("invalid task status")
		}
	}
	if update.Position != nil && *update.Position < 0 {
		return store.Task{}, validationError("position must not be negative")
	}
	if update.PhaseID != nil && *update.PhaseID != current.PhaseID {
		if _, err := s.phaseForUser(ctx, *update.PhaseID, session.UserID); err != nil {
			return store.Task{}, err
		}
	}
	start, end := current.StartDate, current.EndDate
	if update.StartDate != nil {
		start = update.StartDate
	}
	if update.EndDate != nil {
		end = update.EndDate
	}
	if err := checkTaskDates(start, end); err != nil {
		return store.Task{}, err
	}
	return s.store.UpdateTask(ctx, taskID, update)
}

// MoveTask relocates a task into another phase, appending when no position is
// given. The destination must resolve for the acting user.
func (s *Service) MoveTask(ctx context.Context, session Session, taskID, phaseID string, position *int) (store.Task, error) {
	if position != nil && *position < 0 {
		return store.Task{}, validationError("position must not be negative")
	}
	return s.UpdateTask(ctx, session, taskID, store.TaskUpdate{PhaseID: &phaseID, Position: position})
}

func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	if _, err := s.taskForUser(ctx, taskID, session.UserID); err != nil {
		return err
	}
	return s.store.DeleteTask(ctx, taskID)
}

func (s *Service) ReorderTasks(ctx context.Context, session Session, phaseID string, orders []ordering.Item) error {
	if _, err := s.phaseForUser(ctx, phaseID, session.UserID); err != nil {
		return err
	}
	if err := checkReorderInput(orders); err != nil {
		return err
	}
	return s.store.ReorderTasks(ctx, phaseID, orders)
}

func checkReorderInput(orders []ordering.Item) error {
	if len(orders) == 0 {
		return validationError("orders must not be empty")
	}
	seenIDs := make(map[string]struct{}, len(orders))
	seenPositions := make(map[int]struct{}, len(orders))
	for _, item := range orders {
		if item.ID == "" {
			return validationError("every order entry needs an id")
		}
		if item.Position < 0 {
			return validationError("position must not be negative")
		}
		if _, dup := seenIDs[item.ID]; dup {
			return conflictError("DUPLICATE_ORDER", fmt.Sprintf("id %s listed twice", item.ID))
		}
		if _, dup := seenPositions[item.Position]; dup {
			return conflictError("DUPLICATE_ORDER", fmt.Sprintf("position %d listed twice", item.Position))
		}
		seenIDs[item.ID] = struct{}{}
		seenPositions[item.Position] = struct{}{}
	}
	return nil
}

func checkTaskDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return validationError("endDate must not be before startDate")
	}
	return nil
}

// exportAdapter feeds the report renderer from the store.
type exportAdapter struct {
	store dataStore
}

func (a exportAdapter) GetProjectReport(ctx context.Context, projectID string) (export.ProjectInfo, error) {
	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	owner, err := a.store.GetUserByID(ctx, project.OwnerID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	phases, err := a.store.ListPhases(ctx, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}

	info := export.ProjectInfo{
		Name:        project.Name,
		Description: strOr(project.Description),
		Institution: strOr(project.Institution),
		Category:    strOr(project.Category),
		Status:      project.Status,
		Owner:       owner.FullName,
		Phases:      make([]export.PhaseInfo, 0, len(phases)),
	}
	for _, phase := range phases {
		tasks, err := a.store.ListTasks(ctx, phase.ID)
		if err != nil {
			return export.ProjectInfo{}, err
		}
		phaseInfo := export.PhaseInfo{Name: phase.Name, Tasks: make([]export.TaskInfo, 0, len(tasks))}
		for _, task := range tasks {
			phaseInfo.Tasks = append(phaseInfo.Tasks, export.TaskInfo{
				Title:     task.Title,
				Status:    task.Status,
				Completed: task.Completed,
				StartDate: task.StartDate,
				EndDate:   task.EndDate,
			})
		}
		info.Phases = append(info.Phases, phaseInfo)
	}
	return info, nil
}

func (a exportAdapter) ListReferences(ctx context.Context, projectID string) ([]export.ReferenceInfo, error) {
	entries, err := a.store.ListBibliography(ctx, projectID)
	if err != nil {
		return nil, err
	}
	references := make([]export.ReferenceInfo, 0, len(entries))
	for _, entry := range entries {
		references = append(references, export.ReferenceInfo{
			Author: entry.Author,
			Year:   entry.Year,
			Title:  entry.Title,
			Source: strOr(entry.Source),
			Volume: strOr(entry.Volume),
			Issue:  strOr(entry.Issue),
			Pages:  strOr(entry.Pages),
			DOI:    strOr(entry.DOI),
			URL:    strOr(entry.URL),
		})
	}
	return references, nil
}
