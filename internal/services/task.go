package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const maxTitleLength = 200

// ErrAlreadyPending is returned by MarkIncomplete for a task that is not
// completed.
var ErrAlreadyPending = errors.New("task is already pending")

// TaskRepository defines persistence operations for tasks. All operations
// are scoped to the given owner.
type TaskRepository interface {
	List(ctx context.Context, userID int, filter store.TaskFilter) ([]types.Task, int, error)
	Get(ctx context.Context, userID, id int) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, userID, id int) error
}

// TaskInput is the full payload for creating or replacing a task.
type TaskInput struct {
	Title       string
	Description string
	Priority    types.Priority
	Status      types.Status
	DueDate     *time.Time
	CategoryID  *int
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *types.Priority
	Status      *types.Status
	DueDate     *time.Time
	CategoryID  *int
}

// TaskService encapsulates task use-cases. The caller's identity is an
// explicit parameter on every operation; it is never taken from ambient
// state.
type TaskService struct {
	repo       TaskRepository
	categories CategoryRepository
	events     *TaskEvents
	now        func() time.Time
}

func NewTaskService(repo TaskRepository, categories CategoryRepository, events *TaskEvents) *TaskService {
	return &TaskService{
		repo:       repo,
		categories: categories,
		events:     events,
		now:        time.Now,
	}
}

func (s *TaskService) List(ctx context.Context, userID int, filter store.TaskFilter) ([]types.Task, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, userID, filter)
}

// ListOverdue returns the caller's pending tasks whose due date has passed.
func (s *TaskService) ListOverdue(ctx context.Context, userID int, filter store.TaskFilter) ([]types.Task, int, error) {
	pending := types.StatusPending
	today := s.now()
	filter.Status = &pending
	filter.DueBefore = &today
	return s.List(ctx, userID, filter)
}

// ListByStatus returns the caller's tasks restricted to one status.
func (s *TaskService) ListByStatus(ctx context.Context, userID int, status types.Status, filter store.TaskFilter) ([]types.Task, int, error) {
	filter.Status = &status
	return s.List(ctx, userID, filter)
}

func (s *TaskService) Get(ctx context.Context, userID, id int) (types.Task, error) {
	return s.repo.Get(ctx, userID, id)
}

// Create validates the input and persists a new task owned by userID.
// The owner is always the authenticated caller regardless of payload.
func (s *TaskService) Create(ctx context.Context, userID int, input TaskInput) (types.Task, error) {
	if input.Priority == "" {
		input.Priority = types.PriorityMedium
	}
	if input.Status == "" {
		input.Status = types.StatusPending
	}

	v := &taskValidation{
		input:          input,
		dueDateMessage: "Due date cannot be in the past.",
		today:          s.now(),
		errs:           FieldErrors{},
	}
	for _, rule := range taskRules {
		rule(v)
	}
	s.checkCategory(ctx, userID, input.CategoryID, v.errs)
	if err := v.errs.orNil(); err != nil {
		return types.Task{}, err
	}

	task := types.Task{
		UserID:      userID,
		CategoryID:  input.CategoryID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      input.Status,
		DueDate:     normalizeDueDate(input.DueDate),
	}
	if task.Status == types.StatusCompleted {
		now := s.now()
		task.CompletedAt = &now
	}

	created, err := s.repo.Create(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	s.events.Created(ctx, created)
	if created.Status == types.StatusCompleted {
		s.events.Completed(ctx, created)
	}
	return created, nil
}

// Update replaces the task's client-writable fields with input.
func (s *TaskService) Update(ctx context.Context, userID, id int, input TaskInput) (types.Task, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return types.Task{}, err
	}
	return s.applyUpdate(ctx, userID, current, input, allChecks)
}

// Patch applies a partial update; nil fields keep their current values.
// A due date that is not being changed is not re-validated.
func (s *TaskService) Patch(ctx context.Context, userID, id int, patch TaskPatch) (types.Task, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return types.Task{}, err
	}

	input := TaskInput{
		Title:       current.Title,
		Description: current.Description,
		Priority:    current.Priority,
		Status:      current.Status,
		DueDate:     current.DueDate,
		CategoryID:  current.CategoryID,
	}
	if patch.Title != nil {
		input.Title = *patch.Title
	}
	if patch.Description != nil {
		input.Description = *patch.Description
	}
	if patch.Priority != nil {
		input.Priority = *patch.Priority
	}
	if patch.Status != nil {
		input.Status = *patch.Status
	}
	if patch.DueDate != nil {
		input.DueDate = patch.DueDate
	}
	if patch.CategoryID != nil {
		input.CategoryID = patch.CategoryID
	}

	provided := updateChecks{
		dueDate:  patch.DueDate != nil,
		category: patch.CategoryID != nil,
		status:   patch.Status != nil,
	}
	return s.applyUpdate(ctx, userID, current, input, provided)
}

// updateChecks records which fields the client actually supplied, so
// rules for untouched fields are not re-run retroactively.
type updateChecks struct {
	dueDate  bool
	category bool
	status   bool
}

var allChecks = updateChecks{dueDate: true, category: true, status: true}

func (s *TaskService) applyUpdate(ctx context.Context, userID int, current types.Task, input TaskInput, provided updateChecks) (types.Task, error) {
	if input.Priority == "" {
		input.Priority = types.PriorityMedium
	}
	if input.Status == "" {
		input.Status = types.StatusPending
	}

	v := &taskValidation{
		input:          input,
		current:        &current,
		dueDateMessage: "Due date must be in the future.",
		skipDueDate:    !provided.dueDate,
		skipRecomplete: !provided.status,
		today:          s.now(),
		errs:           FieldErrors{},
	}
	for _, rule := range taskRules {
		rule(v)
	}
	if provided.category {
		s.checkCategory(ctx, userID, input.CategoryID, v.errs)
	}
	if err := v.errs.orNil(); err != nil {
		return types.Task{}, err
	}

	updated := current
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Priority = input.Priority
	updated.CategoryID = input.CategoryID
	updated.DueDate = normalizeDueDate(input.DueDate)

	completing := input.Status == types.StatusCompleted && current.Status != types.StatusCompleted
	updated.Status = input.Status
	switch input.Status {
	case types.StatusCompleted:
		if updated.CompletedAt == nil {
			now := s.now()
			updated.CompletedAt = &now
		}
	case types.StatusPending:
		updated.CompletedAt = nil
	}

	persisted, err := s.repo.Update(ctx, updated)
	if err != nil {
		return types.Task{}, err
	}
	if completing {
		s.events.Completed(ctx, persisted)
	}
	return persisted, nil
}

// MarkIncomplete transitions a completed task back to pending, clearing
// its completion timestamp. A task that is already pending is an error.
func (s *TaskService) MarkIncomplete(ctx context.Context, userID, id int) (types.Task, error) {
	task, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return types.Task{}, err
	}
	if task.Status == types.StatusPending {
		return types.Task{}, ErrAlreadyPending
	}

	task.Status = types.StatusPending
	task.CompletedAt = nil
	updated, err := s.repo.Update(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	s.events.Reopened(ctx, updated)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id int) error {
	return s.repo.Delete(ctx, userID, id)
}

// checkCategory rejects category references outside the caller's own set.
// Ownership filtering makes a foreign category indistinguishable from a
// missing one.
func (s *TaskService) checkCategory(ctx context.Context, userID int, categoryID *int, errs FieldErrors) {
	if categoryID == nil {
		return
	}
	if _, err := s.categories.Get(ctx, userID, *categoryID); err != nil {
		errs.add("category_id", "Invalid category.")
	}
}

func normalizeDueDate(due *time.Time) *time.Time {
	if due == nil {
		return nil
	}
	date := types.DateOf(*due)
	return &date
}

// taskValidation is the structured input the rule list runs against.
type taskValidation struct {
	input          TaskInput
	current        *types.Task // nil on create
	dueDateMessage string
	skipDueDate    bool
	skipRecomplete bool
	today          time.Time
	errs           FieldErrors
}

// taskRules is the ordered list of validation rules. Each rule appends
// field errors rather than aborting, so all failures surface together.
var taskRules = []func(*taskValidation){
	ruleTitle,
	rulePriority,
	ruleStatus,
	ruleDueDate,
	ruleNoRecomplete,
}

func ruleTitle(v *taskValidation) {
	if v.input.Title == "" {
		v.errs.add("title", "This field is required.")
		return
	}
	if utf8.RuneCountInString(v.input.Title) > maxTitleLength {
		v.errs.add("title", fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength))
	}
}

func rulePriority(v *taskValidation) {
	if !v.input.Priority.Valid() {
		v.errs.add("priority", "Invalid priority choice.")
	}
}

func ruleStatus(v *taskValidation) {
	if !v.input.Status.Valid() {
		v.errs.add("status", "Invalid status choice.")
	}
}

func ruleDueDate(v *taskValidation) {
	if v.skipDueDate || v.input.DueDate == nil {
		return
	}
	if types.DateOf(*v.input.DueDate).Before(types.DateOf(v.today)) {
		v.errs.add("due_date", v.dueDateMessage)
	}
}

func ruleNoRecomplete(v *taskValidation) {
	if v.current == nil || v.skipRecomplete {
		return
	}
	if v.current.Status == types.StatusCompleted && v.input.Status == types.StatusCompleted {
		v.errs.add("status", "Task is already completed.")
	}
}
