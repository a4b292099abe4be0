package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const (
	maxCategoryNameLength = 50
	categoryColorLength   = 7
)

// CategoryRepository defines persistence operations for categories. All
// operations are scoped to the given owner.
type CategoryRepository interface {
	List(ctx context.Context, userID int) ([]types.Category, error)
	Get(ctx context.Context, userID, id int) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Update(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, userID, id int) error
}

// CategoryInput is the client-writable part of a category.
type CategoryInput struct {
	Name  string
	Color string
}

// CategoryPatch is a partial update; nil fields are left unchanged.
type CategoryPatch struct {
	Name  *string
	Color *string
}

// CategoryService encapsulates category use-cases.
type CategoryService struct {
	repo CategoryRepository
}

func NewCategoryService(repo CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context, userID int) ([]types.Category, error) {
	return s.repo.List(ctx, userID)
}

func (s *CategoryService) Get(ctx context.Context, userID, id int) (types.Category, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *CategoryService) Create(ctx context.Context, userID int, input CategoryInput) (types.Category, error) {
	input = normalizeCategoryInput(input)
	if err := validateCategoryInput(input).orNil(); err != nil {
		return types.Category{}, err
	}

	created, err := s.repo.Create(ctx, types.Category{
		UserID: userID,
		Name:   input.Name,
		Color:  input.Color,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Category{}, FieldErrors{"name": "Category with this name already exists."}
		}
		return types.Category{}, err
	}
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, userID, id int, input CategoryInput) (types.Category, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return types.Category{}, err
	}
	return s.applyUpdate(ctx, current, input)
}

// Patch applies a partial update; nil fields keep their current values.
func (s *CategoryService) Patch(ctx context.Context, userID, id int, patch CategoryPatch) (types.Category, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return types.Category{}, err
	}

	input := CategoryInput{Name: current.Name, Color: current.Color}
	if patch.Name != nil {
		input.Name = *patch.Name
	}
	if patch.Color != nil {
		input.Color = *patch.Color
	}
	return s.applyUpdate(ctx, current, input)
}

func (s *CategoryService) applyUpdate(ctx context.Context, current types.Category, input CategoryInput) (types.Category, error) {
	input = normalizeCategoryInput(input)
	if err := validateCategoryInput(input).orNil(); err != nil {
		return types.Category{}, err
	}

	current.Name = input.Name
	current.Color = input.Color
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Category{}, FieldErrors{"name": "Category with this name already exists."}
		}
		return types.Category{}, err
	}
	return updated, nil
}

func (s *CategoryService) Delete(ctx context.Context, userID, id int) error {
	return s.repo.Delete(ctx, userID, id)
}

func normalizeCategoryInput(input CategoryInput) CategoryInput {
	if input.Color == "" {
		input.Color = types.DefaultCategoryColor
	}
	return input
}

func validateCategoryInput(input CategoryInput) FieldErrors {
	errs := FieldErrors{}
	if input.Name == "" {
		errs.add("name", "This field is required.")
	} else if utf8.RuneCountInString(input.Name) > maxCategoryNameLength {
		errs.add("name", fmt.Sprintf("Ensure this field has no more than %d characters.", maxCategoryNameLength))
	}
	if utf8.RuneCountInString(input.Color) != categoryColorLength {
		errs.add("color", fmt.Sprintf("Ensure this field has exactly %d characters.", categoryColorLength))
	}
	return errs
}
