package services

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

type fakeCategoryRepo struct {
	categories map[int]types.Category
	nextID     int
}

func newFakeCategoryRepo() *fakeCategoryRepo {
	return &fakeCategoryRepo{categories: map[int]types.Category{}, nextID: 1}
}

func (r *fakeCategoryRepo) List(ctx context.Context, userID int) ([]types.Category, error) {
	var out []types.Category
	for _, category := range r.categories {
		if category.UserID == userID {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeCategoryRepo) Get(ctx context.Context, userID, id int) (types.Category, error) {
	category, ok := r.categories[id]
	if !ok || category.UserID != userID {
		return types.Category{}, store.ErrNotFound
	}
	return category, nil
}

func (r *fakeCategoryRepo) Create(ctx context.Context, category types.Category) (types.Category, error) {
	for _, existing := range r.categories {
		if existing.UserID == category.UserID && existing.Name == category.Name {
			return types.Category{}, store.ErrDuplicate
		}
	}
	category.ID = r.nextID
	r.nextID++
	category.CreatedAt = time.Now()
	category.UpdatedAt = category.CreatedAt
	r.categories[category.ID] = category
	return category, nil
}

func (r *fakeCategoryRepo) Update(ctx context.Context, category types.Category) (types.Category, error) {
	existing, ok := r.categories[category.ID]
	if !ok || existing.UserID != category.UserID {
		return types.Category{}, store.ErrNotFound
	}
	for _, other := range r.categories {
		if other.ID != category.ID && other.UserID == category.UserID && other.Name == category.Name {
			return types.Category{}, store.ErrDuplicate
		}
	}
	category.UpdatedAt = time.Now()
	r.categories[category.ID] = category
	return category, nil
}

func (r *fakeCategoryRepo) Delete(ctx context.Context, userID, id int) error {
	category, ok := r.categories[id]
	if !ok || category.UserID != userID {
		return store.ErrNotFound
	}
	delete(r.categories, id)
	return nil
}

func TestCreateCategoryDefaultColor(t *testing.T) {
	svc := NewCategoryService(newFakeCategoryRepo())

	category, err := svc.Create(context.Background(), 1, CategoryInput{Name: "Work"})
	require.NoError(t, err)
	require.Equal(t, types.DefaultCategoryColor, category.Color)
	require.Equal(t, 1, category.UserID)
}

func TestCreateCategoryNameRequired(t *testing.T) {
	svc := NewCategoryService(newFakeCategoryRepo())

	_, err := svc.Create(context.Background(), 1, CategoryInput{Color: "#ff0000"})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "This field is required.", fieldErrs["name"])
}

func TestCreateCategoryBadColorLength(t *testing.T) {
	svc := NewCategoryService(newFakeCategoryRepo())

	_, err := svc.Create(context.Background(), 1, CategoryInput{Name: "Work", Color: "#ff00"})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "color")
}

func TestCreateCategoryDuplicateName(t *testing.T) {
	repo := newFakeCategoryRepo()
	svc := NewCategoryService(repo)

	_, err := svc.Create(context.Background(), 1, CategoryInput{Name: "Work"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), 1, CategoryInput{Name: "Work"})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "Category with this name already exists.", fieldErrs["name"])
}

func TestCreateCategorySameNameDifferentOwners(t *testing.T) {
	repo := newFakeCategoryRepo()
	svc := NewCategoryService(repo)

	_, err := svc.Create(context.Background(), 1, CategoryInput{Name: "Work"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 2, CategoryInput{Name: "Work"})
	require.NoError(t, err)
}

func TestPatchCategoryKeepsUnsetFields(t *testing.T) {
	repo := newFakeCategoryRepo()
	svc := NewCategoryService(repo)

	created, err := svc.Create(context.Background(), 1, CategoryInput{Name: "Work", Color: "#ff0000"})
	require.NoError(t, err)

	color := "#00ff00"
	patched, err := svc.Patch(context.Background(), 1, created.ID, CategoryPatch{Color: &color})
	require.NoError(t, err)
	require.Equal(t, "Work", patched.Name)
	require.Equal(t, "#00ff00", patched.Color)

	name := "Office"
	patched, err = svc.Patch(context.Background(), 1, created.ID, CategoryPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Office", patched.Name)
	require.Equal(t, "#00ff00", patched.Color)
}

func TestCategoryNameCountsCharactersNotBytes(t *testing.T) {
	svc := NewCategoryService(newFakeCategoryRepo())

	// 50 two-byte runes: over 50 bytes, exactly at the character limit.
	name := strings.Repeat("é", 50)
	category, err := svc.Create(context.Background(), 1, CategoryInput{Name: name})
	require.NoError(t, err)
	require.Equal(t, name, category.Name)

	_, err = svc.Create(context.Background(), 1, CategoryInput{Name: strings.Repeat("é", 51)})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs, "name")
}

func TestUpdateCategoryForeignNotFound(t *testing.T) {
	repo := newFakeCategoryRepo()
	svc := NewCategoryService(repo)

	category, err := svc.Create(context.Background(), 2, CategoryInput{Name: "Work"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), 1, category.ID, CategoryInput{Name: "Stolen"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListCategoriesScopedToOwner(t *testing.T) {
	repo := newFakeCategoryRepo()
	svc := NewCategoryService(repo)

	_, err := svc.Create(context.Background(), 1, CategoryInput{Name: "Work"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 2, CategoryInput{Name: "Home"})
	require.NoError(t, err)

	categories, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, "Work", categories[0].Name)
}
