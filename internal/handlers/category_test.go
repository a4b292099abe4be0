package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/types"
)

type categoryTestEnv struct {
	router *chi.Mux
	repo   *memCategoryRepo
}

func newCategoryTestEnv(t *testing.T, userID int) *categoryTestEnv {
	t.Helper()
	repo := newMemCategoryRepo()
	svc := services.NewCategoryService(repo)

	router := chi.NewRouter()
	router.Route("/categories", func(r chi.Router) {
		CategoryRouter(r, svc, stubAuth(userID))
	})
	return &categoryTestEnv{router: router, repo: repo}
}

func TestCreateCategoryHandler(t *testing.T) {
	env := newCategoryTestEnv(t, 1)

	rec := doJSON(t, env.router, http.MethodPost, "/categories/", map[string]string{"name": "Work"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	category := decodeBody[types.Category](t, rec)
	require.Equal(t, "Work", category.Name)
	require.Equal(t, types.DefaultCategoryColor, category.Color)
	require.Equal(t, 1, category.UserID)
}

func TestCreateCategoryDuplicateHandler(t *testing.T) {
	env := newCategoryTestEnv(t, 1)

	rec := doJSON(t, env.router, http.MethodPost, "/categories/", map[string]string{"name": "Work"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, env.router, http.MethodPost, "/categories/", map[string]string{"name": "Work"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[FieldErrorResponse](t, rec)
	require.Equal(t, "Category with this name already exists.", resp.Errors["name"])
}

func TestCategoryLifecycleHandler(t *testing.T) {
	env := newCategoryTestEnv(t, 1)

	rec := doJSON(t, env.router, http.MethodPost, "/categories/", map[string]string{"name": "Work", "color": "#ff0000"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[types.Category](t, rec)

	rec = doJSON(t, env.router, http.MethodPut, "/categories/"+itoa(created.ID)+"/", map[string]string{"name": "Office", "color": "#00ff00"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[types.Category](t, rec)
	require.Equal(t, "Office", updated.Name)
	require.Equal(t, "#00ff00", updated.Color)

	rec = doJSON(t, env.router, http.MethodDelete, "/categories/"+itoa(created.ID)+"/", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, env.router, http.MethodGet, "/categories/"+itoa(created.ID)+"/", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchCategoryPartialHandler(t *testing.T) {
	env := newCategoryTestEnv(t, 1)

	rec := doJSON(t, env.router, http.MethodPost, "/categories/", map[string]string{"name": "Work", "color": "#ff0000"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[types.Category](t, rec)

	// Sending only a color keeps the name.
	rec = doJSON(t, env.router, http.MethodPatch, "/categories/"+itoa(created.ID)+"/", map[string]string{"color": "#00ff00"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decodeBody[types.Category](t, rec)
	require.Equal(t, "Work", patched.Name)
	require.Equal(t, "#00ff00", patched.Color)
}

func TestGetCategoryNotOwnedHandler(t *testing.T) {
	env := newCategoryTestEnv(t, 1)

	rec := doJSON(t, env.router, http.MethodPost, "/categories/", map[string]string{"name": "Work"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[types.Category](t, rec)

	foreign := newCategoryTestEnvWithRepo(t, 2, env.repo)
	rec = doJSON(t, foreign.router, http.MethodGet, "/categories/"+itoa(created.ID)+"/", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func newCategoryTestEnvWithRepo(t *testing.T, userID int, repo *memCategoryRepo) *categoryTestEnv {
	t.Helper()
	svc := services.NewCategoryService(repo)

	router := chi.NewRouter()
	router.Route("/categories", func(r chi.Router) {
		CategoryRouter(r, svc, stubAuth(userID))
	})
	return &categoryTestEnv{router: router, repo: repo}
}
