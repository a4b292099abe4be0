package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "hunter2hunter2",
		PasswordConfirm: "hunter2hunter2",
		FirstName:       "Alice",
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)
	require.NotEmpty(t, user.PasswordHash)
	require.NotEqual(t, "hunter2hunter2", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter2hunter2")))
}

func TestRegisterPasswordMismatch(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	input := validRegisterInput()
	input.PasswordConfirm = "different-pass"
	_, err := svc.Register(context.Background(), input)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "Passwords do not match.", fieldErrs["password2"])
}

func TestRegisterShortPassword(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	input := validRegisterInput()
	input.Password = "short"
	input.PasswordConfirm = "short"
	_, err := svc.Register(context.Background(), input)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Contains(t, fieldErrs["password"], "too short")
}

func TestRegisterBadEmail(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	input := validRegisterInput()
	input.Email = "not-an-email"
	_, err := svc.Register(context.Background(), input)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "Enter a valid email address.", fieldErrs["email"])
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	input := validRegisterInput()
	input.Email = "alice2@example.com"
	_, err = svc.Register(context.Background(), input)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "A user with that username already exists.", fieldErrs["username"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	input := validRegisterInput()
	input.Username = "alice2"
	_, err = svc.Register(context.Background(), input)
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "A user with that email already exists.", fieldErrs["email"])
}

func TestAuthenticate(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	registered, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "alice", "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, registered.ID, user.ID)

	_, err = svc.Authenticate(context.Background(), "alice", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody", "hunter2hunter2")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateProfileUniqueness(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	alice, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	bobInput := validRegisterInput()
	bobInput.Username = "bob"
	bobInput.Email = "bob@example.com"
	_, err = svc.Register(context.Background(), bobInput)
	require.NoError(t, err)

	// Keeping your own username is fine.
	updated, err := svc.UpdateProfile(context.Background(), alice.ID, ProfileInput{
		Username: "alice",
		Email:    "alice@example.com",
		Bio:      "new bio",
	})
	require.NoError(t, err)
	require.Equal(t, "new bio", updated.Bio)

	// Taking someone else's is not.
	_, err = svc.UpdateProfile(context.Background(), alice.ID, ProfileInput{
		Username: "bob",
		Email:    "alice@example.com",
	})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, "A user with that username already exists.", fieldErrs["username"])
}

func TestSetProfilePicture(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	alice, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	updated, err := svc.SetProfilePicture(context.Background(), alice.ID, "https://cdn.example.com/avatars/1/pic.png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/avatars/1/pic.png", updated.ProfilePictureURL)
}
