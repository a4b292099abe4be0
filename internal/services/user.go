package services

import (
	"context"
	"errors"
	"net/mail"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// ErrInvalidCredentials is returned when a username/password pair does
// not match a stored account.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Username          string
	Email             string
	Password          string
	PasswordConfirm   string
	FirstName         string
	LastName          string
	Bio               string
	ProfilePictureURL string
}

// ProfileInput is the client-writable part of a user profile.
type ProfileInput struct {
	Username          string
	Email             string
	FirstName         string
	LastName          string
	Bio               string
	ProfilePictureURL string
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register validates the input, hashes the password, and creates the
// account. Username and email must be unique.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	errs := FieldErrors{}
	if input.Username == "" {
		errs.add("username", "This field is required.")
	}
	if input.Email == "" {
		errs.add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		errs.add("email", "Enter a valid email address.")
	}
	if input.Password == "" {
		errs.add("password", "This field is required.")
	} else if len(input.Password) < minPasswordLength {
		errs.add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if input.PasswordConfirm == "" {
		errs.add("password2", "This field is required.")
	} else if input.Password != "" && input.Password != input.PasswordConfirm {
		errs.add("password2", "Passwords do not match.")
	}

	if input.Username != "" {
		if err := s.checkUsernameFree(ctx, input.Username, 0, errs); err != nil {
			return types.User{}, err
		}
	}
	if input.Email != "" {
		if err := s.checkEmailFree(ctx, input.Email, 0, errs); err != nil {
			return types.User{}, err
		}
	}
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:          input.Username,
		Email:             input.Email,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Bio:               input.Bio,
		ProfilePictureURL: input.ProfilePictureURL,
		PasswordHash:      string(hashed),
	})
	if err != nil {
		// Races past the pre-checks land here.
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, FieldErrors{"username": "A user with that username or email already exists."}
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate verifies a plaintext password against the stored hash.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateProfile updates the caller's own profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, input ProfileInput) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	errs := FieldErrors{}
	if input.Username == "" {
		errs.add("username", "This field is required.")
	} else if input.Username != user.Username {
		if err := s.checkUsernameFree(ctx, input.Username, userID, errs); err != nil {
			return types.User{}, err
		}
	}
	if input.Email == "" {
		errs.add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		errs.add("email", "Enter a valid email address.")
	} else if input.Email != user.Email {
		if err := s.checkEmailFree(ctx, input.Email, userID, errs); err != nil {
			return types.User{}, err
		}
	}
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	user.Username = input.Username
	user.Email = input.Email
	user.FirstName = input.FirstName
	user.LastName = input.LastName
	user.Bio = input.Bio
	user.ProfilePictureURL = input.ProfilePictureURL
	return s.repo.Update(ctx, user)
}

// SetProfilePicture stores a new avatar URL on the user.
func (s *UserService) SetProfilePicture(ctx context.Context, userID int, url string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	user.ProfilePictureURL = url
	return s.repo.Update(ctx, user)
}

func (s *UserService) checkUsernameFree(ctx context.Context, username string, selfID int, errs FieldErrors) error {
	existing, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		if existing.ID != selfID {
			errs.add("username", "A user with that username already exists.")
		}
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *UserService) checkEmailFree(ctx context.Context, email string, selfID int, errs FieldErrors) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if existing.ID != selfID {
			errs.add("email", "A user with that email already exists.")
		}
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
