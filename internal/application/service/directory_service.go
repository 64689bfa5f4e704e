package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
	"github.com/google/uuid"
)

// CreateUserInput is the payload for registering a directory user
type CreateUserInput struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Role       entity.Role `json:"role"`
	ManagerID  string      `json:"manager_id,omitempty"`
	LarkOpenID string      `json:"lark_open_id,omitempty"`
}

// DirectoryService manages users, roles and reporting lines.
// It is also the engine's UserDirectory.
type DirectoryService interface {
	port.UserDirectory
	CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*entity.User, error)
	ChangeRole(ctx context.Context, userID string, role entity.Role) (*entity.User, error)
	AssignManager(ctx context.Context, userID, managerID string) (*entity.User, error)
}

type directoryServiceImpl struct {
	users     port.UserRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(users port.UserRepository, txManager port.TransactionManager, logger Logger) DirectoryService {
	return &directoryServiceImpl{
		users:     users,
		txManager: txManager,
		logger:    logger,
	}
}

// CreateUser registers a user, optionally under an existing manager
func (s *directoryServiceImpl) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	in.Name = utils.SanitizeString(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := utils.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.Role == 0 {
		in.Role = entity.RoleEmployee
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	user := &entity.User{
		ID:         in.ID,
		Name:       in.Name,
		Email:      in.Email,
		Role:       in.Role,
		LarkOpenID: in.LarkOpenID,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if existing, err := s.users.GetByID(txCtx, user.ID); err != nil {
			return fmt.Errorf("get user: %w", err)
		} else if existing != nil {
			return fmt.Errorf("%w: id %s", ErrUserExists, user.ID)
		}
		if existing, err := s.users.GetByEmail(txCtx, user.Email); err != nil {
			return fmt.Errorf("get user by email: %w", err)
		} else if existing != nil {
			return fmt.Errorf("%w: email %s", ErrUserExists, user.Email)
		}

		if in.ManagerID != "" {
			if err := s.checkManager(txCtx, user.ID, in.ManagerID); err != nil {
				return err
			}
			user.ManagerID = in.ManagerID
		}

		return s.users.Create(txCtx, user)
	})
	if err != nil {
		s.logger.Error("Failed to create user", "email", in.Email, "error", err)
		return nil, err
	}

	s.logger.Info("User created", "user_id", user.ID, "role", user.Role.String(), "manager_id", user.ManagerID)
	return user, nil
}

// GetUser returns a user or ErrUserNotFound
func (s *directoryServiceImpl) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return user, nil
}

func (s *directoryServiceImpl) ListUsers(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	limit, offset = page(limit, offset)
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ChangeRole updates a user's role. Rules already attached keep the
// approvers they were validated with.
func (s *directoryServiceImpl) ChangeRole(ctx context.Context, userID string, role entity.Role) (*entity.User, error) {
	if _, err := entity.ParseRole(role.String()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var user *entity.User
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.GetUser(txCtx, userID)
		if err != nil {
			return err
		}
		if err := s.users.UpdateRole(txCtx, userID, role); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		user.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User role changed", "user_id", userID, "role", role.String())
	return user, nil
}

// AssignManager sets the user's reporting manager; an empty managerID clears it
func (s *directoryServiceImpl) AssignManager(ctx context.Context, userID, managerID string) (*entity.User, error) {
	var user *entity.User
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.GetUser(txCtx, userID)
		if err != nil {
			return err
		}
		if managerID != "" {
			if err := s.checkManager(txCtx, userID, managerID); err != nil {
				return err
			}
		}
		if err := s.users.UpdateManager(txCtx, userID, managerID); err != nil {
			return fmt.Errorf("update manager: %w", err)
		}
		user.ManagerID = managerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manager assigned", "user_id", userID, "manager_id", managerID)
	return user, nil
}

func (s *directoryServiceImpl) checkManager(ctx context.Context, userID, managerID string) error {
	if managerID == userID {
		return fmt.Errorf("%w: user %s cannot manage themselves", ErrValidation, userID)
	}
	manager, err := s.users.GetByID(ctx, managerID)
	if err != nil {
		return fmt.Errorf("get manager: %w", err)
	}
	if manager == nil {
		return fmt.Errorf("%w: manager %s", ErrUserNotFound, managerID)
	}
	if !manager.Role.CanManage() {
		return fmt.Errorf("%w: %s has role %s, not manager", ErrValidation, managerID, manager.Role)
	}
	return nil
}

// IsEligibleApprover reports whether the user exists and their role may vote
func (s *directoryServiceImpl) IsEligibleApprover(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return false, nil
	}
	return user.Role.CanApprove(), nil
}

// GetManagerOf returns the user's assigned manager id, empty when none
func (s *directoryServiceImpl) GetManagerOf(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return user.ManagerID, nil
}
