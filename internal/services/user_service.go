package services

import (
	"context"
	"errors"
	"strings"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"
)

type UserService struct {
	store ledger.Store
}

func NewUserService(store ledger.Store) *UserService {
	return &UserService{store: store}
}

// EnsureUser returns the stored user with u.ID, creating it from u when it
// does not exist yet. Profile fields of an existing user are left alone.
func (s *UserService) EnsureUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return core.User{}, core.NewValidationError("userId", core.ErrEmptyUserID)
	}

	existing, err := s.store.FindUser(ctx, u.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, err
	}

	var created core.User
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		// A concurrent EnsureUser may have won the race.
		if found, err := tx.FindUser(ctx, u.ID); err == nil {
			created = found
			return nil
		}
		var err error
		created, err = tx.UpsertUser(ctx, u)
		return err
	})
	if err != nil {
		return core.User{}, core.AsConsistencyFailure("ensureUser", err)
	}

	applog.ForComponent(applog.ComponentUsers).InfoContext(ctx, "User created", applog.FieldUserID, created.ID)
	return created, nil
}
