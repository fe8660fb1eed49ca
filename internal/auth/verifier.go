package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

// Verifier checks submitted credentials against the stored digest and the
// approval gate.
type Verifier struct {
	users  UserStore
	hasher PasswordHasher

	dummyOnce sync.Once
	dummy     string
}

func NewVerifier(users UserStore, hasher PasswordHasher) *Verifier {
	return &Verifier{users: users, hasher: hasher}
}

// Verify returns the user when username and password match and the account
// is approved. Unknown users still pay for one digest comparison.
func (v *Verifier) Verify(ctx context.Context, username, password string) (*models.User, error) {
	const op = "auth.Verifier.Verify"

	user, err := v.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			v.hasher.Verify(password, v.dummyDigest())
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !v.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrWrongPassword
	}
	if !user.Approved {
		return nil, ErrPendingApproval
	}
	return user, nil
}

func (v *Verifier) dummyDigest() string {
	v.dummyOnce.Do(func() {
		v.dummy, _ = v.hasher.Hash("not-a-real-password")
	})
	return v.dummy
}
