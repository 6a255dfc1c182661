package usecases

import (
	"context"
	"fmt"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// VerifySession fails with models.ErrSessionExpired when the adapter is no
// longer logged in. Navigation and script errors are returned as is.
func VerifySession(ctx context.Context, name string, v ports.SessionVerifier) error {
	ok, err := v.VerifySession(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify %s session: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s, log in to the browser profile and retry", models.ErrSessionExpired, name)
	}
	return nil
}
