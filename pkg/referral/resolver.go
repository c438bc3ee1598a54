package referral

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"strings"
)

// unresolvable hints are not errors, a bad hint never blocks a payment
type Resolver struct {
	logger *logrus.Logger
}

func NewResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{logger: logger}
}

func (r *Resolver) ResolveReferrerFor(ctx context.Context, tx pkg.Tx, user *pkg.User) (*pkg.User, error) {
	hint := strings.TrimSpace(user.ReferrerHint)
	if hint == "" || hint == user.ExternalID {
		return nil, nil
	}

	referrer, err := tx.FindByExternalID(ctx, hint)
	if errors.Is(err, pkg.ErrNotFound) {
		r.logger.WithFields(logrus.Fields{
			"external_id": user.ExternalID,
			"hint":        hint,
		}).Debug("referrer hint does not resolve")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve referrer")
	}

	if referrer.ID == user.ID {
		return nil, nil
	}

	return referrer, nil
}
