package legacy

import (
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
)

var ErrLegacyNotFound = apperrors.New(apperrors.ErrNotFound, "legacy record not found")
