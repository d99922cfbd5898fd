package resolution

import (
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
)

var (
	ErrPersonNotFound      = apperrors.New(apperrors.ErrNotFound, "person not found")
	ErrUnsetReference      = apperrors.New(apperrors.ErrNotFound, "reference is empty")
	ErrResolutionAmbiguous = apperrors.New(apperrors.ErrResolutionAmbiguous, "legacy and profile references disagree on clinic")
)
