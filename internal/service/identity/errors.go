package identity

import (
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
)

var (
	ErrIdentityNotFound   = apperrors.New(apperrors.ErrNotFound, "global identity not found")
	ErrProfileNotFound    = apperrors.New(apperrors.ErrNotFound, "clinic profile not found")
	ErrDuplicateProfile   = apperrors.New(apperrors.ErrDuplicateProfile, "clinic profile already exists")
	ErrInvalidNaturalKey  = apperrors.New(apperrors.ErrBadRequest, "invalid natural key")
	ErrAccountMismatch    = apperrors.New(apperrors.ErrDuplicateProfile, "natural key belongs to another account")
	ErrIdentityContention = apperrors.New(apperrors.ErrUnavailable, "global identity creation kept conflicting")
)
