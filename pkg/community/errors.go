package community

import (
	"fmt"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

func errUnknown(kind, id string) error {
	return apperrors.New(apperrors.CodeNotFound).WithDetail(fmt.Sprintf("%s %q is not loaded", kind, id))
}
