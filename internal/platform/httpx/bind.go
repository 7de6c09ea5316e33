package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/tradeflow/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind decodes the JSON body into target and validates its struct tags.
func Bind(w http.ResponseWriter, r *http.Request, target any) error {
	if err := DecodeJSON(w, r, target); err != nil {
		return err
	}
	return validate.Struct(target)
}

// Principal returns the caller identity placed on the request by middleware.
func Principal(r *http.Request) (shared.Principal, error) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return shared.Principal{}, fmt.Errorf("%w: missing caller identity", shared.ErrForbidden)
	}
	return p, nil
}
