package validations

import (
	"context"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
	pkgError "github.com/blaze-sports-intel/scorecache/pkg/error"
)

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func ValidateInvalidateByTag(ctx context.Context, request domainCache.InvalidateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Tag,
			validation.Required,
			validation.Length(1, 256),
			validation.Match(tagPattern),
		),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
