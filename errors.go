package texpub

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/eringen/texpub/publish"
)

const (
	postValidationCode = "POST_VALIDATION_FAILED"
	publishCompileCode = "PUBLISH_COMPILE_FAILED"
	publishFailedCode  = "PUBLISH_FAILED"
)

// Validate checks a post before it is stored.
func (p Post) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, 200)),
	)
}

// Validate checks a category before it is stored.
func (c Category) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required, validation.Length(1, 100)),
		validation.Field(&c.Slug, validation.Required, validation.Length(1, 100)),
	)
}

func wrapValidationError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, msg).
		WithTextCode(postValidationCode)
}

// wrapPublishError categorizes a pipeline error for the admin surface.
// Identifier problems are the author's to fix; everything from the compiler
// onwards is a command failure.
func wrapPublishError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	switch {
	case errors.Is(err, publish.ErrEmptyIdentifier), errors.Is(err, publish.ErrIdentifierConflict):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "post cannot be published").
			WithTextCode(postValidationCode)
	case publish.IsCompileFailure(err), publish.IsMalformedOutput(err),
		errors.Is(err, publish.ErrNoPages), errors.Is(err, publish.ErrDuplicatePage):
		return goerrors.Wrap(err, goerrors.CategoryCommand, "compilation failed").
			WithTextCode(publishCompileCode)
	default:
		return goerrors.Wrap(err, goerrors.CategoryCommand, "publish failed").
			WithTextCode(publishFailedCode)
	}
}

// publishMessage renders a publish error for the author, including the tail
// of the compiler log when there is one.
func publishMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *publish.CompileError
	if errors.As(err, &ce) && ce.Output != "" {
		return err.Error() + "\n\n" + ce.Output
	}
	return err.Error()
}
