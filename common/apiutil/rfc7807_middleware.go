package apiutil

import (
	"encoding/json"
	"io"

	"github.com/Aidin1998/txconsole/api/responses"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RFC7807ErrorMiddleware writes the last error a handler attached with
// c.Error as problem details. Server side failures are logged with their
// cause; clients only see the translated detail.
func RFC7807ErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := Translate(c.Errors.Last().Err)
		problem := errors.ToProblemDetails(err, c.Request.URL.Path)
		if problem.Status >= 500 {
			logger.Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Int("status", problem.Status),
				zap.Error(err))
		}
		responses.Error(c, problem)
	}
}

// Translate maps binding and decoding failures onto the error taxonomy
func Translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return validation.FromValidatorError(err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return errors.Invalid.Explain("malformed request body").Wrap(err)
	case errors.As(err, &typeErr):
		return errors.Invalid.Explain("field %s has the wrong type", typeErr.Field).Wrap(err)
	}
	return err
}
