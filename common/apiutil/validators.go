package apiutil

import (
	"fmt"

	"github.com/Aidin1998/txconsole/pkg/validation"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterBindingValidators teaches gin's binding engine the txtype and
// txstatus tags and makes it report fields by their json name.
func RegisterBindingValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	v.RegisterTagNameFunc(validation.JSONTagName)
	return validation.RegisterCustomValidators(v)
}
