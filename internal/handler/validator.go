package handler

import "github.com/go-playground/validator/v10"

// Validator adapts validator/v10 to echo.Validator so handlers can call
// c.Validate on bound request bodies.
type Validator struct {
    v *validator.Validate
}

// NewValidator wraps v, or a fresh validator when v is nil.
func NewValidator(v *validator.Validate) *Validator {
    if v == nil {
        v = validator.New()
    }
    return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
    return cv.v.Struct(i)
}
