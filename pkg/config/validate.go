package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// FieldError is one invalid setting.
type FieldError struct {
	// Field is the dotted YAML path, for example timings.attempt_timeout.
	Field   string
	Message string
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

var (
	vOnce      sync.Once
	validate   *validator.Validate
	translator ut.Translator
)

func validatorInstance() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// report YAML keys
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		validate, translator = v, trans
	})
	return validate, translator
}

// Validate checks every field and the rules that span fields.
func (c *Config) Validate() error {
	v, trans := validatorInstance()

	var fields []FieldError
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: fe.Translate(trans),
			})
		}
	}

	fields = append(fields, c.validateCourses()...)

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (c *Config) validateCourses() []FieldError {
	var fields []FieldError
	seen := map[string]bool{}
	for i, course := range c.Courses {
		path := fmt.Sprintf("courses[%d]", i)
		key := course.ID
		if key == "" {
			key = course.Token
		}
		switch {
		case key == "":
			fields = append(fields, FieldError{Field: path, Message: "course id or token is required"})
			continue
		case seen[key]:
			fields = append(fields, FieldError{Field: path, Message: fmt.Sprintf("%s is listed twice", key)})
		}
		seen[key] = true

		for _, s := range course.Sections {
			if s == "" {
				fields = append(fields, FieldError{Field: path, Message: fmt.Sprintf("%s has an empty section", key)})
				break
			}
			if strings.Contains(s, ";") {
				fields = append(fields, FieldError{Field: path, Message: fmt.Sprintf("%s section %q contains ';'", key, s)})
			}
		}
		if strings.Contains(course.ID, ";") {
			fields = append(fields, FieldError{Field: path, Message: fmt.Sprintf("course id %q contains ';', list it as a token instead", course.ID)})
		}
	}
	return fields
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
