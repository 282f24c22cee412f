package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hazardtype", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseHazardType(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseSeverity(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseStatus(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("skill", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, ok := risk.ParseSkillLevel(s)
		return ok
	})
	return v
}

// validationError converts the first validator failure into a
// model.ValidationError naming the JSON field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return model.NewValidationError(fe.Field(), reasonFor(fe))
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "hazardtype":
		return fmt.Sprintf("must be one of %s", hazardTypeList())
	case "severity":
		return "must be one of low, medium, high"
	case "status":
		return "must be one of pending, verified, rejected"
	case "skill":
		return "must be one of beginner, intermediate, advanced, overall"
	case "gte", "lte":
		return "must be a number within [0,10]"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func hazardTypeList() string {
	names := make([]string, len(model.HazardTypes))
	for i, h := range model.HazardTypes {
		names[i] = string(h)
	}
	return strings.Join(names, ", ")
}
