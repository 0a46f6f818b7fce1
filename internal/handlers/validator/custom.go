package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// taxonomy codes look like CHEM, CHEM-BC, CHEM-BC-PETRO
	taxonomyCodeRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,15}(-[A-Z0-9]{1,15}){0,3}$`)

	// equipment classes are CamelCase identifiers, e.g. CentrifugalPump
	equipmentClassRegex = regexp.MustCompile(`^[A-Z][A-Za-z0-9]{2,63}$`)

	// batch names are free-form but printable, e.g. "centrifugal pump"
	equipmentNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._/-]{0,119}$`)
)

func taxonomyCodeValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return taxonomyCodeRegex.MatchString(val)
}

func equipmentClassValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return equipmentClassRegex.MatchString(val)
}

func equipmentNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return equipmentNameRegex.MatchString(val)
}
