package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewRunValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("taxonomy_code", taxonomyCodeValidator),
		},
		{
			Rule: registerFn("equipment_class", equipmentClassValidator),
		},
	}
}

func NewBatchRunValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("taxonomy_code", taxonomyCodeValidator),
		},
		{
			Rule: registerFn("equipment_name", equipmentNameValidator),
		},
	}
}
