package attendance

import (
	"github.com/go-playground/validator/v10"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
)

var (
	statusTag  = "attendancestatus"
	statusText = "invalid attendance status"
)

func init() {
	_ = core.Validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, statusTag, statusText)
}

// statusValidation checks that a provided status is one of AllStatuses.
func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}
