package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"labreserve/internal/timegrid"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"

	"github.com/go-playground/validator/v10"
)

var hhmmRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type ClassScheduleValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewClassScheduleValidator(log *logger.Logger) *ClassScheduleValidator {
	v := validator.New()

	if err := v.RegisterValidation("hhmm", validateHHMM); err != nil {
		log.Fatal("Failed to register 'hhmm' validator", "error", err)
	}

	return &ClassScheduleValidator{
		validate: v,
		logger:   log,
	}
}

func validateHHMM(fl validator.FieldLevel) bool {
	return hhmmRegex.MatchString(fl.Field().String())
}

func (v *ClassScheduleValidator) Validate(sched *model.ClassSchedule) error {
	if err := v.validate.Struct(sched); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translate(validationErrs)
		}
		return err
	}

	startMin, err := timegrid.ToMinutes(sched.StartTime)
	if err != nil {
		return ValidationErrors{{Field: "StartTime", Message: "start_time must be HH:MM"}}
	}
	endMin, err := timegrid.ToMinutes(sched.EndTime)
	if err != nil {
		return ValidationErrors{{Field: "EndTime", Message: "end_time must be HH:MM"}}
	}
	if endMin <= startMin {
		return ValidationErrors{{Field: "EndTime", Message: "end_time must be after start_time"}}
	}

	if sched.Recurrence != model.RecurrenceNone && sched.RepeatUntil == "" {
		return ValidationErrors{{Field: "RepeatUntil", Message: "repeat_until is required for recurring schedules"}}
	}
	if sched.Recurrence != model.RecurrenceNone && sched.RepeatUntil < sched.Date {
		return ValidationErrors{{Field: "RepeatUntil", Message: "repeat_until must not precede the first occurrence date"}}
	}

	return nil
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "hhmm":
			message = fmt.Sprintf("%s must be a 24-hour HH:MM time", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
