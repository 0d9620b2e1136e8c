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

// ReservationValidator enforces the field rules plus the interval rules the
// struct tags cannot express: end after start on the same day, and duration
// inside the configured bounds.
type ReservationValidator struct {
	validate       *validator.Validate
	logger         *logger.Logger
	minDurationMin int
	maxDurationMin int
}

func NewReservationValidator(log *logger.Logger, minDurationMin, maxDurationMin int) *ReservationValidator {
	v := validator.New()

	if err := v.RegisterValidation("hhmm", validateHHMM); err != nil {
		log.Fatal("Failed to register 'hhmm' validator", "error", err)
	}

	return &ReservationValidator{
		validate:       v,
		logger:         log,
		minDurationMin: minDurationMin,
		maxDurationMin: maxDurationMin,
	}
}

func validateHHMM(fl validator.FieldLevel) bool {
	return hhmmRegex.MatchString(fl.Field().String())
}

func (v *ReservationValidator) Validate(res *model.Reservation) error {
	if err := v.validate.Struct(res); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translate(validationErrs)
		}
		return err
	}

	startMin, err := timegrid.ToMinutes(res.StartTime)
	if err != nil {
		return ValidationErrors{{Field: "StartTime", Message: "start_time must be HH:MM"}}
	}
	endMin, err := timegrid.ToMinutes(res.EndTime)
	if err != nil {
		return ValidationErrors{{Field: "EndTime", Message: "end_time must be HH:MM"}}
	}
	if endMin <= startMin {
		return ValidationErrors{{Field: "EndTime", Message: "end_time must be after start_time on the same day"}}
	}

	duration := endMin - startMin
	if duration < v.minDurationMin {
		return ValidationErrors{{
			Field:   "EndTime",
			Message: fmt.Sprintf("duration must be at least %d minute(s)", v.minDurationMin),
		}}
	}
	if duration > v.maxDurationMin {
		return ValidationErrors{{
			Field:   "EndTime",
			Message: fmt.Sprintf("duration must not exceed %d minute(s)", v.maxDurationMin),
		}}
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
