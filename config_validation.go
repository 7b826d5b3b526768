package batdev

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig validates monitor configuration parameters
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	// Validate baud rate
	if !BaudRate(cfg.BaudRate).Valid() {
		return fmt.Errorf("invalid baud rate %d, must be one of: %v", cfg.BaudRate, SupportedBaudRates)
	}

	// Validate port name
	if cfg.Port != "" && !isValidPortPattern(cfg.Port) {
		return fmt.Errorf("port name doesn't match expected pattern: %s", cfg.Port)
	}

	if err := validate.Struct(cfg); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns the first validator failure into a readable error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Errorf("%s cannot be empty", fe.Namespace())
	case "gte":
		return fmt.Errorf("%s cannot be less than %s: %v", fe.Namespace(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Errorf("%s cannot be more than %s: %v", fe.Namespace(), fe.Param(), fe.Value())
	case "oneof":
		return fmt.Errorf("invalid %s %v, must be one of: %s", fe.Namespace(), fe.Value(), fe.Param())
	default:
		return fmt.Errorf("invalid %s: failed %q", fe.Namespace(), fe.Tag())
	}
}
