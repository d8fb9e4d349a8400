package util

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// ValidateConfig checks cfg against its `validate` tags and logs every violation.
func ValidateConfig(cfg any, l log.Logger) error {
	if cfg == nil {
		return errors.New("activation client config is nil")
	}

	err := instance().Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		l.Errorf("Invalid configuration: %v", err)
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))

	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}

		l.Error(msg)
		msgs = append(msgs, msg)
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
