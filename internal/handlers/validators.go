package handlers

import (
	"fmt"
	"sync"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerValidatorsOnce sync.Once

// RegisterValidators adds the enum tags used by the recurring journal DTOs to gin's validator.
// Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		validations := map[string]validator.Func{
			"frequency": func(fl validator.FieldLevel) bool {
				return domain.Frequency(fl.Field().String()).IsValid()
			},
			"end_type": func(fl validator.FieldLevel) bool {
				return domain.EndType(fl.Field().String()).IsValid()
			},
			"definition_status": func(fl validator.FieldLevel) bool {
				return domain.DefinitionStatus(fl.Field().String()).IsValid()
			},
			"occurrence_status": func(fl validator.FieldLevel) bool {
				return domain.OccurrenceStatus(fl.Field().String()).IsValid()
			},
		}
		for tag, fn := range validations {
			if err = v.RegisterValidation(tag, fn); err != nil {
				return
			}
		}
	})
	return err
}
