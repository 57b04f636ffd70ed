package handler

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"absensi/internal/schedule"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the weekday and clock tags on gin's validator
// and reports field names by their json tag.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if err := v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, err := schedule.ParseWeekday(fl.Field().String())
			return err == nil
		}); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := schedule.ParseClock(fl.Field().String())
			return err == nil
		})
	})
	return registerErr
}
