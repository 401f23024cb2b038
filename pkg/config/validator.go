package config

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// 全局校验器，validator 实例是并发安全的
var validate = validator.New()

// ValidateStruct 使用 validate 标签校验配置结构体
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return errors.Wrapf(ErrValidationFailed, "field %s failed on %s", first.Namespace(), first.Tag())
		}
		return errors.Wrap(err, "config validation")
	}
	return nil
}
