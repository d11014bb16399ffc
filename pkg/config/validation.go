package config

import (
	"reflect"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// Validator is implemented by configuration structs that check
// cross-field rules after loading. A returned *sserr.Error passes through
// unchanged; any other error is wrapped with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, root reflect.Value) error {
	err := walk(root, "", "", func(f field) error {
		if f.tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %s is empty", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, coded := sserr.AsError(err); coded {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
	}
	return nil
}
