// Package validate checks configuration and request payloads, and probes source endpoints.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/trendbrief/internal/model"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "yaml"} {
			name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				continue
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Struct checks the validate tags of v and reports the first failure as a ConfigurationError
func Struct(v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return model.NewConfigurationError(field, "%s", describe(fe))
	}
	return model.NewConfigurationError("", "%v", err)
}

// Config validates the loaded configuration
func Config(cfg *model.Config) error {
	if cfg == nil {
		return model.NewConfigurationError("", "configuration is missing")
	}
	if err := Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if seen[s.ID] {
			return model.NewConfigurationError("sources", "duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Kind == model.SourceKindHTML && s.ItemSelector == "" {
			return model.NewConfigurationError("sources", "html source %q needs item_selector", s.ID)
		}
	}

	names := make(map[string]bool, len(cfg.Dispatch.Targets))
	for _, t := range cfg.Dispatch.Targets {
		if names[t.Name] {
			return model.NewConfigurationError("dispatch.targets", "duplicate target name %q", t.Name)
		}
		names[t.Name] = true
		if t.MaxBytes > 0 && t.MaxBytes < model.MinBatchBytes {
			return model.NewConfigurationError("dispatch.targets", "target %q max_bytes %d is below %d", t.Name, t.MaxBytes, model.MinBatchBytes)
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_unless":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url", "http_url":
		return "must be a valid URL"
	case "max":
		return "must have at most " + fe.Param() + " entries"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
