// Package config fills a configuration struct from three layers, later
// layers overriding earlier ones:
//
//	envDefault:"..." struct tags
//	a YAML or JSON file (optional, skipped when missing)
//	environment variables named by env:"..." tags
//
// Nested structs extend the variable name with their own env tag, so with
// prefix TASKHUB a field tagged env:"REGION" inside a struct field tagged
// env:"AUTH" is read from TASKHUB_AUTH_REGION. After loading, fields tagged
// required:"true" must be non-zero and a struct implementing [Validator]
// has its Validate method called.
//
//	cfg := config.MustLoad[AppConfig](
//	    config.New().WithEnvPrefix("TASKHUB").WithFile(os.Getenv("TASKHUB_CONFIG")),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration into a struct. A Loader is cheap; build a
// new one per Load call.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New returns a Loader that reads only defaults and the process
// environment.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix prepends PREFIX_ to every variable name. The prefix is
// upper-cased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile adds a file layer. The extension selects the decoder (.yaml,
// .yml or .json). An empty path disables the layer and a path that does
// not exist is skipped.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct.
// Loading failures carry [sserr.CodeInternalConfiguration]; a missing
// required field carries [sserr.CodeValidationRequired].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	root := rv.Elem()

	err := walk(root, l.envPrefix, "", func(f field) error {
		def, ok := f.tag.Lookup("envDefault")
		if !ok || !f.value.IsZero() {
			return nil
		}
		if err := setValue(f.value, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: bad default for %s", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := l.loadFile(cfg); err != nil {
		return err
	}

	err = walk(root, l.envPrefix, "", func(f field) error {
		if f.envKey == "" {
			return nil
		}
		raw, ok := l.lookupEnv(f.envKey)
		if !ok {
			return nil
		}
		if err := setValue(f.value, raw); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: cannot apply %s to %s", f.envKey, f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, root)
}

// MustLoad loads a T and panics on failure. Meant for main.
func MustLoad[T any](l *Loader) T {
	var cfg T
	if err := l.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if l.filePath == "" {
		return nil
	}
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain '..'")
	}

	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: read %s", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: decode %s", l.filePath)
	}
	return nil
}

// field is one settable leaf visited by walk.
type field struct {
	value  reflect.Value
	tag    reflect.StructTag
	path   string
	envKey string
}

// walk visits every settable leaf of rv depth-first. Struct-typed fields
// other than time.Duration are descended into; their env tag extends the
// variable prefix.
func walk(rv reflect.Value, envPrefix, path string, visit func(field) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		fieldPath := joinName(path, sf.Name, ".")
		envTag := sf.Tag.Get("env")

		if fv.Kind() == reflect.Struct && sf.Type != durationType {
			nested := envPrefix
			if envTag != "" {
				nested = joinName(envPrefix, envTag, "_")
			}
			if err := walk(fv, nested, fieldPath, visit); err != nil {
				return err
			}
			continue
		}

		f := field{value: fv, tag: sf.Tag, path: fieldPath}
		if envTag != "" {
			f.envKey = joinName(envPrefix, envTag, "_")
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func joinName(prefix, name, sep string) string {
	if prefix == "" {
		return name
	}
	return prefix + sep + name
}

// setValue parses raw into v. Supported kinds: string (and named string
// types), bool, signed integers, time.Duration and []string (comma
// separated).
func setValue(v reflect.Value, raw string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", v.Type().Elem().Kind())
		}
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
