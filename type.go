// FILE: lixenwraith/phaseconf/type.go
package phaseconf

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// get looks a leaf up across published graphs, dereferencing optional values.
// An absent optional value is reported as nil.
func (r *Runtime) get(path string) (any, error) {
	val, found := r.Lookup(path)
	if !found {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	v := reflect.ValueOf(val)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, nil
		}
		return v.Elem().Interface(), nil
	}
	return val, nil
}

// String retrieves a string configuration value using the path.
// Values that are not strings are rendered the way a source would spell them.
func (r *Runtime) String(path string) (string, error) {
	val, err := r.get(path)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil // Treat nil as empty string for convenience
	}
	if strVal, ok := val.(string); ok {
		return strVal, nil
	}

	switch v := val.(type) {
	case time.Duration:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	}
	switch rv := reflect.ValueOf(val); rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	}
	return "", fmt.Errorf("cannot convert type %T to string for path %s", val, path)
}

// Int64 retrieves an int64 configuration value using the path.
// Durations are returned in nanoseconds.
func (r *Runtime) Int64(path string) (int64, error) {
	val, err := r.get(path)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return 0, fmt.Errorf("value for path %s is nil, cannot convert to int64", path)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		// Check for potential overflow converting uint64 to int64
		if u > uint64(^uint64(0)>>1) {
			return 0, fmt.Errorf("cannot convert unsigned integer %d (type %T) to int64 for path %s: overflow", u, val, path)
		}
		return int64(u), nil
	}
	return 0, fmt.Errorf("cannot convert type %T to int64 for path %s", val, path)
}

// Bool retrieves a boolean configuration value using the path.
func (r *Runtime) Bool(path string) (bool, error) {
	val, err := r.get(path)
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, fmt.Errorf("value for path %s is nil, cannot convert to bool", path)
	}
	if v := reflect.ValueOf(val); v.Kind() == reflect.Bool {
		return v.Bool(), nil
	}
	return false, fmt.Errorf("cannot convert type %T to bool for path %s", val, path)
}

// Float64 retrieves a float64 configuration value using the path.
// Integers are widened.
func (r *Runtime) Float64(path string) (float64, error) {
	val, err := r.get(path)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return 0, fmt.Errorf("value for path %s is nil, cannot convert to float64", path)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	}
	return 0, fmt.Errorf("cannot convert type %T to float64 for path %s", val, path)
}

// Duration retrieves a time.Duration configuration value using the path.
func (r *Runtime) Duration(path string) (time.Duration, error) {
	val, err := r.get(path)
	if err != nil {
		return 0, err
	}
	d, ok := val.(time.Duration)
	if !ok {
		return 0, fmt.Errorf("cannot convert type %T to duration for path %s", val, path)
	}
	return d, nil
}
