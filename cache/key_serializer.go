package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// KeySeparator defines the delimiter used between cache key segments.
	KeySeparator = "::"

	// MaxKeyLength is the longest key emitted verbatim. Longer keys keep
	// their prefix and replace the arguments with an xxhash digest.
	MaxKeyLength = 250
)

// KeySerializer builds a cache key from a prefix and arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(prefix string, args ...any) string
}

// KeyBuilder maps an entity identifier to a cache key.
type KeyBuilder[ID comparable] func(id ID) string

// KeyOf is the default KeyBuilder: the id rendered on its own, so that
// id "42" is cached under key "42".
func KeyOf[ID comparable](id ID) string {
	return serializeValue(id)
}

// NamespacedKeys prefixes every key with namespace, for caches shared by
// several entity types. A nil serializer uses the default one.
func NamespacedKeys[ID comparable](namespace string, serializer KeySerializer) KeyBuilder[ID] {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return func(id ID) string {
		return serializer.SerializeKey(namespace, id)
	}
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the reflection based serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins prefix and the serialized args with KeySeparator.
// Keys longer than MaxKeyLength are shortened to prefix::h:<digest>.
func (defaultKeySerializer) SerializeKey(prefix string, args ...any) string {
	if len(args) == 0 {
		return prefix
	}

	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, serializeValue(arg))
	}
	joined := strings.Join(parts, KeySeparator)

	key := joined
	if prefix != "" {
		key = prefix + KeySeparator + joined
	}
	if len(key) <= MaxKeyLength {
		return key
	}

	digest := "h:" + strconv.FormatUint(xxhash.Sum64String(joined), 16)
	if prefix == "" {
		return digest
	}
	return prefix + KeySeparator + digest
}

func serializeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return val
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "nil"
		}
		return val.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return serializeValue(rv.Elem().Interface())
	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + serializeElems(rv)
	case reflect.Array:
		return "array" + serializeElems(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, serializeValue(iter.Key().Interface())+"="+serializeValue(iter.Value().Interface()))
		}
		slices.Sort(pairs)
		return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
	case reflect.Struct:
		rt := rv.Type()
		fields := make([]string, 0, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			if !rt.Field(i).IsExported() {
				continue
			}
			fields = append(fields, rt.Field(i).Name+":"+serializeValue(rv.Field(i).Interface()))
		}
		return "struct:{" + strings.Join(fields, ",") + "}"
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		// named basic types, e.g. type UserID string
		return fmt.Sprint(v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + rv.Type().String()
	}
	return "json:" + string(data)
}

func serializeElems(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", len(parts), strings.Join(parts, ","))
}
