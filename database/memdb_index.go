package database

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"time"
)

// fieldIndex is a memdb indexer over a struct field whose keys sort in
// value order: strings are NUL-terminated, integers and times are
// sign-flipped big-endian. Nil pointers and empty strings are treated as
// missing.
type fieldIndex struct {
	Field string
	Kind  indexKind
}

func (f *fieldIndex) FromObject(obj any) (bool, []byte, error) {
	v := reflect.Indirect(reflect.ValueOf(obj))
	fv := v.FieldByName(f.Field)
	if !fv.IsValid() {
		return false, nil, fmt.Errorf("field '%s' for %#v is invalid", f.Field, obj)
	}

	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return false, nil, nil
		}
		fv = fv.Elem()
	}

	switch f.Kind {
	case kindString:
		if fv.Kind() != reflect.String {
			return false, nil, fmt.Errorf("field '%s' is not a string", f.Field)
		}
		if fv.String() == "" {
			return false, nil, nil
		}
		return true, encodeString(fv.String()), nil
	case kindInt:
		if !fv.CanInt() {
			return false, nil, fmt.Errorf("field '%s' is not an integer", f.Field)
		}
		return true, encodeInt(fv.Int()), nil
	case kindTime:
		t, ok := fv.Interface().(time.Time)
		if !ok {
			return false, nil, fmt.Errorf("field '%s' is not a time", f.Field)
		}
		return true, encodeInt(t.UnixMilli()), nil
	}

	return false, nil, fmt.Errorf("unsupported index kind %d", f.Kind)
}

func (f *fieldIndex) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}

	v, err := indexSpec{column: f.Field, kind: f.Kind}.normalize(args[0])
	if err != nil {
		return nil, err
	}

	switch val := v.(type) {
	case string:
		return encodeString(val), nil
	case int64:
		return encodeInt(val), nil
	case time.Time:
		return encodeInt(val.UnixMilli()), nil
	}

	return nil, fmt.Errorf("unsupported argument %T", v)
}

func encodeString(s string) []byte {
	return append([]byte(s), 0)
}

func encodeInt(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v)^(1<<63))
	return buf
}
