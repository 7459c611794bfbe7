// Package kvdbtest contains matchers to be used with DATA-DOG/go-sqlmock when
// testing code that writes to a kvdb store.
package kvdbtest

import (
	"database/sql/driver"
	"reflect"

	"github.com/dekarrin/rezi/v2"
)

// Encoded is a DATA-DOG/go-sqlmock compatible matcher used for matching
// against a value stored in a kvdb store. It matches any byte slice that
// decodes to an E. If Want is set, the decoded value must also be equal to it.
type Encoded[E any] struct {
	Want *E
}

func (m Encoded[E]) Match(v driver.Value) bool {
	data, ok := v.([]byte)
	if !ok {
		return false
	}

	var decoded E
	if _, err := rezi.Dec(data, &decoded); err != nil {
		return false
	}

	if m.Want == nil {
		return true
	}
	return reflect.DeepEqual(*m.Want, decoded)
}

// AnyKey is a DATA-DOG/go-sqlmock compatible matcher used for matching
// against any valid store key. If Except is set, it matches any valid key
// besides that one.
type AnyKey struct {
	Except int64
}

func (m AnyKey) Match(v driver.Value) bool {
	key, ok := v.(int64)
	if !ok || key < 1 {
		return false
	}
	return m.Except == 0 || key != m.Except
}
