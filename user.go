package jelstore

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dekarrin/jelstore/serr"
	"github.com/dekarrin/rezi/v2"
)

// Field names of a User as seen by queries and in stored JSON.
const (
	FieldID   = "id"
	FieldName = "name"
	FieldAge  = "age"
)

// User is the only record type stored by jelstore. An ID of 0 means the user
// has not yet been stored.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// NewUser creates a User from untrusted input. The name is trimmed of
// surrounding whitespace. Every field is checked; if any fail, the returned
// error is an aggregate holding one Validation error per bad field.
func NewUser(name string, age int) (User, error) {
	u := User{
		Name: strings.TrimSpace(name),
		Age:  age,
	}

	var errs []error
	if u.Name == "" {
		errs = append(errs, serr.NewValidation(FieldName, name, "name must not be empty").With(serr.CtxOperation, "create user"))
	}
	if age < 0 {
		errs = append(errs, serr.NewValidation(FieldAge, age, "age must not be negative").With(serr.CtxOperation, "create user"))
	}

	if len(errs) > 0 {
		return User{}, serr.NewAggregate("multiple validation errors occurred", errs...)
	}

	return u, nil
}

// Validate returns a Validation error if u could not have been created by
// NewUser. It does not modify u, so an untrimmed name is reported rather than
// fixed.
func (u User) Validate() error {
	if u.ID < 0 {
		return serr.NewValidation(FieldID, u.ID, "id must not be negative")
	}
	if u.Name == "" {
		return serr.NewValidation(FieldName, u.Name, "name must not be empty")
	}
	if strings.TrimSpace(u.Name) != u.Name {
		return serr.NewValidation(FieldName, u.Name, "name must not have surrounding whitespace")
	}
	if u.Age < 0 {
		return serr.NewValidation(FieldAge, u.Age, "age must not be negative")
	}
	return nil
}

// FieldValue returns the value of the field with the given name. The second
// return value is false if u has no such field.
func (u User) FieldValue(name string) (any, bool) {
	switch name {
	case FieldID:
		return u.ID, true
	case FieldName:
		return u.Name, true
	case FieldAge:
		return u.Age, true
	default:
		return nil, false
	}
}

func (u User) String() string {
	return fmt.Sprintf("User{ID: %d, Name: %q, Age: %d}", u.ID, u.Name, u.Age)
}

func (u User) MarshalBinary() ([]byte, error) {
	var enc []byte

	enc = append(enc, rezi.MustEnc(u.ID)...)
	enc = append(enc, rezi.MustEnc(u.Name)...)
	enc = append(enc, rezi.MustEnc(u.Age)...)

	return enc, nil
}

func (u *User) UnmarshalBinary(data []byte) error {
	rr, err := rezi.NewReader(bytes.NewBuffer(data), nil)
	if err != nil {
		return err
	}

	var decoded User

	err = rr.Dec(&decoded.ID)
	if err != nil {
		return rezi.Wrapf(0, "id: %s", err)
	}

	err = rr.Dec(&decoded.Name)
	if err != nil {
		return rezi.Wrapf(0, "name: %s", err)
	}

	err = rr.Dec(&decoded.Age)
	if err != nil {
		return rezi.Wrapf(0, "age: %s", err)
	}

	*u = decoded

	return nil
}
