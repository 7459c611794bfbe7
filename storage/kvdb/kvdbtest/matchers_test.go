package kvdbtest

import (
	"testing"

	"github.com/dekarrin/rezi/v2"
	"github.com/stretchr/testify/assert"
)

func Test_Encoded_Match(t *testing.T) {
	want := "Karkat"
	other := "Terezi"

	testCases := []struct {
		name    string
		matcher Encoded[string]
		value   interface{}
		expect  bool
	}{
		{name: "any string", matcher: Encoded[string]{}, value: rezi.MustEnc("Kanaya"), expect: true},
		{name: "wanted string", matcher: Encoded[string]{Want: &want}, value: rezi.MustEnc(want), expect: true},
		{name: "other string", matcher: Encoded[string]{Want: &want}, value: rezi.MustEnc(other), expect: false},
		{name: "not bytes", matcher: Encoded[string]{}, value: "Karkat", expect: false},
		{name: "empty", matcher: Encoded[string]{}, value: []byte{}, expect: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual := tc.matcher.Match(tc.value)

			assert.Equal(tc.expect, actual)
		})
	}
}

func Test_AnyKey_Match(t *testing.T) {
	testCases := []struct {
		name    string
		matcher AnyKey
		value   interface{}
		expect  bool
	}{
		{name: "positive key", matcher: AnyKey{}, value: int64(8), expect: true},
		{name: "zero key", matcher: AnyKey{}, value: int64(0), expect: false},
		{name: "negative key", matcher: AnyKey{}, value: int64(-8), expect: false},
		{name: "wrong type", matcher: AnyKey{}, value: "8", expect: false},
		{name: "excepted key", matcher: AnyKey{Except: 8}, value: int64(8), expect: false},
		{name: "other than excepted", matcher: AnyKey{Except: 8}, value: int64(9), expect: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual := tc.matcher.Match(tc.value)

			assert.Equal(tc.expect, actual)
		})
	}
}
