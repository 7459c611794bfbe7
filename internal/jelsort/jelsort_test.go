package jelsort

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func numPart(s string) int {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return 0
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return n
}

func byNum(left, right string) bool {
	return numPart(left) < numPart(right)
}

func Test_By(t *testing.T) {
	testCases := []struct {
		name   string
		input  []string
		lt     func(string, string) bool
		expect []string
	}{
		{
			name:   "empty",
			input:  []string{},
			lt:     byNum,
			expect: []string{},
		},
		{
			name:   "ascending",
			input:  []string{"alpha-2", "entry-1", "max-16", "delta-7"},
			lt:     byNum,
			expect: []string{"entry-1", "alpha-2", "delta-7", "max-16"},
		},
		{
			name:   "equal keys keep input order",
			input:  []string{"c-1", "a-2", "b-1", "d-2", "e-1"},
			lt:     byNum,
			expect: []string{"c-1", "b-1", "e-1", "a-2", "d-2"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual := By(tc.input, tc.lt)

			assert.Equal(tc.expect, actual)
		})
	}
}

func Test_By_doesNotModifyInput(t *testing.T) {
	assert := assert.New(t)

	input := []string{"b-2", "a-1"}
	_ = By(input, byNum)

	assert.Equal([]string{"b-2", "a-1"}, input)
}
