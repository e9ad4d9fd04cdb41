package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator_OrdersBySequenceID(t *testing.T) {
	acc := NewAccumulator("123")

	seq, validated := acc.Add("three", 3)
	assert.Equal(t, "3", seq)
	assert.False(t, validated)

	seq, validated = acc.Add("one", 1)
	assert.False(t, validated)

	seq, validated = acc.Add("two", 2)
	assert.Equal(t, "123", seq)
	assert.True(t, validated)
}

func TestAccumulator_ToneNameVariants(t *testing.T) {
	acc := NewAccumulator("1*#")
	acc.Add("1", 1)
	acc.Add("star", 2)
	seq, validated := acc.Add("pound", 3)
	assert.Equal(t, "1*#", seq)
	assert.True(t, validated)
}

func TestAccumulator_MismatchStaysUnvalidated(t *testing.T) {
	acc := NewAccumulator("123")
	acc.Add("9", 1)
	acc.Add("9", 2)
	_, validated := acc.Add("9", 3)
	assert.False(t, validated)
}

func TestAccumulator_UnknownToneIgnored(t *testing.T) {
	acc := NewAccumulator("123")
	seq, _ := acc.Add("garbage", 1)
	assert.Equal(t, "", seq)
}

func TestNormalizeTone(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"ONE", "1"}, {"1", "1"}, {"Pound", "#"}, {"hash", "#"}, {"STAR", "*"}, {"asterisk", "*"},
	} {
		got, ok := NormalizeTone(tc.in)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got)
	}
	_, ok := NormalizeTone("not-a-tone")
	assert.False(t, ok)
}
