package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSeconds(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "0",
		-time.Second:            "0",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
		time.Minute:             "60",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatSeconds(in), "formatSeconds(%s)", in)
	}
}
