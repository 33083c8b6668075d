// utilitário pequeno para formatação de valores numéricos em headers.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatSeconds arredonda para cima: Retry-After nunca deve sugerir voltar cedo demais.
func formatSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return strconv.FormatInt(secs, 10)
}
