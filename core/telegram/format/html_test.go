package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", EscapeHTML("a <b> & c"))
	assert.Equal(t, "<b>Tom &amp; Jerry</b>", Bold("Tom & Jerry"))
	assert.Equal(t, `say "hi"`, EscapeHTML(`say "hi"`))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "700 UAH", Money(700, "UAH"))
	assert.Equal(t, "12.50 UAH", Money(12.5, "UAH"))
	assert.Equal(t, "0.10", Money(0.1, ""))
}

func TestQuantity(t *testing.T) {
	assert.Equal(t, "2", Quantity(2))
	assert.Equal(t, "1.5", Quantity(1.5))
}
