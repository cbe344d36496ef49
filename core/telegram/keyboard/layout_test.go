package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	buttons := []Button{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	rows := Chunk(buttons, 2)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Equal(t, "c", rows[1][0].Label)

	assert.Len(t, Chunk(buttons, 0), 3)
}

func TestMarkupKeepsRawData(t *testing.T) {
	l := Column(Button{Label: "Buy", Data: "add_to_cart_3"}).Append(Row(Button{Label: "Back", Data: "back_products"}))
	m := Markup(l)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	btn := m.InlineKeyboard[0][0]
	assert.Equal(t, "Buy", btn.Text)
	assert.Equal(t, "add_to_cart_3", btn.Data)
	assert.Empty(t, btn.Unique)
}

func TestMarkupEmpty(t *testing.T) {
	assert.Nil(t, Markup(nil))
	assert.Nil(t, Markup(Layout{{}}))
}
