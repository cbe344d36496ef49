package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline button carrying raw callback data.
type Button struct {
	Label string
	Data  string
}

// Layout is an inline keyboard described as rows of buttons.
type Layout [][]Button

// Row builds a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Column places each button on its own row.
func Column(buttons ...Button) Layout {
	rows := make(Layout, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []Button{b})
	}
	return rows
}

// Chunk splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, it behaves like Column.
func Chunk(buttons []Button, n int) Layout {
	if n <= 1 {
		return Column(buttons...)
	}
	var rows Layout
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// Append returns the layout extended with rows.
func (l Layout) Append(rows ...[]Button) Layout {
	return append(l, rows...)
}

// Markup converts the layout into telebot reply markup. Data is passed through
// verbatim so incoming callbacks carry exactly what was encoded. An empty
// layout yields nil.
func Markup(l Layout) *tele.ReplyMarkup {
	if len(l) == 0 {
		return nil
	}
	inline := make([][]tele.InlineButton, 0, len(l))
	for _, row := range l {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = tele.InlineButton{Text: btn.Label, Data: btn.Data}
		}
		inline = append(inline, r)
	}
	if len(inline) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}
