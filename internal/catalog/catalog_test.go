package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultShop(t *testing.T) {
	shop := Default()
	require.Equal(t, 6, shop.Catalog.Len())
	assert.Len(t, shop.FAQ, 5)
	assert.Equal(t, "UAH", shop.Currency)

	honey, ok := shop.Catalog.Lookup(6)
	require.True(t, ok)
	assert.Equal(t, "Acacia honey", honey.Name)
	assert.Equal(t, 450.0, honey.Price)
	assert.Equal(t, "litre", honey.Unit)
	assert.Equal(t, "🍯 Acacia honey", honey.Title())

	_, ok = shop.Catalog.Lookup(99)
	assert.False(t, ok)
}

func TestItemsAreOrderedAndCopied(t *testing.T) {
	c := New([]Item{{ID: 3, Name: "c"}, {ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	items := c.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{items[0].ID, items[1].ID, items[2].ID})

	items[0].Name = "mutated"
	first, _ := c.Lookup(1)
	assert.Equal(t, "a", first.Name)
}

func TestFAQAt(t *testing.T) {
	shop := Default()
	_, ok := shop.FAQAt(0)
	assert.False(t, ok)
	entry, ok := shop.FAQAt(1)
	require.True(t, ok)
	assert.Contains(t, entry.Question, "payment")
	_, ok = shop.FAQAt(6)
	assert.False(t, ok)
}

func TestParseRejectsInvalidItems(t *testing.T) {
	cases := map[string]string{
		"duplicate id": "items:\n  - {id: 1, name: a, unit: kg, price: 1}\n  - {id: 1, name: b, unit: kg, price: 1}\n",
		"zero price":   "items:\n  - {id: 1, name: a, unit: kg, price: 0}\n",
		"no unit":      "items:\n  - {id: 1, name: a, price: 3}\n",
		"no items":     "faq: []\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	body := "items:\n  - {id: 7, name: Plums, unit: kg, price: 80}\ncurrency: EUR\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	shop, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "EUR", shop.Currency)
	plums, ok := shop.Catalog.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, 80.0, plums.Price)
}
