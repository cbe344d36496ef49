package catalog

import (
	"sort"
)

// Item is a purchasable product.
type Item struct {
	ID          int64   `yaml:"id"`
	Name        string  `yaml:"name"`
	Category    string  `yaml:"category"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Unit        string  `yaml:"unit"`
	Emoji       string  `yaml:"emoji"`
}

// Title returns the emoji-prefixed display name.
func (i Item) Title() string {
	if i.Emoji == "" {
		return i.Name
	}
	return i.Emoji + " " + i.Name
}

// Catalog is an immutable, id-indexed set of items. It is safe for concurrent use.
type Catalog struct {
	items []Item
	byID  map[int64]Item
}

// New builds a catalog from items, ordered by id.
func New(items []Item) *Catalog {
	sorted := append([]Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	byID := make(map[int64]Item, len(sorted))
	for _, it := range sorted {
		byID[it.ID] = it
	}
	return &Catalog{items: sorted, byID: byID}
}

// Lookup returns the item with the given id.
func (c *Catalog) Lookup(id int64) (Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// Items returns a copy of all items in id order.
func (c *Catalog) Items() []Item {
	return append([]Item(nil), c.items...)
}

// Len reports the number of items.
func (c *Catalog) Len() int {
	return len(c.items)
}
