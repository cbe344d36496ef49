package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed shop.yaml
var defaultShop []byte

// FAQEntry is a single question with its answer.
type FAQEntry struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Company describes the farm.
type Company struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Details     []string `yaml:"details"`
}

// Contacts lists the ways to reach the farm.
type Contacts struct {
	Phones      []string `yaml:"phones"`
	PhoneHours  string   `yaml:"phone_hours"`
	Emails      []string `yaml:"emails"`
	EmailNote   string   `yaml:"email_note"`
	Address     []string `yaml:"address"`
	PickupHours string   `yaml:"pickup_hours"`
}

// Shop is the static content the bot presents: catalog, FAQ and contacts.
type Shop struct {
	Catalog  *Catalog
	FAQ      []FAQEntry
	Company  Company
	Contacts Contacts
	Currency string
}

type shopFile struct {
	Items    []Item     `yaml:"items"`
	FAQ      []FAQEntry `yaml:"faq"`
	Company  Company    `yaml:"company"`
	Contacts Contacts   `yaml:"contacts"`
	Currency string     `yaml:"currency"`
}

// Load reads shop content from path. An empty path loads the built-in content.
func Load(path string) (*Shop, error) {
	data := defaultShop
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = raw
	}
	return Parse(data)
}

// Default returns the built-in shop content.
func Default() *Shop {
	s, err := Parse(defaultShop)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded shop content is invalid: %v", err))
	}
	return s
}

// Parse decodes and validates shop YAML.
func Parse(data []byte) (*Shop, error) {
	var f shopFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if err := validate(f.Items); err != nil {
		return nil, err
	}
	if f.Currency == "" {
		f.Currency = "UAH"
	}
	return &Shop{
		Catalog:  New(f.Items),
		FAQ:      f.FAQ,
		Company:  f.Company,
		Contacts: f.Contacts,
		Currency: f.Currency,
	}, nil
}

func validate(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("catalog: no items")
	}
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		switch {
		case it.ID <= 0:
			return fmt.Errorf("catalog: item %q: id must be positive", it.Name)
		case strings.TrimSpace(it.Name) == "":
			return fmt.Errorf("catalog: item %d: name is required", it.ID)
		case strings.TrimSpace(it.Unit) == "":
			return fmt.Errorf("catalog: item %d: unit is required", it.ID)
		case it.Price <= 0:
			return fmt.Errorf("catalog: item %d: price must be positive", it.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("catalog: duplicate item id %d", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// FAQAt returns the 1-based FAQ entry.
func (s *Shop) FAQAt(n int) (FAQEntry, bool) {
	if n < 1 || n > len(s.FAQ) {
		return FAQEntry{}, false
	}
	return s.FAQ[n-1], true
}
