package game

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog resolves card ids to their definitions. It is read-only from the
// engine's point of view.
type Catalog interface {
	Card(id string) (*CardDefinition, bool)
}

// MemoryCatalog is a Catalog with named deck lists.
type MemoryCatalog struct {
	cards map[string]*CardDefinition
	decks map[string][]string
}

func NewMemoryCatalog(defs ...*CardDefinition) *MemoryCatalog {
	c := &MemoryCatalog{cards: make(map[string]*CardDefinition), decks: make(map[string][]string)}
	for _, d := range defs {
		c.Add(d)
	}
	return c
}

func (c *MemoryCatalog) Add(def *CardDefinition) {
	c.cards[def.ID] = def
}

func (c *MemoryCatalog) Card(id string) (*CardDefinition, bool) {
	def, ok := c.cards[id]
	return def, ok
}

// Cards returns every definition sorted by id.
func (c *MemoryCatalog) Cards() []*CardDefinition {
	out := make([]*CardDefinition, 0, len(c.cards))
	for _, d := range c.cards {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deck returns a copy of the named deck list.
func (c *MemoryCatalog) Deck(name string) ([]string, bool) {
	d, ok := c.decks[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), d...), true
}

func (c *MemoryCatalog) DeckNames() []string {
	names := make([]string, 0, len(c.decks))
	for n := range c.decks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CatalogFile represents the top-level YAML structure.
type CatalogFile struct {
	Cards []CardEntry `yaml:"cards"`
	Decks []DeckEntry `yaml:"decks"`
}

// CardEntry is a card definition as written in YAML. Cards are active unless
// marked otherwise.
type CardEntry struct {
	CardDefinition `yaml:",inline"`
	Active         *bool `yaml:"is_active"`
}

// DeckEntry represents a single deck in the YAML file.
type DeckEntry struct {
	Name  string     `yaml:"name"`
	Cards []DeckSlot `yaml:"cards"`
}

// DeckSlot represents a card and its count in a deck.
type DeckSlot struct {
	Card  string `yaml:"card"`
	Count int    `yaml:"count"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML. Deck entries must reference known cards.
func ParseCatalog(data []byte) (*MemoryCatalog, error) {
	var cf CatalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}

	cat := NewMemoryCatalog()
	for _, entry := range cf.Cards {
		def := entry.CardDefinition
		if def.ID == "" {
			return nil, fmt.Errorf("card %q has no id", def.Name)
		}
		if _, dup := cat.cards[def.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %q", def.ID)
		}
		if def.CardType == "" {
			def.CardType = CardTypeCreature
		}
		def.IsActive = entry.Active == nil || *entry.Active
		cat.Add(&def)
	}

	for _, deck := range cf.Decks {
		var ids []string
		for _, slot := range deck.Cards {
			if _, ok := cat.Card(slot.Card); !ok {
				return nil, fmt.Errorf("deck %q: %w: %s", deck.Name, ErrUnknownCard, slot.Card)
			}
			for i := 0; i < slot.Count; i++ {
				ids = append(ids, slot.Card)
			}
		}
		cat.decks[deck.Name] = ids
	}
	return cat, nil
}

// ValidateCatalog strictly parses every ability and returns all failures.
func ValidateCatalog(cat *MemoryCatalog) error {
	strict := Parser{Strict: true}
	var errs []error
	for _, def := range cat.Cards() {
		if _, err := strict.Parse(def); err != nil && !errors.Is(err, ErrNoAbility) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
