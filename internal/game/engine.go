package game

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Rules are the tunable numbers of a match.
type Rules struct {
	StartingLifePoints int `yaml:"starting_life_points"`
	OpeningHandSize    int `yaml:"opening_hand_size"`
}

func DefaultRules() Rules {
	return Rules{StartingLifePoints: 8000, OpeningHandSize: 5}
}

// Engine owns the catalog and ability cache shared by the executor, the
// battle resolver and the turn actions. It holds no match state: every
// method works on the Tx it is given.
type Engine struct {
	catalog   Catalog
	abilities *AbilityCache
	rules     Rules
	log       logrus.FieldLogger

	Executor *Executor
	Resolver *Resolver
}

func NewEngine(catalog Catalog, abilities *AbilityCache, rules Rules, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if abilities == nil {
		abilities = NewAbilityCache(Parser{}, logger)
	}
	e := &Engine{catalog: catalog, abilities: abilities, rules: rules, log: logger}
	e.Executor = &Executor{engine: e}
	e.Resolver = &Resolver{engine: e}
	return e
}

func (e *Engine) Catalog() Catalog {
	return e.catalog
}

func (e *Engine) Rules() Rules {
	return e.rules
}

func (e *Engine) card(id string) (*CardDefinition, error) {
	def, ok := e.catalog.Card(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCard, id)
	}
	return def, nil
}

func (e *Engine) ability(cardID string) (*Ability, error) {
	def, err := e.card(cardID)
	if err != nil {
		return nil, err
	}
	return e.abilities.Get(def)
}

func (e *Engine) cardName(cardID string) string {
	if def, ok := e.catalog.Card(cardID); ok {
		return def.Name
	}
	return cardID
}

// fire runs the card's effect for trigger through the executor. It returns
// nil when the card has no such effect.
func (e *Engine) fire(tx *Tx, ref CardRef, controllerID string, trigger Trigger, targets []string) (*EffectResult, error) {
	ab, err := e.ability(ref.CardID)
	if err != nil {
		return nil, err
	}
	eff := ab.Effect(trigger)
	if eff == nil {
		return nil, nil
	}
	res := e.Executor.Execute(tx, tx.LobbyID(), eff, controllerID, ref.InstanceID, targets)
	return &res, nil
}
