package game

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// AbilityCache memoizes parsed abilities per card id. Entries are keyed by a
// fingerprint of the ability source, so editing a card's ability invalidates
// its entry.
type AbilityCache struct {
	parser Parser
	log    logrus.FieldLogger

	mu      sync.RWMutex
	entries map[string]abilityEntry
}

type abilityEntry struct {
	fingerprint uint64
	ability     *Ability
	err         error
}

func NewAbilityCache(parser Parser, logger logrus.FieldLogger) *AbilityCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AbilityCache{parser: parser, log: logger, entries: make(map[string]abilityEntry)}
}

// Get returns the card's parsed ability, or nil if it has none. Parse
// failures are returned only by a strict parser; a lenient one logs them and
// treats the card as having no ability.
func (c *AbilityCache) Get(def *CardDefinition) (*Ability, error) {
	if def == nil {
		return nil, nil
	}
	fp := def.Ability.Fingerprint()

	c.mu.RLock()
	e, ok := c.entries[def.ID]
	c.mu.RUnlock()
	if !ok || e.fingerprint != fp {
		ab, err := c.parser.Parse(def)
		e = abilityEntry{fingerprint: fp, ability: ab, err: err}
		c.mu.Lock()
		c.entries[def.ID] = e
		c.mu.Unlock()

		if err != nil && !errors.Is(err, ErrNoAbility) {
			c.log.WithError(err).WithField("card_id", def.ID).Debug("ability parse failed")
		}
	}

	switch {
	case e.err == nil:
		return e.ability, nil
	case errors.Is(e.err, ErrNoAbility):
		return nil, nil
	case c.parser.Strict:
		return nil, e.err
	default:
		return nil, nil
	}
}

// Len reports the number of cached entries.
func (c *AbilityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
