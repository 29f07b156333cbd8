package game

import (
	"slices"
	"strconv"
)

const (
	MaxBoardSize     = 5
	MaxSpellTrapSize = 5
)

// Clone returns a deep copy of the state. Transactions only ever hand out
// clones, so callers may mutate what they receive.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	c := *gs
	for i, p := range gs.Players {
		c.Players[i] = p.clone()
	}
	c.CurrentChain = slices.Clone(gs.CurrentChain)
	c.OptUsedThisTurn = slices.Clone(gs.OptUsedThisTurn)
	c.TemporaryModifiers = slices.Clone(gs.TemporaryModifiers)
	return &c
}

func (p *PlayerState) clone() *PlayerState {
	if p == nil {
		return nil
	}
	c := *p
	c.Hand = slices.Clone(p.Hand)
	c.Board = slices.Clone(p.Board)
	c.SpellTrapZone = slices.Clone(p.SpellTrapZone)
	c.Deck = slices.Clone(p.Deck)
	c.Graveyard = slices.Clone(p.Graveyard)
	c.Banished = slices.Clone(p.Banished)
	if p.FieldSpell != nil {
		fs := *p.FieldSpell
		c.FieldSpell = &fs
	}
	return &c
}

// Player returns the player with the given user id, or nil.
func (gs *GameState) Player(userID string) *PlayerState {
	for _, p := range gs.Players {
		if p != nil && p.UserID == userID {
			return p
		}
	}
	return nil
}

// OpponentOf returns the other player's id.
func (gs *GameState) OpponentOf(userID string) string {
	if userID == gs.HostID {
		return gs.OpponentID
	}
	return gs.HostID
}

func (gs *GameState) IsOver() bool {
	return gs.Winner != ""
}

// declareWinner ends the game. The first result sticks.
func (gs *GameState) declareWinner(winner, loser string, reason EndReason) {
	if gs.IsOver() {
		return
	}
	gs.Winner = winner
	gs.Loser = loser
	gs.EndReason = reason
}

// setLifePoints writes a clamped value and ends the game when it reaches 0.
func (gs *GameState) setLifePoints(p *PlayerState, lp int) {
	p.LifePoints = max(lp, 0)
	if p.LifePoints == 0 {
		gs.declareWinner(gs.OpponentOf(p.UserID), p.UserID, EndCompleted)
	}
}

// FindBoardCard locates a creature on either board.
func (gs *GameState) FindBoardCard(instanceID string) (BoardCard, *PlayerState, bool) {
	for _, p := range gs.Players {
		if p == nil {
			continue
		}
		if i := boardIndex(p.Board, instanceID); i >= 0 {
			return p.Board[i], p, true
		}
	}
	return BoardCard{}, nil, false
}

// OnBoard reports whether the card is still a creature in play.
func (gs *GameState) OnBoard(instanceID string) bool {
	_, _, ok := gs.FindBoardCard(instanceID)
	return ok
}

func (gs *GameState) boardInstanceIDs() []string {
	var ids []string
	for _, p := range gs.Players {
		for _, bc := range p.Board {
			ids = append(ids, bc.InstanceID)
		}
	}
	return ids
}

func (gs *GameState) inGraveyard(instanceID string) bool {
	for _, p := range gs.Players {
		if refIndex(p.Graveyard, instanceID) >= 0 {
			return true
		}
	}
	return false
}

// updateBoardCard replaces the stored entry with bc.
func (gs *GameState) updateBoardCard(bc BoardCard) {
	for _, p := range gs.Players {
		if i := boardIndex(p.Board, bc.InstanceID); i >= 0 {
			board := slices.Clone(p.Board)
			board[i] = bc
			p.Board = board
			return
		}
	}
}

// findSpellTrap locates a card in a spell/trap zone or field slot.
func (gs *GameState) findSpellTrap(instanceID string) (SpellTrapCard, *PlayerState, bool) {
	for _, p := range gs.Players {
		for _, st := range p.SpellTrapZone {
			if st.InstanceID == instanceID {
				return st, p, true
			}
		}
		if p.FieldSpell != nil && p.FieldSpell.InstanceID == instanceID {
			return *p.FieldSpell, p, true
		}
	}
	return SpellTrapCard{}, nil, false
}

// modifiersFor returns the live modifiers targeting the card.
func (gs *GameState) modifiersFor(instanceID string) []TemporaryModifier {
	var out []TemporaryModifier
	for _, m := range gs.TemporaryModifiers {
		if m.TargetInstanceID == instanceID {
			out = append(out, m)
		}
	}
	return out
}

func (gs *GameState) addModifier(m TemporaryModifier) {
	gs.NextModifierSeq++
	m.ID = modifierID(gs.NextModifierSeq)
	m.CreatedTurn = gs.TurnNumber
	gs.TemporaryModifiers = append(slices.Clone(gs.TemporaryModifiers), m)
}

func (gs *GameState) optUsed(effectID string) bool {
	return slices.Contains(gs.OptUsedThisTurn, effectID)
}

// removeFromBoard takes a creature off the field and returns the owner's
// CardRef. Modifiers on the card and equipment attached to it go with it.
func (gs *GameState) removeFromBoard(instanceID string) (CardRef, bool) {
	bc, ctrl, ok := gs.FindBoardCard(instanceID)
	if !ok {
		return CardRef{}, false
	}
	ctrl.Board, _, _ = withoutBoard(ctrl.Board, instanceID)
	gs.TemporaryModifiers = slices.DeleteFunc(slices.Clone(gs.TemporaryModifiers), func(m TemporaryModifier) bool {
		return m.TargetInstanceID == instanceID
	})
	for _, p := range gs.Players {
		for _, st := range p.SpellTrapZone {
			if st.EquippedTo == instanceID {
				gs.removeSpellTrap(st.InstanceID)
				gs.sendTo(st.CardRef, ZoneGraveyard)
			}
		}
	}
	return bc.CardRef, true
}

// removeSpellTrap takes a card out of its spell/trap zone or field slot.
// Modifiers it granted end with it.
func (gs *GameState) removeSpellTrap(instanceID string) (CardRef, bool) {
	for _, p := range gs.Players {
		if zone, st, ok := withoutSpellTrap(p.SpellTrapZone, instanceID); ok {
			p.SpellTrapZone = zone
			gs.dropModifiersFrom(instanceID)
			return st.CardRef, true
		}
		if p.FieldSpell != nil && p.FieldSpell.InstanceID == instanceID {
			ref := p.FieldSpell.CardRef
			p.FieldSpell = nil
			return ref, true
		}
	}
	return CardRef{}, false
}

func (gs *GameState) dropModifiersFrom(sourceID string) {
	gs.TemporaryModifiers = slices.DeleteFunc(slices.Clone(gs.TemporaryModifiers), func(m TemporaryModifier) bool {
		return m.SourceInstanceID == sourceID && m.Expiry == ExpiryPermanent
	})
}

// sendTo places a card in one of its owner's off-field zones. Deck means top.
func (gs *GameState) sendTo(ref CardRef, zone Zone) {
	owner := gs.Player(ref.OwnerID)
	if owner == nil {
		return
	}
	switch zone {
	case ZoneHand:
		owner.Hand = appendRef(owner.Hand, ref)
	case ZoneDeck:
		owner.Deck = prependRef(owner.Deck, ref)
	case ZoneBanished:
		owner.Banished = appendRef(owner.Banished, ref)
	default:
		owner.Graveyard = appendRef(owner.Graveyard, ref)
	}
}

// --- Zone helpers: inputs are never modified, new slices are returned ---

func boardIndex(board []BoardCard, instanceID string) int {
	return slices.IndexFunc(board, func(bc BoardCard) bool { return bc.InstanceID == instanceID })
}

func refIndex(refs []CardRef, instanceID string) int {
	return slices.IndexFunc(refs, func(r CardRef) bool { return r.InstanceID == instanceID })
}

func withoutBoard(board []BoardCard, instanceID string) ([]BoardCard, BoardCard, bool) {
	i := boardIndex(board, instanceID)
	if i < 0 {
		return board, BoardCard{}, false
	}
	return slices.Delete(slices.Clone(board), i, i+1), board[i], true
}

func withoutRef(refs []CardRef, instanceID string) ([]CardRef, CardRef, bool) {
	i := refIndex(refs, instanceID)
	if i < 0 {
		return refs, CardRef{}, false
	}
	return slices.Delete(slices.Clone(refs), i, i+1), refs[i], true
}

func withoutSpellTrap(zone []SpellTrapCard, instanceID string) ([]SpellTrapCard, SpellTrapCard, bool) {
	i := slices.IndexFunc(zone, func(st SpellTrapCard) bool { return st.InstanceID == instanceID })
	if i < 0 {
		return zone, SpellTrapCard{}, false
	}
	return slices.Delete(slices.Clone(zone), i, i+1), zone[i], true
}

func appendRef(refs []CardRef, ref CardRef) []CardRef {
	return append(slices.Clone(refs), ref)
}

func prependRef(refs []CardRef, ref CardRef) []CardRef {
	return append([]CardRef{ref}, refs...)
}

// drawTop removes the top card of the deck.
func drawTop(deck []CardRef) ([]CardRef, CardRef, bool) {
	if len(deck) == 0 {
		return deck, CardRef{}, false
	}
	return slices.Clone(deck[1:]), deck[0], true
}

func modifierID(seq int) string {
	return "mod-" + strconv.Itoa(seq)
}
