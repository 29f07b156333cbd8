package app

import (
	"github.com/peterkuimelis/duelserver/internal/game"
)

// StateView is the game state from one player's perspective: the
// opponent's hand and face-down cards stay hidden.
type StateView struct {
	LobbyID    string         `json:"lobbyId"`
	You        PlayerView     `json:"you"`
	Opponent   PlayerView     `json:"opponent"`
	Turn       int            `json:"turn"`
	Phase      game.Phase     `json:"phase"`
	IsYourTurn bool           `json:"isYourTurn"`
	Winner     string         `json:"winner,omitempty"`
	EndReason  game.EndReason `json:"endReason,omitempty"`
	Version    int64          `json:"version"`
}

// PlayerView shows one side of the board.
type PlayerView struct {
	UserID         string     `json:"userId"`
	LifePoints     int        `json:"lifePoints"`
	HandCount      int        `json:"handCount"`
	Hand           []CardView `json:"hand,omitempty"` // only for "you"
	Board          []ZoneView `json:"board"`
	SpellTrapZone  []ZoneView `json:"spellTrapZone"`
	FieldSpell     *ZoneView  `json:"fieldSpell,omitempty"`
	GraveyardCount int        `json:"graveyardCount"`
	BanishedCount  int        `json:"banishedCount"`
	DeckCount      int        `json:"deckCount"`
}

type CardView struct {
	InstanceID string `json:"instanceId"`
	CardID     string `json:"cardId"`
	Name       string `json:"name"`
}

// ZoneView describes one occupied zone on the field. Hidden cards carry
// only their instance id.
type ZoneView struct {
	InstanceID string `json:"instanceId"`
	FaceDown   bool   `json:"faceDown,omitempty"`
	CardID     string `json:"cardId,omitempty"`
	Name       string `json:"name,omitempty"`
	ATK        int    `json:"atk,omitempty"`
	DEF        int    `json:"def,omitempty"`
	Position   string `json:"position,omitempty"`
	EquippedTo string `json:"equippedTo,omitempty"`
}

// NewStateView renders gs for viewerID. A viewer who is not in the match
// sees both sides as an opponent would.
func NewStateView(e *game.Engine, gs *game.GameState, viewerID string) *StateView {
	you := gs.Player(viewerID)
	other := gs.Player(gs.OpponentOf(viewerID))
	if you == nil {
		you, other = gs.Players[0], gs.Players[1]
	}
	return &StateView{
		LobbyID:    gs.LobbyID,
		You:        playerView(e, gs, you, you.UserID == viewerID),
		Opponent:   playerView(e, gs, other, false),
		Turn:       gs.TurnNumber,
		Phase:      gs.CurrentPhase,
		IsYourTurn: gs.CurrentTurnPlayerID == viewerID,
		Winner:     gs.Winner,
		EndReason:  gs.EndReason,
		Version:    gs.Version,
	}
}

func playerView(e *game.Engine, gs *game.GameState, p *game.PlayerState, owner bool) PlayerView {
	pv := PlayerView{
		UserID:         p.UserID,
		LifePoints:     p.LifePoints,
		HandCount:      len(p.Hand),
		Board:          []ZoneView{},
		SpellTrapZone:  []ZoneView{},
		GraveyardCount: len(p.Graveyard),
		BanishedCount:  len(p.Banished),
		DeckCount:      len(p.Deck),
	}
	if owner {
		for _, ref := range p.Hand {
			pv.Hand = append(pv.Hand, CardView{InstanceID: ref.InstanceID, CardID: ref.CardID, Name: cardName(e, ref.CardID)})
		}
	}
	for _, bc := range p.Board {
		zv := ZoneView{InstanceID: bc.InstanceID, FaceDown: bc.FaceDown, Position: bc.Position.String()}
		if !bc.FaceDown || owner {
			zv.CardID, zv.Name = bc.CardID, cardName(e, bc.CardID)
			if stats, err := e.EffectiveStats(gs, bc.InstanceID); err == nil {
				zv.ATK, zv.DEF = stats.Attack, stats.Defense
			}
		}
		pv.Board = append(pv.Board, zv)
	}
	for _, st := range p.SpellTrapZone {
		pv.SpellTrapZone = append(pv.SpellTrapZone, spellTrapView(e, st, owner))
	}
	if p.FieldSpell != nil {
		zv := spellTrapView(e, *p.FieldSpell, owner)
		pv.FieldSpell = &zv
	}
	return pv
}

func spellTrapView(e *game.Engine, st game.SpellTrapCard, owner bool) ZoneView {
	zv := ZoneView{InstanceID: st.InstanceID, FaceDown: st.FaceDown, EquippedTo: st.EquippedTo}
	if !st.FaceDown || owner {
		zv.CardID, zv.Name = st.CardID, cardName(e, st.CardID)
	}
	return zv
}

func cardName(e *game.Engine, cardID string) string {
	if def, ok := e.Catalog().Card(cardID); ok {
		return def.Name
	}
	return cardID
}
