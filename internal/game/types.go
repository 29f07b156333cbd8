package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// --- Enums ---

type Phase string

const (
	PhaseDraw        Phase = "draw"
	PhaseStandby     Phase = "standby"
	PhaseMain1       Phase = "main1"
	PhaseBattleStart Phase = "battle_start"
	PhaseBattle      Phase = "battle"
	PhaseMain2       Phase = "main2"
	PhaseEnd         Phase = "end"
)

var phaseOrder = map[Phase]int{
	PhaseDraw:        1,
	PhaseStandby:     2,
	PhaseMain1:       3,
	PhaseBattleStart: 4,
	PhaseBattle:      5,
	PhaseMain2:       6,
	PhaseEnd:         7,
}

func (p Phase) String() string {
	return string(p)
}

func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// AllowsAttack reports whether attack declarations are legal in this phase.
func (p Phase) AllowsAttack() bool {
	return p == PhaseBattleStart || p == PhaseBattle
}

func (p Phase) IsMain() bool {
	return p == PhaseMain1 || p == PhaseMain2
}

func (p Phase) IsBattle() bool {
	return p.AllowsAttack()
}

// Position of a creature on the board. 1 is attack; anything else is defense.
type Position int

const (
	PositionAttack  Position = 1
	PositionDefense Position = 2
)

func (p Position) String() string {
	if p == PositionAttack {
		return "attack"
	}
	return "defense"
}

type CardType string

const (
	CardTypeCreature  CardType = "creature"
	CardTypeSpell     CardType = "spell"
	CardTypeTrap      CardType = "trap"
	CardTypeEquipment CardType = "equipment"
)

// Spell/trap subtypes decide where an activated card stays.
const (
	SubtypeNormal     = "normal"
	SubtypeContinuous = "continuous"
	SubtypeField      = "field"
)

type GameMode string

const (
	ModePvP   GameMode = "pvp"
	ModeStory GameMode = "story"
)

type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndSurrender EndReason = "surrender"
	EndForfeit   EndReason = "forfeit"
	EndTimeout   EndReason = "timeout"
)

func (r EndReason) Valid() bool {
	switch r {
	case EndCompleted, EndSurrender, EndForfeit, EndTimeout:
		return true
	}
	return false
}

type Expiry string

const (
	ExpiryEndOfTurn     Expiry = "end_of_turn"
	ExpiryEndOfNextTurn Expiry = "end_of_next_turn"
	ExpiryPermanent     Expiry = "permanent"
)

// --- Card definitions ---

// AbilitySource is a card's stored ability: either free text or a structured
// document, depending on when the card was authored.
type AbilitySource struct {
	Text       string
	Structured map[string]any
}

func TextAbility(text string) AbilitySource {
	return AbilitySource{Text: text}
}

func StructuredAbility(doc map[string]any) AbilitySource {
	return AbilitySource{Structured: doc}
}

func (a AbilitySource) IsZero() bool {
	return a.Text == "" && len(a.Structured) == 0
}

// Fingerprint hashes the source so cached parses can detect edits.
func (a AbilitySource) Fingerprint() uint64 {
	if len(a.Structured) > 0 {
		// encoding/json sorts map keys, so the encoding is stable.
		data, err := json.Marshal(a.Structured)
		if err == nil {
			return xxhash.Sum64(data)
		}
	}
	return xxhash.Sum64String(a.Text)
}

func (a *AbilitySource) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		a.Text = node.Value
		return nil
	case yaml.MappingNode:
		var doc map[string]any
		if err := node.Decode(&doc); err != nil {
			return err
		}
		a.Structured = doc
		return nil
	default:
		return fmt.Errorf("ability: line %d: expected text or mapping", node.Line)
	}
}

func (a AbilitySource) MarshalJSON() ([]byte, error) {
	if len(a.Structured) > 0 {
		return json.Marshal(a.Structured)
	}
	return json.Marshal(a.Text)
}

func (a *AbilitySource) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		return json.Unmarshal(data, &a.Structured)
	}
	if string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &a.Text)
}

// CardDefinition is the immutable catalog entry shared by every copy of a card.
type CardDefinition struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	Rarity    string        `yaml:"rarity" json:"rarity,omitempty"`
	CardType  CardType      `yaml:"type" json:"cardType"`
	Subtype   string        `yaml:"subtype" json:"subtype,omitempty"`
	Archetype string        `yaml:"archetype" json:"archetype,omitempty"`
	Cost      int           `yaml:"cost" json:"cost"`
	Attack    int           `yaml:"attack" json:"attack"`
	Defense   int           `yaml:"defense" json:"defense"`
	Ability   AbilitySource `yaml:"ability" json:"ability"`
	IsActive  bool          `yaml:"-" json:"isActive"`
}

func (c *CardDefinition) IsCreature() bool {
	return c.CardType == CardTypeCreature
}

func (c *CardDefinition) String() string {
	if c.IsCreature() {
		return fmt.Sprintf("%s (ATK %d / DEF %d)", c.Name, c.Attack, c.Defense)
	}
	return fmt.Sprintf("%s [%s]", c.Name, c.CardType)
}

// --- Zones ---

// CardRef identifies one physical copy of a card.
type CardRef struct {
	InstanceID string `json:"instanceId"`
	CardID     string `json:"cardId"`
	OwnerID    string `json:"ownerId"`
}

// BoardCard is a creature in play.
type BoardCard struct {
	CardRef
	Position                  Position `json:"position"`
	FaceDown                  bool     `json:"faceDown"`
	HasAttacked               bool     `json:"hasAttacked"`
	CannotBeDestroyedByBattle bool     `json:"cannotBeDestroyedByBattle"`
	SummonedTurn              int      `json:"summonedTurn"`
	PositionChangedTurn       int      `json:"positionChangedTurn,omitempty"`
}

// SpellTrapCard is a card in the spell/trap zone or the field spell slot.
type SpellTrapCard struct {
	CardRef
	FaceDown   bool   `json:"faceDown"`
	SetTurn    int    `json:"setTurn,omitempty"`
	EquippedTo string `json:"equippedTo,omitempty"`
}

// TemporaryModifier is a stat or flag change layered on a creature's base stats.
type TemporaryModifier struct {
	ID                        string `json:"id"`
	TargetInstanceID          string `json:"targetInstanceId"`
	SourceInstanceID          string `json:"sourceInstanceId"`
	Attack                    int    `json:"attack"`
	Defense                   int    `json:"defense"`
	CannotBeDestroyedByBattle bool   `json:"cannotBeDestroyedByBattle,omitempty"`
	Expiry                    Expiry `json:"expiry"`
	CreatedTurn               int    `json:"createdTurn"`
}

// ChainLink is a pending activation. Chains are kept in the document but the
// current rules resolve every effect immediately.
type ChainLink struct {
	SourceInstanceID string `json:"sourceInstanceId"`
	EffectID         string `json:"effectId"`
	ControllerID     string `json:"controllerId"`
}

type PlayerState struct {
	UserID                 string          `json:"userId"`
	LifePoints             int             `json:"lifePoints"`
	Mana                   int             `json:"mana"`
	Hand                   []CardRef       `json:"hand"`
	Board                  []BoardCard     `json:"board"`
	SpellTrapZone          []SpellTrapCard `json:"spellTrapZone"`
	FieldSpell             *SpellTrapCard  `json:"fieldSpell,omitempty"`
	Deck                   []CardRef       `json:"deck"`
	Graveyard              []CardRef       `json:"graveyard"`
	Banished               []CardRef       `json:"banished"`
	NormalSummonedThisTurn bool            `json:"normalSummonedThisTurn"`
}

// GameState is the authoritative per-match document.
type GameState struct {
	LobbyID    string `json:"lobbyId"`
	GameID     string `json:"gameId"`
	HostID     string `json:"hostId"`
	OpponentID string `json:"opponentId"`

	Players [2]*PlayerState `json:"players"` // 0 = host, 1 = opponent

	CurrentTurnPlayerID   string      `json:"currentTurnPlayerId"`
	TurnNumber            int         `json:"turnNumber"`
	CurrentPhase          Phase       `json:"currentPhase"`
	CurrentPriorityPlayer string      `json:"currentPriorityPlayer"`
	CurrentChain          []ChainLink `json:"currentChain"`

	OptUsedThisTurn    []string            `json:"optUsedThisTurn"`
	TemporaryModifiers []TemporaryModifier `json:"temporaryModifiers"`
	NextModifierSeq    int                 `json:"nextModifierSeq"`

	GameMode     GameMode `json:"gameMode"`
	IsAIOpponent bool     `json:"isAIOpponent"`
	AIDifficulty string   `json:"aiDifficulty,omitempty"`
	StageID      string   `json:"stageId,omitempty"`

	Winner    string    `json:"winner,omitempty"`
	Loser     string    `json:"loser,omitempty"`
	EndReason EndReason `json:"endReason,omitempty"`

	LastActionAt time.Time `json:"lastActionAt"`
	Version      int64     `json:"version"`
}
