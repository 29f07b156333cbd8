package game

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Free-text abilities follow the usual card phrasing:
//
//	"When this card destroys a monster by battle, draw 1 card."
//	"When this card is attacked, the attacking monster loses 500 ATK until the end of this turn."
//	"While this card is face-up on the field, all monsters you control gain 300 ATK."
//	"Piercing."
//
// Each sentence is classified into a trigger and a body; the body is scanned
// for known operations in the order they appear.

var (
	reSentence         = regexp.MustCompile(`[.\n]+`)
	reTargeting        = regexp.MustCompile(`\btarget\b`)
	reIt               = regexp.MustCompile(`\bit\b`)
	reOncePerTurn      = regexp.MustCompile(`\(?\bonce per turn\b\)?[:,]?\s*`)
	rePiercing         = regexp.MustCompile(`\bpiercing\b`)
	reSelfProtection   = regexp.MustCompile(`^(?:this card )?cannot be destroyed by battle$`)
	reContinuousClause = regexp.MustCompile(`^(?:while|as long as) this card (?:is|remains) (?:face-up|on the field)[^,]*,\s*(.+)$`)
	reTriggerClause    = regexp.MustCompile(`^(?:when|if|each time|after)\b([^,]*),\s*(.+)$`)
	reUntilEndOfTurn   = regexp.MustCompile(`until the end of (?:this|the) turn`)
	reUntilNextTurn    = regexp.MustCompile(`until the end of (?:your|your opponent's|the|their) next turn`)
)

var triggerPatterns = []struct {
	trigger Trigger
	re      *regexp.Regexp
}{
	{TriggerOnBattleAttacked, regexp.MustCompile(`\b(?:is|are) (?:attacked|targeted for an attack|selected as an attack target)\b`)},
	{TriggerOnBattleDestroy, regexp.MustCompile(`\bdestroys?\b[^,]*\bby battle\b`)},
	{TriggerOnDestroy, regexp.MustCompile(`\b(?:is|are) (?:destroyed|sent to the graveyard)\b`)},
	{TriggerOnBattleDamage, regexp.MustCompile(`\binflicts? (?:battle )?damage to your opponent\b`)},
	{TriggerOnSummon, regexp.MustCompile(`\b(?:is|are) (?:normal |special |flip )?summoned\b`)},
	{TriggerOnActivate, regexp.MustCompile(`\b(?:is|are) activated\b`)},
}

const subjectPattern = `(this card|it|target monster|the equipped monster|equipped monster|1 monster your opponent controls|1 monster on the field|the attacking monster|the attacked monster|that monster|the monster it battled|all monsters you control|monsters you control|all (?:face-up )?monsters your opponent controls|your opponent's monsters)`

type textOp struct {
	re    *regexp.Regexp
	build func(m []string, duration Expiry) (Operation, error)
}

var textOps = []textOp{
	{
		re: regexp.MustCompile(`\b` + subjectPattern + ` (gains?|loses?) (\d+) (atk and def|atk/def|atk|def)\b`),
		build: func(m []string, duration Expiry) (Operation, error) {
			n, _ := strconv.Atoi(m[3])
			if strings.HasPrefix(m[2], "lose") {
				n = -n
			}
			op := ModifyStats{Target: subjectSelector(m[1]), Duration: duration}
			switch m[4] {
			case "atk":
				op.Attack = n
			case "def":
				op.Defense = n
			default:
				op.Attack, op.Defense = n, n
			}
			return op, nil
		},
	},
	{
		re: regexp.MustCompile(`\b(your opponent )?draws? (\d+|a|one|two|three) cards?\b`),
		build: func(m []string, _ Expiry) (Operation, error) {
			target := TargetController
			if m[1] != "" {
				target = TargetOpponent
			}
			return DrawCards{Target: target, Count: countWord(m[2])}, nil
		},
	},
	{
		re: regexp.MustCompile(`\binflict (\d+) (?:points of )?damage(?: to (your opponent|you|yourself))?\b`),
		build: func(m []string, _ Expiry) (Operation, error) {
			n, _ := strconv.Atoi(m[1])
			target := TargetOpponent
			if m[2] == "you" || m[2] == "yourself" {
				target = TargetController
			}
			return InflictDamage{Target: target, Amount: n}, nil
		},
	},
	{
		re: regexp.MustCompile(`\b(your opponent )?gains? (\d+) (?:life points|lp)\b`),
		build: func(m []string, _ Expiry) (Operation, error) {
			n, _ := strconv.Atoi(m[2])
			target := TargetController
			if m[1] != "" {
				target = TargetOpponent
			}
			return GainLifePoints{Target: target, Amount: n}, nil
		},
	},
	{
		re: regexp.MustCompile(`\bdestroy ` + subjectPattern),
		build: func(m []string, _ Expiry) (Operation, error) {
			return DestroyCards{Target: subjectSelector(m[1])}, nil
		},
	},
	{
		re: regexp.MustCompile(`\breturn ` + subjectPattern + ` to (?:the|its owner's|your|their owner's) hand\b`),
		build: func(m []string, _ Expiry) (Operation, error) {
			return MoveCards{Target: subjectSelector(m[1]), To: ZoneHand}, nil
		},
	},
	{
		re: regexp.MustCompile(`\b(?:shuffle|place) ` + subjectPattern + ` (?:into|on top of) (?:the|its owner's|their owner's) deck\b`),
		build: func(m []string, _ Expiry) (Operation, error) {
			return MoveCards{Target: subjectSelector(m[1]), To: ZoneDeck}, nil
		},
	},
	{
		re: regexp.MustCompile(`\bbanish ` + subjectPattern),
		build: func(m []string, _ Expiry) (Operation, error) {
			return MoveCards{Target: subjectSelector(m[1]), To: ZoneBanished}, nil
		},
	},
	{
		re: regexp.MustCompile(`\b` + subjectPattern + ` cannot be destroyed by battle\b`),
		build: func(m []string, duration Expiry) (Operation, error) {
			return GrantBattleProtection{Target: subjectSelector(m[1]), Duration: duration}, nil
		},
	},
}

func subjectSelector(s string) TargetSelector {
	switch s {
	case "this card", "it":
		return TargetSelf
	case "the attacking monster", "the attacked monster", "that monster", "the monster it battled":
		return TargetBattleOpponent
	case "all monsters you control", "monsters you control":
		return TargetAllOwnCreatures
	case "all monsters your opponent controls", "all face-up monsters your opponent controls", "your opponent's monsters":
		return TargetAllOpponentCreatures
	default:
		return TargetChosen
	}
}

func countWord(s string) int {
	switch s {
	case "a", "one":
		return 1
	case "two":
		return 2
	case "three":
		return 3
	}
	n, _ := strconv.Atoi(s)
	return max(n, 1)
}

type clause struct {
	trigger     Trigger
	body        string
	conditional bool
}

func classify(sentence string) clause {
	if m := reContinuousClause.FindStringSubmatch(sentence); m != nil {
		return clause{trigger: TriggerContinuous, body: m[1], conditional: true}
	}
	if m := reTriggerClause.FindStringSubmatch(sentence); m != nil {
		for _, tp := range triggerPatterns {
			if tp.re.MatchString(m[1]) {
				return clause{trigger: tp.trigger, body: m[2], conditional: true}
			}
		}
		return clause{body: m[2], conditional: true}
	}
	return clause{body: sentence}
}

func parseDuration(body string) Expiry {
	switch {
	case reUntilEndOfTurn.MatchString(body):
		return ExpiryEndOfTurn
	case reUntilNextTurn.MatchString(body):
		return ExpiryEndOfNextTurn
	}
	return ExpiryPermanent
}

// parseOperations finds every known operation in body, in textual order.
func parseOperations(body string) ([]Operation, error) {
	type found struct {
		at int
		op Operation
	}
	duration := parseDuration(body)
	var hits []found
	for _, to := range textOps {
		for _, idx := range to.re.FindAllStringSubmatchIndex(body, -1) {
			m := make([]string, len(idx)/2)
			for i := range m {
				if idx[2*i] >= 0 {
					m[i] = body[idx[2*i]:idx[2*i+1]]
				}
			}
			op, err := to.build(m, duration)
			if err != nil {
				return nil, err
			}
			if err := validateOperation(op); err != nil {
				return nil, err
			}
			hits = append(hits, found{at: idx[0], op: op})
		}
	}
	slices.SortStableFunc(hits, func(a, b found) int { return a.at - b.at })
	ops := make([]Operation, 0, len(hits))
	for _, h := range hits {
		ops = append(ops, h.op)
	}
	return ops, nil
}

func (p Parser) parseText(def *CardDefinition) (*Ability, error) {
	ab := &Ability{CardID: def.ID}
	text := strings.ToLower(def.Ability.Text)

	for _, raw := range reSentence.Split(text, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		if rePiercing.MatchString(sentence) {
			ab.Piercing = true
			continue
		}
		if reSelfProtection.MatchString(sentence) && def.IsCreature() {
			ab.CannotBeDestroyedByBattle = true
			continue
		}

		opt := reOncePerTurn.MatchString(sentence)
		sentence = strings.TrimSpace(reOncePerTurn.ReplaceAllString(sentence, ""))
		sentence = strings.TrimPrefix(sentence, "you can ")
		if reTargeting.MatchString(sentence) {
			// "target 1 monster your opponent controls; destroy it"
			sentence = reIt.ReplaceAllString(sentence, "target monster")
		}

		c := classify(sentence)
		ops, err := parseOperations(c.body)
		if err != nil {
			if p.Strict {
				return nil, fmt.Errorf("sentence %q: %w", sentence, err)
			}
			continue
		}
		if len(ops) == 0 || (c.conditional && c.trigger == "") {
			if p.Strict && c.conditional {
				return nil, fmt.Errorf("unrecognised effect %q", sentence)
			}
			continue
		}

		trigger := c.trigger
		if trigger == "" {
			trigger = defaultTrigger(def, ops)
		}
		if i := slices.IndexFunc(ab.Effects, func(e ParsedEffect) bool { return e.Trigger == trigger }); i >= 0 {
			ab.Effects[i].Operations = append(ab.Effects[i].Operations, ops...)
			ab.Effects[i].OncePerTurn = ab.Effects[i].OncePerTurn || opt
			continue
		}
		ab.Effects = append(ab.Effects, ParsedEffect{Trigger: trigger, Operations: ops, OncePerTurn: opt})
	}
	return ab, nil
}

// defaultTrigger picks a trigger for a sentence with no "when ..." clause.
// Unconditional stat changes on creatures and continuous/field spells are
// continuous; anything else happens on activation.
func defaultTrigger(def *CardDefinition, ops []Operation) Trigger {
	passive := true
	for _, op := range ops {
		switch o := op.(type) {
		case ModifyStats:
			passive = passive && o.Duration == ExpiryPermanent && o.Target != TargetChosen
		case GrantBattleProtection:
			passive = passive && o.Duration == ExpiryPermanent && o.Target != TargetChosen
		default:
			passive = false
		}
	}
	if passive && (def.IsCreature() || def.Subtype == SubtypeContinuous || def.Subtype == SubtypeField) {
		return TriggerContinuous
	}
	return TriggerOnActivate
}
