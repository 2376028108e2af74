package combat

import (
	"slices"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/economy"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
)

// View is the full combat state returned with every operation so callers
// never track incremental changes.
type View struct {
	CombatID   string           `json:"combatId"`
	Status     Status           `json:"status"`
	Round      int              `json:"round"`
	Current    string           `json:"current,omitempty"`
	TurnOrder  []string         `json:"turnOrder"`
	Combatants []CombatantView  `json:"combatants"`
	Area       Area             `json:"area"`
	Animations []TelemetryEvent `json:"animations,omitempty"`
}

// CombatantView is one combatant as seen in a View. Visible is measured
// from the current combatant.
type CombatantView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       Kind              `json:"kind"`
	CurrentHP  int               `json:"currentHp"`
	MaxHP      int               `json:"maxHp"`
	Initiative int               `json:"initiative"`
	Defeated   bool              `json:"defeated"`
	Position   Position          `json:"position"`
	Visible    Sight             `json:"visible"`
	Effects    []effect.Effect   `json:"effects,omitempty"`
	Remaining  economy.Remaining `json:"remaining"`
	Readied    *Readied          `json:"readied,omitempty"`
}

// Area summarises the battlefield.
type Area struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Occupied counts combatants still standing.
	Occupied int `json:"occupied"`
}

// Result is the outcome of one operation. Success=false with a Message
// reports game friction (wrong turn, spent slot, out of movement); caller
// misuse is reported as an error instead.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Damage is the hit point loss after modifiers.
	Damage  int             `json:"damage,omitempty"`
	Healing int             `json:"healing,omitempty"`
	Removed int             `json:"removed,omitempty"`
	Effects []effect.Result `json:"effects,omitempty"`
	// Reactions holds what reaction triggers did during the operation.
	Reactions []Result `json:"reactions,omitempty"`
	View      View     `json:"view"`
}

// TurnResult is returned by AdvanceTurn.
type TurnResult struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
	NewRound bool   `json:"newRound"`
	View     View   `json:"view"`
}

// State builds a View of the combat as it stands.
func (c *Combat) State() View {
	cur, _ := c.queue.Current()
	v := View{
		CombatID:   c.id,
		Status:     c.Status(),
		Round:      c.round,
		Current:    cur,
		TurnOrder:  c.queue.OrderedIDs(),
		Area:       Area{Width: c.opts.AreaWidth, Height: c.opts.AreaHeight},
		Animations: slices.Clone(c.pending),
	}
	for _, id := range c.order {
		cb := c.combatants[id]
		cv := CombatantView{
			ID:         cb.ID,
			Name:       cb.Name,
			Kind:       cb.Kind,
			CurrentHP:  cb.CurrentHP,
			MaxHP:      cb.MaxHP,
			Initiative: cb.Initiative,
			Defeated:   cb.Defeated,
			Visible:    SightClear,
			Effects:    c.effects.Active(id),
		}
		if p, ok := c.spatial.EntityPosition(id); ok {
			cv.Position = p
		}
		if cur != "" && cur != id {
			cv.Visible = c.visibility.VisibilityBetween(cur, id)
		}
		if r, ok := c.economy.Remaining(id); ok {
			cv.Remaining = r
		}
		if r, ok := c.readied[id]; ok {
			cv.Readied = &r
		}
		if cb.IsAlive() {
			v.Area.Occupied++
		}
		v.Combatants = append(v.Combatants, cv)
	}
	return v
}
