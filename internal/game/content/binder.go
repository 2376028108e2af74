// Package content turns YAML action specs, effect templates and Lua scripts
// into the registries a combat runs against.
package content

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
	"github.com/sharronesofer/visual-dm-sub028/internal/scripting"
)

// Binder attaches behaviors to action specs.
type Binder struct {
	Roller  *dice.Roller
	Effects *effect.Registry
	// Scripts may be nil when no spec names a Lua hook.
	Scripts *scripting.Manager
	Logger  *zap.Logger
}

// Bind converts s into a Definition with Legal and Execute set.
//
// A spec naming lua_execute runs that hook; its returned effect IDs are
// instantiated from the template registry. Otherwise the damage dice are
// rolled and the listed effect templates instantiated. A spec with neither
// damage nor effects keeps the default Run behavior.
//
// Precondition: Roller and Effects are non-nil.
// Postcondition: Returns an error if a referenced template, dice expression
// or Lua hook does not exist.
func (b *Binder) Bind(s action.Spec) (*action.Definition, error) {
	def, err := s.Definition()
	if err != nil {
		return nil, err
	}
	for _, id := range s.Effects {
		if _, ok := b.Effects.Get(id); !ok {
			return nil, fmt.Errorf("action %q: effect template %q not found", s.ID, id)
		}
	}
	var damage *dice.Expression
	if s.Damage != "" {
		expr, err := dice.Parse(s.Damage)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", s.ID, err)
		}
		damage = &expr
	}

	if s.LuaLegal != "" {
		if err := b.requireHook(s.ID, s.LuaLegal); err != nil {
			return nil, err
		}
		hook := s.LuaLegal
		def.Legal = func(source action.Subject, target *action.Subject) bool {
			return b.Scripts.CallPredicate(hook, info(source), infoPtr(target))
		}
	}

	switch {
	case s.LuaExecute != "":
		if err := b.requireHook(s.ID, s.LuaExecute); err != nil {
			return nil, err
		}
		def.Execute = b.scripted(def, s.LuaExecute)
	case damage != nil || len(s.Effects) > 0:
		def.Execute = b.static(def, damage, s.DamageKind, s.Effects)
	}
	return def, nil
}

func (b *Binder) requireHook(actionID, hook string) error {
	if b.Scripts == nil || !b.Scripts.HasHook(hook) {
		return fmt.Errorf("action %q: lua hook %q is not defined", actionID, hook)
	}
	return nil
}

func (b *Binder) static(def *action.Definition, damage *dice.Expression, damageKind string, effectIDs []string) action.ExecuteFunc {
	return func(source action.Subject, target *action.Subject) action.Outcome {
		out := action.Outcome{Success: true, DamageKind: damageKind}
		if damage != nil {
			out.Damage = max(b.Roller.Roll(*damage).Total(), 0)
		}
		effects, err := b.instantiate(effectIDs)
		if err != nil {
			return action.Fail("%s fails: %v", def.Name, err)
		}
		out.Effects = effects
		out.Message = describe(source, target, def.Name, out.Damage, damageKind)
		return out
	}
}

func (b *Binder) scripted(def *action.Definition, hook string) action.ExecuteFunc {
	return func(source action.Subject, target *action.Subject) action.Outcome {
		res, err := b.Scripts.CallAction(hook, info(source), infoPtr(target))
		if err != nil {
			return action.Fail("%s fizzles", def.Name)
		}
		effects, err := b.instantiate(res.Effects)
		if err != nil {
			b.logger().Warn("script returned unknown effect",
				zap.String("action", def.ID), zap.Error(err))
			return action.Fail("%s fizzles", def.Name)
		}
		msg := res.Message
		if msg == "" && res.Success {
			msg = describe(source, target, def.Name, res.Damage, res.DamageKind)
		}
		return action.Outcome{
			Success:    res.Success,
			Message:    msg,
			Damage:     max(res.Damage, 0),
			DamageKind: res.DamageKind,
			Effects:    effects,
		}
	}
}

func (b *Binder) instantiate(ids []string) ([]effect.Effect, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]effect.Effect, 0, len(ids))
	for _, id := range ids {
		e, err := b.Effects.New(id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *Binder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func describe(source action.Subject, target *action.Subject, name string, damage int, kind string) string {
	switch {
	case target == nil:
		return fmt.Sprintf("%s uses %s", source.Name, name)
	case damage > 0 && kind != "":
		return fmt.Sprintf("%s's %s hits %s for %d %s damage", source.Name, name, target.Name, damage, kind)
	case damage > 0:
		return fmt.Sprintf("%s's %s hits %s for %d damage", source.Name, name, target.Name, damage)
	default:
		return fmt.Sprintf("%s uses %s on %s", source.Name, name, target.Name)
	}
}

func info(s action.Subject) scripting.CombatantInfo {
	return scripting.CombatantInfo{
		ID:        s.ID,
		Name:      s.Name,
		HP:        s.CurrentHP,
		MaxHP:     s.MaxHP,
		Dexterity: s.Dexterity,
		Defeated:  s.Defeated,
	}
}

func infoPtr(s *action.Subject) *scripting.CombatantInfo {
	if s == nil {
		return nil
	}
	i := info(*s)
	return &i
}
