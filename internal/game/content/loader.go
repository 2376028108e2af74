package content

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/action"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/effect"
	"github.com/sharronesofer/visual-dm-sub028/internal/scripting"
)

// Paths names the content directories. ScriptsDir may be empty.
type Paths struct {
	ActionsDir       string
	EffectsDir       string
	ScriptsDir       string
	InstructionLimit int
}

// Bundle is everything loaded from a content tree.
type Bundle struct {
	Actions *action.Registry
	Effects *effect.Registry
	// Scripts is nil when no scripts directory was configured.
	Scripts *scripting.Manager
}

// Close releases the script VM.
func (b *Bundle) Close() {
	if b.Scripts != nil {
		b.Scripts.Close()
	}
}

// Load reads effect templates, then scripts, then action specs, binding each
// action against the first two.
//
// Postcondition: Returns a fully populated Bundle, or an error naming the
// first file that failed.
func Load(p Paths, roller *dice.Roller, logger *zap.Logger) (*Bundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	effects, err := effect.LoadDirectory(p.EffectsDir)
	if err != nil {
		return nil, fmt.Errorf("loading effects: %w", err)
	}
	var scripts *scripting.Manager
	if p.ScriptsDir != "" {
		scripts = scripting.NewManager(roller, logger)
		if err := scripts.Load(p.ScriptsDir, p.InstructionLimit); err != nil {
			return nil, fmt.Errorf("loading scripts: %w", err)
		}
	}
	b := &Binder{Roller: roller, Effects: effects, Scripts: scripts, Logger: logger}
	actions, err := b.LoadRegistry(p.ActionsDir)
	if err != nil {
		if scripts != nil {
			scripts.Close()
		}
		return nil, err
	}
	logger.Info("content loaded",
		zap.Int("actions", actions.Len()),
		zap.Int("effects", len(effects.All())),
	)
	return &Bundle{Actions: actions, Effects: effects, Scripts: scripts}, nil
}

// LoadRegistry binds every spec in dir and registers it under its categories.
func (b *Binder) LoadRegistry(dir string) (*action.Registry, error) {
	specs, err := action.LoadSpecs(dir)
	if err != nil {
		return nil, fmt.Errorf("loading actions: %w", err)
	}
	reg := action.NewRegistry()
	for _, s := range specs {
		def, err := b.Bind(s)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(def, s.Categories...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
