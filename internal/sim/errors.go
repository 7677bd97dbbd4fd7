package sim

import "errors"

// The error taxonomy of the command surface. None of these stop the clock;
// only ErrSessionInvalid terminates a connection.
var (
	ErrSessionInvalid    = errors.New("sim: session incomplete")
	ErrTargetNotFound    = errors.New("sim: target not found")
	ErrNotHostile        = errors.New("sim: target is not hostile")
	ErrSkillNotOwned     = errors.New("sim: skill not owned")
	ErrInvalidTarget     = errors.New("sim: wrong target shape for skill")
	ErrImpassable        = errors.New("sim: target tile is not passable")
	ErrUnreachable       = errors.New("sim: no path to target")
	ErrOnCooldown        = errors.New("sim: skill on cooldown")
	ErrInvalidAreaSkill  = errors.New("sim: skill has no area configuration")
	ErrInvalidTransition = errors.New("sim: unknown teleport or destination")
)
