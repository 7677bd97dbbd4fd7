package sim

// Facing is the cardinal direction a sprite renders toward.
type Facing string

const (
	FacingRight Facing = "right"
	FacingLeft  Facing = "left"
	FacingDown  Facing = "down"
	FacingUp    Facing = "up"
)

// deriveFacing maps a movement delta to a facing. Horizontal movement wins
// ties; a stationary delta faces down.
func deriveFacing(dx, dy int) Facing {
	switch {
	case dx > 0:
		return FacingRight
	case dx < 0:
		return FacingLeft
	case dy > 0:
		return FacingDown
	case dy < 0:
		return FacingUp
	default:
		return FacingDown
	}
}

// facingToward points one actor at another position.
func facingToward(fromX, fromY, toX, toY int) Facing {
	return deriveFacing(toX-fromX, toY-fromY)
}
