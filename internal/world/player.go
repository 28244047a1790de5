package world

import (
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
)

// Action код действия игрока из CLIENT_PLAYER_ACTION
type Action uint8

const (
	ActionLeft Action = iota
	ActionRight
	ActionUp
	ActionDown
	ActionNextSlot
	ActionPreviousSlot
)

const (
	PlayerInventorySize = 4
	PlayerMaxHealth     = 100

	playerSpeed        = 10
	playerJumpVelocity = 11
	airAcceleration    = 50
	groundAcceleration = 100
	airMaxSpeed        = 0.5 * playerSpeed
)

// PlayerEntity сущность, управляемая клиентом
type PlayerEntity struct {
	Motion
	Name      string
	Health    int32
	Selected  uint8
	Inventory *Inventory

	left, right, up, down bool
}

func NewPlayerEntity(id uint32, name string, pos vec.Vec2Float) *PlayerEntity {
	return &PlayerEntity{
		Motion:    NewMotion(id, pos),
		Name:      name,
		Health:    PlayerMaxHealth,
		Inventory: NewInventory(PlayerInventorySize),
	}
}

func (p *PlayerEntity) TypeID() uint16 { return TypePlayerEntity }

func (p *PlayerEntity) Size() vec.Vec2Float {
	if p.down {
		return vec.Vec2Float{X: 1, Y: 1}
	}
	return vec.Vec2Float{X: 1, Y: 2}
}

func (p *PlayerEntity) ShouldDelete() bool { return false }

// ApplyAction нажатие/отпускание клавиши движения или смена слота
func (p *PlayerEntity) ApplyAction(a Action, pressed bool) bool {
	switch a {
	case ActionLeft:
		p.left = pressed
	case ActionRight:
		p.right = pressed
	case ActionUp:
		p.up = pressed
	case ActionDown:
		if p.down != pressed {
			// приседание меняет высоту хитбокса, ноги остаются на месте
			if pressed {
				p.Position.Y -= 0.5
			} else {
				p.Position.Y += 0.5
			}
		}
		p.down = pressed
	case ActionNextSlot:
		if pressed {
			p.Selected = uint8((int(p.Selected) + 1) % p.Inventory.Size())
		}
	case ActionPreviousSlot:
		if pressed {
			p.Selected = uint8((int(p.Selected) + p.Inventory.Size() - 1) % p.Inventory.Size())
		}
	default:
		return false
	}
	return true
}

// Moving сообщает, зажата ли клавиша горизонтального движения
func (p *PlayerEntity) Moving() bool { return p.left != p.right }

// SelectedItem предмет в выбранном слоте
func (p *PlayerEntity) SelectedItem() Item {
	return p.Inventory.Get(int(p.Selected))
}

func (p *PlayerEntity) Update(_ *World, dt float32) {
	v := &p.Velocity
	switch {
	case p.grounded:
		if p.up {
			v.Y = playerJumpVelocity
		}
		if p.left && !p.right {
			v.X = max(-playerSpeed, v.X-groundAcceleration*dt)
		} else if p.right && !p.left {
			v.X = min(playerSpeed, v.X+groundAcceleration*dt)
		}
	case p.left && !p.right:
		v.X = max(min(-airMaxSpeed, v.X), v.X-airAcceleration*dt)
	case p.right && !p.left:
		v.X = min(max(airMaxSpeed, v.X), v.X+airAcceleration*dt)
	}
}

func (p *PlayerEntity) Serialize(enc *serial.Encoder) error {
	p.writeMotion(enc)
	if err := enc.WriteShortString(p.Name); err != nil {
		return err
	}
	if err := enc.WriteObject(p.Inventory); err != nil {
		return err
	}
	enc.WriteInt(p.Health)
	enc.WriteUint8(p.Selected)
	return nil
}

func readPlayerEntity(dec *serial.Decoder) (serial.Transportable, error) {
	body, err := readMotion(dec)
	if err != nil {
		return nil, err
	}
	p := &PlayerEntity{Motion: body}
	if p.Name, err = dec.ReadShortString(); err != nil {
		return nil, err
	}
	if p.Inventory, err = serial.ReadAs[*Inventory](dec); err != nil {
		return nil, err
	}
	if p.Inventory == nil {
		p.Inventory = NewInventory(PlayerInventorySize)
	}
	if p.Health, err = dec.ReadInt(); err != nil {
		return nil, err
	}
	if p.Selected, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	return p, nil
}
