package world

import (
	"fmt"

	"github.com/annel0/sandbox-game/internal/serial"
)

// BlockGrid прямоугольная сетка блоков фиксированного размера.
// nil в ячейке означает пустоту.
type BlockGrid struct {
	width, height int
	blocks        []Block
}

// NewBlockGrid создаёт пустую сетку width x height
func NewBlockGrid(width, height int) *BlockGrid {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &BlockGrid{
		width:  width,
		height: height,
		blocks: make([]Block, width*height),
	}
}

func (g *BlockGrid) Width() int  { return g.width }
func (g *BlockGrid) Height() int { return g.height }

// InBounds проверяет, что ячейка лежит внутри сетки
func (g *BlockGrid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// Get возвращает блок или nil (в том числе вне границ)
func (g *BlockGrid) Get(x, y int) Block {
	if !g.InBounds(x, y) {
		return nil
	}
	return g.blocks[y*g.width+x]
}

// Set ставит блок и возвращает предыдущий
func (g *BlockGrid) Set(x, y int, b Block) (Block, error) {
	if !g.InBounds(x, y) {
		return nil, fmt.Errorf("(%d,%d) в сетке %dx%d: %w", x, y, g.width, g.height, ErrOutOfBounds)
	}
	i := y*g.width + x
	prev := g.blocks[i]
	g.blocks[i] = b
	return prev, nil
}

// Remove очищает ячейку и возвращает удалённый блок
func (g *BlockGrid) Remove(x, y int) (Block, error) {
	return g.Set(x, y, nil)
}

// IsSolid true если в ячейке твёрдый блок
func (g *BlockGrid) IsSolid(x, y int) bool {
	b := g.Get(x, y)
	return b != nil && b.Solid()
}

// Count количество непустых ячеек
func (g *BlockGrid) Count() int {
	n := 0
	for _, b := range g.blocks {
		if b != nil {
			n++
		}
	}
	return n
}

// TopSolid возвращает верхнюю твёрдую ячейку столбца или -1
func (g *BlockGrid) TopSolid(x int) int {
	for y := g.height - 1; y >= 0; y-- {
		if g.IsSolid(x, y) {
			return y
		}
	}
	return -1
}

func (g *BlockGrid) TypeID() uint16 { return TypeBlockGrid }

// Serialize: width i32, height i32, затем блоки построчно снизу вверх
func (g *BlockGrid) Serialize(enc *serial.Encoder) error {
	enc.WriteInt(int32(g.width))
	enc.WriteInt(int32(g.height))
	for _, b := range g.blocks {
		if err := enc.WriteObject(b); err != nil {
			return err
		}
	}
	return nil
}

// максимальное число ячеек при чтении, защита от мусорных размеров
const maxGridCells = 1 << 24

func readBlockGrid(dec *serial.Decoder) (serial.Transportable, error) {
	width, err := dec.ReadInt()
	if err != nil {
		return nil, err
	}
	height, err := dec.ReadInt()
	if err != nil {
		return nil, err
	}
	if width < 0 || height < 0 || int64(width)*int64(height) > maxGridCells {
		return nil, fmt.Errorf("недопустимый размер сетки %dx%d", width, height)
	}

	g := NewBlockGrid(int(width), int(height))
	for i := range g.blocks {
		b, err := serial.ReadAs[Block](dec)
		if err != nil {
			return nil, err
		}
		g.blocks[i] = b
	}
	return g, nil
}
