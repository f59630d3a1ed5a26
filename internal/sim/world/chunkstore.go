package world

import "sort"

// Vec3i is a single addressable cell position.
type Vec3i struct{ X, Y, Z int }

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is a 16x16 column of cells on the ground plane.
type Chunk struct {
	CX, CZ int
	Blocks []uint16 // len = 16*16
}

func (c *Chunk) index(x, z int) int {
	// x fastest, then z
	return x + z*16
}

func (c *Chunk) Get(x, z int) uint16 {
	return c.Blocks[c.index(x, z)]
}

func (c *Chunk) Set(x, z int, b uint16) {
	c.Blocks[c.index(x, z)] = b
}

// Block palette. The simulator keeps a fixed palette; command params
// refer to blocks by these names.
const (
	BlockAir uint16 = iota
	BlockDirt
	BlockGrass
	BlockSand
	BlockStone
	BlockLog
)

var blockNames = map[string]uint16{
	"AIR":   BlockAir,
	"DIRT":  BlockDirt,
	"GRASS": BlockGrass,
	"SAND":  BlockSand,
	"STONE": BlockStone,
	"LOG":   BlockLog,
}

// BlockByName resolves a palette name; false for unknown names.
func BlockByName(name string) (uint16, bool) {
	b, ok := blockNames[name]
	return b, ok
}

type WorldGen struct {
	Seed      int64
	BoundaryR int // blocks; 0 disables the boundary
}

// ChunkStore generates and holds chunk data on demand.
// Accessed only from the world loop goroutine.
type ChunkStore struct {
	gen    WorldGen
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	return &ChunkStore{
		gen:    gen,
		chunks: map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) inBounds(pos Vec3i) bool {
	if pos.Y != 0 {
		return false
	}
	if s.gen.BoundaryR > 0 {
		if pos.X < -s.gen.BoundaryR || pos.X > s.gen.BoundaryR || pos.Z < -s.gen.BoundaryR || pos.Z > s.gen.BoundaryR {
			return false
		}
	}
	return true
}

func (s *ChunkStore) GeneratedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetBlock(pos Vec3i) uint16 {
	if !s.inBounds(pos) {
		return BlockAir
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, 16), floorDiv(pos.Z, 16))
	return ch.Get(mod(pos.X, 16), mod(pos.Z, 16))
}

func (s *ChunkStore) SetBlock(pos Vec3i, b uint16) {
	if !s.inBounds(pos) {
		return
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, 16), floorDiv(pos.Z, 16))
	ch.Set(mod(pos.X, 16), mod(pos.Z, 16), b)
}

func (s *ChunkStore) getOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Blocks: make([]uint16, 16*16),
	}
	s.generateChunk(ch)
	s.chunks[k] = ch
	return ch
}

func (s *ChunkStore) generateChunk(ch *Chunk) {
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			wx := ch.CX*16 + x
			wz := ch.CZ*16 + z

			roll := hash2(s.gen.Seed, wx, wz) % 1000
			b := BlockGrass
			switch {
			case roll < 80:
				b = BlockStone
			case roll < 140:
				b = BlockLog
			case roll < 260:
				b = BlockDirt
			case roll < 320:
				b = BlockSand
			}
			ch.Blocks[ch.index(x, z)] = b
		}
	}
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
