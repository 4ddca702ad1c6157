package demo

import (
	"fmt"

	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/lib/schema"
)

// --------------------------------------------------------------------------
// Registered Types
// --------------------------------------------------------------------------

// Point is a position on the board.
type Point struct {
	X dirty.Value[int32]
	Y dirty.Value[int32]
}

// NewPoint returns a clean point.
func NewPoint(x, y int32) *Point {
	return &Point{X: dirty.Of(x), Y: dirty.Of(y)}
}

func (p *Point) TypeName() string { return "Point" }

func (p *Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X.Get(), p.Y.Get())
}

// Player is a participant of a round.
type Player struct {
	Name  dirty.Value[string]
	Score dirty.Value[int64]
	Pos   dirty.Value[*Point]
	Hand  dirty.List[int32]
	Ready dirty.Value[bool]
}

// NewPlayer returns a clean player at the origin.
func NewPlayer(name string) *Player {
	return &Player{Name: dirty.Of(name), Pos: dirty.Of(NewPoint(0, 0))}
}

func (p *Player) TypeName() string { return "Player" }

// Board is the authoritative state of a game.
type Board struct {
	Round   dirty.Value[uint32]
	Phase   dirty.Value[string]
	Players dirty.List[*Player]
	Scores  dirty.Map[int64]
	Ratio   dirty.Value[float64]
}

// NewBoard returns a clean board with one player per name.
func NewBoard(names ...string) *Board {
	players := make([]*Player, len(names))
	scores := make(map[string]int64, len(names))
	for i, name := range names {
		players[i] = NewPlayer(name)
		scores[name] = 0
	}
	return &Board{
		Phase:   dirty.Of(Phases[0]),
		Players: dirty.ListOf(players...),
		Scores:  dirty.MapOf(scores),
	}
}

func (b *Board) TypeName() string { return "Board" }

// Phases of a round, in order
var Phases = []string{"deal", "play", "score"}

// Advance plays one step: the next phase starts, in the play phase the
// active player moves one field to the right and scores the round number.
func (b *Board) Advance() {
	phase := 0
	for i, p := range Phases {
		if p == b.Phase.Get() {
			phase = i
		}
	}
	phase = (phase + 1) % len(Phases)
	if phase == 0 {
		b.Round.Set(b.Round.Get() + 1)
	}
	b.Phase.Set(Phases[phase])

	if phase != 1 || b.Players.Len() == 0 {
		return
	}
	round := b.Round.Get()
	p := b.Players.At(int(round) % b.Players.Len())
	pos := p.Pos.Get()
	if pos == nil {
		pos = NewPoint(0, 0)
		p.Pos.Set(pos)
	}
	pos.X.Set(pos.X.Get() + 1)
	p.Score.Set(p.Score.Get() + int64(round))
	p.Hand.Append(int32(round % 13))
	b.Scores.Put(p.Name.Get(), p.Score.Get())

	var total int64
	for _, s := range b.Scores.All() {
		total += s
	}
	if total > 0 {
		b.Ratio.Set(float64(p.Score.Get()) / float64(total))
	}
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Types returns the descriptors of Point, Player and Board.
func Types() []*schema.Type {
	point := schema.Define("Point", func() schema.Object { return &Point{} }).
		Field("x", schema.Int32, schema.Bind(func(p *Point) schema.Slot { return &p.X })).
		Field("y", schema.Int32, schema.Bind(func(p *Point) schema.Slot { return &p.Y })).
		MustBuild()

	player := schema.Define("Player", func() schema.Object { return &Player{} }).
		Field("name", schema.String, schema.Bind(func(p *Player) schema.Slot { return &p.Name })).
		Field("score", schema.Int64, schema.Bind(func(p *Player) schema.Slot { return &p.Score })).
		Field("pos", schema.ObjectOf("Point"), schema.Bind(func(p *Player) schema.Slot { return &p.Pos })).
		Field("hand", schema.ListOf(schema.Int32), schema.Bind(func(p *Player) schema.Slot { return &p.Hand })).
		Field("ready", schema.Bool, schema.Bind(func(p *Player) schema.Slot { return &p.Ready })).
		MustBuild()

	board := schema.Define("Board", func() schema.Object { return &Board{} }).
		Field("round", schema.Uint32, schema.Bind(func(b *Board) schema.Slot { return &b.Round })).
		Field("phase", schema.String, schema.Bind(func(b *Board) schema.Slot { return &b.Phase })).
		Field("players", schema.ListOf(schema.ObjectOf("Player")), schema.Bind(func(b *Board) schema.Slot { return &b.Players })).
		Field("scores", schema.MapOf(schema.Int64), schema.Bind(func(b *Board) schema.Slot { return &b.Scores })).
		Field("ratio", schema.Float64, schema.Bind(func(b *Board) schema.Slot { return &b.Ratio })).
		MustBuild()

	return []*schema.Type{point, player, board}
}

// Register adds the demo types to reg.
func Register(reg *schema.Registry) error {
	for _, t := range Types() {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a frozen registry holding the demo types.
func NewRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}
