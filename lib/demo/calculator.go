package demo

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/rpc/invoke"
)

// Calculator implements the demo remote methods:
//
//	add(int32, int32) int32   wrapping addition
//	echo(string) string
//	move(Point, int32, int32) Point
//	log(string)               no result, appended to Lines
type Calculator struct {
	mu    sync.Mutex
	lines []string

	// OnLog is called for every logged line
	OnLog func(line string)
}

// Methods returns the methods of c with handlers.
func (c *Calculator) Methods() []invoke.Method {
	methods := Signatures()
	for i := range methods {
		switch methods[i].Name {
		case "add":
			methods[i].Handler = c.add
		case "echo":
			methods[i].Handler = c.echo
		case "move":
			methods[i].Handler = c.move
		case "log":
			methods[i].Handler = c.log
		}
	}
	return methods
}

// Signatures returns the calculator methods without handlers, for callers
// that only execute them remotely.
func Signatures() []invoke.Method {
	return []invoke.Method{
		{Name: "add", Params: []schema.ValueType{schema.Int32, schema.Int32}, Result: schema.Int32},
		{Name: "echo", Params: []schema.ValueType{schema.String}, Result: schema.String},
		{Name: "move", Params: []schema.ValueType{schema.ObjectOf("Point"), schema.Int32, schema.Int32}, Result: schema.ObjectOf("Point")},
		{Name: "log", Params: []schema.ValueType{schema.String}},
	}
}

// Lines returns the logged lines.
func (c *Calculator) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *Calculator) add(_ context.Context, args []any) (any, error) {
	a, b := int32(args[0].(int64)), int32(args[1].(int64))
	return a + b, nil
}

func (c *Calculator) echo(_ context.Context, args []any) (any, error) {
	return args[0], nil
}

func (c *Calculator) move(_ context.Context, args []any) (any, error) {
	p, ok := args[0].(*Point)
	if !ok || p == nil {
		return nil, fmt.Errorf("move: no point given")
	}
	dx, dy := int32(args[1].(int64)), int32(args[2].(int64))
	return NewPoint(p.X.Get()+dx, p.Y.Get()+dy), nil
}

func (c *Calculator) log(_ context.Context, args []any) (any, error) {
	line := args[0].(string)
	c.mu.Lock()
	c.lines = append(c.lines, line)
	onLog := c.OnLog
	c.mu.Unlock()
	if onLog != nil {
		onLog(line)
	}
	return nil, nil
}
