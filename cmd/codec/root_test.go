package codec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const shapeSchema = `
types:
  - name: Shape
    fields:
      - {name: origin, type: Point}
      - {name: tags, type: "[]string"}
`

func TestEncodeDecode(t *testing.T) {
	reg, err := NewRegistry("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []string{
		"Point{x:1;y:-2;}",
		`Player{name:"ann";score:42;pos:Point{x:3;y:4;};hand:[1,2,3];ready:true;}`,
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			bin, err := Encode(reg, []byte(text))
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := Decode(reg, bin)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(out) != text {
				t.Errorf("got %s, want %s", out, text)
			}
		})
	}
}

func TestSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shape.yaml")
	if err := os.WriteFile(path, []byte(shapeSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := reg.Lookup("Shape"); !ok {
		t.Fatalf("Shape not registered, have %v", reg.Names())
	}

	text := `Shape{origin:Point{x:1;y:1;};tags:["a","b"];}`
	bin, err := Encode(reg, []byte(text))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(reg, bin)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != text {
		t.Errorf("got %s, want %s", out, text)
	}
}

func TestErrors(t *testing.T) {
	reg, err := NewRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing schema file accepted")
	}
	if _, err := Encode(reg, []byte("Circle{r:1;}")); err == nil || !strings.Contains(err.Error(), "Circle") {
		t.Errorf("unknown type: got %v", err)
	}
	if _, err := Decode(reg, []byte{0xff, 0xff}); err == nil {
		t.Error("truncated binary accepted")
	}
}
