// Package board describes the static graphs Gonu variants are played on.
package board

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wfunc/gonu/models"
)

//go:embed maps/*.yaml
var mapsFS embed.FS

var (
	ErrUnknownBoard = errors.New("unknown board")
	ErrInvalidBoard = errors.New("invalid board")
)

// Node is a point on the board with its layout coordinates.
type Node struct {
	ID string `yaml:"id" json:"id"`
	X  int    `yaml:"x" json:"x"`
	Y  int    `yaml:"y" json:"y"`
}

// InitialPositions lists the starting node ids of each colour.
type InitialPositions struct {
	Black []string `yaml:"black" json:"black"`
	White []string `yaml:"white" json:"white"`
}

// ForbiddenMove is a variant-specific opening restriction.
// It applies only while the piece's colour has not moved yet.
type ForbiddenMove struct {
	From        string `yaml:"from" json:"from"`
	To          string `yaml:"to" json:"to"`
	Piece       string `yaml:"piece" json:"piece"`
	Description string `yaml:"description" json:"description"`
}

// Stone returns the colour the restriction applies to.
func (f ForbiddenMove) Stone() models.Stone {
	switch strings.ToLower(f.Piece) {
	case "black", "1":
		return models.Black
	case "white", "2":
		return models.White
	}
	return models.Empty
}

// Graph is the immutable description of one variant's board.
type Graph struct {
	ID              string           `yaml:"id" json:"id"`
	Name            string           `yaml:"name" json:"name"`
	Variant         string           `yaml:"variant" json:"variant"`
	PiecesPerPlayer int              `yaml:"piecesPerPlayer" json:"piecesPerPlayer"`
	Placement       bool             `yaml:"placement" json:"placement"`
	Nodes           []Node           `yaml:"nodes" json:"nodes"`
	Edges           [][]string       `yaml:"edges" json:"edges"`
	Initial         InitialPositions `yaml:"initialPositions" json:"initialPositions"`
	ForbiddenMoves  []ForbiddenMove  `yaml:"forbiddenMoves,omitempty" json:"forbiddenMoves,omitempty"`

	index     map[string]Node
	adjacency map[string]map[string]bool
}

// Parse decodes a board from YAML or from the JSON exchange format
// ({nodes, edges, initialPositions, forbiddenMoves}) and validates it.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBoard, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks structural consistency and builds the lookup tables.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: %s has no nodes", ErrInvalidBoard, g.ID)
	}

	g.index = make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: empty node id", ErrInvalidBoard)
		}
		if _, dup := g.index[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidBoard, n.ID)
		}
		g.index[n.ID] = n
	}

	g.adjacency = make(map[string]map[string]bool, len(g.Nodes))
	for _, e := range g.Edges {
		if len(e) != 2 {
			return fmt.Errorf("%w: edge %v must join exactly two nodes", ErrInvalidBoard, e)
		}
		a, b := e[0], e[1]
		if a == b {
			return fmt.Errorf("%w: self loop on %q", ErrInvalidBoard, a)
		}
		if !g.HasNode(a) || !g.HasNode(b) {
			return fmt.Errorf("%w: edge %q-%q references an unknown node", ErrInvalidBoard, a, b)
		}
		g.link(a, b)
		g.link(b, a)
	}

	seen := make(map[string]bool)
	for _, id := range append(append([]string{}, g.Initial.Black...), g.Initial.White...) {
		if !g.HasNode(id) {
			return fmt.Errorf("%w: initial position %q is not a node", ErrInvalidBoard, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: initial position %q used twice", ErrInvalidBoard, id)
		}
		seen[id] = true
	}

	for _, f := range g.ForbiddenMoves {
		if !g.HasNode(f.From) || !g.HasNode(f.To) {
			return fmt.Errorf("%w: forbidden move %q-%q references an unknown node", ErrInvalidBoard, f.From, f.To)
		}
		if f.Stone() == models.Empty {
			return fmt.Errorf("%w: forbidden move %q-%q has no piece colour", ErrInvalidBoard, f.From, f.To)
		}
	}
	return nil
}

func (g *Graph) link(a, b string) {
	if g.adjacency[a] == nil {
		g.adjacency[a] = make(map[string]bool)
	}
	g.adjacency[a][b] = true
}

// HasNode reports whether id is a node of the board.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

// Adjacent reports whether an edge joins a and b.
func (g *Graph) Adjacent(a, b string) bool {
	return g.adjacency[a][b]
}

// Neighbors returns the nodes joined to id by an edge, sorted.
func (g *Graph) Neighbors(id string) []string {
	out := make([]string, 0, len(g.adjacency[id]))
	for n := range g.adjacency[id] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NodeIDs returns every node id in declaration order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// InitialLine returns the starting nodes of a colour.
func (g *Graph) InitialLine(s models.Stone) []string {
	switch s {
	case models.Black:
		return g.Initial.Black
	case models.White:
		return g.Initial.White
	}
	return nil
}

// InInitialLine reports whether id is one of the starting nodes of s.
func (g *Graph) InInitialLine(s models.Stone, id string) bool {
	for _, n := range g.InitialLine(s) {
		if n == id {
			return true
		}
	}
	return false
}

// LineCenter returns the node of a starting line joined to every other node of that line.
// Lines without such a node fall back to their middle entry.
func (g *Graph) LineCenter(s models.Stone) string {
	line := g.InitialLine(s)
	if len(line) == 0 {
		return ""
	}
	for _, c := range line {
		hub := true
		for _, o := range line {
			if o != c && !g.Adjacent(c, o) {
				hub = false
				break
			}
		}
		if hub {
			return c
		}
	}
	return line[len(line)/2]
}

var builtin = map[string]*Graph{}

func init() {
	entries, err := fs.Glob(mapsFS, "maps/*.yaml")
	if err != nil {
		panic(err)
	}
	for _, name := range entries {
		data, err := mapsFS.ReadFile(name)
		if err != nil {
			panic(err)
		}
		g, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("board %s: %v", path.Base(name), err))
		}
		builtin[g.ID] = g
	}
}

// Get returns a built-in board by id.
func Get(id string) (*Graph, error) {
	g, ok := builtin[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBoard, id)
	}
	return g, nil
}

// IDs lists the built-in board ids, sorted.
func IDs() []string {
	ids := make([]string, 0, len(builtin))
	for id := range builtin {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
