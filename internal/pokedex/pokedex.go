// Package pokedex loads the combatant stat database and move definitions the
// battle protocol computes damage from. Both peers must load identical data
// or their damage cross-validation diverges.
package pokedex

import (
	"bytes"
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

//go:embed data/pokemon.csv
var embedded embed.FS

// Pokemon is one side's resolved view of a combatant: base stats, elemental
// types, and the type-effectiveness table resolved once at load time.
type Pokemon struct {
	Name      string
	Type1     string
	Type2     string
	HP        int
	Attack    int
	Defense   int
	SpAttack  int
	SpDefense int
	Speed     int

	// Effectiveness maps an incoming move's elemental type to a damage
	// multiplier. Missing entries default to 1.0 at lookup time.
	Effectiveness map[string]float64
}

// Dex is the read-only combatant database plus generated movesets.
type Dex struct {
	pokemon  map[string]Pokemon
	order    []string
	movesets map[string][]string
}

// Load reads the stat database from path, or from the embedded dataset when
// path is empty.
func Load(path string) (*Dex, error) {
	var r io.Reader
	if path == "" {
		b, err := embedded.ReadFile("data/pokemon.csv")
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	d, err := parse(r)
	if err != nil {
		return nil, err
	}
	d.movesets = generateMovesets(d.pokemon, d.order, 4)
	return d, nil
}

func parse(r io.Reader) (*Dex, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["name"]; !ok {
		return nil, fmt.Errorf("stat csv has no name column")
	}

	d := &Dex{pokemon: make(map[string]Pokemon)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		p := Pokemon{
			Name:          field("name"),
			Type1:         field("type1"),
			Type2:         field("type2"),
			HP:            safeInt(field("hp")),
			Attack:        safeInt(field("attack")),
			Defense:       safeInt(field("defense")),
			SpAttack:      safeInt(field("sp_attack")),
			SpDefense:     safeInt(field("sp_defense")),
			Speed:         safeInt(field("speed")),
			Effectiveness: make(map[string]float64),
		}
		if p.Name == "" {
			continue
		}
		for name, i := range col {
			if !strings.HasPrefix(name, "against_") || i >= len(rec) {
				continue
			}
			moveType := capitalize(strings.TrimPrefix(name, "against_"))
			p.Effectiveness[moveType] = safeFloat(rec[i])
		}
		d.pokemon[p.Name] = p
		d.order = append(d.order, p.Name)
	}
	return d, nil
}

// Lookup returns a copy of the named combatant's snapshot.
func (d *Dex) Lookup(name string) (Pokemon, bool) {
	p, ok := d.pokemon[name]
	if !ok {
		return Pokemon{}, false
	}
	eff := make(map[string]float64, len(p.Effectiveness))
	for k, v := range p.Effectiveness {
		eff[k] = v
	}
	p.Effectiveness = eff
	return p, true
}

// List returns up to limit combatant names in database order.
func (d *Dex) List(limit int) []string {
	if limit <= 0 || limit > len(d.order) {
		limit = len(d.order)
	}
	out := make([]string, limit)
	copy(out, d.order[:limit])
	return out
}

// Moveset returns the bounded move list generated for name. Unknown names
// get the full move table.
func (d *Dex) Moveset(name string) []string {
	if ms, ok := d.movesets[name]; ok {
		out := make([]string, len(ms))
		copy(out, ms)
		return out
	}
	return MoveNames()
}

var numRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// safeFloat pulls the first numeric token out of a possibly dirty CSV cell.
func safeFloat(s string) float64 {
	m := numRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func safeInt(s string) int {
	return int(safeFloat(s))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
