package process

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

// Supported structure file formats.
const (
	FormatJSON = "json"
	FormatXYZ  = "xyz"
)

var symbols = []string{
	"",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn", "Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn", "Sb", "Te", "I", "Xe",
}

// Symbol returns the chemical symbol of atomic number z, or z itself in
// decimal when it is outside the table.
func Symbol(z int) string {
	if z > 0 && z < len(symbols) {
		return symbols[z]
	}
	return strconv.Itoa(z)
}

// AtomicNumber parses a chemical symbol (case-insensitive) or a decimal atomic number.
func AtomicNumber(s string) (int, error) {
	if z, err := strconv.Atoi(s); err == nil && z > 0 {
		return z, nil
	}
	for z, sym := range symbols {
		if z > 0 && strings.EqualFold(sym, s) {
			return z, nil
		}
	}
	return 0, fmt.Errorf("unknown element %q", s)
}

// formatFor picks the explicit format or infers it from the file extension.
func formatFor(format, filename string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	}
	switch format {
	case FormatJSON, FormatXYZ:
		return format, nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported structure format %q", format)
}

// encode renders s. XYZ carries occupied atoms only, in slot order.
func encode(s *domain.Structure, format string) ([]byte, error) {
	switch format {
	case FormatXYZ:
		var b bytes.Buffer
		idx := s.OccupiedIndexes()
		fmt.Fprintf(&b, "%d\n%s\n", len(idx), strings.ReplaceAll(s.Title, "\n", " "))
		for _, i := range idx {
			a := s.Atoms[i]
			fmt.Fprintf(&b, "%-2s %.8f %.8f %.8f\n", Symbol(a.Element), a.Position[0], a.Position[1], a.Position[2])
		}
		return b.Bytes(), nil
	default:
		return json.MarshalIndent(s, "", "  ")
	}
}

// decodeAtoms reads the atom list of a program's output. For JSON the
// returned slice keeps vacant slots; for XYZ it holds occupied atoms only.
func decodeAtoms(data []byte, format string) ([]domain.Atom, error) {
	switch format {
	case FormatXYZ:
		return decodeXYZ(data)
	default:
		var s domain.Structure
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("invalid json structure: %w", err)
		}
		return s.Atoms, nil
	}
}

func decodeXYZ(data []byte) ([]domain.Atom, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() {
		return nil, fmt.Errorf("xyz: missing atom count")
	}
	n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("xyz: invalid atom count %q", sc.Text())
	}
	sc.Scan() // comment line

	atoms := make([]domain.Atom, 0, n)
	for len(atoms) < n && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("xyz: line %d: expected element and three coordinates", len(atoms)+3)
		}
		z, err := AtomicNumber(fields[0])
		if err != nil {
			return nil, fmt.Errorf("xyz: %w", err)
		}
		var pos domain.Vec3
		for k := 0; k < 3; k++ {
			if pos[k], err = strconv.ParseFloat(fields[k+1], 64); err != nil {
				return nil, fmt.Errorf("xyz: invalid coordinate %q", fields[k+1])
			}
		}
		atoms = append(atoms, domain.Atom{Element: z, Position: pos})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(atoms) != n {
		return nil, fmt.Errorf("xyz: expected %d atoms, found %d", n, len(atoms))
	}
	return atoms, nil
}
