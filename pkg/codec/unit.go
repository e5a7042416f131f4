package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidUnit is returned for unit strings that cannot be parsed.
var ErrInvalidUnit = errors.New("invalid unit")

// baseUnits are the symbols accepted without an SI prefix.
var baseUnits = map[string]bool{
	"s": true, "Hz": true, "V": true, "A": true, "Ohm": true, "ohm": true, "Ω": true,
	"S": true, "F": true, "C": true, "W": true, "J": true, "N": true, "T": true,
	"m": true, "g": true, "L": true, "l": true, "rad": true, "mol": true, "M": true,
	"K": true, "degC": true, "cd": true, "Pa": true,
	"deg": true, "min": true, "h": true, "hour": true, "day": true, "d": true,
	"pixel": true, "px": true, "percent": true, "%": true,
	"dimensionless": true, "count": true, "counts": true, "inch": true,
}

// prefixable lists the base units that accept SI prefixes.
var prefixable = map[string]bool{
	"s": true, "Hz": true, "V": true, "A": true, "Ohm": true, "ohm": true, "Ω": true,
	"S": true, "F": true, "C": true, "W": true, "J": true, "N": true, "T": true,
	"m": true, "g": true, "L": true, "l": true, "mol": true, "M": true, "Pa": true,
}

var siPrefixes = []string{"Y", "Z", "E", "P", "T", "G", "M", "k", "h", "da", "d", "c", "m", "u", "µ", "μ", "n", "p", "f", "a"}

// Unit is a parsed unit expression: a product of symbols raised to powers.
type Unit struct {
	Symbol string
	Terms  []UnitTerm
}

// UnitTerm is a single factor of a unit expression.
type UnitTerm struct {
	Symbol string
	Power  int
}

// String returns the original symbol.
func (u Unit) String() string { return u.Symbol }

// ParseUnit validates a unit expression such as "mV", "uV/ms" or "m**2".
// The empty string and "dimensionless" describe dimensionless quantities.
func ParseUnit(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "dimensionless" {
		return Unit{Symbol: s}, nil
	}
	u := Unit{Symbol: s}
	sign := 1
	rest := s
	for len(rest) > 0 {
		idx := strings.IndexAny(rest, "*/")
		for idx >= 0 && strings.HasPrefix(rest[idx:], "**") {
			next := strings.IndexAny(rest[idx+2:], "*/")
			if next < 0 {
				idx = -1
				break
			}
			idx = idx + 2 + next
		}
		token := rest
		if idx >= 0 {
			token = rest[:idx]
		}
		term, err := parseTerm(strings.TrimSpace(token))
		if err != nil {
			return Unit{}, fmt.Errorf("%w %q: %v", ErrInvalidUnit, s, err)
		}
		term.Power *= sign
		u.Terms = append(u.Terms, term)
		if idx < 0 {
			break
		}
		switch rest[idx] {
		case '/':
			sign = -1
		case '*':
			sign = 1
		}
		rest = rest[idx+1:]
		if rest == "" {
			return Unit{}, fmt.Errorf("%w %q: dangling operator", ErrInvalidUnit, s)
		}
	}
	return u, nil
}

func parseTerm(token string) (UnitTerm, error) {
	if token == "" {
		return UnitTerm{}, errors.New("empty term")
	}
	symbol, power := token, 1
	if i := strings.Index(token, "**"); i >= 0 {
		symbol = token[:i]
		p, err := strconv.Atoi(token[i+2:])
		if err != nil {
			return UnitTerm{}, fmt.Errorf("bad exponent in %q", token)
		}
		power = p
	} else if i := strings.Index(token, "^"); i >= 0 {
		symbol = token[:i]
		p, err := strconv.Atoi(token[i+1:])
		if err != nil {
			return UnitTerm{}, fmt.Errorf("bad exponent in %q", token)
		}
		power = p
	}
	if symbol == "1" {
		return UnitTerm{Symbol: symbol, Power: power}, nil
	}
	if !knownSymbol(symbol) {
		return UnitTerm{}, fmt.Errorf("unknown symbol %q", symbol)
	}
	return UnitTerm{Symbol: symbol, Power: power}, nil
}

func knownSymbol(symbol string) bool {
	if baseUnits[symbol] {
		return true
	}
	for _, p := range siPrefixes {
		if base, ok := strings.CutPrefix(symbol, p); ok && prefixable[base] {
			return true
		}
	}
	return false
}
