package orders

// IdentityFactors carries the optional identity data a guest supplies to
// prove ownership of an order. All fields are optional; Count reports how
// many distinct factors are present.
type IdentityFactors struct {
	DNI      string
	Name     string
	LastName string
	Phone    string
}

// FactorKind identifies one kind of identity factor
type FactorKind string

const (
	FactorDNI      FactorKind = "dni"
	FactorFullName FactorKind = "full_name"
	FactorPhone    FactorKind = "phone"
)

// Count returns the number of identity factors present.
// Name and last name only count as a single factor, and only together:
// a first name alone proves nothing.
func (f IdentityFactors) Count() int {
	count := 0
	if f.DNI != "" {
		count++
	}
	if f.Name != "" && f.LastName != "" {
		count++
	}
	if f.Phone != "" {
		count++
	}
	return count
}

// Kinds returns the kinds of factors present, in a stable order
func (f IdentityFactors) Kinds() []FactorKind {
	kinds := make([]FactorKind, 0, 3)
	if f.DNI != "" {
		kinds = append(kinds, FactorDNI)
	}
	if f.Name != "" && f.LastName != "" {
		kinds = append(kinds, FactorFullName)
	}
	if f.Phone != "" {
		kinds = append(kinds, FactorPhone)
	}
	return kinds
}

// IsEmpty reports whether no factor data was supplied at all
func (f IdentityFactors) IsEmpty() bool {
	return f.DNI == "" && f.Name == "" && f.LastName == "" && f.Phone == ""
}

// MinFactors is the floor of distinct identity factors required before an
// order lookup is attempted. One factor alone is not accepted as proof of
// ownership, so the lookup backend cannot be used as a guessing oracle.
const MinFactors = 2
