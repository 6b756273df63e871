package predicate

import "strings"

// And matches when every member matches. An empty And matches.
// Evaluation stops at the first member that does not match.
type And []Predicate

func (p And) Evaluate(src Source) (bool, error) {
	for _, sub := range p {
		ok, err := sub.Evaluate(src)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (p And) String() string { return join("and", p) }

// Or matches when any member matches. An empty Or does not match.
//
// A member that fails to evaluate does not stop the search. If nothing
// matched, the first such error is returned.
type Or []Predicate

func (p Or) Evaluate(src Source) (bool, error) {
	var firstErr error
	for _, sub := range p {
		ok, err := sub.Evaluate(src)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

func (p Or) String() string { return join("or", p) }

// Not inverts a predicate. A member that fails to evaluate makes Not false as
// well: negating an unusable comparison must not produce a match.
type Not struct {
	Predicate Predicate
}

func (p Not) Evaluate(src Source) (bool, error) {
	ok, err := p.Predicate.Evaluate(src)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (p Not) String() string { return "not (" + p.Predicate.String() + ")" }

func join(op string, ps []Predicate) string {
	parts := make([]string, len(ps))
	for i, sub := range ps {
		parts[i] = "(" + sub.String() + ")"
	}
	return strings.Join(parts, " "+op+" ")
}
