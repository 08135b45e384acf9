package proof

import (
	"cmp"
	"slices"
)

// Map holds the merged annotations per location.
type Map map[Location][]Annotation

type conflictKey struct {
	property Property
	spec     string
}

// Merge folds annotation sets in order. For each (location, property,
// specification) the annotation with the greatest (confidence, method rank,
// no assumptions) wins; ties keep the one seen first.
func Merge(sets ...[]Located) Map {
	m := make(Map)
	for _, set := range sets {
		for _, la := range set {
			m.add(la.Location, la.Annotation)
		}
	}
	return m
}

func (m Map) add(loc Location, a Annotation) {
	existing := m[loc]
	k := conflictKey{a.Property, a.SpecificationID}
	for i := range existing {
		if (conflictKey{existing[i].Property, existing[i].SpecificationID}) == k {
			if a.score().greater(existing[i].score()) {
				existing[i] = a
			}
			return
		}
	}
	m[loc] = append(existing, a)
}

// Len counts annotations across all locations.
func (m Map) Len() int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

// Locations returns the annotated locations in order.
func (m Map) Locations() []Location {
	locs := make([]Location, 0, len(m))
	for l := range m {
		locs = append(locs, l)
	}
	slices.SortFunc(locs, compareLocations)
	return locs
}

// Sorted flattens the map by location, property and specification.
func (m Map) Sorted() []Located {
	out := make([]Located, 0, m.Len())
	for _, l := range m.Locations() {
		anns := slices.Clone(m[l])
		slices.SortFunc(anns, func(a, b Annotation) int {
			return cmp.Or(cmp.Compare(a.Property, b.Property), cmp.Compare(a.SpecificationID, b.SpecificationID))
		})
		for _, a := range anns {
			out = append(out, Located{Location: l, Annotation: a})
		}
	}
	return out
}

// Within returns annotations whose location lies inside the given span of
// file, for attaching to syntax nodes.
func (m Map) Within(file string, startLine, endLine int) []Annotation {
	var out []Annotation
	for _, l := range m.Locations() {
		if l.FilePath == file && l.StartLine >= startLine && l.EndLine <= endLine {
			out = append(out, m[l]...)
		}
	}
	return out
}

func compareLocations(a, b Location) int {
	return cmp.Or(
		cmp.Compare(a.FilePath, b.FilePath),
		cmp.Compare(a.StartLine, b.StartLine),
		cmp.Compare(a.EndLine, b.EndLine),
	)
}
