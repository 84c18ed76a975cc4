package query

import (
	"strings"
	"sync"
)

type Cardinality int

const (
	ToOne Cardinality = iota
	ToMany
)

// Relation describes how a nested projection token reaches another table.
// To-one relations match target.id against a column on the source row; to-many
// relations match a target column against the source row's id.
type Relation struct {
	Name        string
	Aliases     []string
	Table       string
	Cardinality Cardinality
	// ForeignKey is the source column holding the target id (to-one).
	ForeignKey string
	// ForeignKeyBySource overrides ForeignKey for specific source tables.
	ForeignKeyBySource map[string]string
	// ReferenceColumn is the target column holding the source id (to-many).
	ReferenceColumn string
}

// SourceColumn returns the column on source that identifies the related row.
func (r Relation) SourceColumn(source string) string {
	if fk, ok := r.ForeignKeyBySource[source]; ok {
		return fk
	}
	return r.ForeignKey
}

type Relations struct {
	mu     sync.RWMutex
	byName map[string]Relation
}

func NewRelations(relations ...Relation) *Relations {
	r := &Relations{byName: make(map[string]Relation)}
	for _, rel := range relations {
		r.Register(rel)
	}
	return r
}

// DefaultRelations is the relation table of the reyadatime schema.
func DefaultRelations() *Relations {
	return NewRelations(
		Relation{Name: "countries", Aliases: []string{"country"}, Table: "countries", Cardinality: ToOne, ForeignKey: "country_id"},
		Relation{Name: "cities", Aliases: []string{"city"}, Table: "cities", Cardinality: ToOne, ForeignKey: "city_id"},
		Relation{Name: "photos", Table: "photos", Cardinality: ToMany, ReferenceColumn: "facility_id"},
		Relation{
			Name:               "profiles",
			Aliases:            []string{"user", "owner"},
			Table:              "profiles",
			Cardinality:        ToOne,
			ForeignKey:         "user_id",
			ForeignKeyBySource: map[string]string{"facilities": "owner_id"},
		},
		Relation{
			Name:               "facilities",
			Aliases:            []string{"facility"},
			Table:              "facilities",
			Cardinality:        ToOne,
			ForeignKey:         "id",
			ForeignKeyBySource: map[string]string{"bookings": "facility_id", "reviews": "facility_id"},
		},
	)
}

// Register adds rel under its name and aliases, replacing earlier entries.
func (r *Relations) Register(rel Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[strings.ToLower(rel.Name)] = rel
	for _, alias := range rel.Aliases {
		r.byName[strings.ToLower(alias)] = rel
	}
}

func (r *Relations) Lookup(name string) (Relation, bool) {
	if r == nil {
		return Relation{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.byName[strings.ToLower(name)]
	return rel, ok
}
