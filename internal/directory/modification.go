package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// ErrNotAllowedOnRDN is returned when a modification removes a naming value.
var ErrNotAllowedOnRDN = errors.New("directory: modification removes an RDN value")

// Modification represents a single modification to an entry.
type Modification struct {
	// Type is the type of modification (add, delete, replace).
	Type ModificationType

	// Attribute is the name of the attribute to modify.
	Attribute string

	// Values are the values to add, delete, or replace.
	Values []string
}

// ModificationType represents the type of modification operation.
type ModificationType int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModificationType = iota
	// ModDelete removes values from an attribute.
	ModDelete
	// ModReplace replaces all values of an attribute.
	ModReplace
)

// String returns the string representation of the modification type.
func (m ModificationType) String() string {
	switch m {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// NewModification creates a new Modification.
func NewModification(modType ModificationType, attr string, values ...string) Modification {
	return Modification{
		Type:      modType,
		Attribute: attr,
		Values:    values,
	}
}

func (m Modification) String() string {
	return fmt.Sprintf("%s %s %v", m.Type, m.Attribute, m.Values)
}

// Apply applies changes to a copy of e and returns it. A delete or replace
// with no values removes the attribute. Changes that would drop a value of
// the entry's RDN fail with ErrNotAllowedOnRDN.
func Apply(e *Entry, changes []Modification) (*Entry, error) {
	out := e.Clone()
	for _, mod := range changes {
		switch mod.Type {
		case ModAdd:
			out.AddAttributeValue(mod.Attribute, mod.Values...)
		case ModDelete:
			if len(mod.Values) == 0 {
				out.DeleteAttribute(mod.Attribute)
			} else {
				out.DeleteAttributeValue(mod.Attribute, mod.Values...)
			}
		case ModReplace:
			if len(mod.Values) == 0 {
				out.DeleteAttribute(mod.Attribute)
			} else {
				out.SetAttribute(mod.Attribute, mod.Values...)
			}
		default:
			return nil, fmt.Errorf("directory: unknown modification type %d", mod.Type)
		}
	}

	rdn, err := data.LeafRDN(e.DN)
	if err != nil {
		return nil, err
	}
	for _, name := range rdn.Names() {
		v, _ := rdn.Get(name)
		if !containsFold(out.GetAttribute(name), v) {
			return nil, fmt.Errorf("%w: %s=%s", ErrNotAllowedOnRDN, name, v)
		}
	}
	return out, nil
}

// Rename returns a copy of e carrying newRDN under its current parent. The
// new naming values are added; when deleteOld is set the old naming values
// that are not part of the new RDN are removed.
func Rename(e *Entry, newRDN data.Row, deleteOld bool) (*Entry, error) {
	oldRDN, err := data.LeafRDN(e.DN)
	if err != nil {
		return nil, err
	}
	parent, err := data.ParentDN(e.DN)
	if err != nil {
		return nil, err
	}

	out := e.Clone()
	out.DN = data.AppendRDN(newRDN, parent)
	if deleteOld {
		for _, name := range oldRDN.Names() {
			v, _ := oldRDN.Get(name)
			if nv, ok := newRDN.Get(name); ok && strings.EqualFold(nv, v) {
				continue
			}
			out.DeleteAttributeValue(name, v)
		}
	}
	for _, name := range newRDN.Names() {
		v, _ := newRDN.Get(name)
		if !containsFold(out.GetAttribute(name), v) {
			out.AddAttributeValue(name, v)
		}
	}
	return out, nil
}
