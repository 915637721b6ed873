// Package modes implements table-driven MODE-letter scanning for both user
// and channel modes, classifying each letter into the standard A/B/C/D
// parameter classes so the dispatcher can consume the right number of
// parameters per letter without hardcoding each one.
package modes

// ParamClass classifies how a mode letter consumes MODE command parameters,
// mirroring the ISUPPORT CHANMODES=A,B,C,D grouping.
type ParamClass uint8

const (
	// ClassA modes always take a parameter, both on set and unset, and are
	// list-type (ban, exception, invite-exception): multiple values stack.
	ClassA ParamClass = iota
	// ClassB modes always take a parameter, both on set and unset
	// (channel key, founder/admin-style prefix modes with a target).
	ClassB
	// ClassC modes take a parameter only when being set, not when unset
	// (limit).
	ClassC
	// ClassD modes never take a parameter (moderated, no-external, etc).
	ClassD
)

// Spec describes one mode letter's parameter behavior and required
// permission to change it.
type Spec struct {
	Letter     byte
	Class      ParamClass
	MinSetter  uint8 // minimum permission/rank required to change this mode
	IsPrefix   bool  // true for modes that grant a channel-member prefix (o, v, h...)
}

// Table is a letter-indexed set of mode specs for one mode domain (user
// modes or channel modes).
type Table map[byte]Spec

// TakesParam reports whether letter consumes a parameter when being set
// (set=true) or unset (set=false).
func (t Table) TakesParam(letter byte, set bool) bool {
	spec, ok := t[letter]
	if !ok {
		return false
	}
	switch spec.Class {
	case ClassA, ClassB:
		return true
	case ClassC:
		return set
	default:
		return false
	}
}

// Change is one parsed MODE-letter operation.
type Change struct {
	Letter byte
	Set    bool
	Param  string
}

// Parse walks a MODE modestring ("+o-v") plus the trailing parameter list
// and returns the ordered list of changes, consuming parameters per the
// table's class rules. It stops and returns the changes parsed so far plus
// ErrNeedMoreParams if a parameter-requiring letter runs out of params.
func Parse(table Table, modestring string, params []string) ([]Change, error) {
	var changes []Change
	set := true
	paramIdx := 0

	for i := 0; i < len(modestring); i++ {
		c := modestring[i]
		switch c {
		case '+':
			set = true
			continue
		case '-':
			set = false
			continue
		}

		change := Change{Letter: c, Set: set}

		if table.TakesParam(c, set) {
			if paramIdx >= len(params) {
				return changes, ErrNeedMoreParams
			}
			change.Param = params[paramIdx]
			paramIdx++
		}

		changes = append(changes, change)
	}

	return changes, nil
}

// ErrNeedMoreParams is returned by Parse when a mode letter needing a
// parameter runs out of supplied parameters.
var ErrNeedMoreParams = modeErr("not enough mode parameters")

type modeErr string

func (e modeErr) Error() string { return string(e) }
