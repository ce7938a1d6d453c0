package ctxkey

import "strings"

// ActionKey is (action name, ContextID): the identity used throughout the
// graph (spec §3). Its string form is "<ContextId>#<action-name>".
type ActionKey struct {
	Action  string
	Context ContextID
}

// NewActionKey constructs an ActionKey.
func NewActionKey(action string, ctx ContextID) ActionKey {
	return ActionKey{Action: action, Context: ctx}
}

// String renders the canonical "<ContextId>#<action-name>" form.
func (k ActionKey) String() string {
	return k.Context.String() + "#" + k.Action
}

// Equal reports structural equality.
func (k ActionKey) Equal(other ActionKey) bool {
	return k.Action == other.Action && k.Context.Equal(other.Context)
}

// Parse reverses String for diagnostics and test fixtures. It is tolerant of
// the "default" sentinel and of axis values containing "#" by splitting only
// on the final "#".
func Parse(s string) (ActionKey, bool) {
	idx := strings.LastIndex(s, "#")
	if idx < 0 {
		return ActionKey{}, false
	}
	ctxPart, action := s[:idx], s[idx+1:]
	if action == "" {
		return ActionKey{}, false
	}
	if ctxPart == "default" || ctxPart == "" {
		return ActionKey{Action: action, Context: Empty}, true
	}
	pairs := []Pair{}
	for _, seg := range strings.Split(ctxPart, "+") {
		kv := strings.SplitN(seg, ":", 2)
		if len(kv) != 2 {
			return ActionKey{}, false
		}
		pairs = append(pairs, Pair{Axis: kv[0], Value: kv[1]})
	}
	return ActionKey{Action: action, Context: FromPairs(pairs)}, true
}
