package jsinterp

// scope is one link of the scope chain. Function scopes receive var
// declarations; block scopes only hold let and const.
type scope struct {
	vars     map[string]*binding
	parent   *scope
	function bool
}

type binding struct {
	value    Value
	constant bool
}

func newScope(parent *scope, function bool) *scope {
	return &scope{vars: make(map[string]*binding), parent: parent, function: function}
}

func (s *scope) lookup(name string) (*binding, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

func (s *scope) declare(name string, v Value, constant bool) {
	s.vars[name] = &binding{value: v, constant: constant}
}

// declareVar hoists a var binding without clobbering an existing value.
func (s *scope) declareVar(name string) {
	if _, ok := s.vars[name]; !ok {
		s.vars[name] = &binding{}
	}
}
