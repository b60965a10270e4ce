package factor

import (
	"fmt"
	"strings"
)

// Method names one authentication stage.
type Method string

const (
	MethodPassword        Method = "password"
	MethodMotionPattern   Method = "motion_pattern"
	MethodFaceRecognition Method = "face_recognition"
)

// Precedence is the fixed order in which enabled methods are walked at login.
var Precedence = [...]Method{MethodPassword, MethodMotionPattern, MethodFaceRecognition}

// ParseMethod maps a wire name to a Method.
func ParseMethod(name string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	if m.bit() == 0 {
		return "", fmt.Errorf("unknown auth method %q", name)
	}
	return m, nil
}

func (m Method) String() string { return string(m) }

func (m Method) bit() MethodSet {
	for i, p := range Precedence {
		if p == m {
			return 1 << i
		}
	}
	return 0
}

// MethodSet is a bitmask of enabled methods, one bit per Precedence slot.
type MethodSet uint8

// NewMethodSet builds a set from the given methods. Unknown methods are ignored.
func NewMethodSet(methods ...Method) MethodSet {
	var s MethodSet
	for _, m := range methods {
		s |= m.bit()
	}
	return s
}

// Has reports whether m is in the set.
func (s MethodSet) Has(m Method) bool {
	b := m.bit()
	return b != 0 && s&b == b
}

// Empty reports whether no method is enabled.
func (s MethodSet) Empty() bool { return s&allMethods == 0 }

// Methods lists the enabled methods in precedence order.
func (s MethodSet) Methods() []Method {
	out := make([]Method, 0, len(Precedence))
	for _, m := range Precedence {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

const allMethods = MethodSet(1<<len(Precedence) - 1)
