package factor

import "testing"

func TestMethodSetOrder(t *testing.T) {
	s := NewMethodSet(MethodFaceRecognition, MethodPassword)
	got := s.Methods()
	if len(got) != 2 || got[0] != MethodPassword || got[1] != MethodFaceRecognition {
		t.Fatalf("expected [password face_recognition], got %v", got)
	}
	if s.Has(MethodMotionPattern) {
		t.Fatalf("motion_pattern should not be enabled")
	}
	if !NewMethodSet().Empty() {
		t.Fatalf("expected empty set")
	}
	if !NewMethodSet(Method("sms")).Empty() {
		t.Fatalf("unknown methods must not enable anything")
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Motion_Pattern ")
	if err != nil || m != MethodMotionPattern {
		t.Fatalf("parse: %v %v", m, err)
	}
	if _, err := ParseMethod("email"); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestPatternSplit(t *testing.T) {
	full, err := ParsePattern([]string{"up", "left", "right"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	base, suffix := full.Split(1)
	if !base.Equal(Pattern{Up, Left}) {
		t.Fatalf("unexpected base %v", base)
	}
	if !suffix.Equal(Pattern{Right}) {
		t.Fatalf("unexpected suffix %v", suffix)
	}

	base, suffix = Pattern{Up}.Split(2)
	if len(base) != 0 || !suffix.Equal(Pattern{Up}) {
		t.Fatalf("short split: base=%v suffix=%v", base, suffix)
	}
}

func TestPatternEqualIsOrderSensitive(t *testing.T) {
	if (Pattern{Up, Left}).Equal(Pattern{Left, Up}) {
		t.Fatalf("order must matter")
	}
	if (Pattern{Up}).Equal(Pattern{Up, Up}) {
		t.Fatalf("length must matter")
	}
}

func TestParsePatternRejectsUnknownDirection(t *testing.T) {
	if _, err := ParsePattern([]string{"up", "sideways"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPatternEncodeDistinguishesOrder(t *testing.T) {
	a := Pattern{Up, Down}.Encode()
	b := Pattern{Down, Up}.Encode()
	if string(a) == string(b) {
		t.Fatalf("encodings collide: %q", a)
	}
}
