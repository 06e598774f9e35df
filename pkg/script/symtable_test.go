package script

import (
	"testing"

	"ccscript/pkg/code"
)

func TestSymbolTable(t *testing.T) {
	t.Run("DefineAndGet", func(t *testing.T) {
		s := NewSymbolTable(nil)
		if s.Define("x", NumberValue(1)) {
			t.Errorf("first Define should report name absent")
		}
		if !s.Define("x", NumberValue(2)) {
			t.Errorf("second Define should report name present")
		}
		if got := s.Get("x"); got.Number() != 2 {
			t.Errorf("Get(x): expected 2, got %v", got)
		}
		if !s.Get("y").IsUndefined() {
			t.Errorf("Get(y) should be undefined")
		}
	})

	t.Run("LookupWalksParents", func(t *testing.T) {
		parent := NewSymbolTable(nil)
		parent.Define("x", NumberValue(1))
		child := NewSymbolTable(parent)

		if child.Lookup("x").Number() != 1 {
			t.Errorf("Lookup should find parent binding")
		}
		if !child.Get("x").IsUndefined() {
			t.Errorf("Get must not walk the parent chain")
		}

		// Shadowing resolves to the nearest scope.
		child.Define("x", NumberValue(2))
		if child.Lookup("x").Number() != 2 {
			t.Errorf("Lookup should prefer the child binding")
		}
	})

	t.Run("AnchorLookup", func(t *testing.T) {
		parent := NewSymbolTable(nil)
		a := code.NewAnchor("top")
		parent.DefineAnchor(a)
		child := NewSymbolTable(parent)

		if child.LookupAnchor("top") != a {
			t.Errorf("LookupAnchor should find parent anchor")
		}
		if child.GetAnchor("top") != nil {
			t.Errorf("GetAnchor must not walk the parent chain")
		}
	})

	t.Run("MergeNeverOverwrites", func(t *testing.T) {
		dst := NewSymbolTable(nil)
		dst.Define("a", NumberValue(1))
		dst.DefineAnchor(code.NewAnchor("lbl"))

		src := NewSymbolTable(nil)
		src.Define("a", NumberValue(100))
		src.Define("b", NumberValue(2))
		src.DefineAnchorName("lbl", code.NewAnchor("lbl"))
		src.DefineAnchorName("other", code.NewAnchor("other"))

		var collisions []string
		dst.Merge(src, &collisions)

		if dst.Get("a").Number() != 1 {
			t.Errorf("merge overwrote existing value binding")
		}
		if dst.Get("b").Number() != 2 {
			t.Errorf("merge should copy fresh bindings")
		}
		if dst.GetAnchor("other") == nil {
			t.Errorf("merge should copy fresh anchors")
		}
		if len(collisions) != 2 {
			t.Errorf("expected 2 collisions, got %v", collisions)
		}
	})

	t.Run("MergeCollidesAcrossMaps", func(t *testing.T) {
		// A value colliding with an anchor name is still a collision.
		dst := NewSymbolTable(nil)
		dst.DefineAnchor(code.NewAnchor("x"))

		src := NewSymbolTable(nil)
		src.Define("x", NumberValue(1))

		var collisions []string
		dst.Merge(src, &collisions)
		if len(collisions) != 1 || collisions[0] != "x" {
			t.Errorf("expected cross-map collision, got %v", collisions)
		}
		if !dst.Get("x").IsUndefined() {
			t.Errorf("colliding value must not be merged")
		}
	})

	t.Run("AddBaseAddress", func(t *testing.T) {
		s := NewSymbolTable(nil)
		a := code.NewAnchor("x")
		a.Target = 0x10
		s.DefineAnchor(a)
		s.AddBaseAddress(0xC00000)
		if a.Target != 0xC00010 {
			t.Errorf("expected C00010, got %x", a.Target)
		}
	})
}
