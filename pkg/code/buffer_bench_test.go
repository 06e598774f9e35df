package code

import "testing"

func BenchmarkAppendWithReferences(b *testing.B) {
	chunk := NewBuffer()
	end := NewAnchor("end")
	chunk.Code("1B 02 FF FF FF FF")
	chunk.AddReference(2, end)
	chunk.AddAnchor(end)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out := NewBuffer()
		for j := 0; j < 64; j++ {
			out.Append(chunk)
		}
	}
}

func BenchmarkResolveReferences(b *testing.B) {
	out := NewBuffer()
	for j := 0; j < 256; j++ {
		a := NewAnchor("a")
		out.Code("0A FF FF FF FF")
		out.AddReference(out.Size()-4, a)
		out.AddAnchor(a)
	}
	out.SetBaseAddress(0xC00000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := out.ResolveReferences(); err != nil {
			b.Fatal(err)
		}
	}
}
