package domain

import "testing"

// Parsing never panics and anything it accepts survives a round trip.
func FuzzParsePassID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE passes;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParsePassID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Fatal("accepted nil id")
		}
		again, err := ParsePassID(id.String())
		if err != nil {
			t.Fatalf("round trip failed: %v", err)
		}
		if again != id {
			t.Fatal("round trip changed id")
		}
	})
}
