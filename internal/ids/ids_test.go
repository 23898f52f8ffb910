package ids

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`ObjectId("64b7f0c2a1b2c3d4e5f60718")`, "64b7f0c2a1b2c3d4e5f60718"},
		{`ObjectId('64b7f0c2a1b2c3d4e5f60718')`, "64b7f0c2a1b2c3d4e5f60718"},
		{`ObjectId(64b7f0c2a1b2c3d4e5f60718)`, "64b7f0c2a1b2c3d4e5f60718"},
		{`  "abc"  `, "abc"},
		{`abc`, "abc"},
		{`""`, ""},
		{``, ""},
		{`"ObjectId(""64b7f0c2a1b2c3d4e5f60718"")"`, `ObjectId(""64b7f0c2a1b2c3d4e5f60718"")`},
		{`ObjectId("short")`, `ObjectId("short")`},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		`""x""`,
		`"ObjectId('64b7f0c2a1b2c3d4e5f60718')"`,
		` " spaced " `,
		`"`,
		`"""`,
		`ObjectId("64B7F0C2A1B2C3D4E5F60718")`,
		"\t\"tab\"\n",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestCollect(t *testing.T) {
	rows := []map[string]string{
		{"id": `ObjectId("64b7f0c2a1b2c3d4e5f60718")`},
		{"id": "64b7f0c2a1b2c3d4e5f60718"},
		{"id": ""},
		{"other": "x"},
		{"id": `"64b7f0c2a1b2c3d4e5f60719"`},
	}
	got := Collect(rows, "id")
	want := []string{"64b7f0c2a1b2c3d4e5f60718", "64b7f0c2a1b2c3d4e5f60719"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Collect = %v, want %v", got, want)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"b", "a", "b", " ", "a", "c"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dedupe = %v, want %v", got, want)
	}
}
