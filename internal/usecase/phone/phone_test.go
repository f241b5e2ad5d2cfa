package phone

import (
	"testing"

	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+55 (11) 98765-4321": "551187654321",
		"5511987654321":       "551187654321",
		"551187654321":        "551187654321",
		"11987654321":         "551187654321",
		"1187654321":          "551187654321",
		"+1 415 555 0100":     "14155550100",
		" +44 20 7946 0958":   "442079460958",
		"+351 912 345 678":    "351912345678",
		"":                    "",
		"abc":                 "",
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates("+55 11 98765-4321")
	want := []string{"551187654321", "5511987654321"}
	if len(got) != len(want) {
		t.Fatalf("Candidates() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Candidates()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if Candidates("---") != nil {
		t.Fatal("expected no candidates for input without digits")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+55 11 98765-4321"); got != "+55 *******4321" {
		t.Fatalf("Mask() = %q", got)
	}
	if got := Mask("123"); got != "***" {
		t.Fatalf("Mask(short) = %q", got)
	}
}

func TestNormalizeRemovesMobileNineProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		area := rapid.StringMatching(`[1-9][0-9]`).Draw(t, "area")
		subscriber := rapid.StringMatching(`[0-9]{8}`).Draw(t, "subscriber")
		raw := "55" + area + "9" + subscriber

		got := Normalize(raw)
		if got != "55"+area+subscriber {
			t.Fatalf("Normalize(%q) = %q, want extra 9 removed", raw, got)
		}
		if again := Normalize(got); again != got {
			t.Fatalf("Normalize is not idempotent: %q -> %q", got, again)
		}
		found := false
		for _, c := range Candidates(got) {
			if c == raw {
				found = true
			}
		}
		if !found {
			t.Fatalf("Candidates(%q) must include the with-9 form %q", got, raw)
		}
	})
}

func TestNormalizeKeepsForeignInternationalNumbersProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// коды стран, не начинающиеся с 5
		cc := rapid.StringMatching(`[1-46-9][0-9]{0,2}`).Draw(t, "cc")
		subscriber := rapid.StringMatching(`[0-9]{7,10}`).Draw(t, "subscriber")
		raw := "+" + cc + " " + subscriber

		if got := Normalize(raw); got != cc+subscriber {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, cc+subscriber)
		}
		if Candidates(raw)[0] != cc+subscriber {
			t.Fatalf("Candidates(%q) must start with the unchanged number", raw)
		}
	})
}
