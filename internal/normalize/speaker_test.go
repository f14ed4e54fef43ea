package normalize

import "testing"

func TestSpeaker(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"M. Robespierre.", "Robespierre"},
		{"  M.Robespierre :", "Robespierre"},
		{"MM. les secrétaires", "Les secrétaires"},
		{"[M.] Barère", "Barère"},
		{"(m) Danton", "Danton"},
		{"« M. Vergniaud »", "Vergniaud"},
		{"M. Lepeletier - Saint - Fargeau", "Lepeletier-Saint-Fargeau"},
		{"M. d' Eprémesnil", "D'Eprémesnil"},
		{"M. le comte d'  Antraigues", "Le comte d'Antraigues"},
		{"Marat", "Marat"},
		{"un membre", "Un membre"},
		{"M. le Président.", PresidentLabel},
		{"M. le Présideut", PresidentLabel},
		{"M. le Préside nt :", PresidentLabel},
		{"M. le Prési - dent", PresidentLabel},
		{"", ""},
		{" . ", ""},
		{"M.", ""},
		{"M M. Robespierre", "Robespierre"},
		{"M. [M.] Barère", "Barère"},
	}
	for _, tt := range tests {
		if got := Speaker(tt.raw); got != tt.want {
			t.Errorf("Speaker(%q): expected %q, got %q", tt.raw, tt.want, got)
		}
	}
}

func TestSpeaker_PresidentVariantsCollapse(t *testing.T) {
	for _, v := range PresidentVariants() {
		if got := Speaker(v); got != PresidentLabel {
			t.Errorf("variant %q: expected %q, got %q", v, PresidentLabel, got)
		}
	}
}

func TestSpeaker_Idempotent(t *testing.T) {
	inputs := append(PresidentVariants(),
		"M. Robespierre.",
		"M. Lepeletier - Saint - Fargeau",
		"M. d' Eprémesnil",
		"« M. Vergniaud »",
		"un membre",
		"M M. Robespierre",
		"M. « M. Vergniaud »",
	)
	for _, s := range inputs {
		once := Speaker(s)
		if twice := Speaker(once); twice != once {
			t.Errorf("Speaker not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}
