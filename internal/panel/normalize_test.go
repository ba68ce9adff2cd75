package panel

import (
	"testing"

	"fireplus/internal/models"
)

func TestBurnPhaseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", BurnPhaseEmberHold},
		{"1", BurnPhaseBurnDown},
		{"7", BurnPhaseBurnDown},
		{"anything-nonzero", BurnPhaseBurnDown},
		{"", BurnPhaseBurnDown},
		{" 0", BurnPhaseBurnDown},
		{"00", BurnPhaseBurnDown},
		{BurnPhaseEmberHold, BurnPhaseBurnDown},
		{BurnPhaseBurnDown, BurnPhaseBurnDown},
	}

	for _, tt := range tests {
		if got := BurnPhaseLabel(tt.in); got != tt.want {
			t.Errorf("BurnPhaseLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOperatingModeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2", "Eco"},
		{"3", "Normal"},
		{"4", "Power"},
		{"9", "9"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := OperatingModeLabel(tt.in); got != tt.want {
			t.Errorf("OperatingModeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GRUEN", "Regelbetrieb"},
		{"gruen", "Regelbetrieb"},
		{" gruen ", "Regelbetrieb"},
		{"Rot Blinkend", "Überhitzung"},
		{"aus", "Aus"},
		{"unknown-code", "unknown-code"},
		{"  Unknown-Code ", "unknown-code"},
		{"Bereit", "bereit"},
		{"Regelbetrieb", "regelbetrieb"},
	}

	for _, tt := range tests {
		if got := StatusLabel(tt.in); got != tt.want {
			t.Errorf("StatusLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_OnlyTouchesCodedFields(t *testing.T) {
	var raw models.StatusRecord
	copy(raw[:], sampleValues)

	got := Normalize(raw)

	if got.Get(models.FieldOperatingMode) != "Eco" {
		t.Errorf("operating_mode = %q, want Eco", got.Get(models.FieldOperatingMode))
	}
	if got.Get(models.FieldStatus) != "Regelbetrieb" {
		t.Errorf("status = %q, want Regelbetrieb", got.Get(models.FieldStatus))
	}
	if got.Get(models.FieldBurnPhase) != BurnPhaseBurnDown {
		t.Errorf("burn_phase = %q, want %q", got.Get(models.FieldBurnPhase), BurnPhaseBurnDown)
	}

	coded := map[models.Field]bool{
		models.FieldOperatingMode: true,
		models.FieldStatus:        true,
		models.FieldBurnPhase:     true,
	}
	for _, f := range models.Fields() {
		if coded[f] {
			continue
		}
		if got.Get(f) != raw.Get(f) {
			t.Errorf("%s = %q, want unchanged %q", f, got.Get(f), raw.Get(f))
		}
	}

	if raw.Get(models.FieldOperatingMode) != "2" {
		t.Errorf("Normalize modified its input")
	}
}

func TestNormalize_LabelsAreNotCodes(t *testing.T) {
	var raw models.StatusRecord
	copy(raw[:], sampleValues)
	raw = raw.With(models.FieldBurnPhase, "0").With(models.FieldStatus, " weird ")

	once := Normalize(raw)
	if once.Get(models.FieldBurnPhase) != BurnPhaseEmberHold {
		t.Fatalf("burn_phase = %q, want %q", once.Get(models.FieldBurnPhase), BurnPhaseEmberHold)
	}
	if once.Get(models.FieldStatus) != "weird" {
		t.Fatalf("status = %q, want sanitized pass-through", once.Get(models.FieldStatus))
	}

	twice := Normalize(once)
	if twice.Get(models.FieldBurnPhase) != BurnPhaseBurnDown {
		t.Errorf("burn_phase label re-normalized to %q, want %q", twice.Get(models.FieldBurnPhase), BurnPhaseBurnDown)
	}
	if twice.Get(models.FieldOperatingMode) != once.Get(models.FieldOperatingMode) {
		t.Errorf("operating_mode label changed on second pass")
	}
}
