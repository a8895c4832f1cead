package program

import "testing"

func TestParseDisease(t *testing.T) {
	tests := []struct {
		in      string
		want    DiseaseType
		wantErr bool
	}{
		{"ht", DiseaseHT, false},
		{"HT", DiseaseHT, false},
		{" dm ", DiseaseDM, false},
		{"DM", DiseaseDM, false},
		{"", "", true},
		{"hypertension", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDisease(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDisease(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDisease(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDisease(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDMExamType_Valid(t *testing.T) {
	for _, typ := range []DMExamType{DMExamHbA1c, DMExamGDP, DMExamGD2JPP, DMExamGDSP} {
		if !typ.Valid() {
			t.Errorf("expected %q to be valid", typ)
		}
	}
	if DMExamType("cholesterol").Valid() {
		t.Error("expected unknown exam type to be invalid")
	}
}

func TestNormalizeGender(t *testing.T) {
	tests := []struct {
		in   string
		want Gender
	}{
		{"male", GenderMale},
		{"M", GenderMale},
		{"L", GenderMale},
		{"laki-laki", GenderMale},
		{"female", GenderFemale},
		{"P", GenderFemale},
		{"perempuan", GenderFemale},
		{"", GenderUnknown},
		{"other", GenderUnknown},
	}

	for _, tt := range tests {
		if got := NormalizeGender(tt.in); got != tt.want {
			t.Errorf("NormalizeGender(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
