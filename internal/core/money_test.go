package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"12.34", 1234, false},
		{"12,34", 1234, false},
		{"12", 1200, false},
		{"0.01", 1, false},
		{"12.345", 1234, false},
		{"12.346", 1235, false},
		{"  7.5 ", 750, false},
		{"", 0, true},
		{"-5", 0, true},
		{"+5", 0, true},
		{"0", 0, true},
		{"0.00", 0, true},
		{"1.2.3", 0, true},
		{"abc", 0, true},
		{"12.x", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDecimalToCents(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDecimalToCents(%q) error = nil, want error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimalToCents(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{1234, "12.34"},
		{-505, "-5.05"},
		{0, "0.00"},
		{5, "0.05"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
