package types

import "testing"

func TestRoundToZero(t *testing.T) {
	tests := []struct {
		name  string
		value string
		scale int32
		want  string
	}{
		{"truncates positive", "1.23456", 2, "1.23"},
		{"truncates negative toward zero", "-1.23456", 2, "-1.23"},
		{"exact scale is a no-op", "1.50", 2, "1.5"},
		{"zero stays zero", "0", 4, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.value).RoundToZero(tt.scale).String()
			if got != tt.want {
				t.Errorf("RoundToZero(%s, %d) = %s, want %s", tt.value, tt.scale, got, tt.want)
			}
		})
	}
}

func TestRoundHalfEven(t *testing.T) {
	tests := []struct {
		name  string
		value string
		scale int32
		want  string
	}{
		{"rounds half down to even", "1.005", 2, "1"},
		{"rounds half up to even", "1.015", 2, "1.02"},
		{"rounds up normally", "1.016", 2, "1.02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.value).RoundHalfEven(tt.scale).String()
			if got != tt.want {
				t.Errorf("RoundHalfEven(%s, %d) = %s, want %s", tt.value, tt.scale, got, tt.want)
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := MustParse("123.456000")
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(b) != `"123.456"` {
		t.Errorf("MarshalJSON = %s, want a quoted decimal string", b)
	}
	var out Decimal
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !out.Equal(d) {
		t.Errorf("round-tripped value %s != original %s", out, d)
	}
}

func TestCeilFloorToMultiple(t *testing.T) {
	interval := MustParse("0.5")
	if got := MustParse("1.3").CeilToMultiple(interval).String(); got != "1.5" {
		t.Errorf("CeilToMultiple(1.3, 0.5) = %s, want 1.5", got)
	}
	if got := MustParse("1.3").FloorToMultiple(interval).String(); got != "1" {
		t.Errorf("FloorToMultiple(1.3, 0.5) = %s, want 1", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-number"); err == nil {
		t.Error("expected Parse to reject a malformed decimal string")
	}
}
