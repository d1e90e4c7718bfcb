package types

import "testing"

func TestParsePoint(t *testing.T) {
	cases := []struct {
		in      string
		want    Point
		wantErr bool
	}{
		{"51.155406,71.4101", Point{Lat: 51.155406, Lng: 71.4101}, false},
		{" 25.033 , 121.565 ", Point{Lat: 25.033, Lng: 121.565}, false},
		{"-33.9,-70.1", Point{Lat: -33.9, Lng: -70.1}, false},
		{"91,0", Point{}, true},
		{"0,181", Point{}, true},
		{"Main street 1", Point{}, true},
		{"1.0", Point{}, true},
		{"", Point{}, true},
	}
	for _, tc := range cases {
		got, err := ParsePoint(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParsePoint(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParsePoint(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestPointStringRoundTrip(t *testing.T) {
	p := Point{Lat: 51.155406, Lng: 71.4101}
	if p.String() != "51.155406,71.4101" {
		t.Fatalf("unexpected string %q", p.String())
	}
	back, err := ParsePoint(p.String())
	if err != nil || back != p {
		t.Fatalf("round trip failed: %+v %v", back, err)
	}
}
