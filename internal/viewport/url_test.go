package viewport

import "testing"

func TestParseURL_ZoomEncoding(t *testing.T) {
	gt, ok := ParseURL("https://maps.example/@37.7749,-122.4194,12z", 768)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if gt.Center.Lat != 37.7749 || gt.Center.Lng != -122.4194 {
		t.Errorf("unexpected center: %+v", gt.Center)
	}
	if gt.Zoom != 12 {
		t.Errorf("expected zoom 12, got %f", gt.Zoom)
	}
	if gt.Meters {
		t.Error("expected zoom encoding, got meters")
	}
}

func TestParseURL_MetersEncoding(t *testing.T) {
	gt, ok := ParseURL("https://maps.example/@10,20,5000m", 768)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if !gt.Meters {
		t.Error("expected meters encoding")
	}
	if gt.Zoom < 0 || gt.Zoom > 22 {
		t.Errorf("zoom out of range: %f", gt.Zoom)
	}
}

func TestParseURL_MetersWithoutViewport(t *testing.T) {
	if _, ok := ParseURL("https://maps.example/@10,20,5000m", 0); ok {
		t.Error("expected parse to fail without a viewport height")
	}
}

func TestParseURL_RejectsOutOfRangeCoordinates(t *testing.T) {
	urls := []string{
		"https://maps.example/@91,0,12z",
		"https://maps.example/@0,181,12z",
	}
	for _, url := range urls {
		if _, ok := ParseURL(url, 768); ok {
			t.Errorf("url %q: expected parse to fail", url)
		}
	}
}

func TestParseURL_NoMatch(t *testing.T) {
	if _, ok := ParseURL("https://maps.example/search?q=pizza", 768); ok {
		t.Error("expected parse to fail")
	}
}
