package content

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		path        string
		wantClass   Class
		wantType    string
		wantSeconds int
	}{
		{"index.html", ClassMarkup, "text/html; charset=utf-8", markupTTL},
		{"feed.xml", ClassMarkup, "application/xml", markupTTL},
		{"manifest.json", ClassMarkup, "application/json", markupTTL},
		{"robots.txt", ClassMarkup, "text/plain; charset=utf-8", markupTTL},
		{"css/site.css", ClassAsset, "text/css; charset=utf-8", assetTTL},
		{"js/app.js", ClassAsset, "text/javascript; charset=utf-8", assetTTL},
		{"fonts/inter.woff2", ClassAsset, "font/woff2", assetTTL},
		{"favicon.ico", ClassAsset, "image/x-icon", assetTTL},
		{"img/logo.png", ClassMedia, "image/png", mediaTTL},
		{"img/photo.jpeg", ClassMedia, "image/jpeg", mediaTTL},
		{"docs/guide.pdf", ClassMedia, "application/pdf", mediaTTL},
		{"download.bin", ClassOther, "application/octet-stream", defaultTTL},
		{"README", ClassOther, "application/octet-stream", defaultTTL},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := Classify(tt.path)
			if got.Class != tt.wantClass {
				t.Errorf("Expected class %s, got %s", tt.wantClass, got.Class)
			}
			if got.ContentType != tt.wantType {
				t.Errorf("Expected content type %s, got %s", tt.wantType, got.ContentType)
			}
			if got.CacheTTLSeconds != tt.wantSeconds {
				t.Errorf("Expected TTL %d, got %d", tt.wantSeconds, got.CacheTTLSeconds)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	// Same extension group, same policy, on every call
	pairs := [][2]string{
		{"index.html", "deep/nested/page.html"},
		{"a.css", "b.css"},
		{"one.png", "two.png"},
	}

	for _, pair := range pairs {
		first := Classify(pair[0])
		second := Classify(pair[1])
		if first != second {
			t.Errorf("Expected %s and %s to classify identically, got %+v and %+v",
				pair[0], pair[1], first, second)
		}
	}

	for i := 0; i < 3; i++ {
		if Classify("index.html") != Classify("index.html") {
			t.Fatal("Expected classification to be stable across calls")
		}
	}
}

func TestClassify_CaseInsensitiveExtension(t *testing.T) {
	if Classify("BANNER.PNG") != Classify("banner.png") {
		t.Error("Expected extension case to not matter")
	}
}

func TestClassify_TTLOrdering(t *testing.T) {
	markup := Classify("index.html").CacheTTLSeconds
	asset := Classify("app.js").CacheTTLSeconds
	media := Classify("logo.png").CacheTTLSeconds
	other := Classify("blob.bin").CacheTTLSeconds

	if !(markup < other && other < media && media < asset) {
		t.Errorf("Expected markup < default < media < asset TTLs, got %d %d %d %d",
			markup, other, media, asset)
	}
}

func TestClassification_CacheControl(t *testing.T) {
	got := Classify("index.html").CacheControl()
	if got != "public, max-age=300" {
		t.Errorf("Expected public, max-age=300, got %s", got)
	}
}
