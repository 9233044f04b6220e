package content_test

import (
	"fmt"

	"github.com/opensundae/opensundae/pkg/content"
)

// ExampleClassify demonstrates the serving policy assigned to each
// extension group.
func ExampleClassify() {
	for _, p := range []string{"index.html", "css/site.css", "img/logo.png", "download.bin"} {
		c := content.Classify(p)
		fmt.Printf("%s -> %s, %s, max-age=%d\n", p, c.Class, c.ContentType, c.CacheTTLSeconds)
	}

	// Output:
	// index.html -> markup, text/html; charset=utf-8, max-age=300
	// css/site.css -> asset, text/css; charset=utf-8, max-age=31536000
	// img/logo.png -> media, image/png, max-age=86400
	// download.bin -> other, application/octet-stream, max-age=3600
}
