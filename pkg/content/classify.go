package content

import (
	"path"
	"strings"
)

// Cache lifetimes per class. Assets assume fingerprinted filenames, so
// they cache for a year; markup must revalidate within minutes.
const (
	markupTTL  = 300
	assetTTL   = 31536000
	mediaTTL   = 86400
	defaultTTL = 3600
)

// classTable maps a lowercase extension to its serving policy. Content
// types are fixed here rather than taken from mime.TypeByExtension, whose
// answers vary with the host OS; classification must be identical on
// every machine that computes a diff.
var classTable = map[string]Classification{
	// Markup and data documents
	".html": {Class: ClassMarkup, ContentType: "text/html; charset=utf-8", CacheTTLSeconds: markupTTL},
	".htm":  {Class: ClassMarkup, ContentType: "text/html; charset=utf-8", CacheTTLSeconds: markupTTL},
	".xml":  {Class: ClassMarkup, ContentType: "application/xml", CacheTTLSeconds: markupTTL},
	".json": {Class: ClassMarkup, ContentType: "application/json", CacheTTLSeconds: markupTTL},
	".txt":  {Class: ClassMarkup, ContentType: "text/plain; charset=utf-8", CacheTTLSeconds: markupTTL},

	// Static assets
	".css":   {Class: ClassAsset, ContentType: "text/css; charset=utf-8", CacheTTLSeconds: assetTTL},
	".js":    {Class: ClassAsset, ContentType: "text/javascript; charset=utf-8", CacheTTLSeconds: assetTTL},
	".mjs":   {Class: ClassAsset, ContentType: "text/javascript; charset=utf-8", CacheTTLSeconds: assetTTL},
	".map":   {Class: ClassAsset, ContentType: "application/json", CacheTTLSeconds: assetTTL},
	".svg":   {Class: ClassAsset, ContentType: "image/svg+xml", CacheTTLSeconds: assetTTL},
	".woff":  {Class: ClassAsset, ContentType: "font/woff", CacheTTLSeconds: assetTTL},
	".woff2": {Class: ClassAsset, ContentType: "font/woff2", CacheTTLSeconds: assetTTL},
	".ttf":   {Class: ClassAsset, ContentType: "font/ttf", CacheTTLSeconds: assetTTL},
	".ico":   {Class: ClassAsset, ContentType: "image/x-icon", CacheTTLSeconds: assetTTL},

	// Media
	".png":  {Class: ClassMedia, ContentType: "image/png", CacheTTLSeconds: mediaTTL},
	".jpg":  {Class: ClassMedia, ContentType: "image/jpeg", CacheTTLSeconds: mediaTTL},
	".jpeg": {Class: ClassMedia, ContentType: "image/jpeg", CacheTTLSeconds: mediaTTL},
	".gif":  {Class: ClassMedia, ContentType: "image/gif", CacheTTLSeconds: mediaTTL},
	".webp": {Class: ClassMedia, ContentType: "image/webp", CacheTTLSeconds: mediaTTL},
	".avif": {Class: ClassMedia, ContentType: "image/avif", CacheTTLSeconds: mediaTTL},
	".mp4":  {Class: ClassMedia, ContentType: "video/mp4", CacheTTLSeconds: mediaTTL},
	".webm": {Class: ClassMedia, ContentType: "video/webm", CacheTTLSeconds: mediaTTL},
	".mp3":  {Class: ClassMedia, ContentType: "audio/mpeg", CacheTTLSeconds: mediaTTL},
	".pdf":  {Class: ClassMedia, ContentType: "application/pdf", CacheTTLSeconds: mediaTTL},
}

// Classify returns the serving policy for a content path. The mapping is
// total and deterministic: every path classifies, the same path always
// classifies identically, and only the extension matters.
func Classify(p string) Classification {
	ext := strings.ToLower(path.Ext(p))
	if c, ok := classTable[ext]; ok {
		return c
	}
	return Classification{
		Class:           ClassOther,
		ContentType:     "application/octet-stream",
		CacheTTLSeconds: defaultTTL,
	}
}
