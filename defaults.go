package swcache

// DefaultStoreName is the store the worker precaches into.
const DefaultStoreName = "post-cache"

// DefaultAssets are precached on install, resolved against the worker scope.
var DefaultAssets = []string{
	"./",
	"main.dart.js",
	"index.html",
	"manifest.json",
	"assets/fonts/MaterialIcons-Regular.otf",
	"assets/AssetManifest.json",
	"assets/FontManifest.json",
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
