// Package media classifies content as TV or movie. The classification
// decides which Transmission download directory a torrent lands in and
// which library root file operations act on.
package media

import "strings"

// Category is the destination classification of a torrent or file.
// Unknown means the indexer reported a mixed or unrecognized category;
// selections with Unknown category require an explicit tv/movie override.
type Category int

const (
	Unknown Category = iota
	TV
	Movie
)

func (c Category) String() string {
	switch c {
	case TV:
		return "tv"
	case Movie:
		return "movie"
	default:
		return "unknown"
	}
}

// Parse recognizes the tv/movie override keywords, case-insensitive.
func Parse(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tv":
		return TV, true
	case "movie":
		return Movie, true
	default:
		return Unknown, false
	}
}

// Torznab category bands: 2000-2999 movies, 3000-3999 TV.
const (
	movieBandLow = 2000
	tvBandLow    = 3000
	tvBandHigh   = 4000
)

// FromTorznab infers a category from a result's Torznab category codes.
// A result matching both bands (or neither) stays Unknown so the user
// must disambiguate.
func FromTorznab(categories []int) Category {
	var tv, movie bool
	for _, c := range categories {
		switch {
		case c >= movieBandLow && c < tvBandLow:
			movie = true
		case c >= tvBandLow && c < tvBandHigh:
			tv = true
		}
	}
	switch {
	case tv && !movie:
		return TV
	case movie && !tv:
		return Movie
	default:
		return Unknown
	}
}

// FromPath classifies a download directory by the library root it sits under.
func FromPath(path, tvRoot, movieRoot string) Category {
	switch {
	case underRoot(path, tvRoot):
		return TV
	case underRoot(path, movieRoot):
		return Movie
	default:
		return Unknown
	}
}

// underRoot matches the root itself or paths below it. A plain prefix
// check would claim siblings like root + "-extras".
func underRoot(path, root string) bool {
	if root == "" {
		return false
	}
	root = strings.TrimRight(root, "/")
	return path == root || strings.HasPrefix(path, root+"/")
}
