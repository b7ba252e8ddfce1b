package vision

import "strings"

// detectMediaType guesses the image MIME type from the base64 header first and
// the filename extension second, defaulting to JPEG.
func detectMediaType(base64Data, fileName string) string {
	switch {
	case strings.HasPrefix(base64Data, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(base64Data, "iVBORw0KGgo"):
		return "image/png"
	case strings.HasPrefix(base64Data, "R0lGOD"):
		return "image/gif"
	case strings.HasPrefix(base64Data, "UklGR"):
		return "image/webp"
	}

	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".gif"):
		return "image/gif"
	case strings.HasSuffix(name, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
