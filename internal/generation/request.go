package generation

import "fmt"

// Image is one user-supplied photograph.
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Request is the ordered set of images for one generation attempt.
type Request struct {
	Images []Image
}

// ValidImageCount reports whether n images form an acceptable request.
func ValidImageCount(n int) bool {
	return n == 1 || n == 4
}

// NewRequest validates the image count and fills in missing content types and
// filenames. The input slice is not modified.
func NewRequest(images []Image) (*Request, error) {
	if !ValidImageCount(len(images)) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInputCount, len(images))
	}

	out := make([]Image, len(images))
	for i, img := range images {
		if img.ContentType == "" {
			img.ContentType = "image/jpeg"
		}
		if img.Filename == "" {
			img.Filename = fmt.Sprintf("image_%d.jpg", i)
		}
		out[i] = img
	}
	return &Request{Images: out}, nil
}
