package generation

import (
	"bytes"
	"encoding/json"
)

const statusSuccess = "success"

// URLList decodes a field the endpoint sends either as a string or as an
// array of strings.
type URLList struct {
	URLs    []string
	IsArray bool
}

func (l *URLList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = URLList{}
		return nil
	}

	if data[0] == '[' {
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return err
		}
		*l = URLList{URLs: urls, IsArray: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = URLList{}
		return nil
	}
	*l = URLList{URLs: []string{s}}
	return nil
}

// resolve picks the primary URL. The array form never falls back to the
// legacy top-level field, even when empty.
func (l URLList) resolve(legacy string) (primary string, variants []string) {
	if l.IsArray {
		if len(l.URLs) == 0 {
			return "", nil
		}
		if len(l.URLs) > 1 {
			variants = append([]string(nil), l.URLs[1:]...)
		}
		return l.URLs[0], variants
	}
	if len(l.URLs) > 0 {
		return l.URLs[0], nil
	}
	return legacy, nil
}

type FileURLs struct {
	GLB       URLList `json:"glb"`
	USDZ      URLList `json:"usdz"`
	Thumbnail string  `json:"thumbnail"`
}

// RawResponse is the endpoint's JSON body as received.
type RawResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	FileURLs FileURLs `json:"file_urls"`
	GLBURL   string   `json:"glbUrl,omitempty"`
	USDZURL  string   `json:"usdzUrl,omitempty"`
}

// Result holds the asset URLs of a finished generation. An empty string means
// the asset is absent.
type Result struct {
	ModelURL      string   `json:"modelUrl,omitempty"`
	USDZURL       string   `json:"usdzUrl,omitempty"`
	ThumbnailURL  string   `json:"thumbnailUrl,omitempty"`
	ModelVariants []string `json:"modelVariants,omitempty"`
	USDZVariants  []string `json:"usdzVariants,omitempty"`
}

// Valid reports whether at least one viewable model URL is present.
func (r Result) Valid() bool {
	return r.ModelURL != "" || r.USDZURL != ""
}

// Result converts the response into a Result, or an error matching
// ErrApplicationFailure when the server reported failure or sent no model.
func (r *RawResponse) Result() (Result, error) {
	if r.Status != statusSuccess {
		msg := r.Message
		if msg == "" {
			msg = ErrApplicationFailure.Error()
		}
		return Result{}, &applicationError{message: msg}
	}

	model, modelVariants := r.FileURLs.GLB.resolve(r.GLBURL)
	usdz, usdzVariants := r.FileURLs.USDZ.resolve(r.USDZURL)

	res := Result{
		ModelURL:      model,
		USDZURL:       usdz,
		ThumbnailURL:  r.FileURLs.Thumbnail,
		ModelVariants: modelVariants,
		USDZVariants:  usdzVariants,
	}
	if !res.Valid() {
		return Result{}, ErrMissingAssetURLs
	}
	return res, nil
}
