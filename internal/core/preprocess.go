package core

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// NormalizationMode selects the pixel transform applied after resizing. The
// mode must match how the classifier graph was exported; it is declared in
// the artifact metadata and asserted at load time.
type NormalizationMode string

const (
	// NormalizationEmbedded feeds raw [0, 255] values because the exported
	// graph carries its own rescaling layer.
	NormalizationEmbedded NormalizationMode = "embedded_rescale"
	// NormalizationMobileNetV2 maps pixels into [-1, 1] the way the
	// MobileNetV2 preprocess step does (x/127.5 - 1).
	NormalizationMobileNetV2 NormalizationMode = "mobilenet_v2"
)

// ImageTensor is a single-image NHWC float32 batch ready for scoring.
type ImageTensor struct {
	Data  []float32
	Shape []int64 // (1, height, width, 3)
}

// Stats returns the min, max, and mean of the tensor values.
func (t *ImageTensor) Stats() (min, max, mean float64) {
	if len(t.Data) == 0 {
		return 0, 0, 0
	}
	lo, hi := t.Data[0], t.Data[0]
	var sum float64
	for _, v := range t.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += float64(v)
	}
	return float64(lo), float64(hi), sum / float64(len(t.Data))
}

// Preprocessor turns uploaded image bytes into the tensor layout the model
// was trained on.
type Preprocessor struct {
	height int
	width  int
	mode   NormalizationMode
}

func NewPreprocessor(height, width int, mode NormalizationMode) *Preprocessor {
	return &Preprocessor{height: height, width: width, mode: mode}
}

// TensorFromBytes decodes data, resizes it to the model's input size without
// preserving aspect ratio, and lays the pixels out as NHWC float32. Grayscale
// sources are expanded to three channels and alpha channels are discarded.
func (p *Preprocessor) TensorFromBytes(data []byte) (*ImageTensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidImageError{Reason: err}
	}

	// Clone canonicalizes every source color mode to 8-bit NRGBA. Alpha is
	// forced opaque before resizing: Resize weights samples by alpha and
	// would pull the RGB of transparent pixels toward zero.
	rgb := imaging.Clone(img)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}

	resized := imaging.Resize(rgb, p.width, p.height, imaging.Lanczos)

	norm := func(v float32) float32 { return v }
	if p.mode == NormalizationMobileNetV2 {
		norm = func(v float32) float32 { return v/127.5 - 1 }
	}

	pixels := make([]float32, p.height*p.width*3)
	i := 0
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			off := resized.PixOffset(x, y)
			pixels[i] = norm(float32(resized.Pix[off]))
			pixels[i+1] = norm(float32(resized.Pix[off+1]))
			pixels[i+2] = norm(float32(resized.Pix[off+2]))
			i += 3
		}
	}

	return &ImageTensor{
		Data:  pixels,
		Shape: []int64{1, int64(p.height), int64(p.width), 3},
	}, nil
}
