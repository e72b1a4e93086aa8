package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
)

// Input geometry expected by the classifier.
const (
	InputHeight   = 224
	InputWidth    = 224
	InputChannels = 3
)

// InputShape is reported in analysis metadata.
var InputShape = fmt.Sprintf("%dx%dx%d", InputHeight, InputWidth, InputChannels)

// Decode turns uploaded bytes into an RGB(A) buffer owned by the caller.
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	nrgba := imaging.Clone(img)
	if b := nrgba.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}
	return nrgba, nil
}

// Preprocess resizes img to the model input size, scales samples to [0,1]
// and adds a leading batch dimension. Layout is NHWC with RGB channels.
func Preprocess(img image.Image) diagnosis.Tensor {
	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.CatmullRom)

	data := make([]float32, 0, InputHeight*InputWidth*InputChannels)
	for y := 0; y < InputHeight; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+InputWidth*4]
		for x := 0; x < InputWidth*4; x += 4 {
			data = append(data,
				float32(row[x])/255,
				float32(row[x+1])/255,
				float32(row[x+2])/255,
			)
		}
	}
	return diagnosis.Tensor{
		Shape: []int{1, InputHeight, InputWidth, InputChannels},
		Data:  data,
	}
}
