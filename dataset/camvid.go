package dataset

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"
)

// CamVidEncoding is the 12-class CamVid color table. Class ids are the
// positions in this table; the final class is "unlabelled".
var CamVidEncoding = []ClassColor{
	{Name: "sky", Color: color.RGBA{128, 128, 128, 255}},
	{Name: "building", Color: color.RGBA{128, 0, 0, 255}},
	{Name: "pole", Color: color.RGBA{192, 192, 128, 255}},
	{Name: "road", Color: color.RGBA{128, 64, 128, 255}},
	{Name: "pavement", Color: color.RGBA{60, 40, 222, 255}},
	{Name: "tree", Color: color.RGBA{128, 128, 0, 255}},
	{Name: "sign_symbol", Color: color.RGBA{192, 128, 128, 255}},
	{Name: "fence", Color: color.RGBA{64, 64, 128, 255}},
	{Name: "car", Color: color.RGBA{64, 0, 128, 255}},
	{Name: "pedestrian", Color: color.RGBA{64, 64, 0, 255}},
	{Name: "bicyclist", Color: color.RGBA{0, 128, 192, 255}},
	{Name: "unlabelled", Color: color.RGBA{0, 0, 0, 255}},
}

// CamVid loads the CamVid street-scene dataset from the standard directory
// layout: images under {root}/{split} and color-coded annotations under
// {root}/{split}annot, paired by sorted filename order.
type CamVid struct {
	imagePaths []string
	labelPaths []string

	batchSize int
	height    int
	width     int

	encoding []ClassColor
	refLab   []colorful.Color

	mu         sync.RWMutex
	colorCache map[uint32]int
}

// NewCamVid creates a batch source over one CamVid split ("train", "val" or
// "test"). Images are resized to height x width: bilinear for images,
// nearest-neighbor for annotations so label colors stay exact.
func NewCamVid(root, split string, batchSize, height, width int) (*CamVid, error) {
	switch split {
	case "train", "val", "test":
	default:
		return nil, fmt.Errorf("unknown CamVid split %q", split)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	images, err := listImages(filepath.Join(root, split))
	if err != nil {
		return nil, err
	}
	labels, err := listImages(filepath.Join(root, split+"annot"))
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("split %q: %d images but %d annotations", split, len(images), len(labels))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images found under %s", filepath.Join(root, split))
	}

	cv := &CamVid{
		imagePaths: images,
		labelPaths: labels,
		batchSize:  batchSize,
		height:     height,
		width:      width,
		encoding:   CamVidEncoding,
		colorCache: make(map[uint32]int),
	}

	cv.refLab = make([]colorful.Color, len(cv.encoding))
	for i, cc := range cv.encoding {
		ref, _ := colorful.MakeColor(cc.Color)
		cv.refLab[i] = ref
	}

	return cv, nil
}

// listImages returns the sorted image files directly under dir.
func listImages(dir string) ([]string, error) {
	var paths []string
	for _, ext := range []string{".png", ".jpg", ".jpeg"} {
		files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		paths = append(paths, files...)
	}
	sort.Strings(paths)
	return paths, nil
}

// Len returns the number of batches per epoch.
func (cv *CamVid) Len() int {
	return (len(cv.imagePaths) + cv.batchSize - 1) / cv.batchSize
}

// NumClasses returns the CamVid class count, including "unlabelled".
func (cv *CamVid) NumClasses() int {
	return len(cv.encoding)
}

// ColorEncoding returns the CamVid color table.
func (cv *CamVid) ColorEncoding() []ClassColor {
	return cv.encoding
}

// Batch loads, decodes and encodes the batch at the given index.
func (cv *CamVid) Batch(i int) (*Batch, error) {
	if i < 0 || i >= cv.Len() {
		return nil, fmt.Errorf("batch index %d out of range [0, %d)", i, cv.Len())
	}

	start := i * cv.batchSize
	end := start + cv.batchSize
	if end > len(cv.imagePaths) {
		end = len(cv.imagePaths)
	}
	samples := end - start

	classes := cv.NumClasses()
	batch := &Batch{
		Images:   make([]float32, samples*cv.height*cv.width*3),
		Labels:   make([]float32, samples*cv.height*cv.width*classes),
		Samples:  samples,
		Height:   cv.height,
		Width:    cv.width,
		Channels: 3,
		Classes:  classes,
	}

	for s := 0; s < samples; s++ {
		img, err := decodeImage(cv.imagePaths[start+s])
		if err != nil {
			return nil, fmt.Errorf("sample %d: %v", start+s, err)
		}
		img = resize.Resize(uint(cv.width), uint(cv.height), img, resize.Bilinear)
		cv.fillImage(batch, s, img)

		annot, err := decodeImage(cv.labelPaths[start+s])
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %v", start+s, err)
		}
		annot = resize.Resize(uint(cv.width), uint(cv.height), annot, resize.NearestNeighbor)
		cv.fillLabels(batch, s, annot)
	}

	return batch, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v", path, err)
	}
	return img, nil
}

// fillImage writes one sample's pixels, scaled to [0, 1].
func (cv *CamVid) fillImage(batch *Batch, sample int, img image.Image) {
	bounds := img.Bounds()
	base := sample * cv.height * cv.width * 3

	for y := 0; y < cv.height; y++ {
		for x := 0; x < cv.width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := base + (y*cv.width+x)*3
			batch.Images[off] = float32(r>>8) / 255.0
			batch.Images[off+1] = float32(g>>8) / 255.0
			batch.Images[off+2] = float32(b>>8) / 255.0
		}
	}
}

// fillLabels writes one sample's one-hot label map.
func (cv *CamVid) fillLabels(batch *Batch, sample int, annot image.Image) {
	bounds := annot.Bounds()
	base := sample * cv.height * cv.width * batch.Classes

	for y := 0; y < cv.height; y++ {
		for x := 0; x < cv.width; x++ {
			class := cv.ClassOf(annot.At(bounds.Min.X+x, bounds.Min.Y+y))
			batch.Labels[base+(y*cv.width+x)*batch.Classes+class] = 1
		}
	}
}

// ClassOf maps an annotation color to its class id: exact table match when
// possible, otherwise nearest color by Lab distance. Resolved colors are
// cached since annotations draw from a small palette.
func (cv *CamVid) ClassOf(c color.Color) int {
	r, g, b, _ := c.RGBA()
	key := (r>>8)<<16 | (g>>8)<<8 | (b >> 8)

	cv.mu.RLock()
	class, ok := cv.colorCache[key]
	cv.mu.RUnlock()
	if ok {
		return class
	}

	sample, _ := colorful.MakeColor(color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255})
	best := 0
	bestDist := cv.refLab[0].DistanceLab(sample)
	for i := 1; i < len(cv.refLab); i++ {
		if d := cv.refLab[i].DistanceLab(sample); d < bestDist {
			bestDist = d
			best = i
		}
	}

	cv.mu.Lock()
	cv.colorCache[key] = best
	cv.mu.Unlock()
	return best
}
