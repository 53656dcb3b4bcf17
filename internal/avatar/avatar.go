// Package avatar generates placeholder profile images for new users: a random
// dark background with a lighter centered disc, written as a 200x200 PNG.
package avatar

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/xid"
)

const (
	imageSize  = 200
	discMin    = 40
	discMax    = 160
	lightenBy  = 30
	channelMin = 50
	channelMax = 200
)

// Generator writes avatars into a directory served under a public path.
type Generator struct {
	dir       string
	publicDir string
}

// NewGenerator creates a generator. dir is created on first use.
func NewGenerator(dir, publicDir string) *Generator {
	return &Generator{
		dir:       dir,
		publicDir: publicDir,
	}
}

// Generate renders a fresh avatar and returns its public URL path.
func (g *Generator) Generate() (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("create avatar dir: %w", err)
	}

	bg := color.RGBA{
		R: randChannel(),
		G: randChannel(),
		B: randChannel(),
		A: 255,
	}
	fg := color.RGBA{
		R: lighten(bg.R),
		G: lighten(bg.G),
		B: lighten(bg.B),
		A: 255,
	}

	img := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))

	center := (discMin + discMax) / 2
	radius := (discMax - discMin) / 2
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			dx, dy := x-center, y-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, fg)
			} else {
				img.SetRGBA(x, y, bg)
			}
		}
	}

	name := xid.New().String() + ".png"
	path := filepath.Join(g.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create avatar file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode avatar: %w", err)
	}

	return g.publicDir + "/" + name, nil
}

func randChannel() uint8 {
	return uint8(channelMin + rand.Intn(channelMax-channelMin+1))
}

func lighten(c uint8) uint8 {
	if c > 255-lightenBy {
		return 255
	}
	return c + lightenBy
}
