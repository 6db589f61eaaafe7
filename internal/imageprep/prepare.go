// Package imageprep turns a submitted payload into the RGBA frame the
// pipeline consumes: it fetches or decodes the image and makes sure the
// alpha channel carries a usable object mask.
package imageprep

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"mesh3d/internal/domain"
)

const (
	fetchTimeout = 60 * time.Second
	maxImageSize = 32 << 20 // 32 MiB
)

// Preparer resolves submission inputs into RGBA images.
type Preparer struct {
	client *http.Client
}

func New() *Preparer {
	return &Preparer{client: &http.Client{Timeout: fetchTimeout}}
}

// Prepare decodes the inline payload or fetches the referenced URL, then
// converts to RGBA. Images without alpha information get a center-box mask
// so the pipeline still has a foreground estimate to work with.
func (p *Preparer) Prepare(ctx context.Context, input domain.GenerateInput) (*image.RGBA, error) {
	var raw []byte
	switch {
	case input.ImageURL != "":
		fetched, err := p.fetch(ctx, input.ImageURL)
		if err != nil {
			return nil, err
		}
		raw = fetched
	case len(input.ImageData) > 0:
		raw = input.ImageData
	default:
		return nil, fmt.Errorf("imageprep: %w: no image payload", domain.ErrInvalidInput)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("imageprep: decode image: %w", err)
	}

	rgba := toRGBA(src)
	ensureMask(rgba)
	return rgba, nil
}

func (p *Preparer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imageprep: build fetch request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imageprep: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imageprep: fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("imageprep: read image body: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("imageprep: %w: image exceeds %d bytes", domain.ErrInvalidInput, maxImageSize)
	}
	return data, nil
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	bounds := src.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, src, bounds.Min, draw.Src)
	return rgba
}

// ensureMask checks whether the alpha channel varies. A fully opaque image
// carries no segmentation, so the central 80% box is kept and the border
// zeroed, matching the pipeline's fallback masking behavior.
func ensureMask(img *image.RGBA) {
	bounds := img.Bounds()
	flat := true
	for y := bounds.Min.Y; y < bounds.Max.Y && flat; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.RGBAAt(x, y).A != 0xFF {
				flat = false
				break
			}
		}
	}
	if !flat {
		return
	}

	w := bounds.Dx()
	h := bounds.Dy()
	x0 := bounds.Min.X + w/10
	x1 := bounds.Min.X + w*9/10
	y0 := bounds.Min.Y + h/10
	y1 := bounds.Min.Y + h*9/10
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if x < x0 || x >= x1 || y < y0 || y >= y1 {
				px := img.RGBAAt(x, y)
				px.A = 0
				img.SetRGBA(x, y, px)
			}
		}
	}
}
