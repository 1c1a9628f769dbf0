package qr

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Generator renders the code printed on a slot: a URL pointing at the scan
// endpoint for the slot's token.
type Generator struct {
	baseURL string
}

func NewGenerator(publicBaseURL string) *Generator {
	return &Generator{baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// ScanURL is the URL encoded in a slot's QR code.
func (g *Generator) ScanURL(token string) string {
	return g.baseURL + "/s/" + url.PathEscape(token)
}

// PNG encodes the slot's scan URL as a size x size PNG.
func (g *Generator) PNG(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(g.ScanURL(token), qrcode.Medium, size)
}

// WriteFile writes the slot PNG into dir as <name>.png and returns the path.
func (g *Generator) WriteFile(dir, name, token string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".png")
	if err := qrcode.WriteFile(g.ScanURL(token), qrcode.Medium, DefaultSize, path); err != nil {
		return "", fmt.Errorf("write qr for %s: %w", name, err)
	}
	return path, nil
}
