// ABOUTME: Bundled default model files used when no path is configured
// ABOUTME: Loaded with go:embed so the binary runs without external artifacts

package predict

import "embed"

//go:embed models/*.yaml
var modelsFS embed.FS

const (
	defaultCropModel  = "models/crop.yaml"
	defaultYieldModel = "models/yield.yaml"
)

func readModel(path, fallback string) ([]byte, error) {
	if path == "" {
		return modelsFS.ReadFile(fallback)
	}
	return readFile(path)
}
