package predictor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OneHot expands a window of codes into a len(window) x size matrix with a
// single 1 per row, the input layout sequence models are trained on.
func OneHot(window []int, size int) (*mat.Dense, error) {
	if len(window) == 0 || size <= 0 {
		return nil, fmt.Errorf("cannot one-hot encode %d codes over %d classes", len(window), size)
	}
	encoded := mat.NewDense(len(window), size, nil)
	for i, code := range window {
		if code < 0 || code >= size {
			return nil, fmt.Errorf("code %d at position %d outside 0..%d", code, i, size-1)
		}
		encoded.Set(i, code, 1)
	}
	return encoded, nil
}
