//go:build !opencl

package opencl

import (
	"github.com/moratsam/rlnc/gf"
)

func newMultiplier(f *gf.Field) (multiplier, error) {
	log.Warnw("built without opencl, multiplying on the CPU", "poly", f.Poly())
	return cpuMultiplier{f}, nil
}
