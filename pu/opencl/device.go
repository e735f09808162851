//go:build opencl

package opencl

import (
	_ "embed"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/gf"
	u "github.com/moratsam/rlnc/util"
)

//go:embed mul.cl
var mul_source string

var ErrNoDevice = xerrors.New("no opencl device")

type device struct {
	mu      sync.Mutex
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	buf_exp *cl.MemObject
	buf_log *cl.MemObject
}

// newMultiplier sets up the first device of the first platform and loads the
// exp and log tables of f into it.
func newMultiplier(f *gf.Field) (multiplier, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, u.WrapErr("get platforms", err)
	}
	if len(platforms) == 0 {
		return nil, xerrors.Errorf("no platforms: %w", ErrNoDevice)
	}
	devices, err := platforms[0].GetDevices(cl.DeviceTypeAll)
	if err != nil {
		return nil, u.WrapErr("get devices", err)
	}
	if len(devices) == 0 {
		return nil, xerrors.Errorf("platform %s: %w", platforms[0].Name(), ErrNoDevice)
	}
	log.Infow("using opencl device", "platform", platforms[0].Name(), "device", devices[0].Name(), "type", devices[0].Type().String())

	d := new(device)
	if d.context, err = cl.CreateContext([]*cl.Device{devices[0]}); err != nil {
		return nil, u.WrapErr("create context", err)
	}
	if d.queue, err = d.context.CreateCommandQueue(devices[0], 0); err != nil {
		d.Close()
		return nil, u.WrapErr("create command queue", err)
	}
	if d.program, err = d.context.CreateProgramWithSource([]string{mul_source}); err != nil {
		d.Close()
		return nil, u.WrapErr("create program", err)
	}
	if err = d.program.BuildProgram(nil, ""); err != nil {
		d.Close()
		return nil, u.WrapErr("build program", err)
	}
	if d.kernel, err = d.program.CreateKernel("mul"); err != nil {
		d.Close()
		return nil, u.WrapErr("create kernel", err)
	}

	exp_table, log_table := f.Tables()
	if d.buf_exp, err = d.enqueueArr(exp_table); err != nil {
		d.Close()
		return nil, u.WrapErr("enqueue exp_table", err)
	}
	if d.buf_log, err = d.enqueueArr(log_table); err != nil {
		d.Close()
		return nil, u.WrapErr("enqueue log_table", err)
	}
	return d, nil
}

func (d *device) enqueueArr(arr []byte) (*cl.MemObject, error) {
	buffer, err := d.context.CreateEmptyBuffer(cl.MemReadOnly, len(arr))
	if err != nil {
		return nil, u.WrapErr("create buffer", err)
	}
	if _, err := d.queue.EnqueueWriteBuffer(buffer, true, 0, len(arr), unsafe.Pointer(&arr[0]), nil); err != nil {
		buffer.Release()
		return nil, u.WrapErr("enqueue buffer", err)
	}
	return buffer, nil
}

func flatten(mat [][]byte, cols int) []byte {
	flat := make([]byte, 0, len(mat)*cols)
	for _, row := range mat {
		flat = append(flat, row[:cols]...)
	}
	return flat
}

// Mul runs one work item per output byte.
func (d *device) Mul(a, b [][]byte) ([][]byte, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	n := len(b)
	words := len(b[0])
	if words == 0 {
		return gf.NewMatrix(len(a), 0), nil
	}
	flat_mat := flatten(a, n)
	flat_data := flatten(b, words)
	output := make([]byte, len(a)*words)

	d.mu.Lock()
	defer d.mu.Unlock()

	buf_mat, err := d.enqueueArr(flat_mat)
	if err != nil {
		return nil, u.WrapErr("enqueue mat", err)
	}
	defer buf_mat.Release()
	buf_data, err := d.enqueueArr(flat_data)
	if err != nil {
		return nil, u.WrapErr("enqueue data", err)
	}
	defer buf_data.Release()
	buf_output, err := d.context.CreateEmptyBuffer(cl.MemWriteOnly, len(output))
	if err != nil {
		return nil, u.WrapErr("create output buffer", err)
	}
	defer buf_output.Release()

	if err := d.kernel.SetArgs(d.buf_exp, d.buf_log, buf_mat, buf_data, int32(n), int32(words), buf_output); err != nil {
		return nil, u.WrapErr("set args", err)
	}
	if _, err := d.queue.EnqueueNDRangeKernel(d.kernel, nil, []int{len(a), words}, []int{1, 1}, nil); err != nil {
		return nil, u.WrapErr("enqueue kernel", err)
	}
	if err := d.queue.Finish(); err != nil {
		return nil, u.WrapErr("kernel finish", err)
	}
	if _, err := d.queue.EnqueueReadBuffer(buf_output, true, 0, len(output), unsafe.Pointer(&output[0]), nil); err != nil {
		return nil, u.WrapErr("read output buffer", err)
	}

	out := make([][]byte, len(a))
	for i := range out {
		out[i] = output[i*words : (i+1)*words : (i+1)*words]
	}
	return out, nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, buf := range []*cl.MemObject{d.buf_exp, d.buf_log} {
		if buf != nil {
			buf.Release()
		}
	}
	if d.kernel != nil {
		d.kernel.Release()
	}
	if d.program != nil {
		d.program.Release()
	}
	if d.queue != nil {
		d.queue.Release()
	}
	if d.context != nil {
		d.context.Release()
	}
	return nil
}
