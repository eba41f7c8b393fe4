// tfdevice_check loads the virtual device plugin against an in-memory host, registers and runs
// its kernels, and prints a report of the device and of the kernels.
//
// Usage:
//
//	tfdevice_check -config="platform=MY_PLATFORM,type=MY_DEVICE" -format=NCHW -dims=2,3,4,5
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/device"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/host/hosttest"
	"github.com/gomlx/tfdevice/pkg/kernels"
	"github.com/gomlx/tfdevice/pkg/layout"
	"github.com/gomlx/tfdevice/pkg/registry"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "", "Device identity, as a comma-separated list of key=value pairs. "+
		"Keys are \"platform\", \"type\", \"device\" and \"payload\". Empty uses the default identity.")
	flagFormat = flag.String("format", "NHWC", "Data format used to run BiasAdd, a permutation of \"NHWC\".")
	flagDims   = flag.String("dims", "2,3,4,5", "Comma-separated dims of the BiasAdd and Relu input, in the order of --format.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'tfdevice_check -help'.", flag.Args())
		os.Exit(1)
	}

	if err := exceptions.TryCatch[error](func() { layout.ValidateFormat(*flagFormat) }); err != nil {
		klog.Errorf("Invalid --format: %v", err)
		os.Exit(1)
	}
	identity := must.M1(config.Parse(*flagConfig))
	dims := must.M1(parseDims(*flagDims))
	runtime := must.M1(hosttest.NewRuntime(identity))
	defer runtime.Close()

	kernelHost := hosttest.NewHost()
	reg := registry.New(kernelHost, identity)
	for _, err := range kernels.InitKernels(reg) {
		klog.Errorf("Kernel registration failed: %+v", err)
	}

	reportDevice(runtime)
	reportKernels(reg)
	if !reportRuns(runtime, kernelHost, reg, dims) {
		os.Exit(1)
	}
}

func parseDims(text string) ([]int64, error) {
	parts := strings.Split(text, ",")
	dims := make([]int64, 0, len(parts))
	for _, part := range parts {
		dim, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid --dims=%q", text)
		}
		if dim < 0 {
			return nil, errors.Errorf("invalid --dims=%q: negative dimension %d", text, dim)
		}
		dims = append(dims, dim)
	}
	if len(dims) != layout.Rank {
		return nil, errors.Errorf("invalid --dims=%q: BiasAdd requires %d dims, got %d", text, layout.Rank, len(dims))
	}
	return dims, nil
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				s = headerRowStyle
				return
			}
			switch {
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func reportDevice(runtime *hosttest.Runtime) {
	fmt.Println(titleStyle.Render("Device"))
	st := status.New()
	table := newPlainTable(false)
	table.Row("platform", runtime.Params.Platform.Name)
	table.Row("platform type", runtime.Params.Platform.Type)
	table.Row("# devices", humanize.Comma(int64(runtime.Platform.DeviceCount(st))))
	table.Row("device ordinal", strconv.Itoa(int(runtime.Device.Ordinal)))
	table.Row("device handle", runtime.Device.Handle.String())
	if free, total, ok := runtime.Executor.DeviceMemoryUsage(runtime.Device, st); ok {
		table.Row("free memory", humanize.Bytes(uint64(free)))
		table.Row("total memory", humanize.Bytes(uint64(total)))
	}
	stats := &device.AllocatorStats{}
	if runtime.Executor.GetAllocatorStats(runtime.Device, stats, st) {
		table.Row("bytes in use", humanize.Bytes(uint64(stats.BytesInUse)))
	}
	fmt.Println(table.Render())
}

func reportKernels(reg *registry.Registry) {
	fmt.Println(titleStyle.Render("Kernels"))
	table := newPlainTable(true)
	table.Row("Kernel", "Op", "Device Type", "Constraints")
	for _, desc := range reg.Descriptors() {
		constraints := make([]string, 0, len(desc.Constraints))
		for _, name := range desc.ConstraintNames() {
			constraints = append(constraints, fmt.Sprintf("%s=%s", name, desc.Constraints[name]))
		}
		table.Row(desc.KernelName, desc.OpName, desc.DeviceType, strings.Join(constraints, ", "))
	}
	fmt.Println(table.Render())
}

// kernelRun is one kernel execution checked by reportRuns.
type kernelRun struct {
	opName string
	attrs  map[string]any
	inputs []*host.Tensor
	want   []float32
}

// reportRuns runs BiasAdd and Relu over a deterministic input and compares them with the values
// computed on the host. It returns false if any run failed or mismatched.
func reportRuns(runtime *hosttest.Runtime, kernelHost *hosttest.Host, reg *registry.Registry, dims []int64) bool {
	named := layout.DecodeNamedDims(dims, *flagFormat)
	flat := make([]float32, named.Size())
	for i := range flat {
		flat[i] = float32(i%11) - 5
	}
	biasValues := make([]float32, named.C)
	for i := range biasValues {
		biasValues[i] = float32(10 * (i + 1))
	}
	input := must.M1(hosttest.Upload(runtime, dims, flat))
	bias := must.M1(hosttest.Upload(runtime, []int64{named.C}, biasValues))

	wantBiasAdd := make([]float32, len(flat))
	addr := layout.NewAddressor(dims, *flagFormat)
	for n := range int(named.N) {
		for h := range int(named.H) {
			for w := range int(named.W) {
				for c := range int(named.C) {
					i := addr.Offset(n, h, w, c)
					wantBiasAdd[i] = flat[i] + biasValues[c]
				}
			}
		}
	}
	wantRelu := make([]float32, len(flat))
	for i, x := range flat {
		wantRelu[i] = max(x, 0)
	}

	fmt.Println(titleStyle.Render("Runs"))
	table := newPlainTable(true)
	table.Row("Op", "Input", "Elements", "Output Bytes", "Max Error", "Result")
	allOk := true
	for _, run := range []kernelRun{
		{kernels.BiasAddOpName, map[string]any{kernels.DataFormatAttr: *flagFormat}, []*host.Tensor{input, bias}, wantBiasAdd},
		{kernels.ReluOpName, nil, []*host.Tensor{input}, wantRelu},
	} {
		outputBytes, maxErr, err := runKernel(runtime, kernelHost, reg, run)
		result := "ok"
		if err != nil {
			result = err.Error()
			allOk = false
		} else if maxErr != 0 {
			result = "mismatch"
			allOk = false
		}
		table.Row(run.opName, input.String(), humanize.Comma(input.ElementCount()),
			humanize.Bytes(outputBytes), fmt.Sprintf("%g", maxErr), result)
	}
	fmt.Println(table.Render())
	return allOk
}

// runKernel instantiates, computes and deletes one kernel, and returns the size of its output and
// the maximum absolute difference with run.want.
func runKernel(runtime *hosttest.Runtime, kernelHost *hosttest.Host, reg *registry.Registry, run kernelRun) (outputBytes uint64, maxErr float64, err error) {
	registration, err := kernelHost.Lookup(run.opName, reg.DeviceType())
	if err != nil {
		return 0, 0, err
	}
	inst, err := registration.Instantiate(run.attrs)
	if err != nil {
		return 0, 0, err
	}
	defer inst.Delete()
	ctx := runtime.NewContext(run.inputs...)
	defer ctx.Release()
	if err = inst.Compute(ctx); err != nil {
		return 0, 0, err
	}
	output := ctx.Output(0)
	if output == nil {
		return 0, 0, nil
	}
	got, err := hosttest.Download[float32](runtime, output)
	if err != nil {
		return 0, 0, err
	}
	for i, want := range run.want {
		maxErr = max(maxErr, math.Abs(float64(got[i]-want)))
	}
	return uint64(len(output.Bytes())), maxErr, nil
}
