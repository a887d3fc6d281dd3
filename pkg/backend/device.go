package backend

// probeDevice reports whether a GPU-class compute device is usable for
// attribute kernels. A real device path would enumerate adapters here and
// allocate device memory lazily on first use, the way the host backend plans
// FFTs lazily per trace length. This build carries no device runtime, so the
// probe always reports unavailable and Select(KindDevice) fails with
// ErrUnavailable.
func probeDevice() (bool, string) {
	return false, "no compute device runtime in this build"
}
