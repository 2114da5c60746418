//go:build !linux

package process

func getAffinity(pid int) ([]int, error) {
	return nil, ErrUnsupported
}

func setAffinity(pid int, cpus []int) error {
	return ErrUnsupported
}
