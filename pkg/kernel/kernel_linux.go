//go:build linux

package kernel

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	version     Version
	versionErr  error
	versionOnce sync.Once
)

func parseRelease(release string) (v Version, err error) {
	var partial string
	parsed, _ := fmt.Sscanf(release, "%d.%d%s", &v.Major, &v.Minor, &partial)
	if parsed < 2 {
		err = fmt.Errorf("cannot parse kernel release: %s", release)
		return
	}
	if parsed, _ = fmt.Sscanf(partial, ".%d%s", &v.Patch, &v.Flavor); parsed < 1 {
		v.Flavor = partial
	}
	return
}

// Get returns the running kernel's release, parsed once.
func Get() (Version, error) {
	versionOnce.Do(func() {
		uts := &unix.Utsname{}
		if err := unix.Uname(uts); err != nil {
			versionErr = err
			return
		}
		release := string(uts.Release[:bytes.IndexByte(uts.Release[:], 0)])
		version, versionErr = parseRelease(release)
	})
	return version, versionErr
}
