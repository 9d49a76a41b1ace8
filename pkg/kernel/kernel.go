package kernel

// Version is a parsed kernel release.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Flavor string
}

func Compare(a, b Version) int {
	if a.Major != b.Major {
		if a.Major > b.Major {
			return 1
		}
		return -1
	}
	if a.Minor != b.Minor {
		if a.Minor > b.Minor {
			return 1
		}
		return -1
	}
	if a.Patch != b.Patch {
		if a.Patch > b.Patch {
			return 1
		}
		return -1
	}
	return 0
}

// Check reports whether the running kernel is at least major.minor.patch.
func Check(major, minor, patch int) bool {
	v, err := Get()
	if err != nil {
		return false
	}
	return Compare(v, Version{Major: major, Minor: minor, Patch: patch}) >= 0
}
