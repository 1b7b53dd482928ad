package gdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var versionPrefix = regexp.MustCompile(`^v?(\d+\.\d+(?:\.\d+)?)`)

// ExtractVersion finds the semantic version in a banner line such as
// "GNU gdb (Arm GNU Toolchain 13.2.rel1) 13.2.90.20231008-git" or
// "Black Magic Probe v2.0.0-rc1". Fields are tried from the end, where
// both GDB and the probe print their own version.
func ExtractVersion(line string) (*semver.Version, error) {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		f := strings.Trim(fields[i], "(),")
		if v, err := semver.StrictNewVersion(strings.TrimPrefix(f, "v")); err == nil {
			return v, nil
		}
		if m := versionPrefix.FindStringSubmatch(f); m != nil {
			if v, err := semver.NewVersion(m[1]); err == nil {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("no version in %q", line)
}

// CheckVersion returns an error unless the version found in line
// satisfies constraint. An empty constraint always passes.
func CheckVersion(line, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("version constraint %q: %w", constraint, err)
	}
	v, err := ExtractVersion(line)
	if err != nil {
		return err
	}
	if ok, errs := c.Validate(v); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("version %s: %w", v, errs[0])
		}
		return fmt.Errorf("version %s does not satisfy %q", v, constraint)
	}
	return nil
}
