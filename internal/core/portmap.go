package core

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	rePortMapping = regexp.MustCompile(`^\d+:\d+$`)
	errPortRange  = errors.New("port must be between 1 and 65535")
)

// PortMapping is a parsed "host:container" pair.
type PortMapping struct {
	HostPort      int
	ContainerPort int
}

// ParsePortMapping validates s and returns the parsed mapping. The empty string
// is valid and yields (nil, nil): no mapping requested.
func ParsePortMapping(s string) (*PortMapping, error) {
	if s == "" {
		return nil, nil
	}
	if !rePortMapping.MatchString(s) {
		return nil, Errorf(ValidationFailed, "", "invalid port mapping %q: use hostPort:containerPort (e.g. 8080:80)", s)
	}
	host, container, _ := strings.Cut(s, ":")
	hp, err := parsePort(host)
	if err != nil {
		return nil, Errorf(ValidationFailed, "", "invalid host port in %q: %v", s, err)
	}
	cp, err := parsePort(container)
	if err != nil {
		return nil, Errorf(ValidationFailed, "", "invalid container port in %q: %v", s, err)
	}
	return &PortMapping{HostPort: hp, ContainerPort: cp}, nil
}

// ValidatePortMapping reports whether s is an acceptable port mapping.
func ValidatePortMapping(s string) error {
	_, err := ParsePortMapping(s)
	return err
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		// only reachable on overflow since the regexp admits digits only
		return 0, errPortRange
	}
	if n < 1 || n > 65535 {
		return 0, errPortRange
	}
	return n, nil
}

