package sensormux

import (
	"context"
	"log"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
)

// PortLister enumerates candidate serial ports. The indirection lets tests
// exercise discovery without hardware.
type PortLister func() ([]*enumerator.PortDetails, error)

// SystemPorts is the real lister backed by the OS port enumerator.
func SystemPorts() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// Resolve scans the port list for a device whose USB product name starts
// with name; if serialOrPath is given, a matching USB serial number or port
// path is also accepted. Returns the port path, or "" when not found.
func Resolve(list PortLister, name, serialOrPath string) (string, error) {
	ports, err := list()
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	serialOrPath = strings.TrimSpace(serialOrPath)

	for _, p := range ports {
		nameOK := name != "" && strings.HasPrefix(strings.TrimSpace(p.Product), name)
		idOK := serialOrPath != "" &&
			(strings.EqualFold(p.SerialNumber, serialOrPath) || p.Name == serialOrPath)
		if nameOK || idOK {
			return p.Name, nil
		}
	}
	return "", nil
}

// ResolveWithRetry retries Resolve with growing backoff to cover devices
// that enumerate slowly after power-on. Returns "" when the device never
// appears within tries attempts or the context ends first.
func ResolveWithRetry(ctx context.Context, list PortLister, name, serialOrPath string, tries int) string {
	for attempt := 1; attempt <= tries; attempt++ {
		if ctx.Err() != nil {
			return ""
		}
		path, err := Resolve(list, name, serialOrPath)
		if err != nil {
			log.Printf("scan: enumerate ports: %v", err)
		} else if path != "" {
			log.Printf("scan: found %s (%s) on attempt %d", name, path, attempt)
			return path
		}

		wait := time.Duration(min(2*attempt, 6)) * time.Second
		log.Printf("scan: %s not found (try %d/%d), waiting %s", name, attempt, tries, wait)
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(wait):
		}
	}
	return ""
}
