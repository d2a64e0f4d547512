// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/mdplink/pkg/indicator"
)

var uptimeUnits = []struct {
	name string
	size time.Duration
}{
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// formatUptime renders a duration as "1 day, 2 hours, and 5 seconds".
func formatUptime(d time.Duration) string {
	parts := []string{}
	for _, u := range uptimeUnits {
		n := d / u.size
		d -= n * u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// formatLights renders indicator states as "heartbeat:on error:off ...".
func formatLights(lights indicator.Reader) string {
	parts := make([]string, 0, len(indicator.Lights))
	for _, l := range indicator.Lights {
		v := "off"
		if lights.State(l) {
			v = "on"
		}
		parts = append(parts, l.String()+":"+v)
	}
	return strings.Join(parts, " ")
}
